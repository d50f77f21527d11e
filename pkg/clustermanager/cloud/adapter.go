/*
Copyright 2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cloud is the Adapter implementation for clusters whose
// spec.manager is "cloud": a cluster that is itself a pool of compute
// instances on an OpenStack-compatible cloud, with flavors/availability
// zones standing in for node capacity and a compute server standing in
// for a job replica.
package cloud

import (
	"context"
	"fmt"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/availabilityzones"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/gophercloud/utils/openstack/clientconfig"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/clustermanager"
)

func init() {
	clustermanager.Register(v1alpha1.ClusterManagerCloud, New)
}

// Adapter drives one OpenStack-compatible cloud project via gophercloud.
type Adapter struct {
	name          string
	imageRef      string
	flavorRef     string
	networkID     string
	computeClient *gophercloud.ServiceClient
}

var _ clustermanager.Adapter = &Adapter{}

// New builds an Adapter from a Cluster's connection_config: endpoint,
// username, password, tenant_name, domain_name for auth, and image_ref /
// flavor_ref / network_id for the servers a replica creates.
func New(spec v1alpha1.ClusterSpec) (clustermanager.Adapter, error) {
	cfg := spec.ConnectionConfig

	// clientconfig mirrors the os-client-config / clouds.yaml auth shape
	// rather than requiring every connection_config key to line up with
	// gophercloud.AuthOptions' field names directly.
	authOptions, err := clientconfig.AuthOptions(&clientconfig.ClientOpts{
		AuthInfo: &clientconfig.AuthInfo{
			AuthURL:     cfg["endpoint"],
			Username:    cfg["username"],
			Password:    cfg["password"],
			ProjectName: cfg["tenant_name"],
			DomainName:  cfg["domain_name"],
		},
	})
	if err != nil {
		return nil, fmt.Errorf("resolving cloud auth options: %w", err)
	}

	provider, err := openstack.AuthenticatedClient(*authOptions)
	if err != nil {
		return nil, fmt.Errorf("authenticating with cloud backend: %w", err)
	}

	computeClient, err := openstack.NewComputeV2(provider, gophercloud.EndpointOpts{})
	if err != nil {
		return nil, fmt.Errorf("creating compute client: %w", err)
	}

	return &Adapter{
		name:          cfg["name"],
		imageRef:      cfg["image_ref"],
		flavorRef:     cfg["flavor_ref"],
		networkID:     cfg["network_id"],
		computeClient: computeClient,
	}, nil
}

// GetClusterStatus uses the project's flavor catalogue and availability
// zones as a capacity proxy: one synthetic "node" per zone, advertising
// the named flavor's resources as both capacity and allocatable (cloud
// quota is not modeled further, per Non-goals).
func (a *Adapter) GetClusterStatus(ctx context.Context) (clustermanager.ClusterStatusReport, error) {
	flavor, err := a.flavor(ctx)
	if err != nil {
		return clustermanager.ClusterStatusReport{}, err
	}

	zonePage, err := availabilityzones.List(a.computeClient).AllPages()
	if err != nil {
		return clustermanager.ClusterStatusReport{}, fmt.Errorf("listing availability zones: %w", err)
	}

	zones, err := availabilityzones.ExtractAvailabilityZones(zonePage)
	if err != nil {
		return clustermanager.ClusterStatusReport{}, fmt.Errorf("extracting availability zones: %w", err)
	}

	resources := v1alpha1.ResourceList{
		v1alpha1.ResourceCPUs:   float64(flavor.VCPUs),
		v1alpha1.ResourceMemory: float64(flavor.RAM),
		v1alpha1.ResourceDisk:   float64(flavor.Disk),
	}

	capacity := make(v1alpha1.NodeResources, len(zones))

	for _, zone := range zones {
		if !zone.ZoneState.Available {
			continue
		}

		capacity[zone.ZoneName] = resources
	}

	return clustermanager.ClusterStatusReport{
		Phase:               v1alpha1.ClusterPhaseReady,
		Capacity:            capacity,
		AllocatableCapacity: cloneNodeResources(capacity),
	}, nil
}

// cloneNodeResources makes an independent copy; NodeResources' own clone
// method is unexported to its defining package, so adapters that need
// one (to give Capacity and AllocatableCapacity independent backing maps)
// provide their own copy of both levels.
func cloneNodeResources(in v1alpha1.NodeResources) v1alpha1.NodeResources {
	out := make(v1alpha1.NodeResources, len(in))
	for k, v := range in {
		rl := make(v1alpha1.ResourceList, len(v))
		for rk, rv := range v {
			rl[rk] = rv
		}

		out[k] = rl
	}

	return out
}

func (a *Adapter) flavor(ctx context.Context) (*flavors.Flavor, error) {
	flavor, err := flavors.Get(a.computeClient, a.flavorRef).Extract()
	if err != nil {
		return nil, fmt.Errorf("fetching flavor %s: %w", a.flavorRef, err)
	}

	_ = ctx

	return flavor, nil
}

// SubmitJob creates replicaCount compute servers, one per replica, named
// after the Job and returns the common name prefix as the backend job id
// (servers are looked up again by that prefix in GetJobStatus).
func (a *Adapter) SubmitJob(ctx context.Context, job *v1alpha1.Job, replicaCount int) (string, error) {
	prefix := fmt.Sprintf("skyshift-%s-%s", job.Metadata.Namespace, job.Metadata.Name)

	for i := 0; i < replicaCount; i++ {
		opts := servers.CreateOpts{
			Name:      fmt.Sprintf("%s-%d", prefix, i),
			ImageRef:  a.imageRef,
			FlavorRef: a.flavorRef,
			Networks:  []servers.Network{{UUID: a.networkID}},
			Metadata:  job.Spec.Envs,
		}

		if _, err := servers.Create(a.computeClient, opts).Extract(); err != nil {
			return "", fmt.Errorf("creating server %d/%d: %w", i+1, replicaCount, err)
		}
	}

	_ = ctx

	return prefix, nil
}

// DeleteJob deletes every server whose name carries backendJobID as a
// prefix.
func (a *Adapter) DeleteJob(ctx context.Context, backendJobID string) error {
	page, err := servers.List(a.computeClient, servers.ListOpts{Name: "^" + backendJobID}).AllPages()
	if err != nil {
		return fmt.Errorf("listing servers for %s: %w", backendJobID, err)
	}

	all, err := servers.ExtractServers(page)
	if err != nil {
		return fmt.Errorf("extracting servers for %s: %w", backendJobID, err)
	}

	for _, server := range all {
		if err := servers.Delete(a.computeClient, server.ID).ExtractErr(); err != nil {
			return fmt.Errorf("deleting server %s: %w", server.ID, err)
		}
	}

	_ = ctx

	return nil
}

// GetJobStatus maps each matching server's status onto a TaskState.
func (a *Adapter) GetJobStatus(ctx context.Context, backendJobID string) (clustermanager.JobStatusReport, error) {
	page, err := servers.List(a.computeClient, servers.ListOpts{Name: "^" + backendJobID}).AllPages()
	if err != nil {
		return clustermanager.JobStatusReport{}, fmt.Errorf("listing servers for %s: %w", backendJobID, err)
	}

	all, err := servers.ExtractServers(page)
	if err != nil {
		return clustermanager.JobStatusReport{}, fmt.Errorf("extracting servers for %s: %w", backendJobID, err)
	}

	report := clustermanager.JobStatusReport{
		TaskStates:      make(map[string]v1alpha1.TaskState, len(all)),
		ContainerStatus: make(map[string]string, len(all)),
	}

	for _, server := range all {
		report.TaskStates[server.Name] = serverStatusToTaskState(server.Status)
		report.ContainerStatus[server.Name] = server.Status
	}

	_ = ctx

	return report, nil
}

func serverStatusToTaskState(status string) v1alpha1.TaskState {
	switch status {
	case "ACTIVE":
		return v1alpha1.TaskStateRunning
	case "ERROR":
		return v1alpha1.TaskStateFailed
	case "SHUTOFF", "DELETED":
		return v1alpha1.TaskStateComplete
	default:
		return v1alpha1.TaskStateInit
	}
}

// Network returns this adapter's mesh handle.
func (a *Adapter) Network() clustermanager.NetworkHandle {
	return &networkHandle{name: a.name}
}
