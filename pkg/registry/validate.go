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

package registry

import (
	"fmt"
	"regexp"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
)

//nolint:gochecknoglobals
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalid)
	}

	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: name %q must match %s", ErrInvalid, name, namePattern.String())
	}

	return nil
}

func validateResources(r v1alpha1.ResourceList) error {
	for kind, qty := range r {
		if qty < 0 {
			return fmt.Errorf("%w: resource %q has negative quantity %v", ErrInvalid, kind, qty)
		}
	}

	return nil
}

func validateJob(obj v1alpha1.Object, namespaceExists func(string) bool) error {
	job, ok := obj.(*v1alpha1.Job)
	if !ok {
		return fmt.Errorf("%w: expected *Job", ErrInvalid)
	}

	if err := validateName(job.Metadata.Name); err != nil {
		return err
	}

	if job.Metadata.Namespace == "" {
		return fmt.Errorf("%w: job requires a namespace", ErrInvalid)
	}

	if namespaceExists != nil && !namespaceExists(job.Metadata.Namespace) {
		return fmt.Errorf("%w: namespace %q does not exist", ErrInvalid, job.Metadata.Namespace)
	}

	if job.Spec.Image == "" {
		return fmt.Errorf("%w: job spec.image must not be empty", ErrInvalid)
	}

	if job.Spec.Replicas < 1 {
		return fmt.Errorf("%w: job spec.replicas must be >= 1, got %d", ErrInvalid, job.Spec.Replicas)
	}

	if err := validateResources(job.Spec.Resources); err != nil {
		return err
	}

	switch job.Spec.RestartPolicy {
	case "", v1alpha1.RestartPolicyAlways, v1alpha1.RestartPolicyNever, v1alpha1.RestartPolicyOnFailure:
	default:
		return fmt.Errorf("%w: job spec.restartPolicy %q is not recognised", ErrInvalid, job.Spec.RestartPolicy)
	}

	return nil
}

func validateFilterPolicy(obj v1alpha1.Object, namespaceExists func(string) bool) error {
	policy, ok := obj.(*v1alpha1.FilterPolicy)
	if !ok {
		return fmt.Errorf("%w: expected *FilterPolicy", ErrInvalid)
	}

	if err := validateName(policy.Metadata.Name); err != nil {
		return err
	}

	if policy.Metadata.Namespace == "" {
		return fmt.Errorf("%w: filter policy requires a namespace", ErrInvalid)
	}

	if namespaceExists != nil && !namespaceExists(policy.Metadata.Namespace) {
		return fmt.Errorf("%w: namespace %q does not exist", ErrInvalid, policy.Metadata.Namespace)
	}

	if len(policy.Spec.Include) > 0 && len(policy.Spec.Exclude) > 0 {
		return fmt.Errorf("%w: filter policy spec.include and spec.exclude are mutually exclusive", ErrInvalid)
	}

	return nil
}

func validateService(obj v1alpha1.Object, namespaceExists func(string) bool) error {
	svc, ok := obj.(*v1alpha1.Service)
	if !ok {
		return fmt.Errorf("%w: expected *Service", ErrInvalid)
	}

	if err := validateName(svc.Metadata.Name); err != nil {
		return err
	}

	if svc.Metadata.Namespace == "" {
		return fmt.Errorf("%w: service requires a namespace", ErrInvalid)
	}

	if namespaceExists != nil && !namespaceExists(svc.Metadata.Namespace) {
		return fmt.Errorf("%w: namespace %q does not exist", ErrInvalid, svc.Metadata.Namespace)
	}

	if svc.Spec.PrimaryCluster == "" {
		return fmt.Errorf("%w: service spec.primaryCluster must not be empty", ErrInvalid)
	}

	seen := make(map[string]struct{}, len(svc.Spec.Ports))

	for _, p := range svc.Spec.Ports {
		if p.Port < 1 || p.Port > 65535 {
			return fmt.Errorf("%w: service port %d out of range [1,65535]", ErrInvalid, p.Port)
		}

		key := p.Name

		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: service port name %q duplicated", ErrInvalid, key)
		}

		seen[key] = struct{}{}
	}

	return nil
}

// validateEndpoints has no spec to check here; existence-tied-to-Service is
// a cross-object constraint that needs the store's existing collection, so
// Handler.checkEndpointsHasService enforces it at create time, and
// Handler.checkNoEndpointsFor enforces the matching rule on Service delete.
func validateEndpoints(obj v1alpha1.Object, namespaceExists func(string) bool) error {
	ep, ok := obj.(*v1alpha1.Endpoints)
	if !ok {
		return fmt.Errorf("%w: expected *Endpoints", ErrInvalid)
	}

	if err := validateName(ep.Metadata.Name); err != nil {
		return err
	}

	if ep.Metadata.Namespace == "" {
		return fmt.Errorf("%w: endpoints requires a namespace", ErrInvalid)
	}

	if namespaceExists != nil && !namespaceExists(ep.Metadata.Namespace) {
		return fmt.Errorf("%w: namespace %q does not exist", ErrInvalid, ep.Metadata.Namespace)
	}

	return nil
}

func validateCluster(obj v1alpha1.Object, _ func(string) bool) error {
	cluster, ok := obj.(*v1alpha1.Cluster)
	if !ok {
		return fmt.Errorf("%w: expected *Cluster", ErrInvalid)
	}

	if err := validateName(cluster.Metadata.Name); err != nil {
		return err
	}

	switch cluster.Spec.Manager {
	case v1alpha1.ClusterManagerKubernetes, v1alpha1.ClusterManagerSlurm, v1alpha1.ClusterManagerRay, v1alpha1.ClusterManagerCloud:
	default:
		return fmt.Errorf("%w: cluster spec.manager %q is not recognised", ErrInvalid, cluster.Spec.Manager)
	}

	switch cluster.Status.Status {
	case "", v1alpha1.ClusterPhaseInit, v1alpha1.ClusterPhaseProvisioning, v1alpha1.ClusterPhaseReady,
		v1alpha1.ClusterPhaseError, v1alpha1.ClusterPhaseDeleting:
	default:
		return fmt.Errorf("%w: cluster status.status %q is not recognised", ErrInvalid, cluster.Status.Status)
	}

	for _, node := range cluster.Status.Capacity {
		if err := validateResources(node); err != nil {
			return err
		}
	}

	for _, node := range cluster.Status.AllocatableCapacity {
		if err := validateResources(node); err != nil {
			return err
		}
	}

	return nil
}

func validateNamespace(obj v1alpha1.Object, _ func(string) bool) error {
	ns, ok := obj.(*v1alpha1.Namespace)
	if !ok {
		return fmt.Errorf("%w: expected *Namespace", ErrInvalid)
	}

	if err := validateName(ns.Metadata.Name); err != nil {
		return err
	}

	// A namespace name sharing a cluster-scoped kind's route segment (e.g.
	// "clusters") would collide with that kind's top-level collection route;
	// reserve every registered plural.
	for _, entry := range entries {
		if ns.Metadata.Name == entry.Plural {
			return fmt.Errorf("%w: namespace name %q is reserved for the %s collection route", ErrInvalid, ns.Metadata.Name, entry.Kind)
		}
	}

	return nil
}

func validateLink(obj v1alpha1.Object, _ func(string) bool) error {
	link, ok := obj.(*v1alpha1.Link)
	if !ok {
		return fmt.Errorf("%w: expected *Link", ErrInvalid)
	}

	if err := validateName(link.Metadata.Name); err != nil {
		return err
	}

	if link.Spec.ClusterA == "" || link.Spec.ClusterB == "" {
		return fmt.Errorf("%w: link spec.clusterA and spec.clusterB must both be set", ErrInvalid)
	}

	if link.Spec.ClusterA == link.Spec.ClusterB {
		return fmt.Errorf("%w: link cannot connect a cluster to itself", ErrInvalid)
	}

	switch link.Status.Phase {
	case "", v1alpha1.LinkPhaseActive, v1alpha1.LinkPhaseFailed:
	default:
		return fmt.Errorf("%w: link status.phase %q is not recognised", ErrInvalid, link.Status.Phase)
	}

	// Symmetric-uniqueness (at most one Link per unordered cluster pair) needs
	// the store's existing collection to check, so Handler.checkLinkUnique
	// enforces it at create time, not here.

	return nil
}

func validateRole(obj v1alpha1.Object, _ func(string) bool) error {
	role, ok := obj.(*v1alpha1.Role)
	if !ok {
		return fmt.Errorf("%w: expected *Role", ErrInvalid)
	}

	if err := validateName(role.Metadata.Name); err != nil {
		return err
	}

	if len(role.Spec.Users) == 0 {
		return fmt.Errorf("%w: role spec.users must not be empty", ErrInvalid)
	}

	for _, rule := range role.Spec.Rules {
		if len(rule.Resources) == 0 {
			return fmt.Errorf("%w: role rule requires at least one resource", ErrInvalid)
		}

		if len(rule.Actions) == 0 {
			return fmt.Errorf("%w: role rule requires at least one action", ErrInvalid)
		}

		for _, resource := range rule.Resources {
			if resource == v1alpha1.Wildcard {
				continue
			}

			if _, err := Lookup(resource); err != nil {
				return fmt.Errorf("%w: role rule resource %q is not a recognised kind", ErrInvalid, resource)
			}
		}
	}

	return nil
}
