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

// Package kubernetes is the Adapter implementation for clusters whose
// spec.manager is "kubernetes": a thin client-go driver that reports
// node capacity and runs replicas as a batch/v1 Job.
package kubernetes

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
	"github.com/skyshift/skyshift/pkg/clustermanager"
)

func init() {
	clustermanager.Register(v1alpha1.ClusterManagerKubernetes, New)
}

const defaultNamespace = "skyshift"

// Adapter drives one Kubernetes cluster via client-go.
type Adapter struct {
	name      string
	namespace string
	clientset *kubernetes.Clientset
}

var _ clustermanager.Adapter = &Adapter{}

// New builds an Adapter from a Cluster's connection_config, which carries
// the kubeconfig content under "kubeconfig" and an optional override
// namespace under "namespace" (default "skyshift").
func New(spec v1alpha1.ClusterSpec) (clustermanager.Adapter, error) {
	kubeconfig, ok := spec.ConnectionConfig["kubeconfig"]
	if !ok {
		return nil, fmt.Errorf("connection_config missing %q", "kubeconfig")
	}

	restConfig, err := clientcmd.RESTConfigFromKubeConfig([]byte(kubeconfig))
	if err != nil {
		return nil, fmt.Errorf("parsing kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("building clientset: %w", err)
	}

	namespace := spec.ConnectionConfig["namespace"]
	if namespace == "" {
		namespace = defaultNamespace
	}

	return &Adapter{
		name:      spec.ConnectionConfig["name"],
		namespace: namespace,
		clientset: clientset,
	}, nil
}

// GetClusterStatus reports node-level allocatable capacity as Skyshift's
// NodeResources shape.
func (a *Adapter) GetClusterStatus(ctx context.Context) (clustermanager.ClusterStatusReport, error) {
	nodes, err := a.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return clustermanager.ClusterStatusReport{}, fmt.Errorf("listing nodes: %w", err)
	}

	capacity := make(v1alpha1.NodeResources, len(nodes.Items))
	allocatable := make(v1alpha1.NodeResources, len(nodes.Items))

	for _, node := range nodes.Items {
		capacity[node.Name] = resourceListToSkyshift(node.Status.Capacity)
		allocatable[node.Name] = resourceListToSkyshift(node.Status.Allocatable)
	}

	return clustermanager.ClusterStatusReport{
		Phase:               v1alpha1.ClusterPhaseReady,
		Capacity:            capacity,
		AllocatableCapacity: allocatable,
	}, nil
}

func resourceListToSkyshift(rl corev1.ResourceList) v1alpha1.ResourceList {
	out := v1alpha1.ResourceList{}

	if cpu, ok := rl[corev1.ResourceCPU]; ok {
		out[v1alpha1.ResourceCPUs] = cpu.AsApproximateFloat64()
	}

	if mem, ok := rl[corev1.ResourceMemory]; ok {
		out[v1alpha1.ResourceMemory] = mem.AsApproximateFloat64()
	}

	if gpu, ok := rl["nvidia.com/gpu"]; ok {
		out[v1alpha1.ResourceGPUs] = gpu.AsApproximateFloat64()
	}

	return out
}

// SubmitJob creates a batch/v1 Job with parallelism/completions set to
// replicaCount, running job.Spec.Image with job.Spec.RunCommand and Envs
// passed through opaquely.
func (a *Adapter) SubmitJob(ctx context.Context, job *v1alpha1.Job, replicaCount int) (string, error) {
	name := fmt.Sprintf("skyshift-%s-%s", job.Metadata.Namespace, job.Metadata.Name)

	parallelism := int32(replicaCount)

	container := corev1.Container{
		Name:  "workload",
		Image: job.Spec.Image,
		Env:   envVars(job.Spec.Envs),
	}

	if job.Spec.RunCommand != "" {
		container.Command = []string{"/bin/sh", "-c", job.Spec.RunCommand}
	}

	batchJob := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: a.namespace,
			Labels:    map[string]string{"skyshift.io/job": job.Metadata.Name},
		},
		Spec: batchv1.JobSpec{
			Parallelism: &parallelism,
			Completions: &parallelism,
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers:    []corev1.Container{container},
				},
			},
		},
	}

	created, err := a.clientset.BatchV1().Jobs(a.namespace).Create(ctx, batchJob, metav1.CreateOptions{})
	if err != nil {
		return "", fmt.Errorf("creating job: %w", err)
	}

	return created.Name, nil
}

func envVars(envs map[string]string) []corev1.EnvVar {
	if len(envs) == 0 {
		return nil
	}

	out := make([]corev1.EnvVar, 0, len(envs))
	for k, v := range envs {
		out = append(out, corev1.EnvVar{Name: k, Value: v})
	}

	return out
}

// DeleteJob deletes the backend batch/v1 Job, propagating to its pods via
// a foreground cascade.
func (a *Adapter) DeleteJob(ctx context.Context, backendJobID string) error {
	propagation := metav1.DeletePropagationForeground

	err := a.clientset.BatchV1().Jobs(a.namespace).Delete(ctx, backendJobID, metav1.DeleteOptions{PropagationPolicy: &propagation})
	if err != nil {
		return fmt.Errorf("deleting job %s: %w", backendJobID, err)
	}

	return nil
}

// GetJobStatus maps each pod belonging to the backend Job onto a
// TaskState.
func (a *Adapter) GetJobStatus(ctx context.Context, backendJobID string) (clustermanager.JobStatusReport, error) {
	pods, err := a.clientset.CoreV1().Pods(a.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "job-name=" + backendJobID,
	})
	if err != nil {
		return clustermanager.JobStatusReport{}, fmt.Errorf("listing pods for job %s: %w", backendJobID, err)
	}

	report := clustermanager.JobStatusReport{
		TaskStates:      make(map[string]v1alpha1.TaskState, len(pods.Items)),
		ContainerStatus: make(map[string]string, len(pods.Items)),
	}

	for _, pod := range pods.Items {
		report.TaskStates[pod.Name] = podPhaseToTaskState(pod.Status.Phase)
		report.ContainerStatus[pod.Name] = string(pod.Status.Phase)
	}

	return report, nil
}

func podPhaseToTaskState(phase corev1.PodPhase) v1alpha1.TaskState {
	switch phase {
	case corev1.PodRunning:
		return v1alpha1.TaskStateRunning
	case corev1.PodSucceeded:
		return v1alpha1.TaskStateComplete
	case corev1.PodFailed:
		return v1alpha1.TaskStateFailed
	default:
		return v1alpha1.TaskStateInit
	}
}

// Network returns this adapter's mesh handle.
func (a *Adapter) Network() clustermanager.NetworkHandle {
	return &networkHandle{name: a.name}
}
