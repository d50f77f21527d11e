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

package v1alpha1

// Job is a namespaced unit of work to be scheduled across one or more
// clusters.
type Job struct {
	Kind     string    `json:"kind"`
	Metadata Metadata  `json:"metadata"`
	Spec     JobSpec   `json:"spec"`
	Status   JobStatus `json:"status,omitempty"`
}

var _ Object = &Job{}

func NewJob() Object { return &Job{Kind: string(KindJob)} }

func (j *Job) GetKind() string        { return string(KindJob) }
func (j *Job) GetMetadata() *Metadata { return &j.Metadata }
func (j *Job) DeepCopyObject() Object {
	out := *j
	out.Metadata = j.Metadata.clone()
	out.Spec = j.Spec.clone()

	if j.Status.ReplicaStatus != nil {
		out.Status.ReplicaStatus = make(map[string]map[TaskState]int, len(j.Status.ReplicaStatus))
		for cluster, states := range j.Status.ReplicaStatus {
			m := make(map[TaskState]int, len(states))
			for k, v := range states {
				m[k] = v
			}
			out.Status.ReplicaStatus[cluster] = m
		}
	}

	if j.Status.JobIDs != nil {
		out.Status.JobIDs = make(map[string]string, len(j.Status.JobIDs))
		for k, v := range j.Status.JobIDs {
			out.Status.JobIDs[k] = v
		}
	}

	if j.Status.ContainerStatus != nil {
		out.Status.ContainerStatus = make(map[string]string, len(j.Status.ContainerStatus))
		for k, v := range j.Status.ContainerStatus {
			out.Status.ContainerStatus[k] = v
		}
	}

	out.Status.Conditions = append([]Condition(nil), j.Status.Conditions...)

	return &out
}

// TotalScheduledReplicas sums the replica status histograms across every
// cluster, used to check the invariant that it equals spec.Replicas once
// scheduling has succeeded.
func (j *Job) TotalScheduledReplicas() int {
	total := 0

	for _, states := range j.Status.ReplicaStatus {
		for _, count := range states {
			total += count
		}
	}

	return total
}

// JobList is the companion list kind of Job.
type JobList struct {
	Kind  string `json:"kind"`
	Items []Job  `json:"items"`
}

func NewJobList() Object { return &JobList{Kind: string(KindJob) + "List"} }

func (l *JobList) GetKind() string        { return string(KindJob) + "List" }
func (l *JobList) GetMetadata() *Metadata { return &Metadata{} }
func (l *JobList) DeepCopyObject() Object {
	out := &JobList{Kind: l.Kind, Items: make([]Job, len(l.Items))}
	for i := range l.Items {
		out.Items[i] = *l.Items[i].DeepCopyObject().(*Job)
	}
	return out
}

func (l *JobList) SetItems(objs []Object) {
	l.Items = make([]Job, len(objs))
	for i, o := range objs {
		l.Items[i] = *o.(*Job)
	}
}

func (l *JobList) GetItems() []Object {
	out := make([]Object, len(l.Items))
	for i := range l.Items {
		item := l.Items[i]
		out[i] = &item
	}
	return out
}
