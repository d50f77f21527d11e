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

// Package options defines the Controller Manager's tunable sub-controller
// tick intervals.
package options

import (
	"time"

	"github.com/spf13/pflag"
)

// Options defines every Skylet sub-controller's tick interval.
type Options struct {
	// ClusterHeartbeatInterval is how often the Cluster Controller polls
	// the cluster adapter for status and capacity.
	ClusterHeartbeatInterval time.Duration

	// JobStatusInterval is how often the Job Controller polls the cluster
	// adapter for task status.
	JobStatusInterval time.Duration

	// NetworkVerifyInterval is how often the Network Controller verifies
	// this cluster's mesh links are healthy.
	NetworkVerifyInterval time.Duration
}

func (o *Options) AddFlags(flags *pflag.FlagSet) {
	flags.DurationVar(&o.ClusterHeartbeatInterval, "cluster-heartbeat-interval", 5*time.Second,
		"Interval between cluster adapter status polls")
	flags.DurationVar(&o.JobStatusInterval, "job-status-interval", 5*time.Second,
		"Interval between cluster adapter job status polls")
	flags.DurationVar(&o.NetworkVerifyInterval, "network-verify-interval", 15*time.Second,
		"Interval between mesh link health verifications")
}
