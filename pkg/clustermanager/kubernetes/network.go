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

package kubernetes

import (
	"context"

	"github.com/skyshift/skyshift/pkg/clustermanager"
)

// networkHandle is a no-op mesh handle: provisioning the cross-cluster
// mesh itself is out of scope (see Non-goals), but the Network and Link
// controllers still need something implementing the interface to drive.
type networkHandle struct {
	name string
}

var _ clustermanager.NetworkHandle = &networkHandle{}

func (n *networkHandle) ClusterName() string { return n.name }

func (n *networkHandle) Verify(context.Context, clustermanager.NetworkHandle) error { return nil }

func (n *networkHandle) Install(context.Context, clustermanager.NetworkHandle) error { return nil }

func (n *networkHandle) Teardown(context.Context, clustermanager.NetworkHandle) error { return nil }
