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

package server

import (
	"time"

	"github.com/spf13/pflag"
)

// UpdateMode governs how an update without a resource_version in the
// request body is handled.
type UpdateMode string

const (
	// UpdateModeOverwrite performs an unconditional overwrite when the
	// body carries no resource_version, per the spec's default behavior.
	UpdateModeOverwrite UpdateMode = "overwrite"

	// UpdateModeStrict rejects updates whose body carries no
	// resource_version with a 400, for deployments that require clients
	// to always round-trip the revision they last observed.
	UpdateModeStrict UpdateMode = "strict"
)

// Options allows server options to be overridden.
type Options struct {
	// ListenAddress tells the server what to listen on.
	ListenAddress string

	// ReadTimeout defines how long before we give up on the client
	// sending the request body.
	ReadTimeout time.Duration

	// ReadHeaderTimeout defines how long before we give up on the client
	// sending headers.
	ReadHeaderTimeout time.Duration

	// WriteTimeout defines how long we take to respond before we give
	// up. Does not apply to watch connections, which stream until the
	// client disconnects.
	WriteTimeout time.Duration

	// RequestTimeout places a hard limit on non-watch request lengths.
	RequestTimeout time.Duration

	// OTLPEndpoint optionally ships spans to an OTLP collector, in
	// addition to the default log-based span processor.
	OTLPEndpoint string

	// StorePath is the bbolt database file backing the KV store.
	StorePath string

	// UpdateMode governs revision-less update handling; see UpdateMode.
	UpdateMode string
}

// AddFlags registers flags with the provided flag set.
func (o *Options) AddFlags(f *pflag.FlagSet) {
	f.StringVar(&o.ListenAddress, "server-listen-address", ":6080", "API listener address.")
	f.DurationVar(&o.ReadTimeout, "server-read-timeout", time.Second, "How long to wait for the client to send the request body.")
	f.DurationVar(&o.ReadHeaderTimeout, "server-read-header-timeout", time.Second, "How long to wait for the client to send headers.")
	f.DurationVar(&o.WriteTimeout, "server-write-timeout", 10*time.Second, "How long to wait for the API to respond to the client.")
	f.DurationVar(&o.RequestTimeout, "server-request-timeout", 30*time.Second, "How long to wait for a non-watch request to be serviced.")
	f.StringVar(&o.OTLPEndpoint, "otlp-endpoint", "", "An optional OTLP endpoint to ship spans to.")
	f.StringVar(&o.StorePath, "store-path", "/var/lib/skyshift/skyshift.db", "Path to the embedded KV store database file.")
	f.StringVar(&o.UpdateMode, "update-mode", string(UpdateModeOverwrite), "Revision-less update handling: \"overwrite\" or \"strict\".")
}
