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

package client

import (
	"github.com/spf13/pflag"
)

// AddFlags registers the flags used to build Options for a process that
// talks to the API server as a client (the controller manager, CLI).
func (o *Options) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.BaseURL, "api-server", "http://localhost:6080", "Base URL of the Skyshift API server")
	flags.StringVar(&o.Token, "token", "", "Bearer token used to authenticate with the API server")
}
