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
	"net/http"

	"github.com/go-logr/logr"
)

// loggerFromRequest returns the request-scoped logger middleware.Logger
// attached to the context, or a discarding logger if none is present.
func loggerFromRequest(r *http.Request) logr.Logger {
	return logr.FromContextOrDiscard(r.Context())
}
