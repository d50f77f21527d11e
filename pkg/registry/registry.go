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

// Package registry is the static table mapping each of the closed set of
// kinds to its schema: whether it is namespaced, how to construct a zero
// value and its list companion, and how to validate a populated instance.
// New kinds are added here, by editing the static list; there is no
// dynamic/reflective kind lookup in the core (see Design Note on dynamic
// dispatch over kinds).
package registry

import (
	"errors"
	"fmt"

	v1alpha1 "github.com/skyshift/skyshift/pkg/apis/skyshift/v1alpha1"
)

// ErrUnknownKind is returned when a kind string does not match any entry
// in the registry.
var ErrUnknownKind = errors.New("unknown kind")

// Entry describes one registered kind.
type Entry struct {
	// Kind is the schema name, e.g. "Job".
	Kind string

	// Plural is the lower-case route segment for collections of this
	// kind, e.g. "jobs".
	Plural string

	// Namespaced indicates whether objects of this kind are scoped by
	// namespace (vs. cluster-scoped).
	Namespaced bool

	// New returns a new zero-value instance of this kind.
	New func() v1alpha1.Object

	// NewList returns a new zero-value instance of this kind's list
	// companion.
	NewList func() v1alpha1.List

	// Validate checks structural, value, and cross-field constraints.
	// fetchNamespace is used to confirm a namespaced object's namespace
	// exists; it is nil when validating cluster-scoped kinds.
	Validate func(obj v1alpha1.Object, namespaceExists func(string) bool) error
}

//nolint:gochecknoglobals
var entries = map[string]*Entry{
	string(v1alpha1.KindJob): {
		Kind:       string(v1alpha1.KindJob),
		Plural:     "jobs",
		Namespaced: true,
		New:        v1alpha1.NewJob,
		NewList:    func() v1alpha1.List { return v1alpha1.NewJobList().(v1alpha1.List) },
		Validate:   validateJob,
	},
	string(v1alpha1.KindFilterPolicy): {
		Kind:       string(v1alpha1.KindFilterPolicy),
		Plural:     "filterpolicies",
		Namespaced: true,
		New:        v1alpha1.NewFilterPolicy,
		NewList:    func() v1alpha1.List { return v1alpha1.NewFilterPolicyList().(v1alpha1.List) },
		Validate:   validateFilterPolicy,
	},
	string(v1alpha1.KindService): {
		Kind:       string(v1alpha1.KindService),
		Plural:     "services",
		Namespaced: true,
		New:        v1alpha1.NewService,
		NewList:    func() v1alpha1.List { return v1alpha1.NewServiceList().(v1alpha1.List) },
		Validate:   validateService,
	},
	string(v1alpha1.KindEndpoints): {
		Kind:       string(v1alpha1.KindEndpoints),
		Plural:     "endpoints",
		Namespaced: true,
		New:        v1alpha1.NewEndpoints,
		NewList:    func() v1alpha1.List { return v1alpha1.NewEndpointsList().(v1alpha1.List) },
		Validate:   validateEndpoints,
	},
	string(v1alpha1.KindCluster): {
		Kind:       string(v1alpha1.KindCluster),
		Plural:     "clusters",
		Namespaced: false,
		New:        v1alpha1.NewCluster,
		NewList:    func() v1alpha1.List { return v1alpha1.NewClusterList().(v1alpha1.List) },
		Validate:   validateCluster,
	},
	string(v1alpha1.KindNamespace): {
		Kind:       string(v1alpha1.KindNamespace),
		Plural:     "namespaces",
		Namespaced: false,
		New:        v1alpha1.NewNamespace,
		NewList:    func() v1alpha1.List { return v1alpha1.NewNamespaceList().(v1alpha1.List) },
		Validate:   validateNamespace,
	},
	string(v1alpha1.KindLink): {
		Kind:       string(v1alpha1.KindLink),
		Plural:     "links",
		Namespaced: false,
		New:        v1alpha1.NewLink,
		NewList:    func() v1alpha1.List { return v1alpha1.NewLinkList().(v1alpha1.List) },
		Validate:   validateLink,
	},
	string(v1alpha1.KindRole): {
		Kind:       string(v1alpha1.KindRole),
		Plural:     "roles",
		Namespaced: false,
		New:        v1alpha1.NewRole,
		NewList:    func() v1alpha1.List { return v1alpha1.NewRoleList().(v1alpha1.List) },
		Validate:   validateRole,
	},
}

// Lookup returns the registry entry for a kind, or ErrUnknownKind.
func Lookup(kind string) (*Entry, error) {
	entry, ok := entries[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	return entry, nil
}

//nolint:gochecknoglobals
var pluralIndex = buildPluralIndex()

func buildPluralIndex() map[string]*Entry {
	out := make(map[string]*Entry, len(entries))
	for _, entry := range entries {
		out[entry.Plural] = entry
	}

	return out
}

// LookupByPlural returns the registry entry whose route segment is
// plural, e.g. "jobs" -> the Job entry.
func LookupByPlural(plural string) (*Entry, error) {
	entry, ok := pluralIndex[plural]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, plural)
	}

	return entry, nil
}

// Kinds returns every registered kind name, in a stable order.
func Kinds() []string {
	// Fixed order matches the table above; avoids map iteration jitter
	// leaking into route registration order.
	return []string{
		string(v1alpha1.KindJob),
		string(v1alpha1.KindFilterPolicy),
		string(v1alpha1.KindService),
		string(v1alpha1.KindEndpoints),
		string(v1alpha1.KindCluster),
		string(v1alpha1.KindNamespace),
		string(v1alpha1.KindLink),
		string(v1alpha1.KindRole),
	}
}
