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

// Action is one of the closed set of verbs a RoleRule can grant.
type Action string

const (
	ActionCreate Action = "create"
	ActionGet    Action = "get"
	ActionUpdate Action = "update"
	ActionPatch  Action = "patch"
	ActionDelete Action = "delete"
	ActionAll    Action = "*"
)

// Wildcard matches any resource kind or namespace name in a RoleRule.
const Wildcard = "*"

// RoleRule grants a set of actions, over a set of resource kinds, within a
// set of namespaces.
type RoleRule struct {
	Resources  []string `json:"resources"`
	Actions    []Action `json:"actions"`
	Namespaces []string `json:"namespaces"`
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v || item == Wildcard {
			return true
		}
	}

	return false
}

func containsAction(list []Action, v Action) bool {
	for _, item := range list {
		if item == v || item == ActionAll {
			return true
		}
	}

	return false
}

// Allows reports whether this rule grants the given (action, kind, namespace)
// triple.  Namespace is ignored for cluster-scoped kinds (callers pass "").
func (r RoleRule) Allows(action Action, kind, namespace string) bool {
	if !containsAction(r.Actions, action) {
		return false
	}

	if !containsString(r.Resources, kind) {
		return false
	}

	if namespace == "" {
		return true
	}

	return containsString(r.Namespaces, namespace)
}

// RoleSpec lists the users a Role applies to and the rules it grants them.
type RoleSpec struct {
	Users []string   `json:"users"`
	Rules []RoleRule `json:"rules"`
}

// Allows reports whether this role grants the user the given action.
func (s RoleSpec) Allows(user string, action Action, kind, namespace string) bool {
	if !containsString(s.Users, user) {
		return false
	}

	for _, rule := range s.Rules {
		if rule.Allows(action, kind, namespace) {
			return true
		}
	}

	return false
}

type Role struct {
	Kind     string   `json:"kind"`
	Metadata Metadata `json:"metadata"`
	Spec     RoleSpec `json:"spec"`
}

var _ Object = &Role{}

func NewRole() Object { return &Role{Kind: string(KindRole)} }

func (r *Role) GetKind() string        { return string(KindRole) }
func (r *Role) GetMetadata() *Metadata { return &r.Metadata }
func (r *Role) DeepCopyObject() Object {
	out := *r
	out.Metadata = r.Metadata.clone()
	out.Spec.Users = append([]string(nil), r.Spec.Users...)
	out.Spec.Rules = append([]RoleRule(nil), r.Spec.Rules...)
	return &out
}

type RoleList struct {
	Kind  string `json:"kind"`
	Items []Role `json:"items"`
}

func NewRoleList() Object { return &RoleList{Kind: string(KindRole) + "List"} }

func (l *RoleList) GetKind() string        { return string(KindRole) + "List" }
func (l *RoleList) GetMetadata() *Metadata { return &Metadata{} }
func (l *RoleList) DeepCopyObject() Object {
	out := &RoleList{Kind: l.Kind, Items: make([]Role, len(l.Items))}
	for i := range l.Items {
		out.Items[i] = *l.Items[i].DeepCopyObject().(*Role)
	}
	return out
}

func (l *RoleList) SetItems(objs []Object) {
	l.Items = make([]Role, len(objs))
	for i, o := range objs {
		l.Items[i] = *o.(*Role)
	}
}

func (l *RoleList) GetItems() []Object {
	out := make([]Object, len(l.Items))
	for i := range l.Items {
		item := l.Items[i]
		out[i] = &item
	}
	return out
}
