// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operation

import "fmt"

// UnknownRoleError reports a role string outside the known enumeration.
type UnknownRoleError struct {
	Role string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown operation role %q", e.Role)
}

// UnknownIDError reports an id the registry cannot resolve for a type.
type UnknownIDError struct {
	Type Type
	ID   string
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("unknown operation id %q for type %q", e.ID, e.Type)
}

// DuplicateFilterError reports loading a filter id already present in a
// filter role's chain.
type DuplicateFilterError struct {
	Role Role
	ID   string
}

func (e *DuplicateFilterError) Error() string {
	return fmt.Sprintf("filter %q is already loaded for role %q", e.ID, e.Role)
}

// NotLoadedError reports a use, configure or close call against an empty
// slot or a mismatched id.
type NotLoadedError struct {
	Role Role
	ID   string
}

func (e *NotLoadedError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("operation %q is not loaded for role %q", e.ID, e.Role)
	}
	return fmt.Sprintf("no operation loaded for role %q", e.Role)
}
