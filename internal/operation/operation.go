// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package operation defines the contract every backend integration implements:
// a lifecycle (start, configure, close) plus a channel-based streaming call.
// The manager package composes operations into role slots; this package stays
// free of slot or fallback knowledge.
package operation

import (
	"context"
	"fmt"
	"strings"
)

// Role is the capability category an operation fulfills. MCP and T2T share
// the same implementation family (type T2T); the role is a usage label.
type Role string

const (
	RoleSTT         Role = "stt"
	RoleMCP         Role = "mcp"
	RoleT2T         Role = "t2t"
	RoleTTS         Role = "tts"
	RoleFilterAudio Role = "filter_audio"
	RoleFilterText  Role = "filter_text"
	RoleEmbedding   Role = "embedding"
	RoleVision      Role = "vision"
)

// Roles lists every known role in a stable order.
var Roles = []Role{
	RoleSTT, RoleMCP, RoleT2T, RoleTTS,
	RoleFilterAudio, RoleFilterText, RoleEmbedding, RoleVision,
}

// ParseRole normalizes a role string from configuration or an API request.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Roles {
		if r == known {
			return r, nil
		}
	}
	return "", &UnknownRoleError{Role: s}
}

// SlotKind describes how a role stores its loaded operations.
type SlotKind int

const (
	// SlotSimple holds at most one active operation; loading replaces it.
	SlotSimple SlotKind = iota
	// SlotFallback holds a primary plus an ordered fallback list and a
	// blacklist of temporarily excluded candidate ids.
	SlotFallback
	// SlotFilter holds an ordered, append-only list of filters.
	SlotFilter
)

// Kind returns the slot layout for the role.
func (r Role) Kind() SlotKind {
	switch r {
	case RoleT2T, RoleMCP, RoleVision:
		return SlotFallback
	case RoleFilterAudio, RoleFilterText:
		return SlotFilter
	default:
		return SlotSimple
	}
}

// Type selects the implementation family an id is resolved against.
type Type string

const (
	TypeSTT         Type = "stt"
	TypeT2T         Type = "t2t"
	TypeTTS         Type = "tts"
	TypeFilterAudio Type = "filter_audio"
	TypeFilterText  Type = "filter_text"
	TypeEmbedding   Type = "embedding"
	TypeVision      Type = "vision"
)

// BackendType maps a role to its implementation family. MCP is served by the
// T2T family.
func (r Role) BackendType() Type {
	if r == RoleMCP {
		return TypeT2T
	}
	return Type(r)
}

// Chunk is the named-field record passed between pipeline stages. The field
// schema is a per-role convention (content, audio_bytes, image_bytes, ...),
// not statically fixed.
type Chunk map[string]any

// Metadata keys the fallback executor attaches to forwarded chunks.
const (
	KeySourceID = "_op_id"
	KeyAttempt  = "_op_attempt"
)

// Common chunk field names shared across roles.
const (
	FieldContent    = "content"
	FieldAudioBytes = "audio_bytes"
	FieldImageBytes = "image_bytes"
	FieldProcessing = "processing"
)

// Clone returns a shallow copy so a stage can annotate a chunk without
// mutating its upstream.
func (c Chunk) Clone() Chunk {
	out := make(Chunk, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// String renders field names only; values may hold payloads or secrets.
func (c Chunk) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return fmt.Sprintf("chunk{%s}", strings.Join(keys, ","))
}

// Operation is the uniform contract for every backend integration.
//
// Configure must validate and reject out-of-range values before Start is
// called. Start acquires clients or network resources. Close releases them
// and is called exactly once by the owner. Generate returns a stream that
// may fail at any point, including after items were already produced; a
// failure is delivered as the final StreamItem before the channel closes.
type Operation interface {
	ID() string
	Type() Type
	Start(ctx context.Context) error
	Close() error
	Configure(fields map[string]any) error
	Configuration() map[string]any
	Generate(ctx context.Context, in Chunk) (<-chan StreamItem, error)
}
