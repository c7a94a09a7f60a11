// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package events provides the in-process event bus the manager publishes
// operation lifecycle and fallback activity onto. The hooks package and the
// API layer subscribe to it.
package events

import "time"

// Type identifies an event published on the bus.
type Type string

const (
	EventOperationLoaded      Type = "operation_loaded"
	EventOperationClosed      Type = "operation_closed"
	EventOperationFailed      Type = "operation_failed"
	EventFallbackEngaged      Type = "fallback_engaged"
	EventCandidateBlacklisted Type = "candidate_blacklisted"
	EventBlacklistCleared     Type = "blacklist_cleared"
	EventConfigReloaded       Type = "config_reloaded"
)

// Types lists every event the bus carries, in a stable order.
var Types = []Type{
	EventOperationLoaded, EventOperationClosed, EventOperationFailed,
	EventFallbackEngaged, EventCandidateBlacklisted, EventBlacklistCleared,
	EventConfigReloaded,
}

// Event is the payload delivered to subscribers.
type Event struct {
	Type        Type           `json:"event"`
	Timestamp   time.Time      `json:"timestamp"`
	Role        string         `json:"role,omitempty"`
	OperationID string         `json:"operation_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`

	Err          error  `json:"-"`
	ErrorMessage string `json:"error,omitempty"`
}

// New builds an event stamped with the current time.
func New(t Type, role, operationID string) *Event {
	return &Event{Type: t, Timestamp: time.Now(), Role: role, OperationID: operationID}
}

// WithData attaches a data field and returns the event for chaining.
func (e *Event) WithData(key string, value any) *Event {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// WithError attaches an error and its rendered message.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Err = err
		e.ErrorMessage = err.Error()
	}
	return e
}
