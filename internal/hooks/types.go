// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hooks implements automation rules that react to pipeline events:
// a YAML-defined hook subscribes to an event type, guards execution with an
// expression condition and runs an action.
package hooks

import (
	"github.com/covoxlabs/covox/internal/events"
)

// HookAction defines the action to be performed when a hook is triggered.
type HookAction string

const (
	ActionNotifyWebhook HookAction = "notify_webhook"
	ActionLogWarning    HookAction = "log_warning"
	ActionRunCommand    HookAction = "run_command"
)

// Hook represents a single automation rule.
type Hook struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Event       events.Type    `yaml:"event" json:"event"`
	Condition   string         `yaml:"condition" json:"condition"`
	Action      HookAction     `yaml:"action" json:"action"`
	Params      map[string]any `yaml:"params" json:"params"`
	Enabled     bool           `yaml:"enabled" json:"enabled"`

	// FilePath is the source file (not in YAML)
	FilePath string `yaml:"-" json:"-"`
}

// ActionHandler is a function that executes a hook action.
type ActionHandler func(hook *Hook, evt *events.Event) error
