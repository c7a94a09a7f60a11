// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package text

import (
	"context"
	"regexp"
	"sync"

	"github.com/covoxlabs/covox/internal/operation"
)

// VisionTriggerID is the registered id of the vision trigger filter.
const VisionTriggerID = "vision_trigger"

// Phrases in user speech that mean "look at my screen". The mouse patterns
// additionally narrow the capture to the area around the pointer.
var (
	screenPattern = regexp.MustCompile(`(?i)\b(screen(shot)?|display|monitor|what (do you|can you) see|look at (this|my screen))\b`)
	mousePattern  = regexp.MustCompile(`(?i)\b((mouse|cursor|pointer)( position| area)?|where (i'?m|i am) pointing|next to (the|my) (mouse|cursor))\b`)
)

// VisionTrigger inspects transcribed user text and flags chunks that ask
// about the screen so the caller can route them through the vision role.
// It sets "screenshot_requested" and, for pointer-relative questions,
// "vision_use_mouse_area".
type VisionTrigger struct {
	mu      sync.Mutex
	started bool

	enabled bool
}

func NewVisionTrigger() *VisionTrigger {
	return &VisionTrigger{enabled: true}
}

func (f *VisionTrigger) ID() string           { return VisionTriggerID }
func (f *VisionTrigger) Type() operation.Type { return operation.TypeFilterText }

func (f *VisionTrigger) Configure(fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := operation.BoolField(fields, "enabled"); ok {
		f.enabled = v
	}
	return nil
}

func (f *VisionTrigger) Configuration() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]any{"enabled": f.enabled}
}

func (f *VisionTrigger) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *VisionTrigger) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	return nil
}

func (f *VisionTrigger) Generate(ctx context.Context, in operation.Chunk) (<-chan operation.StreamItem, error) {
	f.mu.Lock()
	enabled := f.enabled
	f.mu.Unlock()

	text, ok := operation.StringField(in, operation.FieldContent)
	if !enabled || !ok {
		return operation.Single(in), nil
	}

	mouse := mousePattern.MatchString(text)
	if !mouse && !screenPattern.MatchString(text) {
		return operation.Single(in), nil
	}

	out := in.Clone()
	out["screenshot_requested"] = true
	if mouse {
		out["vision_use_mouse_area"] = true
	}
	return operation.Single(out), nil
}
