// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package text

import (
	"context"
	"fmt"
	"sync"

	"github.com/covoxlabs/covox/internal/operation"
	"github.com/covoxlabs/covox/internal/voicestyle"
)

// StylePreserverID is the registered id of the style carry-over filter.
const StylePreserverID = "style_preserver"

// StylePreserver carries the most recent speaking style forward. The model
// only tags the sentence where the mood changes; untagged sentences keep
// the mood of the previous one until a new tag arrives.
type StylePreserver struct {
	mu      sync.Mutex
	started bool

	defaultStyle string
	lastStyle    string
}

func NewStylePreserver() *StylePreserver {
	return &StylePreserver{}
}

func (f *StylePreserver) ID() string           { return StylePreserverID }
func (f *StylePreserver) Type() operation.Type { return operation.TypeFilterText }

func (f *StylePreserver) Configure(fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := operation.StringField(fields, "default_style"); ok {
		if v != "" && !voicestyle.IsSupported(v) {
			return fmt.Errorf("unknown default_style %q", v)
		}
		f.defaultStyle = v
	}
	return nil
}

func (f *StylePreserver) Configuration() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]any{"default_style": f.defaultStyle}
}

func (f *StylePreserver) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastStyle = f.defaultStyle
	f.started = true
	return nil
}

func (f *StylePreserver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastStyle = ""
	f.started = false
	return nil
}

func (f *StylePreserver) Generate(ctx context.Context, in operation.Chunk) (<-chan operation.StreamItem, error) {
	out := in.Clone()

	f.mu.Lock()
	if style, ok := operation.StringField(out, "style"); ok && voicestyle.IsSupported(style) {
		f.lastStyle = style
	} else if f.lastStyle != "" {
		out["style"] = f.lastStyle
	}
	f.mu.Unlock()

	return operation.Single(out), nil
}
