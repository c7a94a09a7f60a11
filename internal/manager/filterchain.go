// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package manager

import (
	"context"

	"github.com/covoxlabs/covox/internal/operation"
)

// runFilters composes the role's filter chain depth-first: every chunk a
// filter produces is fully driven through the rest of the chain before that
// filter's next chunk is requested. An empty chain is the identity
// transform. A target id bypasses composition and invokes that one filter
// directly (preview use).
func (m *Manager) runFilters(ctx context.Context, role operation.Role, s *slot, in operation.Chunk, targetID string) (<-chan operation.StreamItem, error) {
	s.mu.Lock()
	chain := make([]operation.Operation, len(s.filters))
	copy(chain, s.filters)
	s.mu.Unlock()

	if targetID != "" {
		for _, f := range chain {
			if f.ID() == targetID {
				return f.Generate(ctx, in)
			}
		}
		return nil, &operation.NotLoadedError{Role: role, ID: targetID}
	}

	if len(chain) == 0 {
		return operation.Single(in), nil
	}

	return operation.Emit(ctx, func(emit func(operation.Chunk) error) error {
		return driveChain(ctx, chain, 0, in, emit)
	}), nil
}

// driveChain recursively pushes one chunk through filters idx..len(chain)-1.
func driveChain(ctx context.Context, chain []operation.Operation, idx int, in operation.Chunk, emit func(operation.Chunk) error) error {
	if idx == len(chain) {
		return emit(in)
	}

	ch, err := chain[idx].Generate(ctx, in)
	if err != nil {
		return err
	}
	for item := range ch {
		if item.Err != nil {
			drain(ch)
			return item.Err
		}
		if err := driveChain(ctx, chain, idx+1, item.Chunk, emit); err != nil {
			drain(ch)
			return err
		}
	}
	return nil
}
