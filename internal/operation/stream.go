// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operation

import "context"

// StreamItem is one element of a Generate stream. Exactly one of Chunk or
// Err is set; an item with Err set is always the last one before the channel
// closes.
type StreamItem struct {
	Chunk Chunk
	Err   error
}

// Emit runs produce on its own goroutine and adapts it to the Generate
// channel contract: chunks passed to the emit callback are delivered in
// order, a non-nil produce error becomes the terminal item, and the channel
// is always closed. The emit callback returns the context error once the
// caller has gone away so producers can stop early.
func Emit(ctx context.Context, produce func(emit func(Chunk) error) error) <-chan StreamItem {
	out := make(chan StreamItem)
	go func() {
		defer close(out)
		emit := func(c Chunk) error {
			select {
			case out <- StreamItem{Chunk: c}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := produce(emit); err != nil {
			select {
			case out <- StreamItem{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

// Single wraps one already-computed chunk in a closed stream.
func Single(c Chunk) <-chan StreamItem {
	out := make(chan StreamItem, 1)
	out <- StreamItem{Chunk: c}
	close(out)
	return out
}

// Collect drains a stream into a slice, stopping at the first error item.
// Intended for one-shot preview calls and tests, not for live streaming.
func Collect(ch <-chan StreamItem) ([]Chunk, error) {
	var chunks []Chunk
	for item := range ch {
		if item.Err != nil {
			return chunks, item.Err
		}
		chunks = append(chunks, item.Chunk)
	}
	return chunks, nil
}
