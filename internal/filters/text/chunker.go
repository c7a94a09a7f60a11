// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package text holds the text-side filters of the pipeline: sentence
// chunking of streamed model output, style tag handling and vision trigger
// detection.
package text

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/covoxlabs/covox/internal/operation"
	"github.com/covoxlabs/covox/internal/voicestyle"
)

// ChunkerID is the registered id of the sentence chunker filter.
const ChunkerID = "chunker_sentence"

const chunkerDefaultMinLength = 12

// Chunker regroups streamed content deltas into whole sentences. Model
// output arrives as arbitrary fragments; speech synthesis wants complete
// sentences. The chunker buffers fragments, cuts on sentence punctuation
// and extracts leading style tags into a "style" field.
//
// A chunk with "flush" set true drains the remaining buffer.
type Chunker struct {
	mu      sync.Mutex
	started bool

	minLength int
	buffer    strings.Builder
}

func NewChunker() *Chunker {
	return &Chunker{minLength: chunkerDefaultMinLength}
}

func (f *Chunker) ID() string           { return ChunkerID }
func (f *Chunker) Type() operation.Type { return operation.TypeFilterText }

func (f *Chunker) Configure(fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := operation.IntField(fields, "min_length"); ok {
		if v < 1 {
			return fmt.Errorf("min_length must be at least 1, got %d", v)
		}
		f.minLength = v
	}
	return nil
}

func (f *Chunker) Configuration() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]any{"min_length": f.minLength}
}

func (f *Chunker) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buffer.Reset()
	f.started = true
	return nil
}

func (f *Chunker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buffer.Reset()
	f.started = false
	return nil
}

func (f *Chunker) Generate(ctx context.Context, in operation.Chunk) (<-chan operation.StreamItem, error) {
	flush, _ := operation.BoolField(in, "flush")
	delta, _ := operation.StringField(in, operation.FieldContent)

	f.mu.Lock()
	if delta != "" {
		f.buffer.WriteString(delta)
	}
	sentences, rest := splitSentences(f.buffer.String(), f.minLength)
	if flush {
		if trimmed := strings.TrimSpace(rest); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
		rest = ""
	}
	f.buffer.Reset()
	f.buffer.WriteString(rest)
	f.mu.Unlock()

	return operation.Emit(ctx, func(emit func(operation.Chunk) error) error {
		for _, sentence := range sentences {
			out := in.Clone()
			delete(out, "flush")
			style, text := voicestyle.Extract(sentence)
			if text == "" {
				continue
			}
			out[operation.FieldContent] = text
			if style != "" {
				out["style"] = style
			}
			if err := emit(out); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

// splitSentences cuts text at sentence boundaries, keeping fragments
// shorter than minLength attached to the next sentence. The trailing
// incomplete fragment is returned as rest.
func splitSentences(text string, minLength int) (sentences []string, rest string) {
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isSentenceEnd(runes[i]) {
			continue
		}
		// absorb runs of closing punctuation ("?!", "...")
		end := i + 1
		for end < len(runes) && isSentenceEnd(runes[end]) {
			end++
		}
		candidate := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(candidate)) >= minLength {
			sentences = append(sentences, candidate)
			start = end
		}
		i = end - 1
	}
	return sentences, strings.TrimLeftFunc(string(runes[start:]), unicode.IsSpace)
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '\n':
		return true
	}
	return false
}
