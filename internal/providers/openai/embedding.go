// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package openai

import (
	"context"
	"fmt"
	"sync"

	"github.com/openai/openai-go"

	"github.com/covoxlabs/covox/internal/operation"
)

const (
	embeddingDefaultModel = "text-embedding-3-small"
	embeddingMaxBatch     = 2048
)

// Embedding computes text embeddings. Input texts arrive in "texts" (or a
// single "content" field); one chunk per input is emitted with the vector,
// its index and the originating text.
type Embedding struct {
	mu      sync.Mutex
	client  *openai.Client
	started bool

	apiKey     string
	baseURL    string
	model      string
	dimensions int
}

func NewEmbedding() *Embedding {
	return &Embedding{model: embeddingDefaultModel}
}

func (o *Embedding) ID() string           { return EmbeddingID }
func (o *Embedding) Type() operation.Type { return operation.TypeEmbedding }

func (o *Embedding) Configure(fields map[string]any) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if v, ok := operation.StringField(fields, "api_key"); ok {
		o.apiKey = v
	}
	if v, ok := operation.StringField(fields, "base_url"); ok {
		o.baseURL = v
	}
	if v, ok := operation.StringField(fields, "model"); ok {
		o.model = v
	}
	if v, ok := operation.IntField(fields, "dimensions"); ok {
		if v <= 0 {
			return fmt.Errorf("dimensions must be positive, got %d", v)
		}
		o.dimensions = v
	}

	if o.apiKey == "" && o.baseURL == "" {
		return fmt.Errorf("api_key is required unless base_url points at a local backend")
	}
	return nil
}

func (o *Embedding) Configuration() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return map[string]any{
		"api_key":    operation.MaskSecret(o.apiKey),
		"base_url":   o.baseURL,
		"model":      o.model,
		"dimensions": o.dimensions,
	}
}

func (o *Embedding) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.client = newClient(o.apiKey, o.baseURL)
	o.started = true
	return nil
}

func (o *Embedding) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.client = nil
	o.started = false
	return nil
}

func (o *Embedding) Generate(ctx context.Context, in operation.Chunk) (<-chan operation.StreamItem, error) {
	o.mu.Lock()
	client := o.client
	model := o.model
	dimensions := o.dimensions
	o.mu.Unlock()

	if client == nil {
		return nil, errNotStarted
	}

	texts, ok := operation.StringsField(in, "texts")
	if !ok {
		single, okSingle := operation.StringField(in, operation.FieldContent)
		if !okSingle {
			return nil, fmt.Errorf("%s: input chunk has no texts or content", EmbeddingID)
		}
		texts = []string{single}
	}
	if len(texts) > embeddingMaxBatch {
		return nil, fmt.Errorf("%s: batch of %d exceeds limit %d", EmbeddingID, len(texts), embeddingMaxBatch)
	}

	return operation.Emit(ctx, func(emit func(operation.Chunk) error) error {
		params := openai.EmbeddingNewParams{
			Model:          model,
			Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
			EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
		}
		if dimensions > 0 {
			params.Dimensions = openai.Int(int64(dimensions))
		}
		resp, err := client.Embeddings.New(ctx, params)
		if err != nil {
			return wrapErr(EmbeddingID, err)
		}

		vectors := make([][]float64, len(texts))
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= int64(len(texts)) {
				return fmt.Errorf("%s: unexpected embedding index %d for batch size %d", EmbeddingID, item.Index, len(texts))
			}
			vectors[item.Index] = item.Embedding
		}
		for i, vec := range vectors {
			if vec == nil {
				return fmt.Errorf("%s: missing embedding for index %d", EmbeddingID, i)
			}
			if err := emit(operation.Chunk{
				"index":     i,
				"text":      texts[i],
				"embedding": vec,
			}); err != nil {
				return err
			}
		}
		return nil
	}), nil
}
