// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package openai wraps the OpenAI API behind the operation contract: T2T
// (streaming chat, also serving the MCP role), STT (transcriptions), TTS
// (speech) and embeddings. A configurable base_url makes the family work
// against any OpenAI-compatible backend.
package openai

import (
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/covoxlabs/covox/internal/operation"
)

// Registered operation ids within this package. The local and perplexity
// ids reuse the T2T implementation against other chat backends.
const (
	T2TID        = "openai"
	LocalT2TID   = "local"
	PerplexityID = "perplexity"
	STTID        = "openai_whisper"
	TTSID        = "openai_tts"
	EmbeddingID  = "openai_embedding"
)

// newClient builds an SDK client from validated settings.
func newClient(apiKey, baseURL string) *openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &client
}

// wrapErr normalizes an SDK failure into the shared provider error carrying
// the upstream status code.
func wrapErr(id string, err error) error {
	if err == nil {
		return nil
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &operation.ProviderError{
			Provider: id,
			Status:   apierr.StatusCode,
			Message:  apierr.Message,
			Cause:    err,
		}
	}
	return fmt.Errorf("%s: %w", id, err)
}

var errNotStarted = errors.New("operation not started")
