// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package openai

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/openai/openai-go"

	"github.com/covoxlabs/covox/internal/operation"
)

// STT transcribes audio through the transcription endpoint.
type STT struct {
	mu      sync.Mutex
	client  *openai.Client
	started bool

	apiKey   string
	baseURL  string
	model    string
	language string
}

func NewSTT() *STT {
	return &STT{model: string(openai.AudioModelWhisper1)}
}

func (o *STT) ID() string           { return STTID }
func (o *STT) Type() operation.Type { return operation.TypeSTT }

func (o *STT) Configure(fields map[string]any) error {
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
	if v, ok := operation.StringField(fields, "language"); ok {
		o.language = v
	}

	if o.apiKey == "" && o.baseURL == "" {
		return fmt.Errorf("api_key is required unless base_url points at a local backend")
	}
	return nil
}

func (o *STT) Configuration() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return map[string]any{
		"api_key":  operation.MaskSecret(o.apiKey),
		"base_url": o.baseURL,
		"model":    o.model,
		"language": o.language,
	}
}

func (o *STT) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.client = newClient(o.apiKey, o.baseURL)
	o.started = true
	return nil
}

func (o *STT) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.client = nil
	o.started = false
	return nil
}

// Generate transcribes the "audio_bytes" payload (16-bit PCM WAV) into a
// single content chunk.
func (o *STT) Generate(ctx context.Context, in operation.Chunk) (<-chan operation.StreamItem, error) {
	o.mu.Lock()
	client := o.client
	model := o.model
	language := o.language
	o.mu.Unlock()

	if client == nil {
		return nil, errNotStarted
	}
	audio, ok := operation.BytesField(in, operation.FieldAudioBytes)
	if !ok {
		return nil, fmt.Errorf("%s: input chunk has no audio_bytes", STTID)
	}

	return operation.Emit(ctx, func(emit func(operation.Chunk) error) error {
		params := openai.AudioTranscriptionNewParams{
			Model: openai.AudioModel(model),
			File:  openai.File(bytes.NewReader(audio), "audio.wav", "audio/wav"),
		}
		if language != "" {
			params.Language = openai.String(language)
		}
		resp, err := client.Audio.Transcriptions.New(ctx, params)
		if err != nil {
			return wrapErr(STTID, err)
		}
		return emit(operation.Chunk{operation.FieldContent: resp.Text})
	}), nil
}
