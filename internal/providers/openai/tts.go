// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package openai

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/openai/openai-go"

	"github.com/covoxlabs/covox/internal/operation"
)

// TTS synthesizes speech through the audio/speech endpoint.
type TTS struct {
	mu      sync.Mutex
	client  *openai.Client
	started bool

	apiKey  string
	baseURL string
	model   string
	voice   string
	speed   float64
}

func NewTTS() *TTS {
	return &TTS{
		model: string(openai.SpeechModelTTS1),
		voice: "alloy",
		speed: 1.0,
	}
}

func (o *TTS) ID() string           { return TTSID }
func (o *TTS) Type() operation.Type { return operation.TypeTTS }

func (o *TTS) Configure(fields map[string]any) error {
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
	if v, ok := operation.StringField(fields, "voice"); ok {
		o.voice = v
	}
	if v, ok := operation.FloatField(fields, "speed"); ok {
		if v < 0.25 || v > 4.0 {
			return fmt.Errorf("speed %v out of range [0.25, 4.0]", v)
		}
		o.speed = v
	}

	if o.apiKey == "" && o.baseURL == "" {
		return fmt.Errorf("api_key is required unless base_url points at a local backend")
	}
	return nil
}

func (o *TTS) Configuration() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return map[string]any{
		"api_key":  operation.MaskSecret(o.apiKey),
		"base_url": o.baseURL,
		"model":    o.model,
		"voice":    o.voice,
		"speed":    o.speed,
	}
}

func (o *TTS) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.client = newClient(o.apiKey, o.baseURL)
	o.started = true
	return nil
}

func (o *TTS) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.client = nil
	o.started = false
	return nil
}

// Generate synthesizes the "content" text into one audio_bytes chunk
// (16-bit PCM WAV).
func (o *TTS) Generate(ctx context.Context, in operation.Chunk) (<-chan operation.StreamItem, error) {
	o.mu.Lock()
	client := o.client
	model, voice, speed := o.model, o.voice, o.speed
	o.mu.Unlock()

	if client == nil {
		return nil, errNotStarted
	}
	text, ok := operation.StringField(in, operation.FieldContent)
	if !ok {
		return nil, fmt.Errorf("%s: input chunk has no content", TTSID)
	}

	return operation.Emit(ctx, func(emit func(operation.Chunk) error) error {
		resp, err := client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
			Model:          openai.SpeechModel(model),
			Voice:          openai.AudioSpeechNewParamsVoice(voice),
			Input:          text,
			Speed:          openai.Float(speed),
			ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
		})
		if err != nil {
			return wrapErr(TTSID, err)
		}
		defer resp.Body.Close()
		audio, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read speech response: %w", TTSID, err)
		}
		return emit(operation.Chunk{operation.FieldAudioBytes: audio})
	}), nil
}
