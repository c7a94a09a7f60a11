// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package azure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/covoxlabs/covox/internal/operation"
)

const (
	sttDefaultLanguage = "en-US"
	sttRequestLimit    = 30 * time.Second
	sttContentType     = "audio/wav; codecs=audio/pcm; samplerate=16000"
)

// STT transcribes short utterances through the Azure Speech recognition
// REST API (conversation mode, simple result format).
type STT struct {
	mu      sync.Mutex
	httpc   *http.Client
	started bool

	apiKey   string
	region   string
	language string
}

func NewSTT() *STT {
	return &STT{language: sttDefaultLanguage}
}

func (o *STT) ID() string           { return STTID }
func (o *STT) Type() operation.Type { return operation.TypeSTT }

func (o *STT) Configure(fields map[string]any) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if v, ok := operation.StringField(fields, "api_key"); ok {
		o.apiKey = v
	}
	if v, ok := operation.StringField(fields, "region"); ok {
		o.region = v
	}
	if v, ok := operation.StringField(fields, "language"); ok {
		o.language = v
	}

	if o.apiKey == "" {
		return fmt.Errorf("api_key must not be empty")
	}
	return regionRequired(o.region)
}

func (o *STT) Configuration() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return map[string]any{
		"api_key":  operation.MaskSecret(o.apiKey),
		"region":   o.region,
		"language": o.language,
	}
}

func (o *STT) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.httpc = &http.Client{Timeout: sttRequestLimit}
	o.started = true
	return nil
}

func (o *STT) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.httpc = nil
	o.started = false
	return nil
}

// Generate transcribes the "audio_bytes" payload (16 kHz 16-bit mono PCM
// WAV) into a single content chunk. A NoMatch recognition yields an empty
// stream rather than an error.
func (o *STT) Generate(ctx context.Context, in operation.Chunk) (<-chan operation.StreamItem, error) {
	o.mu.Lock()
	httpc := o.httpc
	apiKey, region, language := o.apiKey, o.region, o.language
	o.mu.Unlock()

	if httpc == nil {
		return nil, fmt.Errorf("%s: operation not started", STTID)
	}
	audio, ok := operation.BytesField(in, operation.FieldAudioBytes)
	if !ok {
		return nil, fmt.Errorf("%s: input chunk has no audio_bytes", STTID)
	}

	return operation.Emit(ctx, func(emit func(operation.Chunk) error) error {
		endpoint := fmt.Sprintf(
			"https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1?language=%s&format=simple",
			region, url.QueryEscape(language))

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
		if err != nil {
			return fmt.Errorf("%s: build request: %w", STTID, err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", apiKey)
		req.Header.Set("Content-Type", sttContentType)
		req.Header.Set("Accept", "application/json")

		resp, err := httpc.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", STTID, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return readError(STTID, resp)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read response: %w", STTID, err)
		}

		status := gjson.GetBytes(body, "RecognitionStatus").String()
		switch status {
		case "Success":
			if text := gjson.GetBytes(body, "DisplayText").String(); text != "" {
				return emit(operation.Chunk{operation.FieldContent: text})
			}
			return nil
		case "NoMatch", "InitialSilenceTimeout":
			return nil
		default:
			return fmt.Errorf("%s: recognition failed with status %q", STTID, status)
		}
	}), nil
}
