// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package azure

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/covoxlabs/covox/internal/operation"
	"github.com/covoxlabs/covox/internal/voicestyle"
)

const (
	ttsDefaultVoice  = "en-US-AshleyNeural"
	ttsOutputFormat  = "riff-24khz-16bit-mono-pcm"
	ttsRequestLimit  = 30 * time.Second
	ttsUserAgent     = "covox"
	ttsDefaultDegree = 1.0
)

// TTS synthesizes speech through the Azure Speech REST API. When the input
// chunk carries a supported "style" the text is wrapped in an express-as
// element so the neural voice acts it out.
type TTS struct {
	mu      sync.Mutex
	httpc   *http.Client
	started bool

	apiKey      string
	region      string
	voice       string
	styleDegree float64
}

func NewTTS() *TTS {
	return &TTS{voice: ttsDefaultVoice, styleDegree: ttsDefaultDegree}
}

func (o *TTS) ID() string           { return TTSID }
func (o *TTS) Type() operation.Type { return operation.TypeTTS }

func (o *TTS) Configure(fields map[string]any) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if v, ok := operation.StringField(fields, "api_key"); ok {
		o.apiKey = v
	}
	if v, ok := operation.StringField(fields, "region"); ok {
		o.region = v
	}
	if v, ok := operation.StringField(fields, "voice"); ok {
		o.voice = v
	}
	if v, ok := operation.FloatField(fields, "style_degree"); ok {
		if v < 0.01 || v > 2 {
			return fmt.Errorf("style_degree %v out of range [0.01, 2]", v)
		}
		o.styleDegree = v
	}

	if o.apiKey == "" {
		return fmt.Errorf("api_key must not be empty")
	}
	return regionRequired(o.region)
}

func (o *TTS) Configuration() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return map[string]any{
		"api_key":      operation.MaskSecret(o.apiKey),
		"region":       o.region,
		"voice":        o.voice,
		"style_degree": o.styleDegree,
	}
}

func (o *TTS) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.httpc = &http.Client{Timeout: ttsRequestLimit}
	o.started = true
	return nil
}

func (o *TTS) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.httpc = nil
	o.started = false
	return nil
}

// Generate synthesizes the "content" text into one audio_bytes chunk
// (24 kHz 16-bit mono PCM WAV). An optional "style" field selects the
// expressive style; unsupported styles are ignored.
func (o *TTS) Generate(ctx context.Context, in operation.Chunk) (<-chan operation.StreamItem, error) {
	o.mu.Lock()
	httpc := o.httpc
	apiKey, region, voice, degree := o.apiKey, o.region, o.voice, o.styleDegree
	o.mu.Unlock()

	if httpc == nil {
		return nil, fmt.Errorf("%s: operation not started", TTSID)
	}
	text, ok := operation.StringField(in, operation.FieldContent)
	if !ok {
		return nil, fmt.Errorf("%s: input chunk has no content", TTSID)
	}
	style, _ := operation.StringField(in, "style")

	return operation.Emit(ctx, func(emit func(operation.Chunk) error) error {
		ssml := BuildSSML(voice, style, degree, text)
		endpoint := fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(ssml))
		if err != nil {
			return fmt.Errorf("%s: build request: %w", TTSID, err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", apiKey)
		req.Header.Set("Content-Type", "application/ssml+xml")
		req.Header.Set("X-Microsoft-OutputFormat", ttsOutputFormat)
		req.Header.Set("User-Agent", ttsUserAgent)

		resp, err := httpc.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", TTSID, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return readError(TTSID, resp)
		}
		audio, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read audio: %w", TTSID, err)
		}
		return emit(operation.Chunk{operation.FieldAudioBytes: audio})
	}), nil
}

// BuildSSML renders the synthesis request document. A supported style wraps
// the text in mstts express-as; anything else degrades to a plain voice
// element.
func BuildSSML(voice, style string, degree float64, text string) string {
	var escaped strings.Builder
	xml.EscapeText(&escaped, []byte(text))

	inner := escaped.String()
	if voicestyle.IsSupported(style) {
		inner = fmt.Sprintf(`<mstts:express-as style="%s" styledegree="%.2f">%s</mstts:express-as>`,
			strings.ToLower(strings.TrimSpace(style)), degree, inner)
	}

	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="en-US">`+
			`<voice name="%s">%s</voice></speak>`, voice, inner)
}
