// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rapidapi provides a vision captioning operation backed by a
// RapidAPI-hosted image understanding endpoint. It is wired as the fallback
// behind the primary vision backend.
package rapidapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/covoxlabs/covox/internal/operation"
)

// VisionID is the registered operation id.
const VisionID = "rapidapi"

const (
	defaultHost    = "gpt-vision1.p.rapidapi.com"
	defaultPath    = "/matag2"
	defaultPrompt  = "Describe what is on this screenshot in one or two sentences."
	requestTimeout = 60 * time.Second
)

// Vision captions images over a plain HTTPS JSON endpoint. Like the primary
// vision backend it emits an early image echo chunk with a processing marker
// before the caption.
type Vision struct {
	mu      sync.Mutex
	httpc   *http.Client
	started bool

	apiKey string
	host   string
	path   string
	prompt string
}

func NewVision() *Vision {
	return &Vision{host: defaultHost, path: defaultPath, prompt: defaultPrompt}
}

func (o *Vision) ID() string           { return VisionID }
func (o *Vision) Type() operation.Type { return operation.TypeVision }

func (o *Vision) Configure(fields map[string]any) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if v, ok := operation.StringField(fields, "api_key"); ok {
		o.apiKey = v
	}
	if v, ok := operation.StringField(fields, "host"); ok {
		o.host = v
	}
	if v, ok := operation.StringField(fields, "path"); ok {
		if !strings.HasPrefix(v, "/") {
			return fmt.Errorf("path must start with /, got %q", v)
		}
		o.path = v
	}
	if v, ok := operation.StringField(fields, "prompt"); ok {
		o.prompt = v
	}

	if o.apiKey == "" {
		return fmt.Errorf("api_key must not be empty")
	}
	return nil
}

func (o *Vision) Configuration() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return map[string]any{
		"api_key": operation.MaskSecret(o.apiKey),
		"host":    o.host,
		"path":    o.path,
		"prompt":  o.prompt,
	}
}

func (o *Vision) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.httpc = &http.Client{Timeout: requestTimeout}
	o.started = true
	return nil
}

func (o *Vision) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.httpc = nil
	o.started = false
	return nil
}

func (o *Vision) Generate(ctx context.Context, in operation.Chunk) (<-chan operation.StreamItem, error) {
	o.mu.Lock()
	httpc := o.httpc
	apiKey, host, path, prompt := o.apiKey, o.host, o.path, o.prompt
	o.mu.Unlock()

	if httpc == nil {
		return nil, fmt.Errorf("%s: operation not started", VisionID)
	}
	image, ok := operation.BytesField(in, operation.FieldImageBytes)
	if !ok {
		return nil, fmt.Errorf("%s: input chunk has no image_bytes", VisionID)
	}
	mime, _ := operation.StringField(in, "image_mime")
	if mime == "" {
		mime = "image/png"
	}
	if instruction, okIns := operation.StringField(in, operation.FieldContent); okIns {
		prompt = instruction
	}

	return operation.Emit(ctx, func(emit func(operation.Chunk) error) error {
		if err := emit(operation.Chunk{
			operation.FieldImageBytes: image,
			operation.FieldProcessing: true,
		}); err != nil {
			return err
		}

		caption, err := o.caption(ctx, httpc, apiKey, host, path, prompt, mime, image)
		if err != nil {
			return err
		}
		return emit(operation.Chunk{operation.FieldContent: caption})
	}), nil
}

// caption posts the request and extracts the caption text. The endpoint
// follows the chat-completions response shape.
func (o *Vision) caption(ctx context.Context, httpc *http.Client, apiKey, host, path, prompt, mime string, image []byte) (string, error) {
	payload, err := buildPayload(prompt, mime, image)
	if err != nil {
		return "", fmt.Errorf("%s: build payload: %w", VisionID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+host+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", VisionID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-rapidapi-key", apiKey)
	req.Header.Set("x-rapidapi-host", host)

	resp, err := httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", VisionID, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", VisionID, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", &operation.ProviderError{Provider: VisionID, Status: resp.StatusCode, Message: msg}
	}

	caption := parseCaption(body)
	if caption == "" {
		return "", fmt.Errorf("%s: no caption in response", VisionID)
	}
	return caption, nil
}

func buildPayload(prompt, mime string, image []byte) ([]byte, error) {
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)

	payload := []byte(`{}`)
	var err error
	if payload, err = sjson.SetBytes(payload, "model", "gpt-4-vision-preview"); err != nil {
		return nil, err
	}
	if payload, err = sjson.SetBytes(payload, "max_tokens", 300); err != nil {
		return nil, err
	}
	if payload, err = sjson.SetBytes(payload, "messages.0.role", "user"); err != nil {
		return nil, err
	}
	if payload, err = sjson.SetBytes(payload, "messages.0.content.0.type", "text"); err != nil {
		return nil, err
	}
	if payload, err = sjson.SetBytes(payload, "messages.0.content.0.text", prompt); err != nil {
		return nil, err
	}
	if payload, err = sjson.SetBytes(payload, "messages.0.content.1.type", "image_url"); err != nil {
		return nil, err
	}
	if payload, err = sjson.SetBytes(payload, "messages.0.content.1.image_url.url", dataURL); err != nil {
		return nil, err
	}
	return payload, nil
}

func parseCaption(body []byte) string {
	if v := gjson.GetBytes(body, "choices.0.message.content"); v.Exists() {
		return strings.TrimSpace(v.String())
	}
	// some deployments return a bare {"text": ...} or {"caption": ...}
	for _, key := range []string{"text", "caption", "result"} {
		if v := gjson.GetBytes(body, key); v.Exists() {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}
