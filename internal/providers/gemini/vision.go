// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package gemini wraps the Gemini API as a vision captioning operation.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/covoxlabs/covox/internal/operation"
)

// VisionID is the registered operation id.
const VisionID = "gemini"

const defaultVisionModel = "gemini-2.0-flash"

const defaultVisionPrompt = "Describe what is on this screenshot in one or two sentences, " +
	"focusing on the content the user is most likely asking about."

// Vision captions images. Before the (slow) captioning call resolves it
// emits an early chunk echoing the raw image with a processing marker, so
// the caller can show the capture immediately.
type Vision struct {
	mu      sync.Mutex
	client  *genai.Client
	started bool

	apiKey string
	model  string
	prompt string
}

func NewVision() *Vision {
	return &Vision{model: defaultVisionModel, prompt: defaultVisionPrompt}
}

func (o *Vision) ID() string           { return VisionID }
func (o *Vision) Type() operation.Type { return operation.TypeVision }

func (o *Vision) Configure(fields map[string]any) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if v, ok := operation.StringField(fields, "api_key"); ok {
		o.apiKey = v
	}
	if v, ok := operation.StringField(fields, "model"); ok {
		o.model = v
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
		"model":   o.model,
		"prompt":  o.prompt,
	}
}

func (o *Vision) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: o.apiKey})
	if err != nil {
		return fmt.Errorf("%s: create client: %w", VisionID, err)
	}
	o.client = client
	o.started = true
	return nil
}

func (o *Vision) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.client = nil
	o.started = false
	return nil
}

// Generate expects "image_bytes" (optionally "image_mime", default
// image/png) and an optional "content" instruction. It emits the image echo
// chunk first, then a chunk with the caption.
func (o *Vision) Generate(ctx context.Context, in operation.Chunk) (<-chan operation.StreamItem, error) {
	o.mu.Lock()
	client := o.client
	model := o.model
	prompt := o.prompt
	o.mu.Unlock()

	if client == nil {
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

		contents := []*genai.Content{{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{InlineData: &genai.Blob{MIMEType: mime, Data: image}},
			},
		}}
		resp, err := client.Models.GenerateContent(ctx, model, contents, nil)
		if err != nil {
			return wrapErr(err)
		}

		var sb strings.Builder
		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			for _, part := range resp.Candidates[0].Content.Parts {
				if part.Text != "" {
					sb.WriteString(part.Text)
				}
			}
		}
		caption := strings.TrimSpace(sb.String())
		if caption == "" {
			return fmt.Errorf("%s: empty caption response", VisionID)
		}
		return emit(operation.Chunk{operation.FieldContent: caption})
	}), nil
}

// wrapErr normalizes SDK failures into the shared provider error.
func wrapErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &operation.ProviderError{
			Provider: VisionID,
			Status:   apiErr.Code,
			Message:  apiErr.Message,
			Cause:    err,
		}
	}
	return fmt.Errorf("%s: %w", VisionID, err)
}
