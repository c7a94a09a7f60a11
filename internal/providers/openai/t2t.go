// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package openai

import (
	"context"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"

	"github.com/covoxlabs/covox/internal/operation"
)

// T2T streams chat completions. It serves both the T2T and MCP roles and is
// shared by several registered ids that differ only in endpoint defaults.
type T2T struct {
	mu      sync.Mutex
	client  *openai.Client
	started bool

	id             string
	requireBaseURL bool
	requireAPIKey  bool

	apiKey           string
	baseURL          string
	model            string
	systemPrompt     string
	temperature      float64
	topP             float64
	frequencyPenalty float64
	presencePenalty  float64
}

// NewT2T returns an unconfigured, unstarted chat operation with neutral
// sampling defaults.
func NewT2T() *T2T {
	return &T2T{id: T2TID, temperature: 1.0, topP: 1.0}
}

// NewLocalT2T targets OpenAI-compatible local backends (ollama, kobold,
// llama.cpp server). base_url is required; api_key stays optional because
// local servers rarely check one.
func NewLocalT2T() *T2T {
	return &T2T{id: LocalT2TID, requireBaseURL: true, temperature: 1.0, topP: 1.0}
}

// NewPerplexity points the chat implementation at the Perplexity API, which
// speaks the same wire protocol under its own base URL.
func NewPerplexity() *T2T {
	return &T2T{
		id:            PerplexityID,
		baseURL:       "https://api.perplexity.ai",
		requireAPIKey: true,
		temperature:   1.0,
		topP:          1.0,
	}
}

func (o *T2T) ID() string           { return o.id }
func (o *T2T) Type() operation.Type { return operation.TypeT2T }

// Configure validates and stores settings. Sampling parameters are range
// checked: temperature in [0,2], top_p and the penalties in [0,1].
func (o *T2T) Configure(fields map[string]any) error {
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
	if v, ok := operation.StringField(fields, "system_prompt"); ok {
		o.systemPrompt = v
	}
	if v, ok := operation.FloatField(fields, "temperature"); ok {
		if v < 0 || v > 2 {
			return fmt.Errorf("temperature %v out of range [0, 2]", v)
		}
		o.temperature = v
	}
	if v, ok := operation.FloatField(fields, "top_p"); ok {
		if v < 0 || v > 1 {
			return fmt.Errorf("top_p %v out of range [0, 1]", v)
		}
		o.topP = v
	}
	if v, ok := operation.FloatField(fields, "frequency_penalty"); ok {
		if v < 0 || v > 1 {
			return fmt.Errorf("frequency_penalty %v out of range [0, 1]", v)
		}
		o.frequencyPenalty = v
	}
	if v, ok := operation.FloatField(fields, "presence_penalty"); ok {
		if v < 0 || v > 1 {
			return fmt.Errorf("presence_penalty %v out of range [0, 1]", v)
		}
		o.presencePenalty = v
	}

	if o.model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if o.requireBaseURL && o.baseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if o.requireAPIKey && o.apiKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if o.apiKey == "" && o.baseURL == "" {
		return fmt.Errorf("api_key is required unless base_url points at a local backend")
	}
	return nil
}

func (o *T2T) Configuration() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return map[string]any{
		"api_key":           operation.MaskSecret(o.apiKey),
		"base_url":          o.baseURL,
		"model":             o.model,
		"system_prompt":     o.systemPrompt,
		"temperature":       o.temperature,
		"top_p":             o.topP,
		"frequency_penalty": o.frequencyPenalty,
		"presence_penalty":  o.presencePenalty,
	}
}

func (o *T2T) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.client = newClient(o.apiKey, o.baseURL)
	o.started = true
	return nil
}

func (o *T2T) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.client = nil
	o.started = false
	return nil
}

// Generate streams completion deltas as content chunks. The input carries
// the user turn in "content", optionally a "system" override and a
// "history" list of {role, content} records.
func (o *T2T) Generate(ctx context.Context, in operation.Chunk) (<-chan operation.StreamItem, error) {
	o.mu.Lock()
	client := o.client
	id := o.id
	params := o.paramsLocked(in)
	o.mu.Unlock()

	if client == nil {
		return nil, errNotStarted
	}

	return operation.Emit(ctx, func(emit func(operation.Chunk) error) error {
		stream := client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if err := emit(operation.Chunk{operation.FieldContent: delta}); err != nil {
					return err
				}
			}
		}
		return wrapErr(id, stream.Err())
	}), nil
}

func (o *T2T) paramsLocked(in operation.Chunk) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion

	system := o.systemPrompt
	if v, ok := operation.StringField(in, "system"); ok {
		system = v
	}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}

	if history, ok := in["history"].([]map[string]any); ok {
		for _, turn := range history {
			role, _ := operation.StringField(turn, "role")
			content, _ := operation.StringField(turn, operation.FieldContent)
			if content == "" {
				continue
			}
			if role == "assistant" {
				messages = append(messages, openai.AssistantMessage(content))
			} else {
				messages = append(messages, openai.UserMessage(content))
			}
		}
	}

	if content, ok := operation.StringField(in, operation.FieldContent); ok {
		messages = append(messages, openai.UserMessage(content))
	}

	return openai.ChatCompletionNewParams{
		Messages:         messages,
		Model:            o.model,
		Temperature:      param.NewOpt(o.temperature),
		TopP:             param.NewOpt(o.topP),
		FrequencyPenalty: param.NewOpt(o.frequencyPenalty),
		PresencePenalty:  param.NewOpt(o.presencePenalty),
	}
}
