// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry maps operation ids to their constructors. It is the
// single place where backend implementations are wired into the pipeline.
package registry

import (
	"github.com/covoxlabs/covox/internal/filters/audio"
	"github.com/covoxlabs/covox/internal/filters/text"
	"github.com/covoxlabs/covox/internal/operation"
	"github.com/covoxlabs/covox/internal/providers/azure"
	"github.com/covoxlabs/covox/internal/providers/gemini"
	"github.com/covoxlabs/covox/internal/providers/openai"
	"github.com/covoxlabs/covox/internal/providers/rapidapi"
)

// New constructs a fresh, unconfigured operation for the given backend type
// and id. It satisfies the manager's factory contract.
func New(typ operation.Type, id string) (operation.Operation, error) {
	switch typ {
	case operation.TypeT2T:
		switch id {
		case openai.T2TID:
			return openai.NewT2T(), nil
		case openai.LocalT2TID:
			return openai.NewLocalT2T(), nil
		case openai.PerplexityID:
			return openai.NewPerplexity(), nil
		}
	case operation.TypeSTT:
		switch id {
		case openai.STTID:
			return openai.NewSTT(), nil
		case azure.STTID:
			return azure.NewSTT(), nil
		}
	case operation.TypeTTS:
		switch id {
		case openai.TTSID:
			return openai.NewTTS(), nil
		case azure.TTSID:
			return azure.NewTTS(), nil
		}
	case operation.TypeEmbedding:
		switch id {
		case openai.EmbeddingID:
			return openai.NewEmbedding(), nil
		}
	case operation.TypeVision:
		switch id {
		case gemini.VisionID:
			return gemini.NewVision(), nil
		case rapidapi.VisionID:
			return rapidapi.NewVision(), nil
		}
	case operation.TypeFilterText:
		switch id {
		case text.ChunkerID:
			return text.NewChunker(), nil
		case text.StylePreserverID:
			return text.NewStylePreserver(), nil
		case text.VisionTriggerID:
			return text.NewVisionTrigger(), nil
		}
	case operation.TypeFilterAudio:
		switch id {
		case audio.PitchID:
			return audio.NewPitch(), nil
		}
	}
	return nil, &operation.UnknownIDError{Type: typ, ID: id}
}

// Known lists the registered ids per backend type, for inventory endpoints.
func Known() map[operation.Type][]string {
	return map[operation.Type][]string{
		operation.TypeT2T:         {openai.T2TID, openai.LocalT2TID, openai.PerplexityID},
		operation.TypeSTT:         {openai.STTID, azure.STTID},
		operation.TypeTTS:         {openai.TTSID, azure.TTSID},
		operation.TypeEmbedding:   {openai.EmbeddingID},
		operation.TypeVision:      {gemini.VisionID, rapidapi.VisionID},
		operation.TypeFilterText:  {text.ChunkerID, text.StylePreserverID, text.VisionTriggerID},
		operation.TypeFilterAudio: {audio.PitchID},
	}
}
