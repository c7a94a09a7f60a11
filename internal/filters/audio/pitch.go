// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package audio holds the audio-side filters of the pipeline.
package audio

import (
	"context"
	"fmt"
	"math"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/covoxlabs/covox/internal/operation"
)

// PitchID is the registered id of the pitch shift filter.
const PitchID = "pitch"

const pitchDefaultSampleRate = 24000

// Pitch shifts synthesized speech up or down by a number of semitones. It
// resamples the 16-bit mono PCM payload to rate/factor and lets playback at
// the original rate raise or lower the pitch, where factor is
// 2^(semitones/12). Zero semitones is a passthrough.
type Pitch struct {
	mu      sync.Mutex
	started bool

	semitones  float64
	sampleRate int
}

func NewPitch() *Pitch {
	return &Pitch{sampleRate: pitchDefaultSampleRate}
}

func (f *Pitch) ID() string           { return PitchID }
func (f *Pitch) Type() operation.Type { return operation.TypeFilterAudio }

func (f *Pitch) Configure(fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v, ok := operation.FloatField(fields, "semitones"); ok {
		if v < -12 || v > 12 {
			return fmt.Errorf("semitones %v out of range [-12, 12]", v)
		}
		f.semitones = v
	}
	if v, ok := operation.IntField(fields, "sample_rate"); ok {
		if v < 8000 || v > 48000 {
			return fmt.Errorf("sample_rate %d out of range [8000, 48000]", v)
		}
		f.sampleRate = v
	}
	return nil
}

func (f *Pitch) Configuration() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]any{
		"semitones":   f.semitones,
		"sample_rate": f.sampleRate,
	}
}

func (f *Pitch) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *Pitch) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	return nil
}

func (f *Pitch) Generate(ctx context.Context, in operation.Chunk) (<-chan operation.StreamItem, error) {
	f.mu.Lock()
	semitones := f.semitones
	rate := f.sampleRate
	f.mu.Unlock()

	audio, ok := operation.BytesField(in, operation.FieldAudioBytes)
	if !ok || semitones == 0 {
		return operation.Single(in), nil
	}

	shifted, err := shiftPitch(audio, rate, semitones)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PitchID, err)
	}
	out := in.Clone()
	out[operation.FieldAudioBytes] = shifted
	return operation.Single(out), nil
}

// shiftPitch resamples raw 16-bit LE mono PCM to rate/factor.
func shiftPitch(pcm []byte, rate int, semitones float64) ([]byte, error) {
	factor := math.Pow(2, semitones/12)

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(rate),
		OutputRate: float64(rate) / factor,
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}

	frames := len(pcm) / 2
	input := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		input[i] = float64(sample) / 32768.0
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	shifted := make([]byte, len(output)*2)
	for i, s := range output {
		sample := int16(s * 32767.0)
		if s > 1.0 {
			sample = 32767
		} else if s < -1.0 {
			sample = -32768
		}
		shifted[i*2] = byte(sample)
		shifted[i*2+1] = byte(sample >> 8)
	}
	return shifted, nil
}
