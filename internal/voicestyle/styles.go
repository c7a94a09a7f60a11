// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package voicestyle holds the shared vocabulary of expressive speaking
// styles. Text filters tag outgoing sentences with a style and speech
// backends that support expressive synthesis pick the tag up.
package voicestyle

import (
	"regexp"
	"strings"
)

// Supported lists every style the pipeline understands, in the order they
// are presented to the model prompt.
var Supported = []string{
	"excited",
	"cheerful",
	"sad",
	"angry",
	"fearful",
	"disgruntled",
	"serious",
	"affectionate",
	"gentle",
	"lyrical",
	"newscast",
	"customerservice",
	"empathetic",
	"calm",
	"hopeful",
	"shouting",
	"whispering",
	"terrified",
	"unfriendly",
	"friendly",
	"poetry-reading",
}

var supportedSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Supported))
	for _, s := range Supported {
		m[s] = struct{}{}
	}
	return m
}()

// tagPattern matches a bracketed style tag such as "[cheerful]".
var tagPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// IsSupported reports whether name is a known style (case insensitive).
func IsSupported(name string) bool {
	_, ok := supportedSet[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Extract finds the first supported style tag in text and returns the style
// together with the text stripped of all style tags. Unknown bracket tags
// are left in place. When no supported tag is present the style is "".
func Extract(text string) (style, stripped string) {
	matches := tagPattern.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return "", text
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		name := strings.ToLower(strings.TrimSpace(text[m[2]:m[3]]))
		if _, ok := supportedSet[name]; !ok {
			continue
		}
		if style == "" {
			style = name
		}
		sb.WriteString(text[last:m[0]])
		last = m[1]
	}
	if last == 0 {
		return style, text
	}
	sb.WriteString(text[last:])
	return style, strings.TrimSpace(sb.String())
}

// PromptList renders the vocabulary for inclusion in a system prompt.
func PromptList() string {
	return strings.Join(Supported, ", ")
}
