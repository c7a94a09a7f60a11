// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package voicestyle

import "testing"

func TestExtract(t *testing.T) {
	cases := []struct {
		name      string
		in        string
		wantStyle string
		wantText  string
	}{
		{"leading tag", "[cheerful] Good morning!", "cheerful", "Good morning!"},
		{"no tag", "Just plain text.", "", "Just plain text."},
		{"unknown tag kept", "[robot] Beep boop.", "", "[robot] Beep boop."},
		{"first supported wins", "[sad] oh no [excited] wait", "sad", "oh no  wait"},
		{"case insensitive", "[Whispering] quiet now", "whispering", "quiet now"},
		{"mixed known and unknown", "[sfx] boom [angry] grr", "angry", "[sfx] boom  grr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			style, text := Extract(tc.in)
			if style != tc.wantStyle {
				t.Errorf("style = %q, want %q", style, tc.wantStyle)
			}
			if text != tc.wantText {
				t.Errorf("text = %q, want %q", text, tc.wantText)
			}
		})
	}
}

func TestIsSupported(t *testing.T) {
	if !IsSupported("poetry-reading") {
		t.Error("poetry-reading should be supported")
	}
	if !IsSupported(" Calm ") {
		t.Error("whitespace and case should be normalized")
	}
	if IsSupported("sarcastic") {
		t.Error("sarcastic is not in the vocabulary")
	}
}
