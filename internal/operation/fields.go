// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operation

import "encoding/base64"

// Field accessors shared by backend integrations and filters. Configuration
// and chunk fields arrive as map[string]any from YAML or JSON decoding, so
// numeric values may be int, int64 or float64 depending on the decoder.

// StringField reads a non-empty string field.
func StringField(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// FloatField reads a numeric field as float64.
func FloatField(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// IntField reads a numeric field as int.
func IntField(m map[string]any, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// BoolField reads a boolean field.
func BoolField(m map[string]any, key string) (bool, bool) {
	if m == nil {
		return false, false
	}
	b, ok := m[key].(bool)
	return b, ok
}

// BytesField reads a binary field, accepting raw bytes or a base64 string
// (the form binary payloads take after a JSON round trip).
func BytesField(m map[string]any, key string) ([]byte, bool) {
	if m == nil {
		return nil, false
	}
	switch v := m[key].(type) {
	case []byte:
		if len(v) == 0 {
			return nil, false
		}
		return v, true
	case string:
		if v == "" {
			return nil, false
		}
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, false
		}
		return b, true
	}
	return nil, false
}

// StringsField reads a list of strings, accepting []string or []any.
func StringsField(m map[string]any, key string) ([]string, bool) {
	if m == nil {
		return nil, false
	}
	switch v := m[key].(type) {
	case []string:
		if len(v) == 0 {
			return nil, false
		}
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

// MaskSecret renders a secret for logs and configuration echoes: first and
// last four characters with the middle elided.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
