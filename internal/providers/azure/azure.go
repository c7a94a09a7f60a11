// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package azure wraps the Azure Speech REST endpoints as speech operations.
// The synthesizer understands the expressive style vocabulary and renders
// it as mstts express-as SSML.
package azure

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/covoxlabs/covox/internal/operation"
)

const (
	// TTSID and STTID are the registered operation ids.
	TTSID = "azure"
	STTID = "azure"
)

func regionRequired(region string) error {
	if region == "" {
		return fmt.Errorf("region must not be empty")
	}
	return nil
}

// readError turns a non-2xx speech API response into a provider error.
func readError(id string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return &operation.ProviderError{Provider: id, Status: resp.StatusCode, Message: msg}
}
