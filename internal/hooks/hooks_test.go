// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/covoxlabs/covox/internal/events"
)

func TestHookSystem_Basic(t *testing.T) {
	tmpDir := t.TempDir()

	bus := events.NewBus()
	defer bus.Shutdown()

	manager, err := NewHookManager(tmpDir, bus)
	require.NoError(t, err)

	// Register a test action
	actionCalled := make(chan bool, 1)
	manager.RegisterAction("test_action", func(hook *Hook, evt *events.Event) error {
		actionCalled <- true
		return nil
	})

	hookContent := `
id: "test-hook-1"
name: "Test Hook"
event: "candidate_blacklisted"
condition: "Data.status == 429"
action: "test_action"
enabled: true
`
	err = os.WriteFile(filepath.Join(tmpDir, "test.yaml"), []byte(hookContent), 0644)
	require.NoError(t, err)

	require.NoError(t, manager.LoadHooks())
	manager.SubscribeToAllEvents()

	// Trigger event that matches
	bus.Publish(events.New(events.EventCandidateBlacklisted, "t2t", "openai").WithData("status", 429))

	select {
	case <-actionCalled:
	case <-time.After(1 * time.Second):
		t.Fatal("Action was not called")
	}

	// Trigger event that does NOT match
	bus.Publish(events.New(events.EventCandidateBlacklisted, "t2t", "openai").WithData("status", 401))

	select {
	case <-actionCalled:
		t.Fatal("Action should not be called")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHookSystem_DisabledHookNotLoaded(t *testing.T) {
	tmpDir := t.TempDir()
	bus := events.NewBus()
	defer bus.Shutdown()

	manager, err := NewHookManager(tmpDir, bus)
	require.NoError(t, err)

	hookContent := `
id: "off"
name: "Disabled"
event: "operation_failed"
action: "log_warning"
enabled: false
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "off.yaml"), []byte(hookContent), 0644))
	require.NoError(t, manager.LoadHooks())
	require.Empty(t, manager.GetHooks())
}

func TestEvaluateCondition(t *testing.T) {
	bus := events.NewBus()
	defer bus.Shutdown()
	manager, err := NewHookManager(t.TempDir(), bus)
	require.NoError(t, err)

	evt := events.New(events.EventOperationFailed, "vision", "gemini").
		WithData("attempt", 2).
		WithError(errors.New("rate limited"))

	cases := []struct {
		condition string
		want      bool
	}{
		{"", true},
		{"true", true},
		{`Role == "vision"`, true},
		{`OperationID == "rapidapi"`, false},
		{`Data.attempt >= 2`, true},
		{`Error contains "rate"`, true},
	}
	for _, tc := range cases {
		got, err := manager.EvaluateCondition(&Hook{Condition: tc.condition}, evt)
		require.NoError(t, err, tc.condition)
		require.Equal(t, tc.want, got, tc.condition)
	}
}

func TestEvaluateConditionNonBoolean(t *testing.T) {
	bus := events.NewBus()
	defer bus.Shutdown()
	manager, err := NewHookManager(t.TempDir(), bus)
	require.NoError(t, err)

	_, err = manager.EvaluateCondition(&Hook{Condition: `Role`}, events.New(events.EventConfigReloaded, "t2t", ""))
	require.Error(t, err)
}

func TestWebhookSignature(t *testing.T) {
	var receivedBody []byte
	var receivedSig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedBody, _ = io.ReadAll(r.Body)
		receivedSig = r.Header.Get("X-Hook-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// httptest serves plain http on 127.0.0.1; rewrite to the allowed
	// localhost form
	url := "http://localhost" + server.URL[len("http://127.0.0.1"):]

	wh := NewWebhookHandler()
	hook := &Hook{
		ID:   "wh-1",
		Name: "Webhook",
		Params: map[string]any{
			"url":    url,
			"secret": "s3cret",
		},
	}
	evt := events.New(events.EventFallbackEngaged, "t2t", "backup").WithData("from", "openai")

	require.NoError(t, wh.Handle(hook, evt))

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(receivedBody)
	require.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), receivedSig)
}

func TestWebhookRejectsInsecureURL(t *testing.T) {
	wh := NewWebhookHandler()
	hook := &Hook{Params: map[string]any{"url": "http://example.com/hook"}}
	require.Error(t, wh.Handle(hook, events.New(events.EventConfigReloaded, "", "")))
}

func TestRunCommandWhitelist(t *testing.T) {
	evt := events.New(events.EventOperationClosed, "tts", "azure")

	require.NoError(t, handleRunCommand(&Hook{Params: map[string]any{"command": "echo ok"}}, evt))
	require.Error(t, handleRunCommand(&Hook{Params: map[string]any{"command": "rm -rf /tmp/x"}}, evt))
	require.Error(t, handleRunCommand(&Hook{Params: map[string]any{}}, evt))
}
