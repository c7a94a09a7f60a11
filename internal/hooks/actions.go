// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hooks

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/covoxlabs/covox/internal/events"
)

// RegisterBuiltInActions registers the default action handlers.
func RegisterBuiltInActions(m *HookManager) {
	m.RegisterAction(ActionLogWarning, handleLogWarning)
	// Use stateful webhook handler
	wh := NewWebhookHandler()
	m.RegisterAction(ActionNotifyWebhook, wh.Handle)
	m.RegisterAction(ActionRunCommand, handleRunCommand)
}

func handleLogWarning(hook *Hook, evt *events.Event) error {
	msg, _ := hook.Params["message"].(string)
	if msg == "" {
		msg = "Hook triggered"
	}
	log.Warnf("[Hook: %s] %s (Event: %s)", hook.Name, msg, evt.Type)
	return nil
}

// WebhookHandler manages webhook execution with rate limiting.
type WebhookHandler struct {
	mu           sync.RWMutex
	rateLimiters map[string]*rateLimiter
}

type rateLimiter struct {
	count    int
	lastTime time.Time
}

func NewWebhookHandler() *WebhookHandler {
	return &WebhookHandler{
		rateLimiters: make(map[string]*rateLimiter),
	}
}

func (h *WebhookHandler) Handle(hook *Hook, evt *events.Event) error {
	url, _ := hook.Params["url"].(string)
	if url == "" {
		return fmt.Errorf("missing webhook url")
	}

	// HTTPS Validation
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://localhost") {
		return fmt.Errorf("insecure webhook url (must be https or localhost): %s", url)
	}

	// Rate Limiting (10 per minute per URL)
	if !h.checkRateLimit(url) {
		return fmt.Errorf("rate limit exceeded for webhook: %s", url)
	}

	secret, _ := hook.Params["secret"].(string)

	payload := map[string]interface{}{
		"event":     evt.Type,
		"timestamp": evt.Timestamp,
		"hook_id":   hook.ID,
		"data":      evt.Data,
	}

	if evt.Role != "" {
		payload["role"] = evt.Role
	}
	if evt.OperationID != "" {
		payload["operation_id"] = evt.OperationID
	}
	if evt.ErrorMessage != "" {
		payload["error"] = evt.ErrorMessage
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	// Retry Logic (3 attempts: 1s, 2s, 4s)
	backoff := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	var lastErr error

	for i := 0; i <= len(backoff); i++ {
		if i > 0 {
			time.Sleep(backoff[i-1])
		}

		req, err := http.NewRequest("POST", url, bytes.NewBuffer(body))
		if err != nil {
			return err
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Covox-Hooks/1.0")

		if secret != "" {
			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write(body)
			signature := hex.EncodeToString(mac.Sum(nil))
			req.Header.Set("X-Hook-Signature", "sha256="+signature)
		}

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Do(req)

		if err != nil {
			lastErr = err
			log.Warnf("Webhook attempt %d failed: %v", i+1, err)
			continue
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			log.Warnf("Webhook attempt %d failed with status: %d", i+1, resp.StatusCode)
			continue
		}

		// Success
		return nil
	}

	return fmt.Errorf("webhook failed after retries: %v", lastErr)
}

func (h *WebhookHandler) checkRateLimit(url string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Limiter logic: 10 calls per minute
	now := time.Now()
	limiter, exists := h.rateLimiters[url]
	if !exists {
		limiter = &rateLimiter{count: 0, lastTime: now}
		h.rateLimiters[url] = limiter
	}

	if now.Sub(limiter.lastTime) > time.Minute {
		limiter.count = 0
		limiter.lastTime = now
	}

	if limiter.count >= 10 {
		return false
	}

	limiter.count++
	return true
}

func handleRunCommand(hook *Hook, evt *events.Event) error {
	cmdStr, _ := hook.Params["command"].(string)
	if cmdStr == "" {
		return fmt.Errorf("missing command")
	}

	// Only allow a small set of notification commands.
	allowedCommands := []string{"echo", "logger", "notify-send"}
	cmdParts := strings.Fields(cmdStr)
	if len(cmdParts) == 0 {
		return fmt.Errorf("empty command")
	}

	isAllowed := false
	for _, allowed := range allowedCommands {
		if cmdParts[0] == allowed {
			isAllowed = true
			break
		}
	}

	if !isAllowed {
		return fmt.Errorf("command '%s' is not in the whitelist", cmdParts[0])
	}

	cmd := exec.Command(cmdParts[0], cmdParts[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("command failed: %v, output: %s", err, string(out))
	}

	return nil
}
