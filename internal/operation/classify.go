// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// FailureKind is the structured classification of a provider failure. The
// fallback executor keys its blacklist and retry decisions off this value
// instead of sniffing error message text.
type FailureKind int

const (
	// FailureFatal is a non-retryable failure (malformed request, unknown
	// model, provider rejected the payload).
	FailureFatal FailureKind = iota
	// FailureTransient is worth trying on another candidate without
	// penalizing the failed one (5xx, timeout, connection refused).
	FailureTransient
	// FailureRateLimit blacklists the candidate for the rest of the
	// roster's rotation.
	FailureRateLimit
	// FailureAuth is a credential rejection. Vision rosters treat it like
	// a rate limit since each candidate may hold its own key; elsewhere it
	// is fatal.
	FailureAuth
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransient:
		return "transient"
	case FailureRateLimit:
		return "rate_limit"
	case FailureAuth:
		return "auth"
	default:
		return "fatal"
	}
}

// ProviderError is the normalized failure a backend integration reports.
// Status carries the upstream HTTP status when one exists; zero means the
// call never reached the provider.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// StatusCode reports the upstream HTTP status, if any.
func (e *ProviderError) StatusCode() int { return e.Status }

// classified pins an explicit FailureKind onto an error, overriding the
// status-based mapping.
type classified struct {
	kind FailureKind
	err  error
}

func (c *classified) Error() string            { return c.err.Error() }
func (c *classified) Unwrap() error            { return c.err }
func (c *classified) FailureKind() FailureKind { return c.kind }

// MarkFailure wraps err with an explicit kind for providers whose SDK errors
// carry no usable status code.
func MarkFailure(kind FailureKind, err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: kind, err: err}
}

// Classify maps an error from a Generate call onto the failure taxonomy.
// Precedence: an explicit FailureKind anywhere in the chain wins, then a
// ProviderError status, then network-level conditions. Everything else is
// fatal.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureFatal
	}

	var kinded interface{ FailureKind() FailureKind }
	if errors.As(err, &kinded) {
		return kinded.FailureKind()
	}

	var pe *ProviderError
	if errors.As(err, &pe) && pe.Status > 0 {
		return classifyStatus(pe.Status)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return FailureTransient
	}

	return FailureFatal
}

func classifyStatus(status int) FailureKind {
	switch {
	case status == http.StatusTooManyRequests:
		return FailureRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailureAuth
	case status == http.StatusRequestTimeout || status >= 500:
		return FailureTransient
	default:
		return FailureFatal
	}
}
