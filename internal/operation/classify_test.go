package operation

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestClassifyStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   FailureKind
	}{
		{"rate limit", 429, FailureRateLimit},
		{"unauthorized", 401, FailureAuth},
		{"forbidden", 403, FailureAuth},
		{"request timeout", 408, FailureTransient},
		{"server error", 500, FailureTransient},
		{"bad gateway", 502, FailureTransient},
		{"bad request", 400, FailureFatal},
		{"not found", 404, FailureFatal},
		{"payload too large", 413, FailureFatal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := &ProviderError{Provider: "test", Status: tc.status, Message: "x"}
			if got := Classify(err); got != tc.want {
				t.Fatalf("Classify(status %d) = %s, want %s", tc.status, got, tc.want)
			}
		})
	}
}

func TestClassifyWrappedProviderError(t *testing.T) {
	inner := &ProviderError{Provider: "openai", Status: 429, Message: "slow down"}
	err := fmt.Errorf("generate: %w", inner)
	if got := Classify(err); got != FailureRateLimit {
		t.Fatalf("wrapped provider error classified as %s, want rate_limit", got)
	}
}

func TestClassifyExplicitKindWins(t *testing.T) {
	// A provider can pin a kind even when no status code exists.
	err := MarkFailure(FailureRateLimit, errors.New("quota exhausted"))
	if got := Classify(err); got != FailureRateLimit {
		t.Fatalf("marked error classified as %s, want rate_limit", got)
	}

	// Explicit kind overrides a status that would map differently.
	err = MarkFailure(FailureFatal, &ProviderError{Provider: "x", Status: 500, Message: "y"})
	if got := Classify(err); got != FailureFatal {
		t.Fatalf("marked error classified as %s, want fatal", got)
	}
}

func TestClassifyNetworkConditions(t *testing.T) {
	if got := Classify(context.DeadlineExceeded); got != FailureTransient {
		t.Fatalf("deadline exceeded classified as %s, want transient", got)
	}
	if got := Classify(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)); got != FailureTransient {
		t.Fatalf("connection refused classified as %s, want transient", got)
	}
}

func TestClassifyDefaultsToFatal(t *testing.T) {
	if got := Classify(errors.New("something unexpected")); got != FailureFatal {
		t.Fatalf("plain error classified as %s, want fatal", got)
	}
	if got := Classify(&ProviderError{Provider: "x", Message: "no status"}); got != FailureFatal {
		t.Fatalf("status-less provider error classified as %s, want fatal", got)
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" T2T ")
	if err != nil || r != RoleT2T {
		t.Fatalf("ParseRole(T2T) = %v, %v", r, err)
	}
	if _, err := ParseRole("banana"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	var unknown *UnknownRoleError
	_, err = ParseRole("banana")
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownRoleError, got %T", err)
	}
}

func TestRoleBackendType(t *testing.T) {
	if RoleMCP.BackendType() != TypeT2T {
		t.Fatal("mcp role must resolve against the t2t family")
	}
	if RoleVision.BackendType() != TypeVision {
		t.Fatal("vision role must resolve against the vision family")
	}
}

func TestRoleKind(t *testing.T) {
	for _, r := range []Role{RoleT2T, RoleMCP, RoleVision} {
		if r.Kind() != SlotFallback {
			t.Fatalf("%s should be fallback-capable", r)
		}
	}
	for _, r := range []Role{RoleSTT, RoleTTS, RoleEmbedding} {
		if r.Kind() != SlotSimple {
			t.Fatalf("%s should be simple", r)
		}
	}
	for _, r := range []Role{RoleFilterAudio, RoleFilterText} {
		if r.Kind() != SlotFilter {
			t.Fatalf("%s should be a filter role", r)
		}
	}
}
