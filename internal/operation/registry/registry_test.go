// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"errors"
	"testing"

	"github.com/covoxlabs/covox/internal/operation"
)

func TestNewCoversEveryKnownID(t *testing.T) {
	for typ, ids := range Known() {
		for _, id := range ids {
			op, err := New(typ, id)
			if err != nil {
				t.Fatalf("New(%s, %s): %v", typ, id, err)
			}
			if op.ID() != id {
				t.Errorf("New(%s, %s) returned operation with id %q", typ, id, op.ID())
			}
			if op.Type() != typ {
				t.Errorf("New(%s, %s) returned operation with type %q", typ, id, op.Type())
			}
		}
	}
}

func TestNewUnknownID(t *testing.T) {
	_, err := New(operation.TypeT2T, "does-not-exist")
	var unknown *operation.UnknownIDError
	if !errors.As(err, &unknown) {
		t.Fatalf("want UnknownIDError, got %v", err)
	}
}

func TestNewIDRegisteredForWrongType(t *testing.T) {
	// pitch is an audio filter; asking for it as a text filter must fail
	if _, err := New(operation.TypeFilterText, "pitch"); err == nil {
		t.Fatal("expected error for type mismatch")
	}
}

func TestNewReturnsFreshInstances(t *testing.T) {
	a, err := New(operation.TypeT2T, "openai")
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(operation.TypeT2T, "openai")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("factory must not share instances")
	}
}
