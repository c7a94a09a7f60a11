package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/covoxlabs/covox/internal/operation"
)

func TestLoadFallbackRoleDemotesPrimaryToHead(t *testing.T) {
	a := &fakeOp{id: "a"}
	b := &fakeOp{id: "b"}
	c := &fakeOp{id: "c"}
	m := New(fakeFactory(a, b, c))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := m.Load(ctx, operation.RoleT2T, id, nil); err != nil {
			t.Fatalf("Load(%s): %v", id, err)
		}
	}

	// Each load demotes the previous primary to the head of the fallback
	// list, so the most recent load is primary and order reverses.
	got := m.Loaded()[operation.RoleT2T]
	want := []string{"c", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("loaded = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("loaded = %v, want %v", got, want)
		}
	}
	if !a.wasStarted() || a.closeCount() != 0 {
		t.Fatal("demoted operation must stay started, not closed")
	}
}

func TestLoadSimpleRoleReplacesAndCloses(t *testing.T) {
	old := &fakeOp{id: "old"}
	neu := &fakeOp{id: "new"}
	m := New(fakeFactory(old, neu))
	ctx := context.Background()

	if err := m.Load(ctx, operation.RoleTTS, "old", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Load(ctx, operation.RoleTTS, "new", nil); err != nil {
		t.Fatal(err)
	}

	if old.closeCount() != 1 {
		t.Fatalf("replaced operation closed %d times, want 1", old.closeCount())
	}
	got := m.Loaded()[operation.RoleTTS]
	if len(got) != 1 || got[0] != "new" {
		t.Fatalf("loaded = %v, want [new]", got)
	}
}

func TestLoadDuplicateFilterFailsBeforeConstruction(t *testing.T) {
	f := &fakeOp{id: "chunker"}
	m := New(fakeFactory(f))
	ctx := context.Background()

	if err := m.Load(ctx, operation.RoleFilterText, "chunker", nil); err != nil {
		t.Fatal(err)
	}
	startsBefore := f.started

	err := m.Load(ctx, operation.RoleFilterText, "chunker", nil)
	var dup *operation.DuplicateFilterError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateFilterError, got %v", err)
	}
	if f.started != startsBefore {
		t.Fatal("duplicate load must fail before construction side effects")
	}
}

func TestLoadConfigureFailureSurfaces(t *testing.T) {
	bad := &fakeOp{id: "bad", cfgErr: errors.New("temperature out of range")}
	m := New(fakeFactory(bad))

	err := m.Load(context.Background(), operation.RoleT2T, "bad", map[string]any{"temperature": 9.0})
	if err == nil {
		t.Fatal("expected configure error to propagate")
	}
	if bad.wasStarted() {
		t.Fatal("operation must not start after failed configure")
	}
}

func TestLoadUnknownID(t *testing.T) {
	m := New(fakeFactory())
	err := m.Load(context.Background(), operation.RoleSTT, "ghost", nil)
	var unknown *operation.UnknownIDError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownIDError, got %v", err)
	}
}

func TestClosePromotesNextFallback(t *testing.T) {
	a := &fakeOp{id: "a"}
	b := &fakeOp{id: "b"}
	m := New(fakeFactory(a, b))
	ctx := context.Background()

	if err := m.LoadFromConfig(ctx, []Descriptor{
		{Role: "t2t", ID: "a", Default: true},
		{Role: "t2t", ID: "b"},
	}); err != nil {
		t.Fatal(err)
	}

	if err := m.Close(operation.RoleT2T, "a"); err != nil {
		t.Fatal(err)
	}
	if a.closeCount() != 1 {
		t.Fatal("closed primary must be released")
	}
	got := m.Loaded()[operation.RoleT2T]
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("loaded = %v, want [b] promoted to primary", got)
	}
}

func TestCloseIDMismatch(t *testing.T) {
	a := &fakeOp{id: "a"}
	m := New(fakeFactory(a))
	ctx := context.Background()

	if err := m.Load(ctx, operation.RoleSTT, "a", nil); err != nil {
		t.Fatal(err)
	}
	err := m.Close(operation.RoleSTT, "other")
	var notLoaded *operation.NotLoadedError
	if !errors.As(err, &notLoaded) {
		t.Fatalf("expected NotLoadedError on id mismatch, got %v", err)
	}
	if err := m.Close(operation.RoleSTT, "a"); err != nil {
		t.Fatal(err)
	}
	err = m.Close(operation.RoleSTT, "")
	if !errors.As(err, &notLoaded) {
		t.Fatalf("expected NotLoadedError on empty slot, got %v", err)
	}
}

func TestCloseFilterRemovesFromChain(t *testing.T) {
	f1 := &fakeOp{id: "one"}
	f2 := &fakeOp{id: "two"}
	m := New(fakeFactory(f1, f2))
	ctx := context.Background()

	for _, id := range []string{"one", "two"} {
		if err := m.Load(ctx, operation.RoleFilterText, id, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Close(operation.RoleFilterText, "one"); err != nil {
		t.Fatal(err)
	}
	got := m.Loaded()[operation.RoleFilterText]
	if len(got) != 1 || got[0] != "two" {
		t.Fatalf("chain = %v, want [two]", got)
	}

	err := m.Close(operation.RoleFilterText, "ghost")
	var notLoaded *operation.NotLoadedError
	if !errors.As(err, &notLoaded) {
		t.Fatalf("expected NotLoadedError, got %v", err)
	}
}

func TestCloseAllIdempotent(t *testing.T) {
	a := &fakeOp{id: "a"}
	b := &fakeOp{id: "b"}
	f := &fakeOp{id: "f"}
	s := &fakeOp{id: "s"}
	m := New(fakeFactory(a, b, f, s))
	ctx := context.Background()

	if err := m.LoadFromConfig(ctx, []Descriptor{
		{Role: "t2t", ID: "a", Default: true},
		{Role: "t2t", ID: "b"},
		{Role: "filter_text", ID: "f"},
		{Role: "stt", ID: "s"},
	}); err != nil {
		t.Fatal(err)
	}

	m.CloseAll()
	if len(m.Loaded()) != 0 {
		t.Fatalf("slots not empty after CloseAll: %v", m.Loaded())
	}
	for _, op := range []*fakeOp{a, b, f, s} {
		if op.closeCount() != 1 {
			t.Fatalf("operation %s closed %d times, want 1", op.id, op.closeCount())
		}
	}

	// Second call must be a no-op.
	m.CloseAll()
	for _, op := range []*fakeOp{a, b, f, s} {
		if op.closeCount() != 1 {
			t.Fatalf("operation %s closed again by idempotent CloseAll", op.id)
		}
	}
}

func TestConfigureTargetsPrimaryOnly(t *testing.T) {
	a := &fakeOp{id: "a"}
	b := &fakeOp{id: "b"}
	m := New(fakeFactory(a, b))
	ctx := context.Background()

	if err := m.LoadFromConfig(ctx, []Descriptor{
		{Role: "t2t", ID: "a", Default: true},
		{Role: "t2t", ID: "b"},
	}); err != nil {
		t.Fatal(err)
	}

	if err := m.Configure(operation.RoleT2T, "", map[string]any{"model": "gpt"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := m.Configuration(operation.RoleT2T, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg["model"] != "gpt" {
		t.Fatalf("configuration = %v", cfg)
	}

	// Fallback candidates are not reachable through this call.
	err = m.Configure(operation.RoleT2T, "b", map[string]any{"model": "x"})
	var notLoaded *operation.NotLoadedError
	if !errors.As(err, &notLoaded) {
		t.Fatalf("expected NotLoadedError targeting fallback candidate, got %v", err)
	}
}

func TestUseSimpleRoleDispatchesDirectly(t *testing.T) {
	s := &fakeOp{id: "whisper"}
	m := New(fakeFactory(s))
	ctx := context.Background()

	if err := m.Load(ctx, operation.RoleSTT, "whisper", nil); err != nil {
		t.Fatal(err)
	}
	ch, err := m.Use(ctx, operation.RoleSTT, operation.Chunk{"audio_bytes": []byte{1}}, "")
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := operation.Collect(ch)
	if err != nil || len(chunks) != 1 {
		t.Fatalf("chunks=%v err=%v", chunks, err)
	}

	_, err = m.Use(ctx, operation.RoleTTS, operation.Chunk{}, "")
	var notLoaded *operation.NotLoadedError
	if !errors.As(err, &notLoaded) {
		t.Fatalf("expected NotLoadedError for empty simple slot, got %v", err)
	}
}
