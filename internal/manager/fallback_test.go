package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covoxlabs/covox/internal/operation"
)

func loadT2TRoster(t *testing.T, ops ...*fakeOp) *Manager {
	t.Helper()
	m := New(fakeFactory(ops...))
	descs := make([]Descriptor, len(ops))
	for i, op := range ops {
		descs[i] = Descriptor{Role: "t2t", ID: op.id}
		if i == 0 {
			descs[i].Default = true
		}
	}
	require.NoError(t, m.LoadFromConfig(context.Background(), descs))
	return m
}

func TestFallbackRateLimitBlacklistsPrimary(t *testing.T) {
	primary := &fakeOp{id: "primary", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return nil, errStatus("primary", 429)
	}}
	backup := &fakeOp{id: "backup", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return chunksOf("hello", "world"), nil
	}}
	m := loadT2TRoster(t, primary, backup)

	ch, err := m.Use(context.Background(), operation.RoleT2T, operation.Chunk{operation.FieldContent: "hi"}, "")
	require.NoError(t, err)

	chunks, err := operation.Collect(ch)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "hello", chunks[0][operation.FieldContent])
	assert.Equal(t, "world", chunks[1][operation.FieldContent])

	// Every forwarded chunk carries the winning candidate and its attempt.
	for _, c := range chunks {
		assert.Equal(t, "backup", c[operation.KeySourceID])
		assert.Equal(t, 1, c[operation.KeyAttempt])
	}

	assert.ElementsMatch(t, []string{"primary"}, m.Blacklist(operation.RoleT2T))
}

func TestFallbackAmnestyClearsBlacklist(t *testing.T) {
	// Both candidates rate-limit on their first call, then succeed.
	flaky := func(id string) *fakeOp {
		return &fakeOp{id: id, run: func(call int, _ operation.Chunk) ([]operation.Chunk, error) {
			if call == 1 {
				return nil, errStatus(id, 429)
			}
			return chunksOf(id + " ok"), nil
		}}
	}
	a, b := flaky("a"), flaky("b")
	m := loadT2TRoster(t, a, b)

	ch, err := m.Use(context.Background(), operation.RoleT2T, operation.Chunk{}, "")
	require.NoError(t, err)
	_, err = operation.Collect(ch)
	require.Error(t, err, "both candidates rate-limited, last error propagates")
	assert.ElementsMatch(t, []string{"a", "b"}, m.Blacklist(operation.RoleT2T))

	// Next use clears the blacklist and retries candidate 0.
	ch, err = m.Use(context.Background(), operation.RoleT2T, operation.Chunk{}, "")
	require.NoError(t, err)
	chunks, err := operation.Collect(ch)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a ok", chunks[0][operation.FieldContent])
	assert.Empty(t, m.Blacklist(operation.RoleT2T))
}

func TestFallbackFatalSingleCandidatePropagates(t *testing.T) {
	only := &fakeOp{id: "only", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return nil, errStatus("only", 400)
	}}
	m := loadT2TRoster(t, only)

	ch, err := m.Use(context.Background(), operation.RoleT2T, operation.Chunk{}, "")
	require.NoError(t, err)
	_, err = operation.Collect(ch)
	require.Error(t, err)

	var pe *operation.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 400, pe.Status)
	assert.Equal(t, 1, only.callCount(), "no retry on a single-candidate fatal")
	assert.Empty(t, m.Blacklist(operation.RoleT2T))
}

func TestFallbackFirstCandidateFatalLeniency(t *testing.T) {
	first := &fakeOp{id: "first", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return nil, errStatus("first", 400)
	}}
	second := &fakeOp{id: "second", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return chunksOf("rescued"), nil
	}}
	m := loadT2TRoster(t, first, second)

	ch, err := m.Use(context.Background(), operation.RoleT2T, operation.Chunk{}, "")
	require.NoError(t, err)
	chunks, err := operation.Collect(ch)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "rescued", chunks[0][operation.FieldContent])
	assert.Equal(t, 1, first.callCount())
	assert.Equal(t, 1, second.callCount())
}

func TestFallbackSecondCandidateFatalPropagates(t *testing.T) {
	first := &fakeOp{id: "first", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return nil, errStatus("first", 400)
	}}
	second := &fakeOp{id: "second", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return nil, errStatus("second", 404)
	}}
	m := loadT2TRoster(t, first, second)

	ch, err := m.Use(context.Background(), operation.RoleT2T, operation.Chunk{}, "")
	require.NoError(t, err)
	_, err = operation.Collect(ch)
	require.Error(t, err)

	var pe *operation.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "second", pe.Provider, "the non-first fatal aborts immediately")
	assert.Equal(t, 404, pe.Status)
}

func TestFallbackMidStreamFailureAborts(t *testing.T) {
	first := &fakeOp{id: "first", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return chunksOf("partial"), errStatus("first", 429)
	}}
	second := &fakeOp{id: "second"}
	m := loadT2TRoster(t, first, second)

	ch, err := m.Use(context.Background(), operation.RoleT2T, operation.Chunk{}, "")
	require.NoError(t, err)
	chunks, err := operation.Collect(ch)
	require.Error(t, err, "failure after partial output must propagate")
	require.Len(t, chunks, 1)
	assert.Equal(t, "partial", chunks[0][operation.FieldContent])
	assert.Equal(t, 0, second.callCount(), "no candidate switch once streaming began")
}

func TestFallbackZeroItemStreamMovesOn(t *testing.T) {
	silent := &fakeOp{id: "silent", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return nil, nil
	}}
	talky := &fakeOp{id: "talky", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return chunksOf("words"), nil
	}}
	m := loadT2TRoster(t, silent, talky)

	ch, err := m.Use(context.Background(), operation.RoleT2T, operation.Chunk{}, "")
	require.NoError(t, err)
	chunks, err := operation.Collect(ch)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "words", chunks[0][operation.FieldContent])
}

func TestFallbackAllSilentReportsNotLoaded(t *testing.T) {
	silent := func(id string) *fakeOp {
		return &fakeOp{id: id, run: func(int, operation.Chunk) ([]operation.Chunk, error) {
			return nil, nil
		}}
	}
	m := loadT2TRoster(t, silent("a"), silent("b"))

	ch, err := m.Use(context.Background(), operation.RoleT2T, operation.Chunk{}, "")
	require.NoError(t, err)
	_, err = operation.Collect(ch)

	var notLoaded *operation.NotLoadedError
	require.ErrorAs(t, err, &notLoaded)
}

func TestFallbackTargetNarrowing(t *testing.T) {
	a := &fakeOp{id: "a", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return chunksOf("from a"), nil
	}}
	b := &fakeOp{id: "b", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return chunksOf("from b"), nil
	}}
	m := loadT2TRoster(t, a, b)

	ch, err := m.Use(context.Background(), operation.RoleT2T, operation.Chunk{}, "b")
	require.NoError(t, err)
	chunks, err := operation.Collect(ch)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "from b", chunks[0][operation.FieldContent])
	assert.Equal(t, 0, a.callCount())

	_, err = m.Use(context.Background(), operation.RoleT2T, operation.Chunk{}, "nope")
	var notLoaded *operation.NotLoadedError
	require.ErrorAs(t, err, &notLoaded)
	assert.Equal(t, "nope", notLoaded.ID)
}

func TestFallbackAuthFatalForT2T(t *testing.T) {
	first := &fakeOp{id: "first", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return nil, errStatus("first", 401)
	}}
	second := &fakeOp{id: "second", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return nil, errStatus("second", 401)
	}}
	m := loadT2TRoster(t, first, second)

	ch, err := m.Use(context.Background(), operation.RoleT2T, operation.Chunk{}, "")
	require.NoError(t, err)
	_, err = operation.Collect(ch)
	require.Error(t, err)

	// Auth on T2T is fatal: the first candidate still gets its one extra
	// life, but nobody is blacklisted and the second failure aborts.
	assert.Empty(t, m.Blacklist(operation.RoleT2T))
	var pe *operation.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "second", pe.Provider)
}

func TestFallbackSyncGenerateFailure(t *testing.T) {
	broken := &fakeOp{id: "broken", syncErr: errors.New("client not initialized")}
	healthy := &fakeOp{id: "healthy", run: func(int, operation.Chunk) ([]operation.Chunk, error) {
		return chunksOf("ok"), nil
	}}
	m := loadT2TRoster(t, broken, healthy)

	ch, err := m.Use(context.Background(), operation.RoleT2T, operation.Chunk{}, "")
	require.NoError(t, err)
	chunks, err := operation.Collect(ch)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "ok", chunks[0][operation.FieldContent])
}
