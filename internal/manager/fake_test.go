package manager

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/covoxlabs/covox/internal/operation"
)

// fakeOp is a scriptable operation used across the manager tests.
type fakeOp struct {
	id  string
	typ operation.Type

	mu  sync.Mutex
	cfg map[string]any

	cfgErr   error
	startErr error

	started int32
	closed  int32
	calls   int32

	// run produces the stream for one Generate call: the returned chunks
	// are emitted in order, then a non-nil error becomes the terminal item.
	// The call counter starts at 1. When nil, the input chunk is echoed.
	run func(call int, in operation.Chunk) ([]operation.Chunk, error)

	// syncErr makes Generate itself fail before returning a stream.
	syncErr error
}

func (f *fakeOp) ID() string           { return f.id }
func (f *fakeOp) Type() operation.Type { return f.typ }

func (f *fakeOp) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	atomic.AddInt32(&f.started, 1)
	return nil
}

func (f *fakeOp) Close() error {
	atomic.AddInt32(&f.closed, 1)
	return nil
}

func (f *fakeOp) Configure(fields map[string]any) error {
	if f.cfgErr != nil {
		return f.cfgErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg == nil {
		f.cfg = make(map[string]any)
	}
	for k, v := range fields {
		f.cfg[k] = v
	}
	return nil
}

func (f *fakeOp) Configuration() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]any, len(f.cfg))
	for k, v := range f.cfg {
		out[k] = v
	}
	return out
}

func (f *fakeOp) Generate(ctx context.Context, in operation.Chunk) (<-chan operation.StreamItem, error) {
	call := int(atomic.AddInt32(&f.calls, 1))
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	run := f.run
	if run == nil {
		run = func(int, operation.Chunk) ([]operation.Chunk, error) {
			return []operation.Chunk{in.Clone()}, nil
		}
	}
	chunks, err := run(call, in)
	return operation.Emit(ctx, func(emit func(operation.Chunk) error) error {
		for _, c := range chunks {
			if e := emit(c); e != nil {
				return e
			}
		}
		return err
	}), nil
}

func (f *fakeOp) callCount() int   { return int(atomic.LoadInt32(&f.calls)) }
func (f *fakeOp) closeCount() int  { return int(atomic.LoadInt32(&f.closed)) }
func (f *fakeOp) wasStarted() bool { return atomic.LoadInt32(&f.started) > 0 }

// fakeFactory resolves ids against a fixed set of fakes regardless of type.
func fakeFactory(ops ...*fakeOp) Factory {
	byID := make(map[string]*fakeOp, len(ops))
	for _, op := range ops {
		byID[op.id] = op
	}
	return func(t operation.Type, id string) (operation.Operation, error) {
		op, ok := byID[id]
		if !ok {
			return nil, &operation.UnknownIDError{Type: t, ID: id}
		}
		return op, nil
	}
}

// errStatus builds the normalized provider failure for a status code.
func errStatus(provider string, status int) error {
	return &operation.ProviderError{Provider: provider, Status: status, Message: "scripted failure"}
}

func chunksOf(contents ...string) []operation.Chunk {
	out := make([]operation.Chunk, len(contents))
	for i, c := range contents {
		out[i] = operation.Chunk{operation.FieldContent: c}
	}
	return out
}
