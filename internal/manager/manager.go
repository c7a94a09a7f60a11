// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package manager coordinates every loaded backend operation behind role
// slots: simple roles hold one active operation, fallback-capable roles hold
// a primary plus an ordered fallback roster with a blacklist, filter roles
// hold an ordered chain. All mutation of a role's slot is serialized by a
// per-role mutex; streaming happens outside the lock.
package manager

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/covoxlabs/covox/internal/events"
	"github.com/covoxlabs/covox/internal/operation"
)

// Factory constructs a fresh, unstarted operation for a (type, id) pair.
type Factory func(t operation.Type, id string) (operation.Operation, error)

// Manager is the process-wide orchestrator. It is constructed once at the
// application root and injected into the layers that need it.
type Manager struct {
	factory Factory
	bus     *events.Bus
	slots   map[operation.Role]*slot
}

type slot struct {
	mu        sync.Mutex
	role      operation.Role
	primary   operation.Operation
	fallbacks []operation.Operation
	blacklist map[string]struct{}
	filters   []operation.Operation
}

// Option customizes a Manager.
type Option func(*Manager)

// WithBus attaches an event bus for lifecycle and fallback notifications.
func WithBus(bus *events.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// New builds a manager around the given operation factory.
func New(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory: factory,
		slots:   make(map[operation.Role]*slot, len(operation.Roles)),
	}
	for _, role := range operation.Roles {
		m.slots[role] = &slot{role: role, blacklist: make(map[string]struct{})}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) publish(evt *events.Event) {
	if m.bus != nil {
		m.bus.PublishAsync(evt)
	}
}

// Load constructs, configures, starts and installs an operation into the
// role's slot. Simple roles close and replace any current occupant.
// Fallback-capable roles demote the current primary to the head of the
// fallback list. Filter roles append; a duplicate id fails before any
// construction side effects.
func (m *Manager) Load(ctx context.Context, role operation.Role, id string, fields map[string]any) error {
	s := m.slots[role]
	s.mu.Lock()
	defer s.mu.Unlock()

	if role.Kind() == operation.SlotFilter {
		for _, f := range s.filters {
			if f.ID() == id {
				return &operation.DuplicateFilterError{Role: role, ID: id}
			}
		}
	}

	op, err := m.buildLocked(ctx, role, id, fields)
	if err != nil {
		return err
	}

	switch role.Kind() {
	case operation.SlotSimple:
		if s.primary != nil {
			old := s.primary
			if errClose := old.Close(); errClose != nil {
				log.Warnf("Failed to close replaced %s operation %s: %v", role, old.ID(), errClose)
			}
			m.publish(events.New(events.EventOperationClosed, string(role), old.ID()))
		}
		s.primary = op
	case operation.SlotFallback:
		if s.primary != nil {
			s.fallbacks = append([]operation.Operation{s.primary}, s.fallbacks...)
		}
		s.primary = op
	case operation.SlotFilter:
		s.filters = append(s.filters, op)
	}

	log.Infof("Loaded operation %s for role %s", id, role)
	m.publish(events.New(events.EventOperationLoaded, string(role), id))
	return nil
}

// loadFallbackTail installs an operation directly at the tail of a
// fallback-capable role's roster without touching the primary. Used by bulk
// configuration loading so the default-flagged descriptor stays primary.
func (m *Manager) loadFallbackTail(ctx context.Context, role operation.Role, id string, fields map[string]any) error {
	if role.Kind() != operation.SlotFallback {
		return fmt.Errorf("role %q does not keep a fallback roster", role)
	}

	s := m.slots[role]
	s.mu.Lock()
	defer s.mu.Unlock()

	op, err := m.buildLocked(ctx, role, id, fields)
	if err != nil {
		return err
	}
	s.fallbacks = append(s.fallbacks, op)

	log.Infof("Loaded fallback operation %s for role %s", id, role)
	m.publish(events.New(events.EventOperationLoaded, string(role), id).WithData("fallback", true))
	return nil
}

// buildLocked runs the construct-configure-start sequence. Callers hold the
// slot mutex so loads against the same role are serialized end to end.
func (m *Manager) buildLocked(ctx context.Context, role operation.Role, id string, fields map[string]any) (operation.Operation, error) {
	op, err := m.factory(role.BackendType(), id)
	if err != nil {
		return nil, err
	}
	if err := op.Configure(fields); err != nil {
		return nil, fmt.Errorf("configure %s/%s: %w", role, id, err)
	}
	if err := op.Start(ctx); err != nil {
		return nil, fmt.Errorf("start %s/%s: %w", role, id, err)
	}
	return op, nil
}

// Close removes and closes slot contents. For simple and fallback-capable
// roles it targets the current occupant or primary; an empty slot or an id
// mismatch is a reference error. Closing the primary of a fallback-capable
// role promotes the head of the fallback list. For filter roles the filter
// with the matching id is removed from the chain.
func (m *Manager) Close(role operation.Role, id string) error {
	s := m.slots[role]
	s.mu.Lock()
	defer s.mu.Unlock()

	if role.Kind() == operation.SlotFilter {
		for i, f := range s.filters {
			if f.ID() == id {
				s.filters = append(s.filters[:i], s.filters[i+1:]...)
				err := f.Close()
				m.publish(events.New(events.EventOperationClosed, string(role), id))
				if err != nil {
					return fmt.Errorf("close %s/%s: %w", role, id, err)
				}
				return nil
			}
		}
		return &operation.NotLoadedError{Role: role, ID: id}
	}

	if s.primary == nil {
		return &operation.NotLoadedError{Role: role, ID: id}
	}
	if id != "" && s.primary.ID() != id {
		return &operation.NotLoadedError{Role: role, ID: id}
	}

	closed := s.primary
	delete(s.blacklist, closed.ID())
	if role.Kind() == operation.SlotFallback && len(s.fallbacks) > 0 {
		s.primary = s.fallbacks[0]
		s.fallbacks = s.fallbacks[1:]
	} else {
		s.primary = nil
	}

	err := closed.Close()
	m.publish(events.New(events.EventOperationClosed, string(role), closed.ID()))
	if err != nil {
		return fmt.Errorf("close %s/%s: %w", role, closed.ID(), err)
	}
	return nil
}

// CloseAll tears down every slot: primaries, fallback rosters and filter
// chains are closed and emptied, every blacklist is cleared. Safe to call on
// an already-empty manager.
func (m *Manager) CloseAll() {
	for _, role := range operation.Roles {
		s := m.slots[role]
		s.mu.Lock()
		ops := make([]operation.Operation, 0, 1+len(s.fallbacks)+len(s.filters))
		if s.primary != nil {
			ops = append(ops, s.primary)
		}
		ops = append(ops, s.fallbacks...)
		ops = append(ops, s.filters...)
		s.primary = nil
		s.fallbacks = nil
		s.filters = nil
		s.blacklist = make(map[string]struct{})
		s.mu.Unlock()

		for _, op := range ops {
			if err := op.Close(); err != nil {
				log.Warnf("Failed to close %s operation %s: %v", role, op.ID(), err)
			}
			m.publish(events.New(events.EventOperationClosed, string(role), op.ID()))
		}
	}
}

// Configure updates settings on a loaded operation. Simple and
// fallback-capable roles target the primary only; fallback candidates are
// not separately configurable through this call. Filter roles target the
// chain entry with the matching id.
func (m *Manager) Configure(role operation.Role, id string, fields map[string]any) error {
	target, unlock, err := m.target(role, id)
	if err != nil {
		return err
	}
	defer unlock()
	return target.Configure(fields)
}

// Configuration returns the current validated settings of a loaded
// operation, with the same targeting rules as Configure.
func (m *Manager) Configuration(role operation.Role, id string) (map[string]any, error) {
	target, unlock, err := m.target(role, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return target.Configuration(), nil
}

func (m *Manager) target(role operation.Role, id string) (operation.Operation, func(), error) {
	s := m.slots[role]
	s.mu.Lock()

	if role.Kind() == operation.SlotFilter {
		for _, f := range s.filters {
			if f.ID() == id {
				return f, s.mu.Unlock, nil
			}
		}
		s.mu.Unlock()
		return nil, nil, &operation.NotLoadedError{Role: role, ID: id}
	}

	if s.primary == nil || (id != "" && s.primary.ID() != id) {
		s.mu.Unlock()
		return nil, nil, &operation.NotLoadedError{Role: role, ID: id}
	}
	return s.primary, s.mu.Unlock, nil
}

// Loaded reports the ids currently installed per role: primary first for
// single-occupant roles, then the fallback roster or filter chain in order.
func (m *Manager) Loaded() map[operation.Role][]string {
	out := make(map[operation.Role][]string)
	for _, role := range operation.Roles {
		s := m.slots[role]
		s.mu.Lock()
		var ids []string
		if s.primary != nil {
			ids = append(ids, s.primary.ID())
		}
		for _, f := range s.fallbacks {
			ids = append(ids, f.ID())
		}
		for _, f := range s.filters {
			ids = append(ids, f.ID())
		}
		s.mu.Unlock()
		if len(ids) > 0 {
			out[role] = ids
		}
	}
	return out
}

// Blacklist reports the currently penalized candidate ids for a role.
func (m *Manager) Blacklist(role operation.Role) []string {
	s := m.slots[role]
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.blacklist))
	for id := range s.blacklist {
		ids = append(ids, id)
	}
	return ids
}

// Use runs an input chunk through the role's slot and returns a lazy stream
// of output chunks. Simple roles dispatch to their single operation,
// fallback-capable roles run the fallback executor, filter roles run the
// chain (or a single filter when targetID is given).
func (m *Manager) Use(ctx context.Context, role operation.Role, in operation.Chunk, targetID string) (<-chan operation.StreamItem, error) {
	s := m.slots[role]

	switch role.Kind() {
	case operation.SlotFilter:
		return m.runFilters(ctx, role, s, in, targetID)
	case operation.SlotFallback:
		return m.runFallback(ctx, role, s, in, targetID)
	default:
		s.mu.Lock()
		op := s.primary
		s.mu.Unlock()
		if op == nil || (targetID != "" && op.ID() != targetID) {
			return nil, &operation.NotLoadedError{Role: role, ID: targetID}
		}
		return op.Generate(ctx, in)
	}
}
