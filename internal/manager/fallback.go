// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package manager

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/covoxlabs/covox/internal/events"
	"github.com/covoxlabs/covox/internal/operation"
)

// rolePolicy is the small per-role parameterization of the shared fallback
// algorithm.
type rolePolicy struct {
	// blacklistAuth treats credential rejections like rate limits: the
	// candidate is penalized and the next one is tried. Vision rosters mix
	// providers with independent keys, so a bad key on one says nothing
	// about the rest. Elsewhere an auth failure is fatal.
	blacklistAuth bool
	// dedupImage suppresses re-emitting the raw image echo chunk when a
	// retry replays the same input through a second candidate.
	dedupImage bool
}

func policyFor(role operation.Role) rolePolicy {
	if role == operation.RoleVision {
		return rolePolicy{blacklistAuth: true, dedupImage: true}
	}
	return rolePolicy{}
}

// runFallback snapshots the role's candidate roster under the slot lock,
// applies target narrowing and the blacklist amnesty rule, then hands the
// attempt loop to a goroutine feeding the returned stream.
func (m *Manager) runFallback(ctx context.Context, role operation.Role, s *slot, in operation.Chunk, targetID string) (<-chan operation.StreamItem, error) {
	s.mu.Lock()

	candidates := make([]operation.Operation, 0, 1+len(s.fallbacks))
	if s.primary != nil {
		candidates = append(candidates, s.primary)
	}
	candidates = append(candidates, s.fallbacks...)

	if targetID != "" {
		var match operation.Operation
		for _, c := range candidates {
			if c.ID() == targetID {
				match = c
				break
			}
		}
		if match == nil {
			s.mu.Unlock()
			return nil, &operation.NotLoadedError{Role: role, ID: targetID}
		}
		candidates = []operation.Operation{match}
	}

	if len(candidates) == 0 {
		s.mu.Unlock()
		return nil, &operation.NotLoadedError{Role: role}
	}

	available := candidates[:0:0]
	for _, c := range candidates {
		if _, banned := s.blacklist[c.ID()]; !banned {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		// Amnesty: once every candidate has been penalized, wipe the
		// blacklist rather than starving the role forever.
		s.blacklist = make(map[string]struct{})
		available = candidates
		log.Infof("All %s candidates blacklisted, clearing blacklist", role)
		m.publish(events.New(events.EventBlacklistCleared, string(role), ""))
	}
	s.mu.Unlock()

	out := make(chan operation.StreamItem)
	go m.fallbackAttempts(ctx, role, s, policyFor(role), available, in, out)
	return out, nil
}

// fallbackAttempts tries each candidate in order. Items are forwarded as
// they arrive, tagged with the producing candidate's id and attempt index.
// A failure before any real item was produced is classified and may move on
// to the next candidate; a failure after output has already been forwarded
// aborts the whole call.
func (m *Manager) fallbackAttempts(ctx context.Context, role operation.Role, s *slot, pol rolePolicy, candidates []operation.Operation, in operation.Chunk, out chan<- operation.StreamItem) {
	defer close(out)

	var lastErr error
	imageSent := false

	for attempt, cand := range candidates {
		if attempt > 0 {
			log.Infof("Role %s falling back to candidate %s (attempt %d)", role, cand.ID(), attempt)
			m.publish(events.New(events.EventFallbackEngaged, string(role), cand.ID()).WithData("attempt", attempt))
		}

		ch, err := cand.Generate(ctx, in)
		if err != nil {
			if !m.handleFailure(role, s, pol, cand, attempt, len(candidates), err) {
				deliver(ctx, out, operation.StreamItem{Err: err})
				return
			}
			lastErr = err
			continue
		}

		produced := 0
		var failed error
		for item := range ch {
			if item.Err != nil {
				failed = item.Err
				break
			}

			chunk := item.Chunk
			echo := false
			if pol.dedupImage {
				if _, hasImage := chunk[operation.FieldImageBytes]; hasImage {
					if imageSent {
						chunk = chunk.Clone()
						delete(chunk, operation.FieldImageBytes)
						delete(chunk, operation.FieldProcessing)
						if _, hasContent := chunk[operation.FieldContent]; !hasContent {
							// Pure image echo already delivered by an
							// earlier attempt; drop the duplicate.
							continue
						}
					} else {
						imageSent = true
					}
				}
				if p, _ := chunk[operation.FieldProcessing].(bool); p {
					echo = true
				}
			}

			tagged := chunk.Clone()
			tagged[operation.KeySourceID] = cand.ID()
			tagged[operation.KeyAttempt] = attempt
			if !deliver(ctx, out, operation.StreamItem{Chunk: tagged}) {
				drain(ch)
				return
			}
			if !echo {
				produced++
			}
		}
		drain(ch)

		if failed != nil {
			if produced > 0 {
				// Partial output was already forwarded; switching
				// candidates now would duplicate it. Abort.
				log.Errorf("Role %s candidate %s failed mid-stream after %d chunks: %v", role, cand.ID(), produced, failed)
				m.publish(events.New(events.EventOperationFailed, string(role), cand.ID()).WithError(failed))
				deliver(ctx, out, operation.StreamItem{Err: failed})
				return
			}
			if !m.handleFailure(role, s, pol, cand, attempt, len(candidates), failed) {
				deliver(ctx, out, operation.StreamItem{Err: failed})
				return
			}
			lastErr = failed
			continue
		}

		if produced == 0 {
			// Completed without output and without error; treat as a miss
			// and give the next candidate a chance.
			log.Warnf("Role %s candidate %s produced no output", role, cand.ID())
			continue
		}
		return
	}

	if lastErr != nil {
		deliver(ctx, out, operation.StreamItem{Err: lastErr})
		return
	}
	deliver(ctx, out, operation.StreamItem{Err: &operation.NotLoadedError{Role: role}})
}

// handleFailure classifies a pre-output failure and decides whether the next
// candidate should be tried. It reports false when the error must propagate.
func (m *Manager) handleFailure(role operation.Role, s *slot, pol rolePolicy, cand operation.Operation, attempt, total int, err error) bool {
	kind := operation.Classify(err)
	log.Warnf("Role %s candidate %s failed (%s): %v", role, cand.ID(), kind, err)

	switch kind {
	case operation.FailureRateLimit:
		m.blacklistCandidate(role, s, cand, err)
		return true
	case operation.FailureAuth:
		if pol.blacklistAuth {
			m.blacklistCandidate(role, s, cand, err)
			return true
		}
	case operation.FailureTransient:
		return true
	}

	// Fatal, including auth on roles that do not blacklist it. The first
	// candidate gets one extra life when others remain; the rule does not
	// generalize to later candidates.
	if attempt == 0 && total > 1 {
		return true
	}
	m.publish(events.New(events.EventOperationFailed, string(role), cand.ID()).WithError(err))
	return false
}

func (m *Manager) blacklistCandidate(role operation.Role, s *slot, cand operation.Operation, err error) {
	s.mu.Lock()
	s.blacklist[cand.ID()] = struct{}{}
	s.mu.Unlock()
	log.Infof("Blacklisted %s candidate %s", role, cand.ID())
	m.publish(events.New(events.EventCandidateBlacklisted, string(role), cand.ID()).WithError(err))
}

func deliver(ctx context.Context, out chan<- operation.StreamItem, item operation.StreamItem) bool {
	select {
	case out <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

// drain releases an abandoned producer goroutine.
func drain(ch <-chan operation.StreamItem) {
	for range ch {
	}
}
