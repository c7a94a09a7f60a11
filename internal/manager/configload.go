// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package manager

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/covoxlabs/covox/internal/events"
	"github.com/covoxlabs/covox/internal/operation"
)

// Descriptor is one operation entry from the configuration file.
type Descriptor struct {
	Role    operation.Role
	ID      string
	Default bool
	Fields  map[string]any
}

// LoadFromConfig tears down every slot and rebuilds the whole roster from
// the descriptor sequence. Simple and filter roles load in input order. For
// each fallback-capable role the descriptor flagged default (or the first
// one, if none is flagged) becomes primary; the remaining descriptors fill
// the fallback list in their relative input order.
func (m *Manager) LoadFromConfig(ctx context.Context, descriptors []Descriptor) error {
	m.CloseAll()

	byRole := make(map[operation.Role][]Descriptor)
	var order []operation.Role
	for _, d := range descriptors {
		role, err := operation.ParseRole(string(d.Role))
		if err != nil {
			return fmt.Errorf("descriptor %q: %w", d.ID, err)
		}
		if _, seen := byRole[role]; !seen {
			order = append(order, role)
		}
		byRole[role] = append(byRole[role], d)
	}

	for _, role := range order {
		descs := byRole[role]
		if role.Kind() != operation.SlotFallback {
			for _, d := range descs {
				if err := m.Load(ctx, role, d.ID, d.Fields); err != nil {
					return fmt.Errorf("load %s/%s: %w", role, d.ID, err)
				}
			}
			continue
		}

		primaryIdx := 0
		for i, d := range descs {
			if d.Default {
				primaryIdx = i
				break
			}
		}

		primary := descs[primaryIdx]
		if err := m.Load(ctx, role, primary.ID, primary.Fields); err != nil {
			return fmt.Errorf("load %s/%s: %w", role, primary.ID, err)
		}
		for i, d := range descs {
			if i == primaryIdx {
				continue
			}
			if err := m.loadFallbackTail(ctx, role, d.ID, d.Fields); err != nil {
				return fmt.Errorf("load %s/%s: %w", role, d.ID, err)
			}
		}
	}

	log.Infof("Loaded %d operations from configuration", len(descriptors))
	m.publish(events.New(events.EventConfigReloaded, "", "").WithData("count", len(descriptors)))
	return nil
}
