// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/covoxlabs/covox/internal/events"
)

// HookManager manages the lifecycle and execution of automation hooks.
type HookManager struct {
	hooksDir       string
	hooks          map[events.Type][]*Hook
	bus            *events.Bus
	programs       map[string]*vm.Program
	actionHandlers map[HookAction]ActionHandler
	mu             sync.RWMutex

	watcher     *fsnotify.Watcher
	stopWatcher chan struct{}
}

// NewHookManager creates a new hook manager.
func NewHookManager(hooksDir string, bus *events.Bus) (*HookManager, error) {
	if hooksDir == "" {
		// Default to user home directory + .covox/hooks
		home, err := os.UserHomeDir()
		if err != nil {
			// Fallback to current directory if home directory is not accessible
			wd, _ := os.Getwd()
			hooksDir = filepath.Join(wd, ".covox", "hooks")
		} else {
			hooksDir = filepath.Join(home, ".covox", "hooks")
		}
	}

	manager := &HookManager{
		hooksDir:       hooksDir,
		hooks:          make(map[events.Type][]*Hook),
		bus:            bus,
		programs:       make(map[string]*vm.Program),
		actionHandlers: make(map[HookAction]ActionHandler),
		stopWatcher:    make(chan struct{}),
	}

	// Register default action handlers
	RegisterBuiltInActions(manager)

	return manager, nil
}

// LoadHooks loads all hooks from the hooks directory.
func (m *HookManager) LoadHooks() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.hooksDir); os.IsNotExist(err) {
		if err := os.MkdirAll(m.hooksDir, 0755); err != nil {
			return fmt.Errorf("failed to create hooks directory: %w", err)
		}
	}

	newHooks := make(map[events.Type][]*Hook)
	err := filepath.Walk(m.hooksDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && (strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")) {
			data, err := os.ReadFile(path)
			if err != nil {
				log.Errorf("Failed to read hook file %s: %v", path, err)
				return nil
			}

			var hook Hook
			if err := yaml.Unmarshal(data, &hook); err != nil {
				log.Errorf("Failed to parse hook %s: %v", path, err)
				return nil
			}

			hook.FilePath = path
			if hook.Enabled {
				newHooks[hook.Event] = append(newHooks[hook.Event], &hook)
				log.Debugf("Loaded hook: %s for event %s", hook.Name, hook.Event)
			}
		}
		return nil
	})

	if err != nil {
		return err
	}

	m.hooks = newHooks
	m.programs = make(map[string]*vm.Program) // Clear cache

	log.Infof("Successfully loaded hooks for %d event types", len(m.hooks))
	return nil
}

// SubscribeToAllEvents subscribes the manager to every event the bus
// carries. Reloading hook files does not change subscriptions.
func (m *HookManager) SubscribeToAllEvents() {
	for _, evt := range events.Types {
		m.bus.Subscribe(evt, m.handleEvent)
	}
}

func (m *HookManager) handleEvent(evt *events.Event) {
	m.mu.RLock()
	hooks, exists := m.hooks[evt.Type]
	m.mu.RUnlock()

	if !exists || len(hooks) == 0 {
		return
	}

	for _, hook := range hooks {
		matches, err := m.evaluateCondition(hook.Condition, evt)
		if err != nil {
			log.Warnf("Failed to evaluate hook condition '%s': %v", hook.Condition, err)
			continue
		}

		if matches {
			log.Infof("Executing hook: %s (Action: %s)", hook.Name, hook.Action)
			go m.executeAction(hook, evt)
		}
	}
}

func (m *HookManager) evaluateCondition(condition string, evt *events.Event) (bool, error) {
	if condition == "" || condition == "true" {
		return true, nil
	}

	m.mu.Lock()
	program, exists := m.programs[condition]
	if !exists {
		var err error
		// Compile with generic map environment to avoid context-specific compilation
		program, err = expr.Compile(condition)
		if err != nil {
			m.mu.Unlock()
			return false, err
		}
		m.programs[condition] = program
	}
	m.mu.Unlock()

	env := map[string]interface{}{
		"Event":       string(evt.Type),
		"Timestamp":   evt.Timestamp,
		"Role":        evt.Role,
		"OperationID": evt.OperationID,
		"Data":        evt.Data,
	}
	if evt.Err != nil {
		env["Error"] = evt.Err.Error()
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return boolean")
	}

	return result, nil
}

func (m *HookManager) executeAction(hook *Hook, evt *events.Event) {
	m.mu.RLock()
	handler, exists := m.actionHandlers[hook.Action]
	m.mu.RUnlock()

	if !exists {
		log.Warnf("No handler registered for action: %s", hook.Action)
		return
	}

	if err := handler(hook, evt); err != nil {
		log.Errorf("Action %s failed for hook %s: %v", hook.Action, hook.Name, err)
	}
}

// RegisterAction registers a handler for a specific action type.
func (m *HookManager) RegisterAction(action HookAction, handler ActionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actionHandlers[action] = handler
}

// StartWatcher starts a background fsnotify watcher for hot-reloading hooks.
func (m *HookManager) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	err = m.watcher.Add(m.hooksDir)
	if err != nil {
		watcher.Close()
		return err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					log.Infof("Hooks directory changed (%s), reloading...", event.Name)
					time.Sleep(100 * time.Millisecond)
					if err := m.LoadHooks(); err != nil {
						log.Errorf("Failed to reload hooks: %v", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("Hooks watcher error: %v", err)
			case <-m.stopWatcher:
				return
			}
		}
	}()

	return nil
}

// StopWatcher stops the file watcher.
func (m *HookManager) StopWatcher() {
	if m.watcher != nil {
		select {
		case <-m.stopWatcher:
		default:
			close(m.stopWatcher)
		}
		m.watcher.Close()
	}
}

// GetHooksDir returns the hooks directory path.
func (m *HookManager) GetHooksDir() string {
	return m.hooksDir
}

// GetHooks returns all loaded hooks flattened.
func (m *HookManager) GetHooks() []*Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Hook, 0)
	for _, hooks := range m.hooks {
		result = append(result, hooks...)
	}
	return result
}

// GetHook returns a hook by ID.
func (m *HookManager) GetHook(id string) *Hook {
	all := m.GetHooks()
	for _, h := range all {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// EvaluateCondition exposes condition evaluation for testing.
func (m *HookManager) EvaluateCondition(h *Hook, evt *events.Event) (bool, error) {
	return m.evaluateCondition(h.Condition, evt)
}
