// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the Covox server.
// It handles loading and parsing YAML configuration files and provides
// structured access to server settings and the operation roster.
package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/covoxlabs/covox/internal/manager"
	"github.com/covoxlabs/covox/internal/operation"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the API server will bind.
	// Default is empty ("") to bind all interfaces. Use "127.0.0.1" for
	// local-only access.
	Host string `yaml:"host"`

	// Port is the network port on which the API server will listen.
	Port int `yaml:"port"`

	// Debug enables or disables debug-level logging and other debug features.
	Debug bool `yaml:"debug"`

	// LoggingToFile controls whether application logs are written to rotating
	// files or stdout.
	LoggingToFile bool `yaml:"logging-to-file"`

	// ManagementKey protects the management API (plaintext or bcrypt hashed).
	ManagementKey string `yaml:"management-key"`

	// HooksDir is the directory containing hook definition YAML files.
	HooksDir string `yaml:"hooks-dir"`

	// Operations lists the backends to load at startup, in order. Several
	// entries may share a role: for fallback-capable roles the extra entries
	// become fallback candidates, for filter roles they form the chain.
	Operations []OperationConfig `yaml:"operations"`
}

// OperationConfig describes one backend instance in the roster. Backend
// specific settings sit inline next to the role and id keys.
type OperationConfig struct {
	// Role assigns the backend to a pipeline role (stt, t2t, mcp, tts,
	// filter_audio, filter_text, embedding, vision).
	Role string `yaml:"role"`

	// ID selects the backend implementation within the role.
	ID string `yaml:"id"`

	// Default marks the primary candidate for fallback-capable roles. When
	// no entry of a role is marked, the first one is the primary.
	Default bool `yaml:"default"`

	// Settings holds the backend specific fields (api_key, model, ...).
	Settings map[string]any `yaml:",inline"`
}

// LoadConfig reads a YAML configuration file from the given path,
// unmarshals it into a Config struct and returns it.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	cfg.Port = 8317
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Sanitize()

	// Hash the management key if plaintext is detected. A value is considered
	// already hashed if it carries a bcrypt prefix ($2a$, $2b$, or $2y$).
	if cfg.ManagementKey != "" && !looksLikeBcrypt(cfg.ManagementKey) {
		hashed, errHash := hashSecret(cfg.ManagementKey)
		if errHash != nil {
			return nil, fmt.Errorf("failed to hash management key: %w", errHash)
		}
		cfg.ManagementKey = hashed
		// Persist the hashed value to avoid re-hashing on next startup.
		_ = SaveKeyPreserveComments(configFile, "management-key", hashed)
	}

	return &cfg, nil
}

// Sanitize trims whitespace, validates roles and drops entries that are not
// actionable. Remaining entries keep their relative order.
func (cfg *Config) Sanitize() {
	if cfg == nil {
		return
	}
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.ManagementKey = strings.TrimSpace(cfg.ManagementKey)
	cfg.HooksDir = strings.TrimSpace(cfg.HooksDir)

	out := make([]OperationConfig, 0, len(cfg.Operations))
	for i := range cfg.Operations {
		e := cfg.Operations[i]
		e.Role = strings.ToLower(strings.TrimSpace(e.Role))
		e.ID = strings.TrimSpace(e.ID)
		if e.Role == "" || e.ID == "" {
			continue
		}
		out = append(out, e)
	}
	cfg.Operations = out
}

// Descriptors converts the roster into the load descriptors the operation
// manager consumes. Unknown roles surface as errors here rather than at
// load time so a typo fails fast with the entry index.
func (cfg *Config) Descriptors() ([]manager.Descriptor, error) {
	descs := make([]manager.Descriptor, 0, len(cfg.Operations))
	for i, e := range cfg.Operations {
		role, err := operation.ParseRole(e.Role)
		if err != nil {
			return nil, fmt.Errorf("operations[%d]: %w", i, err)
		}
		fields := make(map[string]any, len(e.Settings))
		for k, v := range e.Settings {
			fields[k] = v
		}
		descs = append(descs, manager.Descriptor{
			Role:    role,
			ID:      e.ID,
			Default: e.Default,
			Fields:  fields,
		})
	}
	return descs, nil
}

// CheckManagementKey compares a presented key against the stored bcrypt hash.
func (cfg *Config) CheckManagementKey(presented string) bool {
	if cfg.ManagementKey == "" || presented == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(cfg.ManagementKey), []byte(presented)) == nil
}

// looksLikeBcrypt returns true if the provided string appears to be a bcrypt hash.
func looksLikeBcrypt(s string) bool {
	return len(s) > 4 && (s[:4] == "$2a$" || s[:4] == "$2b$" || s[:4] == "$2y$")
}

// hashSecret hashes the given secret using bcrypt.
func hashSecret(secret string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// SaveKeyPreserveComments updates a single top-level scalar key in the config
// file while preserving comments and key ordering.
func SaveKeyPreserveComments(configFile, key, value string) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}
	var root yaml.Node
	if err = yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("invalid yaml document structure")
	}

	mapping := root.Content[0]
	updated := false
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			v := mapping.Content[i+1]
			v.Kind = yaml.ScalarNode
			v.Tag = "!!str"
			v.Value = value
			updated = true
			break
		}
	}
	if !updated {
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
		)
	}

	rendered, err := yaml.Marshal(&root)
	if err != nil {
		return err
	}
	return os.WriteFile(configFile, rendered, 0o600)
}
