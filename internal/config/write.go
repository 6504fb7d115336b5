package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const exampleHeader = `# instsync configuration.
# Every key can be overridden with an INSTSYNC_ environment variable,
# e.g. INSTSYNC_PUSH_URL or INSTSYNC_PULL_INTERVAL.
`

// Save writes cfg as YAML to path, creating parent directories as needed.
// It refuses to overwrite an existing file unless force is set.
func Save(cfg *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Marshal renders cfg as commented YAML, with durations in their string form.
func Marshal(cfg *Config) ([]byte, error) {
	doc := map[string]any{
		"version": cfg.Version,
		"push": map[string]any{
			"transport":      cfg.Push.Transport,
			"url":            cfg.Push.URL,
			"subject_prefix": cfg.Push.SubjectPrefix,
			"dial_timeout":   cfg.Push.DialTimeout.String(),
			"ack_timeout":    cfg.Push.AckTimeout.String(),
		},
		"reconnect": map[string]any{
			"base_delay":   cfg.Reconnect.BaseDelay.String(),
			"max_attempts": cfg.Reconnect.MaxAttempts,
			"manual_delay": cfg.Reconnect.ManualDelay.String(),
		},
		"pull": map[string]any{
			"url":      cfg.Pull.URL,
			"path":     cfg.Pull.Path,
			"interval": cfg.Pull.Interval.String(),
			"timeout":  cfg.Pull.Timeout.String(),
		},
		"log": map[string]any{
			"file": cfg.Log.File,
		},
	}

	var node yaml.Node
	if err := node.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	orderKeys(&node, []string{"version", "push", "reconnect", "pull", "log"})

	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return append([]byte(exampleHeader), out...), nil
}

// orderKeys reorders the top-level mapping so sections appear in a fixed,
// readable order rather than yaml.v3's sorted order.
func orderKeys(node *yaml.Node, order []string) {
	if node.Kind != yaml.MappingNode {
		return
	}
	byKey := make(map[string][2]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		byKey[node.Content[i].Value] = [2]*yaml.Node{node.Content[i], node.Content[i+1]}
	}
	content := make([]*yaml.Node, 0, len(node.Content))
	for _, k := range order {
		if pair, ok := byKey[k]; ok {
			content = append(content, pair[0], pair[1])
			delete(byKey, k)
		}
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if _, left := byKey[node.Content[i].Value]; left {
			content = append(content, node.Content[i], node.Content[i+1])
		}
	}
	node.Content = content
}
