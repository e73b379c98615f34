package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// toMap round-trips cfg through JSON so paths use the json field names.
func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath retrieves a config value by dot-notation path (e.g. "service.strategy").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}

	var current any = m
	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
	}
	return current, nil
}

// SetByPath sets a config value by dot-notation path. Only existing sections
// can be written; unknown leaf keys are rejected.
func SetByPath(cfg *Config, path string, value any) error {
	m, err := toMap(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return fmt.Errorf("path must name a section and a key: %s", path)
	}

	parent := m
	for _, key := range parts[:len(parts)-1] {
		child, ok := parent[key].(map[string]any)
		if !ok {
			return fmt.Errorf("unknown section %q in %s", key, path)
		}
		parent = child
	}

	last := parts[len(parts)-1]
	if _, ok := parent[last]; !ok && !isOmittable(path) {
		return fmt.Errorf("key not found: %s", path)
	}
	parent[last] = parseValue(value)
	updated, err := fromMap(m)
	if err != nil {
		// "1234" may be meant as a string field such as a secret.
		parent[last] = value
		if updated, err = fromMap(m); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	*cfg = *updated
	return nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// isOmittable reports whether path names a field tagged omitempty, which is
// absent from the marshaled map while unset.
func isOmittable(path string) bool {
	d := Defaults()
	d.General.LogFile = "x"
	d.Telegram.WebhookURL = "x"
	d.Telegram.WebhookSecret = "x"
	d.Media.Kinds = []string{"x"}
	d.Service.APIKey = "x"
	d.Service.FileField = "x"
	d.Service.FileContentType = "x"
	d.Service.CallbackURL = "x"
	d.Service.Recipient = "x"
	d.Service.Analysis.APIKey = "x"
	d.Service.Analysis.Prompt = "x"
	d.Dispatcher.AckText = "x"
	d.Dispatcher.WelcomeText = "x"
	d.Relay = RelayConfig{FailureText: "x", ReportedText: "x", EmptyText: "x"}
	_, err := GetByPath(d, path)
	return err == nil
}

// parseValue converts command-line strings to booleans, numbers or lists.
func parseValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}

	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var list []any
		if err := json.Unmarshal([]byte(s), &list); err == nil {
			return list
		}
	}
	return s
}

// Sanitize returns a copy of the config with secrets masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	c.Media.Kinds = append([]string(nil), cfg.Media.Kinds...)

	if c.Telegram.Token != "" {
		c.Telegram.Token = maskString(c.Telegram.Token)
	}
	if c.Telegram.WebhookSecret != "" {
		c.Telegram.WebhookSecret = "***"
	}
	if c.Service.APIKey != "" {
		c.Service.APIKey = maskString(c.Service.APIKey)
	}
	if c.Service.Analysis.APIKey != "" {
		c.Service.Analysis.APIKey = maskString(c.Service.Analysis.APIKey)
	}
	return &c
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns all settable config paths with their current values.
func ListPaths(cfg *Config) map[string]any {
	m, err := toMap(cfg)
	if err != nil {
		return nil
	}
	result := make(map[string]any)
	flattenMap("", m, result)
	return result
}

func flattenMap(prefix string, m map[string]any, result map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flattenMap(path, sub, result)
			continue
		}
		result[path] = v
	}
}
