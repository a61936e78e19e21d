package costpolicy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"conhub-ingest/pkg/types"
)

// overlayFile is the on-disk shape of a policy overlay: zero or more named
// policies to add or replace, plus which one should become active.
type overlayFile struct {
	ActivePolicy string          `yaml:"active_policy"`
	Policies     []overlayPolicy `yaml:"policies"`
}

type overlayPolicy struct {
	Name           string         `yaml:"name"`
	Description    string         `yaml:"description"`
	Rules          []overlayRule  `yaml:"rules"`
	DefaultTargets overlayTargets `yaml:"default_targets"`
}

type overlayRule struct {
	SourceKind        string         `yaml:"source_kind"`
	ContentTypePrefix string         `yaml:"content_type_prefix"`
	Language          string         `yaml:"language"`
	MinTokens         int            `yaml:"min_tokens"`
	MaxTokens         int            `yaml:"max_tokens"`
	Targets           overlayTargets `yaml:"targets"`
	Priority          int            `yaml:"priority"`
}

type overlayTargets struct {
	EnableVector bool `yaml:"enable_vector"`
	EnableGraph  bool `yaml:"enable_graph"`
}

// LoadOverlay reads a YAML file of named policies (and optionally which one
// to activate), registers them on manager, and applies the active_policy
// selection if present. Built-in policies not named in the file are left
// untouched; a policy named the same as a built-in replaces it entirely.
func LoadOverlay(manager *Manager, path string) error {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return fmt.Errorf("read cost policy overlay: %w", err)
	}

	var file overlayFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse cost policy overlay: %w", err)
	}

	for _, op := range file.Policies {
		if op.Name == "" {
			return fmt.Errorf("cost policy overlay entry missing name")
		}
		manager.Add(toPolicy(op))
	}

	if file.ActivePolicy != "" {
		if err := manager.SetActive(file.ActivePolicy); err != nil {
			return fmt.Errorf("activate overlay policy: %w", err)
		}
	}

	return nil
}

func toPolicy(op overlayPolicy) *Policy {
	rules := make([]Rule, len(op.Rules))
	for i, r := range op.Rules {
		rules[i] = Rule{
			SourceKind:        types.SourceKind(r.SourceKind),
			ContentTypePrefix: r.ContentTypePrefix,
			Language:          r.Language,
			MinTokens:         r.MinTokens,
			MaxTokens:         r.MaxTokens,
			Priority:          r.Priority,
			Targets:           Targets{EnableVector: r.Targets.EnableVector, EnableGraph: r.Targets.EnableGraph},
		}
	}
	return &Policy{
		Name:        op.Name,
		Description: op.Description,
		Rules:       rules,
		DefaultTargets: Targets{
			EnableVector: op.DefaultTargets.EnableVector,
			EnableGraph:  op.DefaultTargets.EnableGraph,
		},
	}
}
