// Package costpolicy decides which downstream stores a chunk is sent to
// (vector, graph, both or neither) based on its source kind, content type,
// language and size, so that low-value content doesn't pay for indexing it
// will never benefit from.
package costpolicy

import "conhub-ingest/pkg/types"

// Targets is which stores a chunk should be ingested into.
type Targets struct {
	EnableVector bool
	EnableGraph  bool
}

// Both sends the chunk to both stores.
func Both() Targets { return Targets{EnableVector: true, EnableGraph: true} }

// VectorOnly sends the chunk to the vector store only.
func VectorOnly() Targets { return Targets{EnableVector: true, EnableGraph: false} }

// GraphOnly sends the chunk to the graph store only.
func GraphOnly() Targets { return Targets{EnableVector: false, EnableGraph: true} }

// None skips indexing the chunk entirely.
func None() Targets { return Targets{EnableVector: false, EnableGraph: false} }

// Rule matches a chunk on any non-empty subset of its fields. A nil/zero
// field means "match all" for that dimension. Rules are evaluated in
// descending Priority order; the first match wins.
type Rule struct {
	SourceKind        types.SourceKind
	ContentTypePrefix string
	Language          string
	MinTokens         int
	MaxTokens         int
	Targets           Targets
	Priority          int
}

// matches reports whether the rule applies to the given chunk context.
// MinTokens/MaxTokens of zero mean "unbounded" on that side.
func (r Rule) matches(sourceKind types.SourceKind, contentType, language string, tokenCount int) bool {
	if r.SourceKind != "" && r.SourceKind != sourceKind {
		return false
	}
	if r.ContentTypePrefix != "" && !hasPrefix(contentType, r.ContentTypePrefix) {
		return false
	}
	if r.Language != "" && r.Language != language {
		return false
	}
	if r.MinTokens > 0 && tokenCount < r.MinTokens {
		return false
	}
	if r.MaxTokens > 0 && tokenCount > r.MaxTokens {
		return false
	}
	return true
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Policy is an ordered set of rules plus a default fallback.
type Policy struct {
	Name           string
	Description    string
	Rules          []Rule
	DefaultTargets Targets
}

// Evaluate walks the rules in descending priority order and returns the
// targets of the first match, or DefaultTargets if none match. Ties in
// Priority keep the order the rules were declared in (stable sort).
func (p *Policy) Evaluate(sourceKind types.SourceKind, contentType, language string, tokenCount int) Targets {
	ordered := orderedRules(p.Rules)
	for _, r := range ordered {
		if r.matches(sourceKind, contentType, language, tokenCount) {
			return r.Targets
		}
	}
	return p.DefaultTargets
}

// orderedRules returns a copy of rules sorted by descending Priority,
// stable on ties so declaration order acts as the tiebreaker.
func orderedRules(rules []Rule) []Rule {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].Priority > ordered[j-1].Priority; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}
