package costpolicy

import "conhub-ingest/pkg/types"

// balanced indexes most content into both stores, trusting downstream
// retrieval to weigh vector and graph results rather than pre-filtering.
func balanced() *Policy {
	return &Policy{
		Name:        "balanced",
		Description: "Balanced indexing in both vector and graph stores",
		Rules: []Rule{
			{SourceKind: types.SourceKindCodeRepo, Targets: Both(), Priority: 100},
			{SourceKind: types.SourceKindTicketing, Targets: Both(), Priority: 90},
			{SourceKind: types.SourceKindChat, Targets: Both(), Priority: 80},
			{SourceKind: types.SourceKindDocument, Targets: Both(), Priority: 70},
		},
		DefaultTargets: Both(),
	}
}

// vectorFirst favors semantic search and only keeps the graph store for
// content where relationships genuinely matter.
func vectorFirst() *Policy {
	return &Policy{
		Name:        "vector_first",
		Description: "Vector-first policy, good for simple semantic search workloads",
		Rules: []Rule{
			{SourceKind: types.SourceKindCodeRepo, Targets: VectorOnly(), Priority: 100},
			{SourceKind: types.SourceKindTicketing, Targets: Both(), Priority: 90},
			{SourceKind: types.SourceKindChat, Targets: VectorOnly(), Priority: 80},
		},
		DefaultTargets: VectorOnly(),
	}
}

// graphFirst favors relationship queries, keeping vector indexing only
// where code needs semantic search on top of its AST structure.
func graphFirst() *Policy {
	return &Policy{
		Name:        "graph_first",
		Description: "Graph-first policy, good for relationship-heavy workloads",
		Rules: []Rule{
			{SourceKind: types.SourceKindCodeRepo, Targets: Both(), Priority: 100},
			{SourceKind: types.SourceKindTicketing, Targets: GraphOnly(), Priority: 90},
			{SourceKind: types.SourceKindChat, Targets: GraphOnly(), Priority: 80},
		},
		DefaultTargets: GraphOnly(),
	}
}

// economy minimizes storage and compute cost, skipping chunks under 50
// tokens (too small to carry useful signal on their own).
func economy() *Policy {
	return &Policy{
		Name:        "economy",
		Description: "Economy policy, minimizes storage and compute costs",
		Rules: []Rule{
			{MaxTokens: 49, Targets: None(), Priority: 200},
			{SourceKind: types.SourceKindCodeRepo, Targets: VectorOnly(), Priority: 100},
		},
		DefaultTargets: VectorOnly(),
	}
}

// builtinPolicies returns the four named starting policies, keyed by name.
func builtinPolicies() map[string]*Policy {
	return map[string]*Policy{
		"balanced":     balanced(),
		"vector_first": vectorFirst(),
		"graph_first":  graphFirst(),
		"economy":      economy(),
	}
}
