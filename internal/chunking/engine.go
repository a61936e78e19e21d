// Package chunking implements C3: a profile-driven engine that splits a
// SourceItem into bounded, semantically cohesive Chunks using a strategy
// selected by source kind and language.
package chunking

import (
	"fmt"

	"conhub-ingest/internal/logging"
	"conhub-ingest/pkg/types"
)

// strategy is the per-algorithm chunking contract. Implementations return
// chunk bodies plus their block type; the engine assigns ids, indices and
// strategy tags uniformly so determinism (I1) holds regardless of which
// strategy ran.
type strategy interface {
	chunk(item *types.SourceItem, cfg StrategyConfig) ([]chunkBody, error)
}

// chunkBody is a strategy's raw output before the engine stamps in
// ChunkID/Index/Strategy.
type chunkBody struct {
	Content     string
	BlockType   types.BlockType
	Language    string
	StartOffset *int
	EndOffset   *int
	Metadata    map[string]any
}

// Engine dispatches SourceItems to the strategy named by the active
// profile, applying the configured fallback when a strategy declines or
// fails to handle content it was asked to process.
type Engine struct {
	profiles   *ProfileManager
	strategies map[types.ChunkingStrategy]strategy
}

// NewEngine builds an Engine with all built-in strategies registered.
func NewEngine(profiles *ProfileManager) *Engine {
	return &Engine{
		profiles: profiles,
		strategies: map[types.ChunkingStrategy]strategy{
			types.StrategyText:     &textStrategy{},
			types.StrategyMarkdown: &markdownStrategy{},
			types.StrategyAstCode:  &astCodeStrategy{},
			types.StrategyCode:     &codeStrategy{},
			types.StrategyChat:     &chatStrategy{},
			types.StrategyTicket:   &ticketingStrategy{},
			types.StrategyHTML:     &htmlStrategy{},
		},
	}
}

// Chunk splits item per the named profile, returning chunks in document
// order with deterministic ids (NewChunkID keyed on source item id,
// strategy, and ordinal index).
func (e *Engine) Chunk(item *types.SourceItem, profileName string) ([]types.Chunk, error) {
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source item: %w", err)
	}

	profile, err := e.profiles.Get(profileName)
	if err != nil {
		return nil, err
	}
	cfg := profile.ConfigFor(item)

	bodies, usedStrategy, err := e.runWithFallback(item, cfg)
	if err != nil {
		return nil, err
	}

	chunks := make([]types.Chunk, 0, len(bodies))
	for i, b := range bodies {
		chunk := types.Chunk{
			ChunkID:      types.NewChunkID(item.ID, usedStrategy, i),
			SourceItemID: item.ID,
			Index:        i,
			Strategy:     usedStrategy,
			Content:      b.Content,
			TokenCount:   estimateTokens(b.Content),
			BlockType:    b.BlockType,
			Language:     b.Language,
			StartOffset:  b.StartOffset,
			EndOffset:    b.EndOffset,
			Metadata:     b.Metadata,
		}
		if chunk.Language == "" {
			chunk.Language = item.Language
		}
		if err := chunk.Validate(); err != nil {
			return nil, fmt.Errorf("chunk %d failed validation: %w", i, err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// runWithFallback runs cfg.Strategy, falling back to cfg.Fallback (the Text
// strategy when no fallback is set) if the primary strategy errors or the content it was
// asked to handle isn't recognizably in its domain (e.g. Html strategy
// given non-HTML content).
func (e *Engine) runWithFallback(item *types.SourceItem, cfg StrategyConfig) ([]chunkBody, types.ChunkingStrategy, error) {
	primary, ok := e.strategies[cfg.Strategy]
	if !ok {
		return nil, "", fmt.Errorf("unregistered chunking strategy: %s", cfg.Strategy)
	}

	bodies, err := primary.chunk(item, cfg)
	if err == nil {
		return bodies, cfg.Strategy, nil
	}

	fallback := cfg.Fallback
	if fallback == "" {
		fallback = types.StrategyText
	}
	logging.Warn("chunking strategy failed, using fallback",
		"source_item_id", item.ID, "strategy", string(cfg.Strategy), "fallback", string(fallback), "error", err.Error())

	fallbackImpl, ok := e.strategies[fallback]
	if !ok {
		return nil, "", fmt.Errorf("unregistered fallback strategy: %s", fallback)
	}
	bodies, err = fallbackImpl.chunk(item, cfg)
	if err != nil {
		return nil, "", fmt.Errorf("fallback strategy %s also failed: %w", fallback, err)
	}
	return bodies, fallback, nil
}
