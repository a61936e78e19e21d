package chunking

import "conhub-ingest/pkg/types"

// textStrategy packs sentence-aware units into chunks bounded by cfg.Max
// tokens, splitting any single sentence that alone exceeds Max at word
// boundaries. It never declines content, so it also serves as the default
// fallback for every other strategy.
type textStrategy struct{}

func (s *textStrategy) chunk(item *types.SourceItem, cfg StrategyConfig) ([]chunkBody, error) {
	sentences := splitSentences(item.Content)
	if len(sentences) == 0 {
		return nil, nil
	}

	var units []string
	for _, sentence := range sentences {
		if cfg.Size.Max > 0 && estimateTokens(sentence) > cfg.Size.Max {
			units = append(units, splitOversizedWords(sentence, cfg.Size.Max)...)
		} else {
			units = append(units, sentence)
		}
	}

	contents := packUnits(units, cfg.Size)
	bodies := make([]chunkBody, 0, len(contents))
	for _, content := range contents {
		bodies = append(bodies, chunkBody{Content: content, BlockType: types.BlockTypeText})
	}
	return bodies, nil
}
