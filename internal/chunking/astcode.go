package chunking

import (
	"fmt"
	"go/parser"
	"go/token"
	"strings"

	"conhub-ingest/pkg/types"
)

// astCodeStrategy splits source on top-level declaration boundaries using a
// real parser when one is available for the item's language. Go is the only
// language wired to a parser today (go/parser, stdlib); every other
// language returns an error so the engine falls back to the regex-based
// codeStrategy per cfg.Fallback.
type astCodeStrategy struct{}

func (s *astCodeStrategy) chunk(item *types.SourceItem, cfg StrategyConfig) ([]chunkBody, error) {
	if item.Language != "go" {
		return nil, fmt.Errorf("ast chunking not available for language %q", item.Language)
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, item.ID, item.Content, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse go source: %w", err)
	}

	source := []byte(item.Content)
	var units []string
	for _, decl := range file.Decls {
		start := fset.Position(decl.Pos()).Offset
		end := fset.Position(decl.End()).Offset
		if start < 0 || end > len(source) || start >= end {
			continue
		}
		text := strings.TrimSpace(string(source[start:end]))
		if text != "" {
			units = append(units, text)
		}
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no top-level declarations found")
	}

	var expanded []string
	for _, unit := range units {
		if cfg.Size.Max > 0 && estimateTokens(unit) > cfg.Size.Max {
			expanded = append(expanded, splitOversizedWords(unit, cfg.Size.Max)...)
		} else {
			expanded = append(expanded, unit)
		}
	}

	bodies := make([]chunkBody, 0, len(expanded))
	for _, content := range packUnits(expanded, cfg.Size) {
		bodies = append(bodies, chunkBody{Content: content, BlockType: types.BlockTypeCode, Language: item.Language})
	}
	return bodies, nil
}
