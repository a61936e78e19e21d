package chunking

import (
	"regexp"

	"conhub-ingest/pkg/types"
)

// codeBoundaryPatterns matches common top-level declaration openers across
// languages the extractor doesn't have a real parser for. Each pattern
// anchors at line start; a match begins a new unit.
var codeBoundaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^(func|type|class|interface|struct)\s`),
	regexp.MustCompile(`(?m)^(def|async def)\s`),
	regexp.MustCompile(`(?m)^(public|private|protected|static)\s+\S+.*[({]`),
	regexp.MustCompile(`(?m)^(export\s+)?(function|class|const|let)\s`),
}

// codeStrategy splits on regex-detected declaration boundaries, used when
// astCodeStrategy has no parser for the item's language.
type codeStrategy struct{}

func (s *codeStrategy) chunk(item *types.SourceItem, cfg StrategyConfig) ([]chunkBody, error) {
	content := item.Content
	boundaries := []int{0}
	for _, pattern := range codeBoundaryPatterns {
		for _, loc := range pattern.FindAllStringIndex(content, -1) {
			boundaries = append(boundaries, loc[0])
		}
	}
	boundaries = sortUniqueInts(boundaries)

	var units []string
	for i, start := range boundaries {
		end := len(content)
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		unit := content[start:end]
		if trimmed := trimEmptyLines(unit); trimmed != "" {
			if cfg.Size.Max > 0 && estimateTokens(trimmed) > cfg.Size.Max {
				units = append(units, splitOversizedWords(trimmed, cfg.Size.Max)...)
			} else {
				units = append(units, trimmed)
			}
		}
	}
	if len(units) == 0 {
		return nil, nil
	}

	bodies := make([]chunkBody, 0, len(units))
	for _, part := range packUnits(units, cfg.Size) {
		bodies = append(bodies, chunkBody{Content: part, BlockType: types.BlockTypeCode, Language: item.Language})
	}
	return bodies, nil
}

func sortUniqueInts(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	var out []int
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func trimEmptyLines(s string) string {
	for len(s) > 0 && (s[0] == '\n' || s[0] == '\r' || s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}
