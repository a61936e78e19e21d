package chunking

import (
	"regexp"
	"strings"

	"conhub-ingest/pkg/types"
)

// turnStartRE recognises a new speaker turn: "Name: message" at line start.
var turnStartRE = regexp.MustCompile(`(?m)^([A-Za-z0-9_ .-]{1,40}):\s`)

// chatStrategy slides a window over speaker turns, never splitting a turn
// across chunks.
type chatStrategy struct{}

func (s *chatStrategy) chunk(item *types.SourceItem, cfg StrategyConfig) ([]chunkBody, error) {
	turns := splitTurns(item.Content)
	if len(turns) == 0 {
		return nil, nil
	}

	var expanded []string
	for _, turn := range turns {
		if cfg.Size.Max > 0 && estimateTokens(turn) > cfg.Size.Max {
			expanded = append(expanded, splitOversizedWords(turn, cfg.Size.Max)...)
		} else {
			expanded = append(expanded, turn)
		}
	}

	bodies := make([]chunkBody, 0)
	for _, content := range packUnits(expanded, cfg.Size) {
		bodies = append(bodies, chunkBody{Content: content, BlockType: types.BlockTypeChatTurn})
	}
	return bodies, nil
}

// splitTurns breaks content at "Speaker: " line starts. Content preceding
// the first recognized turn (if any) is kept as its own leading turn.
func splitTurns(content string) []string {
	matches := turnStartRE.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []string{strings.TrimSpace(content)}
	}

	var turns []string
	if matches[0][0] > 0 {
		if leading := strings.TrimSpace(content[:matches[0][0]]); leading != "" {
			turns = append(turns, leading)
		}
	}
	for i, m := range matches {
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		turn := strings.TrimSpace(content[m[0]:end])
		if turn != "" {
			turns = append(turns, turn)
		}
	}
	return turns
}
