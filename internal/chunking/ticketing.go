package chunking

import "conhub-ingest/pkg/types"

// ticketingStrategy treats title, description and comments as distinct
// sections, each packed independently so a long comment thread doesn't
// dilute the title/description signal in the same chunk.
type ticketingStrategy struct{}

func (s *ticketingStrategy) chunk(item *types.SourceItem, cfg StrategyConfig) ([]chunkBody, error) {
	title, _ := item.Metadata["title"].(string)
	description, _ := item.Metadata["description"].(string)

	var comments []string
	if raw, ok := item.Metadata["comments"].([]any); ok {
		for _, c := range raw {
			if text, ok := c.(string); ok && text != "" {
				comments = append(comments, text)
			}
		}
	}

	if title == "" && description == "" && len(comments) == 0 {
		description = item.Content
	}

	var bodies []chunkBody

	if title != "" {
		bodies = append(bodies, chunkBody{
			Content:   title,
			BlockType: types.BlockTypeTicket,
			Metadata:  map[string]any{"section": "title"},
		})
	}

	if description != "" {
		for _, part := range packUnits(splitSentences(description), cfg.Size) {
			bodies = append(bodies, chunkBody{
				Content:   part,
				BlockType: types.BlockTypeTicket,
				Metadata:  map[string]any{"section": "description"},
			})
		}
	}

	for i, comment := range comments {
		for _, part := range packUnits(splitSentences(comment), cfg.Size) {
			bodies = append(bodies, chunkBody{
				Content:   part,
				BlockType: types.BlockTypeTicket,
				Metadata:  map[string]any{"section": "comment", "comment_index": i},
			})
		}
	}

	return bodies, nil
}
