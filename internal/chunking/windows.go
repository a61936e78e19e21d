package chunking

import "strings"

// packUnits greedily groups units (sentences, paragraphs, turns...) into
// chunk bodies bounded by cfg.Max tokens, repeating the trailing cfg.Overlap
// tokens' worth of units at the start of the next chunk when the strategy
// allows it. A single unit exceeding Max is emitted alone rather than
// dropped or further split — callers needing hard splits (Text strategy)
// pre-split oversized units into word-level pieces before calling this.
func packUnits(units []string, cfg SizeConfig) []string {
	var chunks []string
	n := len(units)
	i := 0

	for i < n {
		var selected []string
		tokens := 0
		j := i
		for j < n {
			t := estimateTokens(units[j])
			if tokens > 0 && tokens+t > cfg.Max {
				break
			}
			selected = append(selected, units[j])
			tokens += t
			j++
		}
		if len(selected) == 0 {
			selected = append(selected, units[i])
			j = i + 1
		}

		chunks = append(chunks, strings.Join(selected, "\n\n"))

		if j >= n {
			break
		}

		if cfg.Overlap > 0 {
			overlapTokens := 0
			k := j - 1
			for k >= i {
				t := estimateTokens(units[k])
				if overlapTokens+t > cfg.Overlap {
					break
				}
				overlapTokens += t
				k--
			}
			next := k + 1
			if next <= i {
				next = j
			}
			i = next
		} else {
			i = j
		}
	}

	return chunks
}

// splitOversizedWords breaks a single unit into word-level pieces no larger
// than max tokens each, used when a unit (e.g. one very long sentence or
// code line) exceeds the strategy's Max on its own.
func splitOversizedWords(unit string, max int) []string {
	ws := words(unit)
	if len(ws) == 0 {
		return nil
	}
	var pieces []string
	for start := 0; start < len(ws); start += max {
		end := start + max
		if end > len(ws) {
			end = len(ws)
		}
		pieces = append(pieces, strings.Join(ws[start:end], " "))
	}
	return pieces
}
