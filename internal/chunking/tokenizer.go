package chunking

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var wordSplitRE = regexp.MustCompile(`\s+`)

// estimateTokens is a deterministic, whitespace-based token count. Content
// is first normalised to NFC so that visually identical but differently
// composed Unicode sequences (e.g. combining-character names pulled from
// ticket titles) count the same number of tokens on every run, preserving
// I1 (determinism).
func estimateTokens(content string) int {
	normalized := norm.NFC.String(content)
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return 0
	}
	return len(wordSplitRE.Split(normalized, -1))
}

var sentenceSplitRE = regexp.MustCompile(`(?s)([^.!?]*[.!?]+)\s*`)

// splitSentences breaks content into sentences using punctuation boundaries
// over NFC-normalised text. Any trailing fragment without terminal
// punctuation is kept as a final sentence.
func splitSentences(content string) []string {
	normalized := norm.NFC.String(content)
	matches := sentenceSplitRE.FindAllStringSubmatch(normalized, -1)

	var sentences []string
	consumed := 0
	for _, m := range matches {
		sentence := strings.TrimSpace(m[1])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		consumed += len(m[0])
	}

	if consumed < len(normalized) {
		remainder := strings.TrimSpace(normalized[consumed:])
		if remainder != "" {
			sentences = append(sentences, remainder)
		}
	}

	if len(sentences) == 0 && strings.TrimSpace(normalized) != "" {
		sentences = append(sentences, strings.TrimSpace(normalized))
	}

	return sentences
}

// words splits content on whitespace after NFC normalisation.
func words(content string) []string {
	normalized := strings.TrimSpace(norm.NFC.String(content))
	if normalized == "" {
		return nil
	}
	return wordSplitRE.Split(normalized, -1)
}
