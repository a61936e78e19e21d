// Package entities surfaces first-class references from chunk content
// (code symbols, API endpoints, file paths, ticket keys, PR references),
// resolves them against existing entities, and merges cross-source
// identities into canonical entities.
package entities

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"conhub-ingest/pkg/types"
)

// ExtractedEntity is a single surface-level match pulled out of a chunk,
// not yet reconciled against anything already stored.
type ExtractedEntity struct {
	Type           types.EntityType
	CanonicalName  string
	NormalizedName string
	Confidence     float64
	ContextSnippet string
	StartPosition  int
	EndPosition    int
	Relation       types.RelationType
	Metadata       map[string]any
}

var (
	// codeSymbolRE matches the same declaration openers the code chunking
	// strategy splits on, but captures the symbol name instead of just the
	// boundary.
	codeSymbolRE = regexp.MustCompile(`(?m)^(?:export\s+)?(?:func|type|class|interface|struct|def|async def|function|const|let)\s+([A-Za-z_][A-Za-z0-9_]*)`)

	// apiEndpointRE matches an HTTP verb followed by a path.
	apiEndpointRE = regexp.MustCompile(`\b(GET|POST|PUT|PATCH|DELETE|HEAD|OPTIONS)\s+(/[A-Za-z0-9_\-/:{}.]*)`)

	// filePathRE matches paths with at least one slash-separated directory
	// and a recognizable extension; a leading slash is not required.
	filePathRE = regexp.MustCompile(`\b([A-Za-z0-9_.\-]+(?:/[A-Za-z0-9_.\-]+)+\.[A-Za-z0-9]{1,8})\b`)

	// ticketKeyRE matches issue-tracker keys like ABC-123.
	ticketKeyRE = regexp.MustCompile(`\b([A-Z][A-Z0-9]{1,9}-\d+)\b`)

	// prReferenceRE matches pull/merge-request references: #123, PR 123, MR 123.
	prReferenceRE = regexp.MustCompile(`\b(?:PR|MR)\s*#?(\d+)\b|#(\d+)\b`)
)

// Extract runs every regex family over a chunk's content and returns the
// surfaced entities, each carrying its own match span for ChunkEntityEdge's
// context_snippet/start_position/end_position.
func Extract(chunk *types.Chunk) []ExtractedEntity {
	content := chunk.Content
	var found []ExtractedEntity

	for _, m := range codeSymbolRE.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		found = append(found, newExtracted(types.EntityTypeCodeSymbol, name, content, m[0], m[1], types.RelationModifies, map[string]any{"language": chunk.Language}))
	}
	for _, m := range apiEndpointRE.FindAllStringSubmatchIndex(content, -1) {
		verb := content[m[2]:m[3]]
		path := content[m[4]:m[5]]
		name := verb + " " + path
		found = append(found, newExtracted(types.EntityTypeAPIEndpoint, name, content, m[0], m[1], types.RelationReferences, map[string]any{"http_method": verb}))
	}
	for _, m := range filePathRE.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		found = append(found, newExtracted(types.EntityTypeFile, name, content, m[0], m[1], types.RelationReferences, nil))
	}
	for _, m := range ticketKeyRE.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		found = append(found, newExtracted(types.EntityTypeTicket, name, content, m[0], m[1], types.RelationMentions, nil))
	}
	for _, m := range prReferenceRE.FindAllStringSubmatchIndex(content, -1) {
		num := submatchOrEmpty(content, m, 2)
		if num == "" {
			num = submatchOrEmpty(content, m, 4)
		}
		found = append(found, newExtracted(types.EntityTypePullRequest, "#"+num, content, m[0], m[1], types.RelationMentions, nil))
	}

	return found
}

func submatchOrEmpty(content string, m []int, idx int) string {
	if m[idx] < 0 || m[idx+1] < 0 {
		return ""
	}
	return content[m[idx]:m[idx+1]]
}

func newExtracted(entityType types.EntityType, name, content string, start, end int, relation types.RelationType, metadata map[string]any) ExtractedEntity {
	return ExtractedEntity{
		Type:           entityType,
		CanonicalName:  name,
		NormalizedName: normalizeName(name),
		Confidence:     0.8,
		ContextSnippet: contextSnippet(content, start, end),
		StartPosition:  start,
		EndPosition:    end,
		Relation:       relation,
		Metadata:       metadata,
	}
}

// contextSnippet returns up to 40 characters of surrounding content on each
// side of the match, trimmed to rune boundaries.
func contextSnippet(content string, start, end int) string {
	const radius = 40
	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	for lo > 0 && !utf8.RuneStart(content[lo]) {
		lo--
	}
	hi := end + radius
	if hi > len(content) {
		hi = len(content)
	}
	for hi < len(content) && !utf8.RuneStart(content[hi]) {
		hi++
	}
	return strings.TrimSpace(content[lo:hi])
}

// normalizeName casefolds a name for stable cross-entity comparison. Unlike
// the chunker's Unicode-normalized tokenization, entity names are short
// identifiers where a simple lowercasing is sufficient.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// String implements fmt.Stringer for debug logging.
func (e ExtractedEntity) String() string {
	return fmt.Sprintf("%s:%s", e.Type, e.NormalizedName)
}
