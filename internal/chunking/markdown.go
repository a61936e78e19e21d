package chunking

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"conhub-ingest/pkg/types"
)

// markdownStrategy walks the document's heading tree and emits one chunk
// per section (a heading plus everything until the next heading of any
// level). A section exceeding cfg.Size.Max is split further at
// paragraph boundaries, with the heading path prepended to each sub-chunk
// so the embedding still carries section context.
type markdownStrategy struct{}

type mdSection struct {
	headingPath string
	level       int
	paragraphs  []string
}

func (s *markdownStrategy) chunk(item *types.SourceItem, cfg StrategyConfig) ([]chunkBody, error) {
	source := []byte(item.Content)
	md := goldmark.New()
	doc := md.Parser().Parse(gmtext.NewReader(source))

	sections := walkSections(doc, source)
	if len(sections) == 0 {
		return nil, nil
	}

	var bodies []chunkBody
	for _, sec := range sections {
		fullText := strings.Join(sec.paragraphs, "\n\n")
		if fullText == "" {
			continue
		}

		prefix := ""
		if sec.headingPath != "" {
			prefix = sec.headingPath + "\n\n"
		}

		if estimateTokens(fullText) <= cfg.Size.Max || cfg.Size.Max <= 0 {
			bodies = append(bodies, chunkBody{
				Content:   prefix + fullText,
				BlockType: types.BlockTypeHeadingSection,
				Metadata:  map[string]any{"heading_path": sec.headingPath},
			})
			continue
		}

		for _, part := range packUnits(sec.paragraphs, cfg.Size) {
			bodies = append(bodies, chunkBody{
				Content:   prefix + part,
				BlockType: types.BlockTypeHeadingSection,
				Metadata:  map[string]any{"heading_path": sec.headingPath},
			})
		}
	}

	return bodies, nil
}

// walkSections groups the document's top-level block flow into sections
// keyed by the most recent heading, concatenating each block's leaf text
// into section paragraphs in document order.
func walkSections(doc ast.Node, source []byte) []mdSection {
	var sections []mdSection
	var headingStack []string
	current := mdSection{}

	flush := func() {
		if len(current.paragraphs) > 0 || current.headingPath != "" {
			sections = append(sections, current)
		}
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if heading, ok := n.(*ast.Heading); ok {
			flush()
			headingText := nodeText(heading, source)
			headingStack = truncateStack(headingStack, heading.Level)
			headingStack = append(headingStack, headingText)
			current = mdSection{headingPath: strings.Join(headingStack, " > "), level: heading.Level}
			continue
		}

		text := nodeText(n, source)
		if strings.TrimSpace(text) != "" {
			current.paragraphs = append(current.paragraphs, text)
		}
	}
	flush()

	return sections
}

func truncateStack(stack []string, level int) []string {
	if level-1 > len(stack) {
		return stack
	}
	return stack[:level-1]
}

// nodeText concatenates the raw source text of every leaf node under n, in
// document order, reconstructing a close-enough plain-text rendering of
// that subtree for token counting and embedding.
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		lineser, ok := child.(interface{ Lines() *gmtext.Segments })
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := lineser.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
