package chunking

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"conhub-ingest/pkg/types"
)

// htmlLikeRE is a cheap pre-check: htmlStrategy declines (triggering the
// Text fallback) when content has no recognizable tag at all.
var htmlLikeRE = regexp.MustCompile(`(?i)<\s*[a-z][a-z0-9]*[\s/>]`)

// skippedTags are stripped entirely, including their text content.
var skippedTags = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Nav:    true,
	atom.Footer: true,
	atom.Aside:  true,
	atom.Head:   true,
}

// htmlStrategy strips boilerplate, converts structural tags to markdown
// analogues and re-enters the Markdown strategy on the result. Fenced code
// blocks are split out as their own chunks up front so they don't get
// folded into prose sections.
type htmlStrategy struct{}

func (s *htmlStrategy) chunk(item *types.SourceItem, cfg StrategyConfig) ([]chunkBody, error) {
	if !htmlLikeRE.MatchString(item.Content) {
		return nil, fmt.Errorf("content does not look like HTML")
	}

	markdown, codeBlocks, err := htmlToMarkdown(item.Content)
	if err != nil {
		return nil, fmt.Errorf("convert html to markdown: %w", err)
	}

	var bodies []chunkBody
	for _, code := range codeBlocks {
		if strings.TrimSpace(code.text) == "" {
			continue
		}
		bodies = append(bodies, chunkBody{
			Content:   code.text,
			BlockType: types.BlockTypeCode,
			Language:  code.lang,
			Metadata:  map[string]any{"block_type": "code"},
		})
	}

	mdItem := &types.SourceItem{
		ID:          item.ID,
		TenantID:    item.TenantID,
		SourceKind:  item.SourceKind,
		Content:     markdown,
		ContentType: "text/markdown",
		Language:    item.Language,
		ContentHash: item.ContentHash,
	}
	mdBodies, err := (&markdownStrategy{}).chunk(mdItem, cfg)
	if err != nil {
		return nil, fmt.Errorf("render markdown section from html: %w", err)
	}
	bodies = append(bodies, mdBodies...)

	return bodies, nil
}

type htmlCodeBlock struct {
	text string
	lang string
}

// htmlToMarkdown tokenizes content, dropping skipped tags and their
// subtrees, converting headings/paragraphs/list items to markdown
// analogues, and pulling <pre><code> blocks out as separate code blocks.
func htmlToMarkdown(content string) (string, []htmlCodeBlock, error) {
	tokenizer := html.NewTokenizer(strings.NewReader(content))

	var md strings.Builder
	var codeBlocks []htmlCodeBlock
	var skipDepth int
	var codeDepth int
	var codeBuf strings.Builder
	var codeLang string

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}

		tok := tokenizer.Token()

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if skippedTags[tok.DataAtom] {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if skipDepth > 0 {
				continue
			}
			switch tok.DataAtom {
			case atom.Pre:
				codeDepth++
				codeBuf.Reset()
				codeLang = attrValue(tok, "data-lang")
			case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				md.WriteString("\n" + headingPrefix(tok.DataAtom) + " ")
			case atom.P:
				md.WriteString("\n\n")
			case atom.Li:
				md.WriteString("\n- ")
			case atom.Br:
				md.WriteString("\n")
			}

		case html.EndTagToken:
			if skippedTags[tok.DataAtom] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if skipDepth > 0 {
				continue
			}
			if tok.DataAtom == atom.Pre {
				if codeDepth > 0 {
					codeDepth--
				}
				codeBlocks = append(codeBlocks, htmlCodeBlock{text: codeBuf.String(), lang: codeLang})
				codeBuf.Reset()
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			if codeDepth > 0 {
				codeBuf.WriteString(tok.Data)
			} else {
				text := strings.TrimSpace(tok.Data)
				if text != "" {
					md.WriteString(text + " ")
				}
			}
		}
	}

	if err := tokenizer.Err(); err != nil && err.Error() != "EOF" {
		return "", nil, err
	}

	return strings.TrimSpace(md.String()), codeBlocks, nil
}

func headingPrefix(a atom.Atom) string {
	switch a {
	case atom.H1:
		return "#"
	case atom.H2:
		return "##"
	case atom.H3:
		return "###"
	case atom.H4:
		return "####"
	case atom.H5:
		return "#####"
	default:
		return "######"
	}
}

func attrValue(tok html.Token, key string) string {
	for _, attr := range tok.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
