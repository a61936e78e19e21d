package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conhub-ingest/pkg/types"
)

func newEngine() *Engine {
	return NewEngine(NewProfileManager())
}

func TestEngine_Chunk_Text(t *testing.T) {
	e := newEngine()
	item := &types.SourceItem{
		ID:          "src-1",
		SourceKind:  types.SourceKindDocument,
		Content:     "This is the first sentence. This is the second sentence. And a third one here.",
		ContentType: "text/plain",
	}

	chunks, err := e.Chunk(item, "fast")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, types.StrategyText, c.Strategy)
		assert.Equal(t, types.BlockTypeText, c.BlockType)
	}
}

func TestEngine_Chunk_Determinism(t *testing.T) {
	e := newEngine()
	item := &types.SourceItem{
		ID:          "src-det",
		SourceKind:  types.SourceKindDocument,
		Content:     "Sentence one. Sentence two. Sentence three. Sentence four.",
		ContentType: "text/plain",
	}

	first, err := e.Chunk(item, "default")
	require.NoError(t, err)
	second, err := e.Chunk(item, "default")
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
	}
}

func TestEngine_Chunk_Markdown(t *testing.T) {
	e := newEngine()
	item := &types.SourceItem{
		ID:         "src-md",
		SourceKind: types.SourceKindDocument,
		Content: "# Title\n\nIntro paragraph.\n\n## Section A\n\nSection A body text.\n\n## Section B\n\nSection B body text.",
		ContentType: "text/markdown",
	}

	chunks, err := e.Chunk(item, "default")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, types.StrategyMarkdown, c.Strategy)
		assert.Equal(t, types.BlockTypeHeadingSection, c.BlockType)
	}
}

func TestEngine_Chunk_Chat(t *testing.T) {
	e := newEngine()
	item := &types.SourceItem{
		ID:         "src-chat",
		SourceKind: types.SourceKindChat,
		Content:    "Alice: hello there\nBob: hi Alice, how are you\nAlice: doing well, thanks",
		ContentType: "text/plain",
	}

	chunks, err := e.Chunk(item, "default")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, types.BlockTypeChatTurn, c.BlockType)
	}
}

func TestEngine_Chunk_Ticketing(t *testing.T) {
	e := newEngine()
	item := &types.SourceItem{
		ID:         "src-ticket",
		SourceKind: types.SourceKindTicketing,
		Content:    "fallback content",
		ContentType: "text/plain",
		Metadata: map[string]any{
			"title":       "Login button unresponsive",
			"description": "Clicking login does nothing on Safari.",
			"comments":    []any{"Confirmed on Safari 17.", "Workaround: use Chrome."},
		},
	}

	chunks, err := e.Chunk(item, "default")
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	assert.Equal(t, "title", chunks[0].Metadata["section"])
	assert.Equal(t, "description", chunks[1].Metadata["section"])
	assert.Equal(t, "comment", chunks[2].Metadata["section"])
}

func TestEngine_Chunk_Code_RegexFallback(t *testing.T) {
	e := newEngine()
	item := &types.SourceItem{
		ID:         "src-code",
		SourceKind: types.SourceKindCodeRepo,
		Language:   "python",
		Content:    "def foo():\n    return 1\n\ndef bar():\n    return 2\n",
		ContentType: "text/x-python",
	}

	chunks, err := e.Chunk(item, "default")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, types.StrategyCode, c.Strategy)
	}
}

func TestEngine_Chunk_AstCode_Go(t *testing.T) {
	e := newEngine()
	item := &types.SourceItem{
		ID:         "src-go",
		SourceKind: types.SourceKindCodeRepo,
		Language:   "go",
		Content:    "package main\n\nfunc Foo() int {\n\treturn 1\n}\n\nfunc Bar() int {\n\treturn 2\n}\n",
		ContentType: "text/x-go",
	}

	chunks, err := e.Chunk(item, "default")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, types.StrategyAstCode, c.Strategy)
	}
}

func TestEngine_Chunk_HTML(t *testing.T) {
	e := newEngine()
	item := &types.SourceItem{
		ID:         "src-html",
		SourceKind: types.SourceKindWiki,
		Content: "<html><head><style>body{}</style></head><body><nav>skip me</nav>" +
			"<h1>Heading</h1><p>Paragraph text.</p><pre><code>fmt.Println(\"hi\")</code></pre></body></html>",
		ContentType: "text/html",
	}

	chunks, err := e.Chunk(item, "default")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var sawCode bool
	for _, c := range chunks {
		if c.BlockType == types.BlockTypeCode {
			sawCode = true
			assert.Contains(t, c.Content, "fmt.Println")
		}
		assert.NotContains(t, c.Content, "skip me")
	}
	assert.True(t, sawCode)
}

func TestEngine_Chunk_HTML_FallsBackToText(t *testing.T) {
	manager := NewProfileManager()
	profile, err := manager.Get("default")
	require.NoError(t, err)
	cfg := profile.Defaults[types.SourceKindWiki]
	cfg.Strategy = types.StrategyHTML
	cfg.Fallback = types.StrategyText
	profile.Defaults[types.SourceKindWiki] = cfg

	e := NewEngine(manager)
	item := &types.SourceItem{
		ID:          "src-not-html",
		SourceKind:  types.SourceKindWiki,
		Content:     "Just plain prose with no markup at all, across several sentences for padding.",
		ContentType: "text/html",
	}

	chunks, err := e.Chunk(item, "default")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, types.StrategyText, chunks[0].Strategy)
}

func TestProfile_ConfigFor_LanguageOverride(t *testing.T) {
	p, err := NewProfileManager().Get("default")
	require.NoError(t, err)
	p.LanguageRules["rust"] = StrategyConfig{Strategy: types.StrategyCode, Size: SizeConfig{Min: 1, Max: 200}}

	item := &types.SourceItem{SourceKind: types.SourceKindCodeRepo, Language: "rust"}
	cfg := p.ConfigFor(item)
	assert.Equal(t, types.StrategyCode, cfg.Strategy)
}
