package chunking

import (
	"fmt"

	"conhub-ingest/pkg/types"
)

// SizeConfig bounds a strategy's chunk token counts. Min is advisory;
// splitting enforces Max. Overlap repeats tokens between adjacent chunks
// where the strategy supports it (text, code fallback, chat window).
type SizeConfig struct {
	Min     int
	Max     int
	Overlap int
}

// StrategyConfig is the full configuration for one chunking strategy
// invocation: which strategy to run, what to fall back to if it cannot
// handle the content, sizing, and structural preferences.
type StrategyConfig struct {
	Strategy          types.ChunkingStrategy
	Fallback          types.ChunkingStrategy
	Size              SizeConfig
	UseAST            bool
	PreserveStructure bool
	IncludeContext    bool
}

// Profile names a default StrategyConfig per source kind, with optional
// per-language overrides (keyed by SourceItem.Language, e.g. "go", "python").
type Profile struct {
	Name           string
	Defaults       map[types.SourceKind]StrategyConfig
	LanguageRules  map[string]StrategyConfig
	FallbackConfig StrategyConfig
}

// ConfigFor resolves the effective StrategyConfig for item, preferring a
// language-specific rule over the source-kind default, and falling back to
// FallbackConfig when neither matches.
func (p *Profile) ConfigFor(item *types.SourceItem) StrategyConfig {
	if item.Language != "" {
		if cfg, ok := p.LanguageRules[item.Language]; ok {
			return cfg
		}
	}
	if cfg, ok := p.Defaults[item.SourceKind]; ok {
		return cfg
	}
	return p.FallbackConfig
}

// ProfileManager holds the named profiles available at runtime: the three
// built-ins plus any profile added with Register.
type ProfileManager struct {
	profiles map[string]*Profile
}

// NewProfileManager returns a manager seeded with the built-in profiles.
func NewProfileManager() *ProfileManager {
	pm := &ProfileManager{profiles: make(map[string]*Profile)}
	for _, p := range builtinProfiles() {
		pm.profiles[p.Name] = p
	}
	return pm
}

// Get returns the named profile, or an error if it is not registered.
func (pm *ProfileManager) Get(name string) (*Profile, error) {
	p, ok := pm.profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown chunking profile: %s", name)
	}
	return p, nil
}

// Register adds or replaces a profile under its Name.
func (pm *ProfileManager) Register(p *Profile) {
	pm.profiles[p.Name] = p
}

func builtinProfiles() []*Profile {
	standardText := StrategyConfig{Strategy: types.StrategyText, Size: SizeConfig{Min: 100, Max: 512, Overlap: 50}}
	standardMarkdown := StrategyConfig{Strategy: types.StrategyMarkdown, Size: SizeConfig{Min: 100, Max: 512, Overlap: 50}, PreserveStructure: true}
	standardCode := StrategyConfig{Strategy: types.StrategyAstCode, Fallback: types.StrategyCode, Size: SizeConfig{Min: 50, Max: 400, Overlap: 20}, UseAST: true}
	standardChat := StrategyConfig{Strategy: types.StrategyChat, Size: SizeConfig{Min: 50, Max: 300, Overlap: 30}}
	standardTicket := StrategyConfig{Strategy: types.StrategyTicket, Size: SizeConfig{Min: 50, Max: 500, Overlap: 0}, PreserveStructure: true}

	standard := &Profile{
		Name: "default",
		Defaults: map[types.SourceKind]StrategyConfig{
			types.SourceKindCodeRepo:  standardCode,
			types.SourceKindDocument:  standardMarkdown,
			types.SourceKindWiki:      standardMarkdown,
			types.SourceKindChat:      standardChat,
			types.SourceKindTicketing: standardTicket,
			types.SourceKindEmail:     standardText,
			types.SourceKindOther:     standardText,
		},
		LanguageRules:  map[string]StrategyConfig{},
		FallbackConfig: standardText,
	}

	highQuality := &Profile{
		Name: "high_quality",
		Defaults: map[types.SourceKind]StrategyConfig{
			types.SourceKindCodeRepo:  {Strategy: types.StrategyAstCode, Fallback: types.StrategyCode, Size: SizeConfig{Min: 50, Max: 400, Overlap: 60}, UseAST: true, PreserveStructure: true},
			types.SourceKindDocument:  {Strategy: types.StrategyMarkdown, Size: SizeConfig{Min: 150, Max: 640, Overlap: 100}, PreserveStructure: true, IncludeContext: true},
			types.SourceKindWiki:      {Strategy: types.StrategyMarkdown, Size: SizeConfig{Min: 150, Max: 640, Overlap: 100}, PreserveStructure: true, IncludeContext: true},
			types.SourceKindChat:      {Strategy: types.StrategyChat, Size: SizeConfig{Min: 50, Max: 300, Overlap: 60}, IncludeContext: true},
			types.SourceKindTicketing: {Strategy: types.StrategyTicket, Size: SizeConfig{Min: 50, Max: 500, Overlap: 0}, PreserveStructure: true, IncludeContext: true},
			types.SourceKindEmail:     {Strategy: types.StrategyText, Size: SizeConfig{Min: 150, Max: 640, Overlap: 100}},
			types.SourceKindOther:     {Strategy: types.StrategyText, Size: SizeConfig{Min: 150, Max: 640, Overlap: 100}},
		},
		LanguageRules:  map[string]StrategyConfig{},
		FallbackConfig: StrategyConfig{Strategy: types.StrategyText, Size: SizeConfig{Min: 150, Max: 640, Overlap: 100}},
	}

	fast := &Profile{
		Name: "fast",
		Defaults: map[types.SourceKind]StrategyConfig{
			types.SourceKindCodeRepo:  {Strategy: types.StrategyCode, Size: SizeConfig{Min: 50, Max: 900, Overlap: 0}},
			types.SourceKindDocument:  {Strategy: types.StrategyText, Size: SizeConfig{Min: 50, Max: 1024, Overlap: 0}},
			types.SourceKindWiki:      {Strategy: types.StrategyText, Size: SizeConfig{Min: 50, Max: 1024, Overlap: 0}},
			types.SourceKindChat:      {Strategy: types.StrategyChat, Size: SizeConfig{Min: 30, Max: 600, Overlap: 0}},
			types.SourceKindTicketing: {Strategy: types.StrategyTicket, Size: SizeConfig{Min: 30, Max: 900, Overlap: 0}},
			types.SourceKindEmail:     {Strategy: types.StrategyText, Size: SizeConfig{Min: 50, Max: 1024, Overlap: 0}},
			types.SourceKindOther:     {Strategy: types.StrategyText, Size: SizeConfig{Min: 50, Max: 1024, Overlap: 0}},
		},
		LanguageRules:  map[string]StrategyConfig{},
		FallbackConfig: StrategyConfig{Strategy: types.StrategyText, Size: SizeConfig{Min: 50, Max: 1024, Overlap: 0}},
	}

	return []*Profile{standard, highQuality, fast}
}
