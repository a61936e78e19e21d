package costpolicy

import (
	"fmt"
	"sync"

	"conhub-ingest/pkg/types"
)

// Manager holds the named built-in policies plus any YAML-loaded overlays,
// and tracks which one is active.
type Manager struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	active   string
}

// NewManager returns a Manager seeded with the four built-in policies,
// active on "balanced".
func NewManager() *Manager {
	return &Manager{
		policies: builtinPolicies(),
		active:   "balanced",
	}
}

// Active returns the currently active policy, falling back to "balanced"
// if the active name was somehow removed.
func (m *Manager) Active() *Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.policies[m.active]; ok {
		return p
	}
	return m.policies["balanced"]
}

// SetActive switches the active policy by name. Returns an error if no
// policy with that name is registered.
func (m *Manager) SetActive(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[name]; !ok {
		return fmt.Errorf("unknown cost policy %q", name)
	}
	m.active = name
	return nil
}

// Add registers or replaces a policy under its own Name.
func (m *Manager) Add(p *Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.Name] = p
}

// Get returns the named policy, or false if it isn't registered.
func (m *Manager) Get(name string) (*Policy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[name]
	return p, ok
}

// Names lists the registered policy names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.policies))
	for name := range m.policies {
		names = append(names, name)
	}
	return names
}

// Evaluate runs the active policy for the given chunk context.
func (m *Manager) Evaluate(sourceKind types.SourceKind, contentType, language string, tokenCount int) Targets {
	return m.Active().Evaluate(sourceKind, contentType, language, tokenCount)
}
