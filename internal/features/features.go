// Package features holds runtime toggles that gate optional behaviour of the
// aggregators and the API. Flags start from configuration and can be flipped
// through the admin API without a restart.
package features

import "sync"

// Flag names.
const (
	FeatureCacheEnabled      = "cache_enabled"
	FeatureEventHooksEnabled = "event_hooks_enabled"
	FeatureParallelRefresh   = "parallel_refresh"
	FeatureChainActivity     = "chain_activity"
)

type Flag struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// Defaults is the starting state of the built-in flags.
type Defaults struct {
	CacheEnabled    bool
	EventHooks      bool
	ParallelRefresh bool
	ChainActivity   bool
}

// Manager is a concurrency-safe flag set. A nil *Manager answers every
// Enabled query with the caller's default.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

func NewManager() *Manager {
	return &Manager{flags: make(map[string]Flag)}
}

// Register adds a flag, replacing any flag of the same name.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[name] = Flag{Name: name, Enabled: enabled, Description: description}
}

func (m *Manager) RegisterDefaults(d Defaults) {
	m.Register(FeatureCacheEnabled, d.CacheEnabled, "Serve fresh eligibility results from cache")
	m.Register(FeatureEventHooksEnabled, d.EventHooks, "Publish domain events to subscribers")
	m.Register(FeatureParallelRefresh, d.ParallelRefresh, "Refresh points programs concurrently")
	m.Register(FeatureChainActivity, d.ChainActivity, "Expose on-chain wallet activity lookups")
}

// IsEnabled reports false for unknown flags.
func (m *Manager) IsEnabled(name string) bool {
	return m.Enabled(name, false)
}

func (m *Manager) Enabled(name string, def bool) bool {
	if m == nil {
		return def
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, ok := m.flags[name]
	if !ok {
		return def
	}
	return flag.Enabled
}

// Set flips a registered flag and returns its new state. ok is false, and
// nothing changes, when name is not registered.
func (m *Manager) Set(name string, enabled bool) (flag Flag, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag, ok = m.flags[name]
	if !ok {
		return Flag{}, false
	}
	flag.Enabled = enabled
	m.flags[name] = flag
	return flag, true
}

// Lookup returns a copy of one flag.
func (m *Manager) Lookup(name string) (Flag, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	flag, ok := m.flags[name]
	return flag, ok
}

// Snapshot copies every flag, keyed by name.
func (m *Manager) Snapshot() map[string]Flag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Flag, len(m.flags))
	for name, flag := range m.flags {
		out[name] = flag
	}
	return out
}
