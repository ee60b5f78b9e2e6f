package tab

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dolphie-go/dolphie/internal/endpoint"
)

// Manager owns the tab-identifier -> Tab Runtime mapping, grounded on the
// teacher's internal/plugin.Manager (a registry of long-lived components
// keyed by id, with Load/Get/Shutdown lifecycle methods) narrowed to tabs
// instead of plugins.
type Manager struct {
	log *zap.Logger

	mu   sync.RWMutex
	tabs map[string]*Runtime
}

// NewManager builds an empty tab registry.
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{log: log, tabs: make(map[string]*Runtime)}
}

// Add constructs a Runtime for cfg, starts it, and registers it under
// cfg.ID. Returns an error without registering the tab if Start fails, so a
// failed connect-wave member never leaves a half-initialized entry behind.
func (m *Manager) Add(ctx context.Context, cfg Config) (*Runtime, error) {
	rt := New(cfg, m.log)
	if err := rt.Start(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.tabs[cfg.ID] = rt
	m.mu.Unlock()
	return rt, nil
}

// Get returns the Runtime registered under id, if any.
func (m *Manager) Get(id string) (*Runtime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.tabs[id]
	return rt, ok
}

// Remove disconnects and unregisters the tab under id. A no-op if id is not
// registered.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	rt, ok := m.tabs[id]
	delete(m.tabs, id)
	m.mu.Unlock()
	if ok {
		rt.Disconnect()
	}
}

// IDs returns every currently-registered tab identifier, in no particular
// order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.tabs))
	for id := range m.tabs {
		out = append(out, id)
	}
	return out
}

// Len reports the number of registered tabs.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tabs)
}

// Shutdown disconnects and unregisters every tab.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	tabs := m.tabs
	m.tabs = make(map[string]*Runtime)
	m.mu.Unlock()
	for _, rt := range tabs {
		rt.Disconnect()
	}
}

// ConnectWaveMember is one endpoint to connect as part of a hostgroup
// connect-wave, paired with the tab id it should be registered under.
type ConnectWaveMember struct {
	TabID    string
	Endpoint endpoint.Endpoint
}

// ConnectHostgroup connects every member of a hostgroup concurrently, a
// connect wave: a named ordered list of endpoints, connected to as a wave
// to open a tab per member, using golang.org/x/sync/errgroup to fan the
// wave out and join on the first failure, unlike the Replica Tracker's
// discovery fan-out (internal/replica.Tracker.Reconcile) which has no
// caller that needs to block on the whole set: a connect-wave's caller
// does need every member's outcome before declaring the wave finished.
// The hostgroup-connect-wave-in-progress guard corresponds to the
// in-flight window of this call.
func (m *Manager) ConnectHostgroup(ctx context.Context, members []ConnectWaveMember, cfgFactory func(endpoint.Endpoint) Config) ([]*Runtime, error) {
	results := make([]*Runtime, len(members))
	// A plain Group, not WithContext: its derived context is cancelled when
	// Wait returns, and each tab keeps the context it was added with.
	var g errgroup.Group
	for i, mem := range members {
		i, mem := i, mem
		g.Go(func() error {
			cfg := cfgFactory(mem.Endpoint)
			cfg.ID = mem.TabID
			cfg.Endpoint = mem.Endpoint
			rt, err := m.Add(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connect-wave member %s: %w", mem.Endpoint.Host, err)
			}
			results[i] = rt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i, rt := range results {
			if rt != nil {
				m.Remove(members[i].TabID)
			}
		}
		return nil, err
	}
	return results, nil
}
