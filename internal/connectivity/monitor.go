// Package connectivity watches network reachability and turns the
// offline→online transition into a sync trigger. Only the edge fires the
// trigger, never the level, so being online does not cause repeated passes.
package connectivity

import (
	"sync"

	"deskline/internal/events"

	"github.com/rs/zerolog"
)

// Provider delivers connectivity level signals. The callback receives the
// current state whenever the platform reports it; duplicate levels are
// allowed and filtered by the Monitor.
type Provider interface {
	Subscribe(callback func(online bool)) (unsubscribe func())
}

// Monitor tracks the previous connectivity level and fires the registered
// trigger exactly once per offline→online transition.
type Monitor struct {
	provider Provider
	bus      *events.Bus
	logger   *zerolog.Logger

	mu          sync.Mutex
	online      bool
	trigger     func()
	unsubscribe func()
}

// NewMonitor starts in the offline state; the first online signal counts as
// an edge, which also kicks off the backlog drain after a process restart.
func NewMonitor(provider Provider, bus *events.Bus, logger *zerolog.Logger) *Monitor {
	return &Monitor{provider: provider, bus: bus, logger: logger}
}

// OnOnline registers the sync trigger invoked on each offline→online edge.
// Must be called before Start.
func (m *Monitor) OnOnline(trigger func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trigger = trigger
}

// Start subscribes to the provider.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		return
	}
	m.unsubscribe = m.provider.Subscribe(m.handle)
}

// Stop detaches from the provider.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Online reports the last observed connectivity level.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) handle(online bool) {
	m.mu.Lock()
	previous := m.online
	m.online = online
	trigger := m.trigger
	m.mu.Unlock()

	switch {
	case online && !previous:
		m.logger.Info().Msg("Connectivity restored, triggering sync")
		_ = m.bus.PublishJSON(events.EventNetworkOnline, nil)
		if trigger != nil {
			trigger()
		}
	case !online && previous:
		m.logger.Info().Msg("Connectivity lost")
		_ = m.bus.PublishJSON(events.EventNetworkOffline, nil)
	}
}
