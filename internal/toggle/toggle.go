package toggle

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

type State int

const (
	Detached State = iota
	Attached
)

func (s State) String() string {
	switch s {
	case Attached:
		return "attached"
	default:
		return "detached"
	}
}

// Settings is the part of the configuration that drives the interceptor.
type Settings struct {
	Enabled bool `json:"enabled"`
}

// DefaultSettings applies when no configuration has been stored yet.
func DefaultSettings() Settings {
	return Settings{Enabled: true}
}

// Interceptor is something that can start and stop rewriting responses.
type Interceptor interface {
	Attach()
	Detach()
}

// Machine moves interceptors between Detached and Attached in response to
// configuration events. Events are applied one at a time.
type Machine struct {
	mu        sync.Mutex
	state     State
	targets   []Interceptor
	observers []func(from, to State)
	log       zerolog.Logger
}

func NewMachine(logger zerolog.Logger, targets ...Interceptor) *Machine {
	return &Machine{
		targets: targets,
		log:     logger.With().Str("component", "toggle").Logger(),
	}
}

// OnTransition registers fn to run after every state change.
func (m *Machine) OnTransition(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Handle applies a configuration event and returns the resulting state.
func (m *Machine) Handle(s Settings) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	switch {
	case s.Enabled && from == Detached:
		for _, t := range m.targets {
			t.Attach()
		}
		m.state = Attached
	case !s.Enabled && from == Attached:
		for _, t := range m.targets {
			t.Detach()
		}
		m.state = Detached
	default:
		return from
	}

	m.log.Info().Stringer("from", from).Stringer("to", m.state).Msg("interceptor state changed")
	for _, fn := range m.observers {
		fn(from, m.state)
	}
	return m.state
}

// Source supplies the initial settings and pushes later changes.
type Source interface {
	Load(ctx context.Context) (Settings, error)
	Subscribe(ctx context.Context) <-chan Settings
}

// Run loads the current settings, applies them, then applies every change
// until ctx is done or the source closes its channel.
func Run(ctx context.Context, src Source, m *Machine) error {
	changes := src.Subscribe(ctx)

	initial, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	m.Handle(initial)

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-changes:
			if !ok {
				return nil
			}
			m.Handle(s)
		}
	}
}
