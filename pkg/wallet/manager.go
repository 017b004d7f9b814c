package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"deposit-widget/pkg/relay"
	"deposit-widget/pkg/types"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrSuperseded is returned to a connect attempt replaced by a newer one
var ErrSuperseded = errors.New("connect superseded by a newer attempt")

// State of the wallet connection
type State string

const (
	StateIdle       State = "idle"
	StateDetecting  State = "detecting"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateError      State = "error"
)

// Status is a snapshot delivered to listeners
type Status struct {
	State    State
	Selected *DetectedWallet
	Wallet   Capability
	Err      error
}

// RelayFactory constructs a fresh relay session for one connect attempt
type RelayFactory func() (RelaySession, error)

// ManagerConfig configures a Manager
type ManagerConfig struct {
	Detector      *Detector
	DetectTimeout time.Duration
	// Registry is the host application's connector registry, if any
	Registry     ConnectorRegistry
	RelayFactory RelayFactory
	// RelayChains are the CAIP-2 chains requested from relay wallets
	RelayChains []string
	// OnRelaySession is called with every new relay session before it connects
	OnRelaySession func(RelaySession)
}

// Manager owns the single active wallet capability and its connection state
type Manager struct {
	cfg ManagerConfig

	// notifyMu serialises transitions so listeners observe them in order
	notifyMu sync.Mutex

	mu        sync.Mutex
	state     State
	selected  *DetectedWallet
	wallet    Capability
	err       error
	gen       uint64
	cancel    context.CancelFunc
	listeners map[int]func(Status)
	nextID    int

	log zerolog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.DetectTimeout <= 0 {
		cfg.DetectTimeout = DefaultDetectTimeout
	}
	return &Manager{
		cfg:       cfg,
		state:     StateIdle,
		listeners: make(map[int]func(Status)),
		log:       log.With().Str("component", "wallet-manager").Logger(),
	}
}

// OnChange registers a listener invoked synchronously on every transition.
// Listeners must not start transitions themselves.
func (m *Manager) OnChange(fn func(Status)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

// Wallet returns the active capability, nil unless connected
func (m *Manager) Wallet() Capability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallet
}

func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// snapshot must be called with mu held
func (m *Manager) snapshot() Status {
	return Status{State: m.state, Selected: m.selected, Wallet: m.wallet, Err: m.err}
}

// transition applies fn under the lock and notifies listeners if it reports a change
func (m *Manager) transition(fn func() bool) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	changed := fn()
	status := m.snapshot()
	listeners := make([]func(Status), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	m.log.Debug().Str("state", string(status.State)).Msg("wallet state changed")
	for _, l := range listeners {
		l(status)
	}
}

// Detect runs a detection pass. The connection state is only moved to
// detecting when no connection exists or is being made.
func (m *Manager) Detect(ctx context.Context) ([]DetectedWallet, error) {
	if m.cfg.Detector == nil {
		return nil, ErrNoProvider
	}

	var prev State
	moved := false
	m.transition(func() bool {
		prev = m.state
		if prev != StateIdle && prev != StateError {
			return false
		}
		m.state = StateDetecting
		moved = true
		return true
	})

	wallets := m.cfg.Detector.Detect(ctx, m.cfg.DetectTimeout)

	if moved {
		m.transition(func() bool {
			if m.state != StateDetecting {
				return false
			}
			m.state = prev
			return true
		})
	}
	return wallets, nil
}

// ConnectDetected connects to w. A pending attempt is superseded. An
// established connection is replaced.
func (m *Manager) ConnectDetected(ctx context.Context, w DetectedWallet) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		gen uint64
		old Capability
	)
	m.transition(func() bool {
		if m.cancel != nil {
			m.cancel()
		}
		m.gen++
		gen = m.gen
		m.cancel = cancel

		old = m.wallet
		m.wallet = nil
		selected := w
		m.selected = &selected
		m.err = nil
		m.state = StateConnecting
		return true
	})

	if old != nil {
		if err := old.Disconnect(ctx); err != nil {
			m.log.Warn().Err(err).Msg("failed to disconnect replaced wallet")
		}
	}

	capability, err := m.resolve(ctx, w)

	superseded := false
	m.transition(func() bool {
		if gen != m.gen {
			superseded = true
			return false
		}
		m.cancel = nil
		if err != nil {
			m.state = StateError
			m.err = err
			return true
		}
		m.state = StateConnected
		m.wallet = capability
		return true
	})

	if superseded {
		if capability != nil {
			_ = capability.Disconnect(context.Background())
		}
		return ErrSuperseded
	}
	if err != nil {
		m.log.Warn().Err(err).Str("wallet", w.Name).Msg("wallet connection failed")
		return err
	}

	m.log.Info().Str("wallet", w.Name).Str("kind", string(capability.Kind())).Msg("wallet connected")
	return nil
}

// resolve runs exactly one connection path for w
func (m *Manager) resolve(ctx context.Context, w DetectedWallet) (Capability, error) {
	if m.cfg.Registry != nil {
		if c := MatchConnector(m.cfg.Registry.Connectors(), w); c != nil {
			if err := c.Connect(ctx); err != nil {
				return nil, err
			}
			return NewHostBridge(c), nil
		}
	}

	if w.Category == CategoryRelay {
		return m.connectRelay(ctx)
	}

	return NewDirectProvider(ctx, w.Provider)
}

func (m *Manager) connectRelay(ctx context.Context) (Capability, error) {
	if m.cfg.RelayFactory == nil {
		return nil, fmt.Errorf("%w: relay not configured", ErrNoProvider)
	}
	required, err := relay.BuildNamespaces(m.cfg.RelayChains)
	if err != nil {
		return nil, err
	}

	session, err := m.cfg.RelayFactory()
	if err != nil {
		return nil, err
	}
	if m.cfg.OnRelaySession != nil {
		m.cfg.OnRelaySession(session)
	}

	accounts, err := session.Connect(ctx, required)
	if err != nil {
		return nil, err
	}

	capability, err := NewRelaySigned(session, accounts)
	if err != nil {
		_ = session.Disconnect(ctx)
		return nil, err
	}
	return capability, nil
}

// Disconnect ends the active connection or pending attempt and returns to idle
func (m *Manager) Disconnect(ctx context.Context) error {
	var old Capability
	m.transition(func() bool {
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.gen++
		old = m.wallet
		changed := m.state != StateIdle
		m.state = StateIdle
		m.wallet = nil
		m.selected = nil
		m.err = nil
		return changed
	})

	if old == nil {
		return nil
	}
	return old.Disconnect(ctx)
}

// SwitchChain asks the active wallet to move to id
func (m *Manager) SwitchChain(ctx context.Context, id types.ChainID) error {
	w := m.Wallet()
	if w == nil {
		return ErrNotConnected
	}
	return w.SwitchChain(ctx, id)
}
