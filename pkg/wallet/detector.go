package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultDetectTimeout bounds a detection pass
const DefaultDetectTimeout = 400 * time.Millisecond

// Category of a detected wallet
type Category string

const (
	CategoryInjected Category = "injected"
	CategoryRelay    Category = "relay"
	CategoryBridge   Category = "bridge"
)

// DetectedWallet is a candidate found during one detection pass
type DetectedWallet struct {
	ID       string
	Name     string
	LogoURL  string
	Category Category
	Provider Provider
}

// Responder answers a discovery broadcast by announcing zero or more wallets
type Responder func(announce func(DetectedWallet))

// Bus carries provider announcements between wallets and detectors
type Bus struct {
	mu         sync.Mutex
	responders []Responder
	subs       map[int]func(DetectedWallet)
	nextID     int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(DetectedWallet))}
}

// Install registers a wallet that answers discovery broadcasts
func (b *Bus) Install(r Responder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responders = append(b.responders, r)
}

// Subscribe registers an announcement listener. The returned function
// removes it and may be called any number of times.
func (b *Bus) Subscribe(fn func(DetectedWallet)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Listeners returns the number of active subscriptions
func (b *Bus) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// RequestProviders broadcasts a discovery request to every installed wallet.
// It returns once every wallet has answered.
func (b *Bus) RequestProviders() {
	b.mu.Lock()
	responders := append([]Responder(nil), b.responders...)
	b.mu.Unlock()

	for _, r := range responders {
		r(b.Announce)
	}
}

// Announce delivers w to every current subscriber
func (b *Bus) Announce(w DetectedWallet) {
	b.mu.Lock()
	subs := make([]func(DetectedWallet), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(w)
	}
}

// DetectorConfig configures a Detector
type DetectorConfig struct {
	// Legacy is offered when no wallet announces itself
	Legacy Provider
	// Relay appends a relay wallet option to every result
	Relay bool
	Clock clock.Clock
}

// Detector discovers wallets announced on a bus within a bounded window
type Detector struct {
	bus    *Bus
	legacy Provider
	relay  bool
	clock  clock.Clock
	log    zerolog.Logger
}

func NewDetector(bus *Bus, cfg DetectorConfig) *Detector {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Detector{
		bus:    bus,
		legacy: cfg.Legacy,
		relay:  cfg.Relay,
		clock:  clk,
		log:    log.With().Str("component", "wallet-detector").Logger(),
	}
}

// Detect collects announcements for up to timeout. An empty result is not an error.
func (d *Detector) Detect(ctx context.Context, timeout time.Duration) []DetectedWallet {
	if timeout <= 0 {
		timeout = DefaultDetectTimeout
	}

	var (
		mu     sync.Mutex
		closed bool
		seen   = make(map[string]bool)
		found  []DetectedWallet
	)
	unsubscribe := d.bus.Subscribe(func(w DetectedWallet) {
		mu.Lock()
		defer mu.Unlock()
		if closed || seen[w.ID] {
			return
		}
		seen[w.ID] = true
		found = append(found, w)
	})
	defer unsubscribe()

	timer := d.clock.Timer(timeout)
	defer timer.Stop()

	// a slow wallet must not hold the caller past the timeout
	go d.bus.RequestProviders()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	mu.Lock()
	closed = true
	result := found
	mu.Unlock()

	if len(result) == 0 && d.legacy != nil {
		result = append(result, DetectedWallet{
			ID:       "injected",
			Name:     "Browser Wallet",
			Category: CategoryInjected,
			Provider: d.legacy,
		})
	}
	if d.relay {
		result = append(result, DetectedWallet{
			ID:       "walletconnect",
			Name:     "WalletConnect",
			Category: CategoryRelay,
		})
	}

	d.log.Debug().Int("wallets", len(result)).Msg("wallet detection finished")
	return result
}
