package route

import (
	"context"
	"errors"
	"sync"
	"time"

	"deposit-widget/pkg/apperr"
	"deposit-widget/pkg/client"
	"deposit-widget/pkg/metrics"
	"deposit-widget/pkg/types"
	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultDebounce      = 300 * time.Millisecond
	DefaultSlippageBps   = 100
	DefaultRetryInterval = time.Second
	DefaultMaxRetries    = 3
)

type Config struct {
	Backend     client.Backend
	Debounce    time.Duration
	SlippageBps int
	// RetryInterval is the first delay before a quote that failed on the
	// network is requested again. Later delays grow exponentially.
	RetryInterval time.Duration
	MaxRetries    int
	Clock         clock.Clock
	Metrics       *metrics.DepositMetrics
}

// State is the observable quote state. Quote is only valid for Key.
type State struct {
	IsLoading bool
	Quote     *types.RouteQuote
	Err       *apperr.Error
	Key       Key
}

// Builder prices routes for the latest inputs. At most one request is in
// flight, and only the request for the current key may change state.
type Builder struct {
	cfg Config

	notifyMu sync.Mutex

	mu        sync.Mutex
	state     State
	key       Key
	hasKey    bool
	gen       uint64
	timer     *clock.Timer
	retries   backoff.BackOff
	cancel    context.CancelFunc
	closed    bool
	listeners map[int]func(State)
	nextID    int

	log zerolog.Logger
}

func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.Backend == nil {
		return nil, errors.New("route builder requires a backend")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.SlippageBps <= 0 {
		cfg.SlippageBps = DefaultSlippageBps
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &Builder{
		cfg:       cfg,
		listeners: make(map[int]func(State)),
		log:       log.With().Str("component", "route-builder").Logger(),
	}, nil
}

// OnChange registers a listener invoked synchronously on every state change.
// Listeners must not call back into the builder.
func (b *Builder) OnChange(fn func(State)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Quote returns the current quote if it was built for the current inputs
func (b *Builder) Quote() *types.RouteQuote {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.IsLoading || !b.hasKey || b.state.Key != b.key {
		return nil
	}
	return b.state.Quote
}

func (b *Builder) transition(fn func() bool) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	changed := fn()
	state := b.state
	listeners := make([]func(State), 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range listeners {
		l(state)
	}
}

// Update recomputes the key for in. Invalid inputs clear the state at once.
// A changed key cancels the previous request and schedules a new one after
// the debounce window.
func (b *Builder) Update(in Inputs) {
	key, ok := NewKey(in)

	b.transition(func() bool {
		if b.closed {
			return false
		}

		if !ok {
			wasIdle := !b.hasKey && b.state == (State{})
			b.abort()
			b.hasKey = false
			b.state = State{}
			return !wasIdle
		}

		if b.hasKey && key == b.key {
			return false
		}

		b.abort()
		b.key = key
		b.hasKey = true
		b.retries = b.retryPolicy()
		gen := b.gen
		symbol := in.DestinationSymbol
		b.timer = b.cfg.Clock.AfterFunc(b.cfg.Debounce, func() {
			b.fetch(gen, key, symbol)
		})
		b.state = State{IsLoading: true, Key: key}
		return true
	})
}

// retryPolicy paces quote retries after network failures for one key
func (b *Builder) retryPolicy() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.cfg.RetryInterval
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Clock = b.cfg.Clock
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(b.cfg.MaxRetries))
}

// abort stops the pending debounce and cancels the in-flight request. It
// must be called with mu held.
func (b *Builder) abort() {
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

func (b *Builder) fetch(gen uint64, key Key, symbol string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b.mu.Lock()
	if b.closed || gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	b.cancel = cancel
	b.mu.Unlock()

	start := b.cfg.Clock.Now()
	resp, err := b.cfg.Backend.BuildRoute(ctx, key.Request(b.cfg.SlippageBps))
	latency := b.cfg.Clock.Since(start)
	if err == nil && resp == nil {
		err = errors.New("empty route response")
	}

	// a cancelled request never reports, even if it completed
	if ctx.Err() != nil {
		b.log.Debug().Str("amount", key.FromAmount).Msg("discarding cancelled quote")
		return
	}

	b.transition(func() bool {
		if b.closed || gen != b.gen {
			return false
		}
		b.cancel = nil

		if err != nil {
			b.cfg.Metrics.TrackQuote(ctx, latency, "error")
			appErr := apperr.Classify(err)
			if appErr.Kind == apperr.KindNetwork && b.retries != nil {
				if delay := b.retries.NextBackOff(); delay != backoff.Stop {
					b.log.Debug().Err(err).Dur("delay", delay).Msg("quote failed on network, retrying")
					b.timer = b.cfg.Clock.AfterFunc(delay, func() {
						b.fetch(gen, key, symbol)
					})
					return false
				}
			}
			b.log.Warn().Err(err).Str("kind", string(appErr.Kind)).Msg("quote failed")
			b.hasKey = false
			b.state = State{Err: appErr, Key: key}
			return true
		}

		b.cfg.Metrics.TrackQuote(ctx, latency, "success")
		b.state = State{Quote: newQuote(resp, symbol), Key: key}
		return true
	})
}

func newQuote(resp *client.RouteResponse, symbol string) *types.RouteQuote {
	est := resp.Route.Estimate
	return &types.RouteQuote{
		IntentID:         resp.IntentID,
		FeesUSD:          NetworkFee(est),
		EstimatedReceive: EstimatedReceive(est, symbol),
		RawRoute:         resp.Raw,
		TxRequest:        resp.Route.TransactionRequest,
	}
}

// Reset drops the current key and quote without closing the builder
func (b *Builder) Reset() {
	b.transition(func() bool {
		b.abort()
		b.hasKey = false
		changed := b.state != (State{})
		b.state = State{}
		return changed
	})
}

// Close cancels pending work. The builder ignores updates afterwards.
func (b *Builder) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.abort()
}
