// Package poller follows a submitted deposit through the backend until it
// settles, fails or runs out of time.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"deposit-widget/pkg/apperr"
	"deposit-widget/pkg/metrics"
	"deposit-widget/pkg/types"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval = 3 * time.Second
	DefaultTimeout  = 5 * time.Minute
)

// StatusFetcher is the backend status call
type StatusFetcher interface {
	GetStatus(ctx context.Context, intentID string) (*types.StatusResponse, error)
}

// StatusSink receives the UI status changes observed while polling
type StatusSink interface {
	SetStatus(status types.TxStatus, err *apperr.Error)
}

type Config struct {
	Fetcher  StatusFetcher
	Sink     StatusSink
	Interval time.Duration
	Timeout  time.Duration
	Clock    clock.Clock
	Metrics  *metrics.DepositMetrics
}

type State struct {
	IsPolling   bool
	SessionID   string
	IntentID    string
	TxHash      string
	APIStatus   types.BackendStatus
	Transaction *types.StatusResponse
	Err         *apperr.Error
}

// session is one polling run. Every field is guarded by Poller.mu.
type session struct {
	id       string
	intentID string
	start    time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	aborted  bool
	next     *clock.Timer
	deadline *clock.Timer
	log      zerolog.Logger
}

type sinkEvent struct {
	status types.TxStatus
	err    *apperr.Error
}

// Poller runs at most one polling session at a time. A session fetches
// immediately, then once per interval after each answer, and ends exactly
// once: on a terminal backend status, on the hard timeout or when stopped.
type Poller struct {
	cfg Config

	notifyMu sync.Mutex

	mu        sync.Mutex
	state     State
	session   *session
	listeners map[int]func(State)
	nextID    int

	log zerolog.Logger
}

func NewPoller(cfg Config) (*Poller, error) {
	if cfg.Fetcher == nil || cfg.Sink == nil {
		return nil, errors.New("poller requires a status fetcher and sink")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &Poller{
		cfg:       cfg,
		listeners: make(map[int]func(State)),
		log:       log.With().Str("component", "poller").Logger(),
	}, nil
}

// OnChange registers a listener invoked synchronously on every state change.
// Listeners must not call back into the poller.
func (p *Poller) OnChange(fn func(State)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// transition applies fn under the lock, then reports to the sink and the
// listeners in that order
func (p *Poller) transition(fn func() (bool, *sinkEvent)) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	changed, event := fn()
	state := p.state
	listeners := make([]func(State), 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	if event != nil {
		p.cfg.Sink.SetStatus(event.status, event.err)
	}
	if !changed {
		return
	}
	for _, l := range listeners {
		l(state)
	}
}

// StartPolling begins a session for intentID. Any running session is
// aborted first.
func (p *Poller) StartPolling(intentID, txHash string) {
	var sess *session
	p.transition(func() (bool, *sinkEvent) {
		p.abort("restarted")

		ctx, cancel := context.WithCancel(context.Background())
		id := uuid.NewString()
		sess = &session{
			id:       id,
			intentID: intentID,
			start:    p.cfg.Clock.Now(),
			ctx:      ctx,
			cancel:   cancel,
			log:      p.log.With().Str("session", id).Str("intentId", intentID).Logger(),
		}
		sess.deadline = p.cfg.Clock.AfterFunc(p.cfg.Timeout, func() {
			p.expire(sess)
		})
		p.session = sess
		p.state = State{IsPolling: true, SessionID: id, IntentID: intentID, TxHash: txHash}
		p.cfg.Metrics.StartSession(id)
		return true, nil
	})

	sess.log.Info().Str("txHash", txHash).Msg("polling started")
	go p.poll(sess)
}

func (p *Poller) poll(sess *session) {
	p.mu.Lock()
	if sess.aborted {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	resp, err := p.cfg.Fetcher.GetStatus(sess.ctx, sess.intentID)

	p.transition(func() (bool, *sinkEvent) {
		if sess.aborted {
			return false, nil
		}

		if err == nil && resp == nil {
			err = errors.New("empty status response")
		}
		if err != nil {
			if p.cfg.Clock.Since(sess.start) >= p.cfg.Timeout {
				sess.log.Warn().Err(err).Msg("status fetch failed after timeout")
				return p.finish(sess, types.TxError, apperr.Timeout(""))
			}
			sess.log.Warn().Err(err).Msg("status fetch failed, retrying")
			p.cfg.Metrics.TrackPoll(sess.ctx, "fetch_error")
			p.schedule(sess)
			return false, nil
		}

		p.cfg.Metrics.TrackPoll(sess.ctx, string(resp.Status))
		p.state.APIStatus = resp.Status
		p.state.Transaction = resp
		sess.log.Debug().Str("status", string(resp.Status)).Str("raw", resp.StatusRaw).Msg("status fetched")

		switch resp.Status {
		case types.BackendSuccess:
			return p.finish(sess, types.TxSuccess, nil)
		case types.BackendFailed:
			return p.finish(sess, types.TxError, apperr.New(apperr.KindTransactionFailed, errors.New(resp.StatusRaw)))
		case types.BackendBridging:
			p.schedule(sess)
			return true, &sinkEvent{status: types.TxBridging}
		default:
			p.schedule(sess)
			return true, nil
		}
	})
}

// schedule arms the single fetch timer of sess. It must be called with mu held.
func (p *Poller) schedule(sess *session) {
	sess.next = p.cfg.Clock.AfterFunc(p.cfg.Interval, func() {
		p.poll(sess)
	})
}

func (p *Poller) expire(sess *session) {
	p.transition(func() (bool, *sinkEvent) {
		if sess.aborted {
			return false, nil
		}
		sess.log.Warn().Dur("timeout", p.cfg.Timeout).Msg("polling timed out")
		return p.finish(sess, types.TxError, apperr.Timeout(""))
	})
}

// finish ends sess with a terminal status. It must be called with mu held.
func (p *Poller) finish(sess *session, status types.TxStatus, err *apperr.Error) (bool, *sinkEvent) {
	p.stopSession(sess)
	p.state.IsPolling = false
	p.state.Err = err

	outcome := string(status)
	if err != nil {
		outcome = string(err.Kind)
	}
	p.cfg.Metrics.EndSession(sess.id, outcome)
	sess.log.Info().Str("outcome", outcome).Msg("polling finished")

	return true, &sinkEvent{status: status, err: err}
}

func (p *Poller) stopSession(sess *session) {
	sess.aborted = true
	sess.cancel()
	if sess.next != nil {
		sess.next.Stop()
	}
	if sess.deadline != nil {
		sess.deadline.Stop()
	}
	if p.session == sess {
		p.session = nil
	}
}

// abort stops the running session without a terminal status. It must be
// called with mu held and reports whether a session was running.
func (p *Poller) abort(reason string) bool {
	sess := p.session
	if sess == nil || sess.aborted {
		return false
	}
	p.stopSession(sess)
	p.cfg.Metrics.EndSession(sess.id, reason)
	sess.log.Debug().Str("reason", reason).Msg("polling aborted")
	return true
}

// StopPolling aborts the running session. Calling it again, or after the
// session ended, has no effect.
func (p *Poller) StopPolling() {
	p.transition(func() (bool, *sinkEvent) {
		if !p.abort("stopped") {
			return false, nil
		}
		p.state.IsPolling = false
		return true, nil
	})
}

// ResetPolling aborts the running session and clears the state
func (p *Poller) ResetPolling() {
	p.transition(func() (bool, *sinkEvent) {
		aborted := p.abort("reset")
		changed := aborted || p.state != (State{})
		p.state = State{}
		return changed, nil
	})
}
