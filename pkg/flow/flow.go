// Package flow composes the route builder, submitter and poller into the
// deposit navigation state machine and owns the shared status sink.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"deposit-widget/pkg/apperr"
	"deposit-widget/pkg/client"
	"deposit-widget/pkg/metrics"
	"deposit-widget/pkg/poller"
	"deposit-widget/pkg/route"
	"deposit-widget/pkg/submit"
	"deposit-widget/pkg/types"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrQuoteNotReady = errors.New("no quote for the current selection")
	ErrBusy          = errors.New("a deposit is already in progress")
)

type Step string

const (
	StepHome        Step = "home"
	StepSelectToken Step = "select-token"
	StepCryptoPay   Step = "crypto-pay"
	StepProcessing  Step = "processing"
	StepSuccess     Step = "success"
	StepError       Step = "error"
)

// Selection is the user's choice of source token, chain and amount
type Selection struct {
	Token   *types.Token
	Chain   types.ChainID
	Amount  string
	Address string
}

type State struct {
	Step      Step
	Selection Selection
	Quote     route.State
	TxStatus  types.TxStatus
	Result    *types.SubmissionResult
	Err       *apperr.Error
	// Recovery is where a retry takes the user after Err
	Recovery Step
}

type Config struct {
	Destination       types.Destination
	DestinationSymbol string

	Wallet  submit.WalletSource
	Backend client.Backend

	Debounce     time.Duration
	SlippageBps  int
	PollInterval time.Duration
	PollTimeout  time.Duration
	Clock        clock.Clock
	Metrics      *metrics.DepositMetrics
}

// Flow is one deposit widget instance
type Flow struct {
	cfg Config

	builder   *route.Builder
	submitter *submit.Submitter
	poller    *poller.Poller

	// updateMu orders selection changes into the builder
	updateMu sync.Mutex
	notifyMu sync.Mutex

	mu        sync.Mutex
	state     State
	history   []Step
	listeners map[int]func(State)
	nextID    int

	unsubscribe []func()
	closeOnce   sync.Once

	log zerolog.Logger
}

func New(cfg Config) (*Flow, error) {
	if cfg.Wallet == nil || cfg.Backend == nil {
		return nil, errors.New("flow requires a wallet source and backend")
	}
	if cfg.Destination.ChainID == 0 || cfg.Destination.Address == "" {
		return nil, errors.New("flow requires a destination chain and address")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	f := &Flow{
		cfg:       cfg,
		state:     State{Step: StepHome, TxStatus: types.TxIdle},
		listeners: make(map[int]func(State)),
		log:       log.With().Str("component", "deposit-flow").Logger(),
	}

	builder, err := route.NewBuilder(route.Config{
		Backend:     cfg.Backend,
		Debounce:    cfg.Debounce,
		SlippageBps: cfg.SlippageBps,
		Clock:       cfg.Clock,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	submitter, err := submit.NewSubmitter(submit.Config{
		Wallet:  cfg.Wallet,
		Backend: cfg.Backend,
		Sink:    f,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	p, err := poller.NewPoller(poller.Config{
		Fetcher:  cfg.Backend,
		Sink:     f,
		Interval: cfg.PollInterval,
		Timeout:  cfg.PollTimeout,
		Clock:    cfg.Clock,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	f.builder = builder
	f.submitter = submitter
	f.poller = p
	f.unsubscribe = append(f.unsubscribe, builder.OnChange(f.onQuote))

	return f, nil
}

// OnChange registers a listener invoked synchronously on every state change.
// Listeners must not call back into the flow.
func (f *Flow) OnChange(fn func(State)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
		})
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// History returns the back stack, oldest first
func (f *Flow) History() []Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Step(nil), f.history...)
}

// Poller exposes the polling state for presentation
func (f *Flow) Poller() poller.State {
	return f.poller.State()
}

func (f *Flow) transition(fn func() bool) {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	f.mu.Lock()
	changed := fn()
	state := f.state
	listeners := make([]func(State), 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range listeners {
		l(state)
	}
}

// navigate must be called with mu held
func (f *Flow) navigate(step Step) bool {
	if f.state.Step == step {
		return false
	}
	f.history = append(f.history, f.state.Step)
	f.state.Step = step
	return true
}

// Navigate moves to step, pushing the current step on the back stack
func (f *Flow) Navigate(step Step) {
	f.transition(func() bool {
		return f.navigate(step)
	})
}

// Back pops the most recent step that differs from the current one. On the
// first step it stays on home.
func (f *Flow) Back() {
	f.transition(func() bool {
		for len(f.history) > 0 {
			prev := f.history[len(f.history)-1]
			f.history = f.history[:len(f.history)-1]
			if prev != f.state.Step {
				f.state.Step = prev
				return true
			}
		}
		if f.state.Step == StepHome {
			return false
		}
		f.state.Step = StepHome
		return true
	})
}

// SelectToken sets the source token and its chain
func (f *Flow) SelectToken(token types.Token) {
	f.updateSelection(func(sel *Selection) {
		t := token
		sel.Token = &t
		if token.ChainID != 0 {
			sel.Chain = token.ChainID
		}
	})
}

func (f *Flow) SetChain(id types.ChainID) {
	f.updateSelection(func(sel *Selection) {
		sel.Chain = id
	})
}

func (f *Flow) SetAmount(amount string) {
	f.updateSelection(func(sel *Selection) {
		sel.Amount = amount
	})
}

// SetSourceAddress sets the connected wallet's address
func (f *Flow) SetSourceAddress(address string) {
	f.updateSelection(func(sel *Selection) {
		sel.Address = address
	})
}

// SyncWallet reads the active wallet's address into the selection
func (f *Flow) SyncWallet(ctx context.Context) error {
	w := f.cfg.Wallet.Wallet()
	if w == nil {
		f.SetSourceAddress("")
		return nil
	}
	address, err := w.Address(ctx)
	if err != nil {
		return fmt.Errorf("failed to read wallet address: %w", err)
	}
	f.SetSourceAddress(string(address))
	return nil
}

func (f *Flow) updateSelection(fn func(*Selection)) {
	f.updateMu.Lock()
	defer f.updateMu.Unlock()

	var in route.Inputs
	f.transition(func() bool {
		fn(&f.state.Selection)
		in = f.inputs()
		return true
	})
	f.builder.Update(in)
}

// inputs must be called with mu held
func (f *Flow) inputs() route.Inputs {
	sel := f.state.Selection
	in := route.Inputs{
		SourceChain:       sel.Chain,
		Amount:            sel.Amount,
		SourceAddress:     sel.Address,
		Destination:       f.cfg.Destination,
		DestinationSymbol: f.cfg.DestinationSymbol,
	}
	if sel.Token != nil {
		in.SourceToken = sel.Token.Address
		if sel.Token.IsNative() {
			in.SourceToken = types.NativeToken
		}
		in.SourceDecimals = sel.Token.Decimals
	}
	return in
}

func (f *Flow) onQuote(q route.State) {
	f.transition(func() bool {
		f.state.Quote = q
		if q.Err != nil {
			f.state.Err = q.Err
			f.state.Recovery = f.recovery(q.Err.Step)
		} else if f.state.TxStatus != types.TxError {
			f.state.Err = nil
			f.state.Recovery = ""
		}
		return true
	})
}

// SetStatus applies a transaction status. Transitions that would move the
// status backwards are ignored.
func (f *Flow) SetStatus(status types.TxStatus, err *apperr.Error) {
	f.transition(func() bool {
		current := f.state.TxStatus
		if !current.CanAdvance(status) {
			f.log.Debug().Str("from", string(current)).Str("to", string(status)).Msg("ignoring status regression")
			return false
		}
		f.state.TxStatus = status

		switch status {
		case types.TxConfirming:
			f.state.Err = nil
			f.state.Recovery = ""
		case types.TxSuccess:
			f.navigate(StepSuccess)
		case types.TxError:
			if err == nil {
				err = apperr.New(apperr.KindUnknown, nil)
			}
			f.state.Err = err
			f.state.Recovery = f.recovery(err.Step)
			f.navigate(StepError)
		}
		return true
	})
}

// recovery maps a category step to a flow step. It must be called with mu held.
func (f *Flow) recovery(step apperr.Step) Step {
	switch step {
	case apperr.StepConfirm, apperr.StepAmount:
		return StepCryptoPay
	case apperr.StepSelectToken:
		return StepSelectToken
	case apperr.StepExplorer:
		return StepHome
	default:
		if f.state.Step == StepError && len(f.history) > 0 {
			return f.history[len(f.history)-1]
		}
		return f.state.Step
	}
}

// Retry navigates to the recovery step of the current error
func (f *Flow) Retry() {
	f.transition(func() bool {
		if f.state.Err == nil || f.state.Recovery == "" {
			return false
		}
		return f.navigate(f.state.Recovery)
	})
}

// Confirm submits the current quote and starts polling on success. The
// wallet is prompted exactly once.
func (f *Flow) Confirm(ctx context.Context) (*types.SubmissionResult, error) {
	f.mu.Lock()
	status := f.state.TxStatus
	chain := f.state.Selection.Chain
	f.mu.Unlock()

	if status != types.TxIdle && status != types.TxError {
		return nil, ErrBusy
	}

	quote := f.builder.Quote()
	if quote == nil {
		return nil, ErrQuoteNotReady
	}

	result, err := f.submitter.Submit(ctx, quote, chain)
	if err != nil {
		// validation failures never reach the sink
		appErr := apperr.Classify(err)
		f.transition(func() bool {
			f.state.Err = appErr
			f.state.Recovery = f.recovery(appErr.Step)
			return true
		})
		return nil, err
	}

	f.transition(func() bool {
		f.state.Result = result
		f.navigate(StepProcessing)
		return true
	})
	f.poller.StartPolling(result.IntentID, result.TxHash)

	return result, nil
}

// Reset clears every derived state, aborts polling and returns to home
func (f *Flow) Reset() {
	f.updateMu.Lock()
	defer f.updateMu.Unlock()

	f.poller.ResetPolling()
	f.builder.Reset()
	f.submitter.Reset()

	f.transition(func() bool {
		address := f.state.Selection.Address
		f.state = State{
			Step:      StepHome,
			TxStatus:  types.TxIdle,
			Selection: Selection{Address: address},
		}
		f.history = nil
		return true
	})
}

// Close tears down the builder and poller. The flow is unusable afterwards.
func (f *Flow) Close() {
	f.closeOnce.Do(func() {
		for _, unsubscribe := range f.unsubscribe {
			unsubscribe()
		}
		f.builder.Close()
		f.poller.StopPolling()
		f.submitter.Close()
	})
}
