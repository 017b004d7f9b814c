// Package relay implements a relay-brokered wallet session. The dapp side
// publishes a pairing uri, waits for a remote wallet to approve the proposed
// namespaces and then forwards signing requests over the shared topic.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrConnectionFailed covers rejection, proposal timeout and malformed approvals
	ErrConnectionFailed = errors.New("connection failed")
	ErrSessionUsed      = errors.New("relay session already used")
	ErrNotConnected     = errors.New("relay session not connected")
	ErrProjectID        = errors.New("relay project id is required")
)

const (
	DefaultProposalTimeout = 5 * time.Minute
	DefaultRequestTimeout  = 5 * time.Minute
)

// DialFunc opens the transport when the session starts connecting
type DialFunc func(ctx context.Context) (Transport, error)

// Config for a relay session
type Config struct {
	ProjectID       string
	Metadata        Metadata
	ProposalTimeout time.Duration
	RequestTimeout  time.Duration
	Clock           clock.Clock
}

// Session is a single-use pending or established relay session
type Session struct {
	cfg  Config
	dial DialFunc

	mu        sync.Mutex
	used      bool
	topic     string
	key       []byte
	transport Transport
	required  Namespaces
	accounts  []Account
	connected bool
	pending   map[string]chan *Envelope
	proposal  chan *Envelope

	uri      string
	uriOnce  sync.Once
	uriReady chan struct{}

	cancelRead context.CancelFunc
	log        zerolog.Logger
}

// NewSession validates the configuration and returns an uninitialised session
func NewSession(cfg Config, dial DialFunc) (*Session, error) {
	if cfg.ProjectID == "" {
		return nil, ErrProjectID
	}
	if cfg.ProposalTimeout <= 0 {
		cfg.ProposalTimeout = DefaultProposalTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	cfg.Metadata.ProjectID = cfg.ProjectID

	return &Session{
		cfg:      cfg,
		dial:     dial,
		pending:  make(map[string]chan *Envelope),
		uriReady: make(chan struct{}),
		log:      log.With().Str("component", "relay-session").Logger(),
	}, nil
}

// Init creates the pairing key and topic. It is idempotent.
func (s *Session) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.init()
}

func (s *Session) init() error {
	if s.key != nil {
		return nil
	}
	key, err := NewSymKey()
	if err != nil {
		return err
	}
	s.key = key
	s.topic = TopicFromKey(key)
	return nil
}

// URI returns the pairing uri once published, or an empty string
func (s *Session) URI() string {
	select {
	case <-s.uriReady:
		return s.uri
	default:
		return ""
	}
}

// WaitForURI blocks until the pairing uri is first available
func (s *Session) WaitForURI(ctx context.Context) (string, error) {
	select {
	case <-s.uriReady:
		return s.uri, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) publishURI(uri string) {
	s.uriOnce.Do(func() {
		s.uri = uri
		close(s.uriReady)
	})
}

// Connect proposes the namespaces and waits for the remote wallet's approval.
// It returns the approved CAIP-10 accounts.
func (s *Session) Connect(ctx context.Context, required Namespaces) ([]Account, error) {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return nil, ErrSessionUsed
	}
	s.used = true
	if err := s.init(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.required = required
	s.proposal = make(chan *Envelope, 1)
	topic, key := s.topic, s.key
	s.mu.Unlock()

	transport, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	msgs, err := transport.Subscribe(ctx, topic)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.transport = transport
	s.cancelRead = cancel
	s.mu.Unlock()
	go s.read(readCtx, msgs)

	s.publishURI(FormatURI(topic, key))

	payload, err := json.Marshal(Proposal{RequiredNamespaces: required, Metadata: s.cfg.Metadata})
	if err != nil {
		s.teardown()
		return nil, err
	}
	if err := s.publish(ctx, &Envelope{ID: uuid.NewString(), Type: TypeProposal, Payload: payload}); err != nil {
		s.teardown()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	timer := s.cfg.Clock.Timer(s.cfg.ProposalTimeout)
	defer timer.Stop()

	var answer *Envelope
	select {
	case answer = <-s.proposal:
	case <-timer.C:
		s.teardown()
		return nil, fmt.Errorf("%w: session request timed out", ErrConnectionFailed)
	case <-ctx.Done():
		s.teardown()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, ctx.Err())
	}

	if answer.Type == TypeReject {
		s.teardown()
		return nil, fmt.Errorf("%w: session rejected", ErrConnectionFailed)
	}

	approval := new(Approval)
	if err := json.Unmarshal(answer.Payload, approval); err != nil {
		s.teardown()
		return nil, fmt.Errorf("%w: malformed approval: %v", ErrConnectionFailed, err)
	}
	accounts, err := validateApproval(required, approval.Namespaces)
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s.mu.Lock()
	s.accounts = accounts
	s.connected = true
	s.mu.Unlock()

	s.log.Info().Int("accounts", len(accounts)).Msg("relay session approved")
	return accounts, nil
}

// Accounts returns the approved accounts
func (s *Session) Accounts() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Account(nil), s.accounts...)
}

// Request forwards a method call to the remote wallet and waits for its answer
func (s *Session) Request(ctx context.Context, chain, method string, params interface{}) (json.RawMessage, error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	if !s.allowed(chain, method) {
		s.mu.Unlock()
		return nil, fmt.Errorf("method %s not approved for %s", method, chain)
	}
	id := uuid.NewString()
	respCh := make(chan *Envelope, 1)
	s.pending[id] = respCh
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(SessionRequest{Chain: chain, Method: method, Params: rawParams})
	if err != nil {
		return nil, err
	}
	if err := s.publish(ctx, &Envelope{ID: id, Type: TypeRequest, Payload: payload}); err != nil {
		return nil, err
	}

	timer := s.cfg.Clock.Timer(s.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok || resp == nil {
			return nil, ErrNotConnected
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Payload, nil
	case <-timer.C:
		return nil, fmt.Errorf("relay request %s timed out", method)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// allowed must be called with mu held
func (s *Session) allowed(chain, method string) bool {
	family, _, err := splitChain(chain)
	if err != nil {
		return false
	}
	ns, ok := s.required[family]
	return ok && contains(ns.Chains, chain) && contains(ns.Methods, method)
}

// Disconnect notifies the remote wallet and releases the transport. It is
// safe to call more than once.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()

	if connected {
		if err := s.publish(ctx, &Envelope{ID: uuid.NewString(), Type: TypeDelete}); err != nil {
			s.log.Warn().Err(err).Msg("failed to notify wallet of disconnect")
		}
	}
	s.teardown()
	return nil
}

func (s *Session) publish(ctx context.Context, env *Envelope) error {
	s.mu.Lock()
	transport, topic, key := s.transport, s.topic, s.key
	s.mu.Unlock()

	if transport == nil {
		return ErrNotConnected
	}
	sealed, err := Seal(key, env)
	if err != nil {
		return err
	}
	return transport.Publish(ctx, topic, sealed)
}

func (s *Session) teardown() {
	s.mu.Lock()
	transport := s.transport
	cancel := s.cancelRead
	s.transport = nil
	s.cancelRead = nil
	s.connected = false
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if transport != nil {
		if err := transport.Close(); err != nil {
			s.log.Debug().Err(err).Msg("transport close")
		}
	}
}

// read routes decrypted envelopes. This should be run as a goroutine.
func (s *Session) read(ctx context.Context, msgs <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			env, err := Open(s.key, msg)
			if err != nil {
				s.log.Warn().Err(err).Msg("dropping undecryptable relay message")
				continue
			}
			s.route(env)
		}
	}
}

func (s *Session) route(env *Envelope) {
	switch env.Type {
	case TypeApprove, TypeReject:
		select {
		case s.proposal <- env:
		default:
		}
	case TypeResponse:
		// pending channels are closed under mu, so send while holding it
		s.mu.Lock()
		if ch, ok := s.pending[env.ID]; ok {
			select {
			case ch <- env:
			default:
			}
		}
		s.mu.Unlock()
	case TypeDelete:
		s.log.Info().Msg("remote wallet ended the session")
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}
}
