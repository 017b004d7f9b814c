// Package relaytest provides an in-memory relay hub and a scripted remote
// wallet for exercising relay sessions without a network.
package relaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"deposit-widget/pkg/relay"
)

// Hub fans published messages out to every subscriber of a topic. Like the
// real relay it retains messages so late subscribers still receive them.
type Hub struct {
	mu      sync.Mutex
	subs    map[string][]sub
	history map[string][]record
}

type sub struct {
	owner *Transport
	ch    chan string
}

type record struct {
	from *Transport
	msg  string
}

func NewHub() *Hub {
	return &Hub{
		subs:    make(map[string][]sub),
		history: make(map[string][]record),
	}
}

// Published returns the number of messages published on topic
func (h *Hub) Published(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.history[topic])
}

// Transport returns a new client connection to the hub
func (h *Hub) Transport() *Transport {
	return &Transport{hub: h}
}

// Dial adapts the hub to a relay.DialFunc
func (h *Hub) Dial(ctx context.Context) (relay.Transport, error) {
	return h.Transport(), nil
}

func (h *Hub) publish(from *Transport, topic, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if from.closed {
		return fmt.Errorf("transport closed")
	}
	h.history[topic] = append(h.history[topic], record{from: from, msg: msg})
	for _, s := range h.subs[topic] {
		if s.owner == from {
			continue
		}
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

func (h *Hub) subscribe(t *Transport, topic string) (chan string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport closed")
	}
	ch := make(chan string, 32)
	for _, r := range h.history[topic] {
		if r.from == t {
			continue
		}
		select {
		case ch <- r.msg:
		default:
		}
	}
	h.subs[topic] = append(h.subs[topic], sub{owner: t, ch: ch})
	return ch, nil
}

func (h *Hub) close(t *Transport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for topic, list := range h.subs {
		kept := list[:0]
		for _, s := range list {
			if s.owner == t {
				close(s.ch)
				continue
			}
			kept = append(kept, s)
		}
		h.subs[topic] = kept
	}
}

// Transport is one peer's connection to the hub. Its state is guarded by
// the hub's lock.
type Transport struct {
	hub    *Hub
	closed bool
}

func (t *Transport) Publish(ctx context.Context, topic string, message string) error {
	return t.hub.publish(t, topic, message)
}

func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan string, error) {
	return t.hub.subscribe(t, topic)
}

func (t *Transport) Close() error {
	t.hub.close(t)
	return nil
}

// Handler answers a session request; return a non-nil error envelope to fail it
type Handler func(req relay.SessionRequest) (interface{}, *relay.EnvelopeError)

// Wallet is a scripted remote wallet
type Wallet struct {
	Accounts []string
	Reject   bool
	// Approval overrides the generated approval when set
	Approval *relay.Approval
	Handler  Handler

	mu       sync.Mutex
	requests []relay.SessionRequest
}

// Requests returns every session request received
func (w *Wallet) Requests() []relay.SessionRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]relay.SessionRequest(nil), w.requests...)
}

// Pair joins the session behind uri and answers until ctx is done
func (w *Wallet) Pair(ctx context.Context, hub *Hub, uri string) error {
	topic, key, err := relay.ParseURI(uri)
	if err != nil {
		return err
	}

	t := hub.Transport()
	msgs, err := t.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		defer t.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				env, err := relay.Open(key, msg)
				if err != nil {
					continue
				}
				reply := w.answer(env)
				if reply == nil {
					continue
				}
				sealed, err := relay.Seal(key, reply)
				if err != nil {
					continue
				}
				_ = t.Publish(ctx, topic, sealed)
			}
		}
	}()
	return nil
}

func (w *Wallet) answer(env *relay.Envelope) *relay.Envelope {
	switch env.Type {
	case relay.TypeProposal:
		if w.Reject {
			return &relay.Envelope{ID: env.ID, Type: relay.TypeReject}
		}
		approval := w.Approval
		if approval == nil {
			proposal := new(relay.Proposal)
			if err := json.Unmarshal(env.Payload, proposal); err != nil {
				return &relay.Envelope{ID: env.ID, Type: relay.TypeReject}
			}
			approval = &relay.Approval{Namespaces: make(relay.Namespaces)}
			for family, ns := range proposal.RequiredNamespaces {
				ns.Accounts = w.Accounts
				approval.Namespaces[family] = ns
			}
		}
		payload, _ := json.Marshal(approval)
		return &relay.Envelope{ID: env.ID, Type: relay.TypeApprove, Payload: payload}
	case relay.TypeRequest:
		req := relay.SessionRequest{}
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return nil
		}
		w.mu.Lock()
		w.requests = append(w.requests, req)
		w.mu.Unlock()

		if w.Handler == nil {
			return &relay.Envelope{ID: env.ID, Type: relay.TypeResponse, Error: &relay.EnvelopeError{Code: 4200, Message: "unsupported"}}
		}
		result, rpcErr := w.Handler(req)
		if rpcErr != nil {
			return &relay.Envelope{ID: env.ID, Type: relay.TypeResponse, Error: rpcErr}
		}
		payload, _ := json.Marshal(result)
		return &relay.Envelope{ID: env.ID, Type: relay.TypeResponse, Payload: payload}
	}
	return nil
}
