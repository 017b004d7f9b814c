package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// The maximum time to write to the relay connection.
	writeWait = time.Second * 3

	// Buffered messages per topic subscription.
	subscriptionBuffer = 32

	publishTTL = 300
)

// Transport moves sealed messages between peers sharing a topic
type Transport interface {
	Publish(ctx context.Context, topic string, message string) error
	Subscribe(ctx context.Context, topic string) (<-chan string, error)
	Close() error
}

// rpcMessage is the relay's JSON-RPC frame
type rpcMessage struct {
	ID      uint64          `json:"id,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *EnvelopeError  `json:"error,omitempty"`
}

// PublishParams is the payload of irn_publish
type PublishParams struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
	TTL     int    `json:"ttl"`
}

// SubscribeParams is the payload of irn_subscribe
type SubscribeParams struct {
	Topic string `json:"topic"`
}

// SubscriptionParams is pushed by the relay for every message on a subscribed topic
type SubscriptionParams struct {
	Data struct {
		Topic   string `json:"topic"`
		Message string `json:"message"`
	} `json:"data"`
}

// WSTransport is a websocket client for an irn style relay
type WSTransport struct {
	rID   uint64
	ws    *websocket.Conn
	wsMtx sync.Mutex

	subsMtx sync.RWMutex
	subs    map[string]chan string

	closeOnce sync.Once
	done      chan struct{}
	log       zerolog.Logger
}

// DialWS connects to the relay at relayURL authenticating with projectID
func DialWS(ctx context.Context, relayURL, projectID string) (*WSTransport, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	q := u.Query()
	q.Set("projectId", projectID)
	u.RawQuery = q.Encode()

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}

	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	t := &WSTransport{
		ws:   ws,
		subs: make(map[string]chan string),
		done: make(chan struct{}),
		log:  log.With().Str("component", "relay-transport").Logger(),
	}
	go t.read()

	return t, nil
}

func (t *WSTransport) nextID() uint64 {
	return atomic.AddUint64(&t.rID, 1)
}

func (t *WSTransport) send(method string, params interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}

	msg := &rpcMessage{
		ID:      t.nextID(),
		JSONRPC: "2.0",
		Method:  method,
		Params:  raw,
	}

	t.wsMtx.Lock()
	defer t.wsMtx.Unlock()
	_ = t.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("relay write error: %w", err)
	}
	return nil
}

// Publish sends a sealed message to a topic
func (t *WSTransport) Publish(ctx context.Context, topic string, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.send("irn_publish", PublishParams{Topic: topic, Message: message, TTL: publishTTL})
}

// Subscribe registers interest in a topic. The returned channel is closed
// when the transport closes.
func (t *WSTransport) Subscribe(ctx context.Context, topic string) (<-chan string, error) {
	t.subsMtx.Lock()
	ch, ok := t.subs[topic]
	if !ok {
		ch = make(chan string, subscriptionBuffer)
		t.subs[topic] = ch
	}
	t.subsMtx.Unlock()

	if ok {
		return ch, nil
	}
	if err := t.send("irn_subscribe", SubscribeParams{Topic: topic}); err != nil {
		return nil, err
	}
	return ch, nil
}

// read dispatches subscription pushes to topic channels. This should be run
// as a goroutine.
func (t *WSTransport) read() {
	defer t.closeSubs()

	for {
		msg := new(rpcMessage)
		err := t.ws.ReadJSON(msg)
		if err != nil {
			if _, ok := err.(*json.UnmarshalTypeError); ok {
				t.log.Warn().Err(err).Msg("json decode error")
				continue
			}
			select {
			case <-t.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					t.log.Err(err).Msg("relay read error")
				}
			}
			return
		}

		if msg.Method != "irn_subscription" {
			if msg.Error != nil {
				t.log.Warn().Err(msg.Error).Uint64("id", msg.ID).Msg("relay rejected request")
			}
			continue
		}

		params := new(SubscriptionParams)
		if err := json.Unmarshal(msg.Params, params); err != nil {
			t.log.Warn().Err(err).Msg("malformed subscription push")
			continue
		}

		t.subsMtx.RLock()
		ch, ok := t.subs[params.Data.Topic]
		t.subsMtx.RUnlock()
		if !ok {
			continue
		}

		select {
		case ch <- params.Data.Message:
		case <-t.done:
			return
		}
	}
}

func (t *WSTransport) closeSubs() {
	t.subsMtx.Lock()
	defer t.subsMtx.Unlock()
	for topic, ch := range t.subs {
		close(ch)
		delete(t.subs, topic)
	}
}

// Close terminates the relay connection
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)

		t.wsMtx.Lock()
		defer t.wsMtx.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = t.ws.Close()
	})
	return err
}
