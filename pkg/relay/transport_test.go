package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"deposit-widget/pkg/relay"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type frame struct {
	ID      uint64          `json:"id,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// loopbackRelay echoes published messages to subscribers on the same connection
type loopbackRelay struct {
	mu        sync.Mutex
	projectID string
}

func (l *loopbackRelay) serve(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	l.projectID = r.URL.Query().Get("projectId")
	l.mu.Unlock()

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	topics := make(map[string]bool)
	for {
		msg := new(frame)
		if err := conn.ReadJSON(msg); err != nil {
			return
		}
		switch msg.Method {
		case "irn_subscribe":
			p := new(relay.SubscribeParams)
			_ = json.Unmarshal(msg.Params, p)
			topics[p.Topic] = true
		case "irn_publish":
			p := new(relay.PublishParams)
			_ = json.Unmarshal(msg.Params, p)
			if !topics[p.Topic] {
				continue
			}
			push := relay.SubscriptionParams{}
			push.Data.Topic = p.Topic
			push.Data.Message = p.Message
			raw, _ := json.Marshal(push)
			_ = conn.WriteJSON(frame{ID: msg.ID, JSONRPC: "2.0", Method: "irn_subscription", Params: raw})
		}
	}
}

type WSTransportTestSuite struct {
	suite.Suite

	relay  *loopbackRelay
	server *httptest.Server
}

func TestRunWSTransportTestSuite(t *testing.T) {
	suite.Run(t, new(WSTransportTestSuite))
}

func (s *WSTransportTestSuite) SetupTest() {
	s.relay = &loopbackRelay{}
	s.server = httptest.NewServer(http.HandlerFunc(s.relay.serve))
}

func (s *WSTransportTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *WSTransportTestSuite) wsURL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *WSTransportTestSuite) Test_PublishSubscribe() {
	ctx := context.Background()
	t, err := relay.DialWS(ctx, s.wsURL(), "project")
	s.Nil(err)
	defer t.Close()

	msgs, err := t.Subscribe(ctx, "topic")
	s.Nil(err)
	s.Nil(t.Publish(ctx, "topic", "hello"))

	select {
	case msg := <-msgs:
		s.Equal("hello", msg)
	case <-time.After(2 * time.Second):
		s.Fail("no message received")
	}

	s.relay.mu.Lock()
	s.Equal("project", s.relay.projectID)
	s.relay.mu.Unlock()
}

func (s *WSTransportTestSuite) Test_Close_ClosesSubscriptions() {
	ctx := context.Background()
	t, err := relay.DialWS(ctx, s.wsURL(), "project")
	s.Nil(err)
	msgs, err := t.Subscribe(ctx, "topic")
	s.Nil(err)

	s.Nil(t.Close())
	s.Nil(t.Close())

	s.Eventually(func() bool {
		select {
		case _, ok := <-msgs:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *WSTransportTestSuite) Test_DialWS_Unreachable() {
	s.server.Close()

	_, err := relay.DialWS(context.Background(), s.wsURL(), "project")

	s.NotNil(err)
}
