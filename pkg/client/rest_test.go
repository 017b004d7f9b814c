package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"deposit-widget/pkg/client"
	"deposit-widget/pkg/types"
	"github.com/stretchr/testify/suite"
)

const routeResponse = `{
	"intentId": "intent-1",
	"route": {
		"transactionRequest": {"to": "0x1111111111111111111111111111111111111111", "data": "0xabcd", "value": "0", "chainId": 1},
		"estimate": {"fromAmountUSD": "10.00", "toAmountUSD": "9.95", "toAmountMinUSD": "9.90", "toAmount": "9950000"}
	}
}`

type RESTBackendTestSuite struct {
	suite.Suite

	handler http.HandlerFunc
	server  *httptest.Server
	backend *client.RESTBackend
}

func TestRunRESTBackendTestSuite(t *testing.T) {
	suite.Run(t, new(RESTBackendTestSuite))
}

func (s *RESTBackendTestSuite) SetupTest() {
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handler(w, r)
	}))

	backend, err := client.NewRESTBackend(client.RESTConfig{
		BaseURL:   s.server.URL,
		ProjectID: "project",
		APIKey:    "secret",
	})
	s.Nil(err)
	s.backend = backend
}

func (s *RESTBackendTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *RESTBackendTestSuite) Test_NewRESTBackend_Validation() {
	_, err := client.NewRESTBackend(client.RESTConfig{BaseURL: s.server.URL})
	s.NotNil(err)

	_, err = client.NewRESTBackend(client.RESTConfig{BaseURL: "not a url", ProjectID: "project"})
	s.NotNil(err)
}

func (s *RESTBackendTestSuite) Test_BuildRoute_Success() {
	var got client.RouteRequest
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodPost, r.Method)
		s.Equal("/v1/routes", r.URL.Path)
		s.Equal("project", r.Header.Get("X-Project-Id"))
		s.Equal("Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		s.Nil(json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(routeResponse))
	}

	resp, err := s.backend.BuildRoute(context.Background(), client.RouteRequest{
		FromChain:   1,
		ToChain:     8453,
		FromToken:   "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		ToToken:     "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		FromAmount:  "10000000",
		FromAddress: "0xabc",
		ToAddress:   "0xdef",
		Slippage:    0.01,
	})

	s.Nil(err)
	s.Equal("intent-1", resp.IntentID)
	s.Equal("0x1111111111111111111111111111111111111111", resp.Route.TransactionRequest.To)
	s.Equal(types.ChainID(1), resp.Route.TransactionRequest.ChainID)
	s.Equal("9.95", resp.Route.Estimate.ToAmountUSD)
	s.JSONEq(routeResponse, string(resp.Raw))
	s.Equal("10000000", got.FromAmount)
	s.Equal(types.ChainID(8453), got.ToChain)
}

func (s *RESTBackendTestSuite) Test_BuildRoute_NotFound() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "no route for pair"}`))
	}

	_, err := s.backend.BuildRoute(context.Background(), client.RouteRequest{})

	s.ErrorIs(err, client.ErrRouteNotFound)
}

func (s *RESTBackendTestSuite) Test_BuildRoute_MissingIntent() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"route": {}}`))
	}

	_, err := s.backend.BuildRoute(context.Background(), client.RouteRequest{})

	s.NotNil(err)
}

func (s *RESTBackendTestSuite) Test_BuildRoute_Cancelled() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(routeResponse))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.backend.BuildRoute(ctx, client.RouteRequest{})

	s.True(errors.Is(err, context.Canceled))
}

func (s *RESTBackendTestSuite) Test_GetStatus() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodGet, r.Method)
		s.Equal("/v1/intents/intent-1/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "intent-1", "status": "bridging", "statusRaw": "BRIDGING", "fromChainTxUrl": "https://etherscan.io/tx/0x1"}`))
	}

	status, err := s.backend.GetStatus(context.Background(), "intent-1")

	s.Nil(err)
	s.Equal(types.BackendBridging, status.Status)
	s.Equal("https://etherscan.io/tx/0x1", status.FromChainTxURL)
}

func (s *RESTBackendTestSuite) Test_GetStatus_RetriesServerErrors() {
	var calls int32
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id": "intent-1", "status": "processing"}`))
	}

	status, err := s.backend.GetStatus(context.Background(), "intent-1")

	s.Nil(err)
	s.Equal(types.BackendProcessing, status.Status)
	s.Equal(int32(2), atomic.LoadInt32(&calls))
}

func (s *RESTBackendTestSuite) Test_SubmitReceipt() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/v1/intents/intent-1/receipt", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		s.JSONEq(`{"txHash": "0xhash"}`, string(body))
		w.WriteHeader(http.StatusAccepted)
	}

	s.Nil(s.backend.SubmitReceipt(context.Background(), "intent-1", "0xhash"))
}

func (s *RESTBackendTestSuite) Test_SubmitReceipt_APIError() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "unknown intent"}`))
	}

	err := s.backend.SubmitReceipt(context.Background(), "intent-1", "0xhash")

	apiErr := new(client.APIError)
	s.ErrorAs(err, &apiErr)
	s.Equal(http.StatusBadRequest, apiErr.StatusCode)
	s.Equal("unknown intent", apiErr.Message)
}

func (s *RESTBackendTestSuite) Test_Tokens() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodGet, r.Method)
		s.Equal("/v1/tokens", r.URL.Path)
		_, _ = w.Write([]byte(`[{"symbol": "USDC", "blockchain": "eth", "chainId": 1, "address": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", "decimals": 6}]`))
	}

	tokens, err := s.backend.Tokens(context.Background())

	s.Nil(err)
	s.Len(tokens, 1)
	s.Equal("USDC", tokens[0].Symbol)
	s.Equal(types.ChainID(1), tokens[0].ChainID)
	s.Equal(int32(6), tokens[0].Decimals)
}
