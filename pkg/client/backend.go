package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"deposit-widget/pkg/types"
)

// ErrRouteNotFound is returned when the backend has no route for a pair
var ErrRouteNotFound = errors.New("route not found")

// Backend is the deposit backend used by the route, submit and poll stages
type Backend interface {
	BuildRoute(ctx context.Context, req RouteRequest) (*RouteResponse, error)
	GetStatus(ctx context.Context, intentID string) (*types.StatusResponse, error)
	SubmitReceipt(ctx context.Context, intentID, txHash string) error
}

// TokenRegistry lists the tokens a backend can route
type TokenRegistry interface {
	Tokens(ctx context.Context) ([]types.Token, error)
}

// RouteRequest asks the backend to price and build a route. FromAmount is an
// integer string in the source token's smallest unit.
type RouteRequest struct {
	FromChain   types.ChainID `json:"fromChain"`
	ToChain     types.ChainID `json:"toChain"`
	FromToken   string        `json:"fromToken"`
	ToToken     string        `json:"toToken"`
	FromAmount  string        `json:"fromAmount"`
	FromAddress string        `json:"fromAddress"`
	ToAddress   string        `json:"toAddress"`
	// Slippage is a fraction, 0.01 for one percent
	Slippage float64 `json:"slippage"`
}

// RouteResponse is the backend's answer to a route request
type RouteResponse struct {
	IntentID string      `json:"intentId"`
	Route    types.Route `json:"route"`
	// Raw is the undecoded payload, kept for submission and diagnostics
	Raw json.RawMessage `json:"-"`
}

// APIError is a non-success answer from a backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}
