// Package wallet normalises the ways a wallet can be reached (an injected
// EIP-1193 provider, a host connector or a relay session) behind a single
// Capability and owns the connection state machine.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"deposit-widget/pkg/types"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrNotConnected = errors.New("wallet not connected")
	ErrNoProvider   = errors.New("no wallet provider available")
	ErrUnsupported  = errors.New("method not supported by wallet")
)

// Kind identifies the variant backing a capability
type Kind string

const (
	KindEIP1193     Kind = "eip1193"
	KindHostBridge  Kind = "host-bridge"
	KindRelaySigned Kind = "relay-signed"
)

// Capability is the normalised set of operations a connected wallet exposes
type Capability interface {
	Kind() Kind
	Address(ctx context.Context) (types.Address, error)
	ChainID(ctx context.Context) (types.ChainID, error)
	SwitchChain(ctx context.Context, id types.ChainID) error
	// SendTransaction prompts the wallet once. fallback is used when the
	// request does not carry a chain id.
	SendTransaction(ctx context.Context, tx *types.TxRequest, fallback types.ChainID) (string, error)
	Request(ctx context.Context, method string, params []interface{}) (json.RawMessage, error)
	Disconnect(ctx context.Context) error
}

// Provider is an EIP-1193 request function
type Provider interface {
	Request(ctx context.Context, method string, params []interface{}) (json.RawMessage, error)
}

// RPCError is a coded error returned by a wallet provider
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

func (e *RPCError) ErrorCode() int {
	return e.Code
}

const (
	CodeUserRejected      = 4001
	CodeUnsupportedMethod = 4200
	CodeUnrecognizedChain = 4902
)

// chainSwitcher is the subset of a capability needed to move to a target chain
type chainSwitcher interface {
	ChainID(ctx context.Context) (types.ChainID, error)
	SwitchChain(ctx context.Context, id types.ChainID) error
}

// targetChain picks the chain a request must be sent on
func targetChain(tx *types.TxRequest, fallback types.ChainID) types.ChainID {
	if tx.ChainID != 0 {
		return tx.ChainID
	}
	return fallback
}

// ensureChain switches w to target unless it is already there
func ensureChain(ctx context.Context, w chainSwitcher, target types.ChainID) error {
	if target == 0 {
		return nil
	}
	current, err := w.ChainID(ctx)
	if err != nil {
		return err
	}
	if current == target {
		return nil
	}
	return w.SwitchChain(ctx, target)
}

// txParams converts a route transaction request to eth_sendTransaction params
func txParams(from types.Address, tx *types.TxRequest) (map[string]string, error) {
	params := map[string]string{"to": tx.To}
	if from != "" {
		params["from"] = string(from)
	} else if tx.From != "" {
		params["from"] = tx.From
	}
	if tx.Data != "" {
		params["data"] = tx.Data
	}

	value, err := tx.ValueWei()
	if err != nil {
		return nil, err
	}
	if value.Sign() > 0 {
		params["value"] = hexutil.EncodeBig(value)
	}

	if tx.Gas != "" {
		gas, err := parseQuantity(tx.Gas)
		if err != nil {
			return nil, fmt.Errorf("invalid gas limit: %w", err)
		}
		params["gas"] = hexutil.EncodeUint64(gas)
	}
	return params, nil
}

func parseQuantity(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") {
		return hexutil.DecodeUint64(s)
	}
	return strconv.ParseUint(s, 10, 64)
}

// decodeString unmarshals a JSON string result
func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("unexpected wallet response %s: %w", string(raw), err)
	}
	return s, nil
}
