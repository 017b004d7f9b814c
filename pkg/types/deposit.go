package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ChainID is a decimal chain identifier as held in application state.
// On the wallet wire it is hex encoded (see Hex and ParseChainID).
type ChainID uint64

// Hex returns the 0x-prefixed wire form of the chain id
func (c ChainID) Hex() string {
	return hexutil.EncodeUint64(uint64(c))
}

func (c ChainID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// ParseChainID accepts either the hex wire form ("0x1") or a decimal string ("1")
func ParseChainID(s string) (ChainID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty chain id")
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := hexutil.DecodeUint64(strings.ToLower(s))
		if err != nil {
			return 0, fmt.Errorf("invalid hex chain id %q: %w", s, err)
		}
		return ChainID(v), nil
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q: %w", s, err)
	}
	return ChainID(v), nil
}

// Address is a chain account address in its display form
type Address string

// TxRequest is the opaque transaction payload carried by a route
type TxRequest struct {
	From    string  `json:"from,omitempty"`
	To      string  `json:"to"`
	Data    string  `json:"data,omitempty"`
	Value   string  `json:"value,omitempty"`
	Gas     string  `json:"gasLimit,omitempty"`
	ChainID ChainID `json:"chainId,omitempty"`
}

// Usable reports whether the request carries enough to be sent to a wallet
func (t *TxRequest) Usable() bool {
	return t != nil && t.To != ""
}

// ValueWei parses Value as a decimal or hex integer. An empty value is zero.
func (t *TxRequest) ValueWei() (*big.Int, error) {
	if t.Value == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(t.Value, "0x") {
		return hexutil.DecodeBig(t.Value)
	}
	v, ok := new(big.Int).SetString(t.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid transaction value %q", t.Value)
	}
	return v, nil
}

// Estimate is the pricing block of a route response. All USD amounts are
// decimal strings; ToAmount is in destination token smallest units.
type Estimate struct {
	FromAmountUSD   string `json:"fromAmountUSD,omitempty"`
	ToAmountUSD     string `json:"toAmountUSD,omitempty"`
	ToAmountMinUSD  string `json:"toAmountMinUSD,omitempty"`
	ToAmount        string `json:"toAmount,omitempty"`
	ToTokenDecimals *int32 `json:"toTokenDecimals,omitempty"`
	Fees            string `json:"fees,omitempty"`
}

// Route is the raw route result returned by the backend
type Route struct {
	TransactionRequest *TxRequest `json:"transactionRequest"`
	Estimate           Estimate   `json:"estimate"`
}

// RouteQuote is valid only for the route key it was built from
type RouteQuote struct {
	IntentID         string
	FeesUSD          string
	EstimatedReceive string
	RawRoute         json.RawMessage
	TxRequest        *TxRequest
}

// SubmissionResult is recorded once per confirmed submission
type SubmissionResult struct {
	TxHash   string `json:"txHash"`
	IntentID string `json:"intentId"`
}

// Destination is the host-configured deposit target. It is read-only for the core.
type Destination struct {
	ChainID ChainID `mapstructure:"chain_id" json:"chainId"`
	Token   string  `mapstructure:"token" json:"token"`
	Address string  `mapstructure:"address" json:"address"`
}
