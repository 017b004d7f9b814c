// Package route turns deposit selections into priced routes. Quotes are
// debounced, and a newer selection cancels the request of an older one.
package route

import (
	"strings"

	"deposit-widget/pkg/client"
	"deposit-widget/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Inputs are the user selections and host configuration a quote depends on.
// Amount is in display units of the source token.
type Inputs struct {
	SourceChain    types.ChainID
	SourceToken    string
	SourceDecimals int32
	Amount         string
	SourceAddress  string

	Destination types.Destination
	// DestinationSymbol feeds the decimals fallback when a quote only
	// carries a raw destination amount
	DestinationSymbol string
}

// Key identifies one quote request. Two keys built from the same inputs are equal.
type Key struct {
	FromChain   types.ChainID
	ToChain     types.ChainID
	FromToken   string
	ToToken     string
	FromAmount  string
	FromAddress string
	ToAddress   string
}

// NewKey canonicalises in. It returns false when a required field is missing,
// an address is malformed or the amount is not a positive number.
func NewKey(in Inputs) (Key, bool) {
	if in.SourceChain == 0 || in.Destination.ChainID == 0 || in.SourceDecimals < 0 {
		return Key{}, false
	}

	amount, ok := SmallestUnits(in.Amount, in.SourceDecimals)
	if !ok {
		return Key{}, false
	}

	fromToken, ok := canonicalToken(in.SourceToken)
	if !ok {
		return Key{}, false
	}
	toToken, ok := canonicalToken(in.Destination.Token)
	if !ok {
		return Key{}, false
	}
	fromAddress, ok := canonicalAddress(in.SourceAddress)
	if !ok {
		return Key{}, false
	}
	toAddress, ok := canonicalAddress(in.Destination.Address)
	if !ok {
		return Key{}, false
	}

	return Key{
		FromChain:   in.SourceChain,
		ToChain:     in.Destination.ChainID,
		FromToken:   fromToken,
		ToToken:     toToken,
		FromAmount:  amount,
		FromAddress: fromAddress,
		ToAddress:   toAddress,
	}, true
}

// Request builds the backend route request for the key
func (k Key) Request(slippageBps int) client.RouteRequest {
	return client.RouteRequest{
		FromChain:   k.FromChain,
		ToChain:     k.ToChain,
		FromToken:   k.FromToken,
		ToToken:     k.ToToken,
		FromAmount:  k.FromAmount,
		FromAddress: k.FromAddress,
		ToAddress:   k.ToAddress,
		Slippage:    float64(slippageBps) / 10000,
	}
}

// maxUnitDigits is the width of the largest uint256 in decimal
const maxUnitDigits = 78

// SmallestUnits converts a display amount to an integer string in the
// token's smallest unit. Fractions below one unit are truncated. Amounts
// that do not fit a uint256 are rejected.
func SmallestUnits(amount string, decimals int32) (string, bool) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return "", false
	}
	d, err := decimal.NewFromString(amount)
	if err != nil || !d.IsPositive() {
		return "", false
	}
	// integer digits of the result, checked before any rescaling
	digits := int64(d.NumDigits()) + int64(d.Exponent()) + int64(decimals)
	if digits < 1 || digits > maxUnitDigits {
		return "", false
	}
	units := d.Shift(decimals).Truncate(0)
	if !units.IsPositive() {
		return "", false
	}
	return units.String(), true
}

func canonicalToken(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	if types.IsNativeAddress(token) {
		return types.NativeToken, true
	}
	if common.IsHexAddress(token) {
		return strings.ToLower(common.HexToAddress(token).Hex()), true
	}
	if pk, err := solana.PublicKeyFromBase58(token); err == nil {
		return pk.String(), true
	}
	// asset ids and symbols are passed through as the backend knows them
	return token, !strings.ContainsAny(token, " \t")
}

func canonicalAddress(address string) (string, bool) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", false
	}
	if common.IsHexAddress(address) {
		return strings.ToLower(common.HexToAddress(address).Hex()), true
	}
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return "", false
	}
	return pk.String(), true
}
