package types

import "strings"

// NativeToken is the placeholder address used for a chain's gas token
const NativeToken = "native"

// Token is a transferable asset supported by the deposit backend
type Token struct {
	Symbol     string  `json:"symbol"`
	Blockchain string  `json:"blockchain"`
	ChainID    ChainID `json:"chainId,omitempty"`
	AssetID    string  `json:"assetId,omitempty"`
	Address    string  `json:"address,omitempty"`
	Decimals   int32   `json:"decimals"`
	PriceUSD   string  `json:"priceUsd,omitempty"`
}

// IsNative reports whether the token is its chain's gas token
func (t Token) IsNative() bool {
	return IsNativeAddress(t.Address)
}

// IsNativeAddress accepts the empty string, "native" and the 0xeeee... sentinel
func IsNativeAddress(address string) bool {
	a := strings.ToLower(address)
	return a == "" || a == NativeToken || a == "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
}
