package route

import (
	"strings"

	"deposit-widget/pkg/types"
	"github.com/shopspring/decimal"
)

const (
	stablecoinDecimals = 6
	defaultDecimals    = 18
)

var stablecoins = map[string]bool{
	"USDC":   true,
	"USDT":   true,
	"USDC.E": true,
	"USDBC":  true,
	"PYUSD":  true,
}

// EstimatedReceive picks the best available receive figure: the quoted USD
// value, then the minimum USD value, then the raw destination amount scaled
// by the token's decimals. It returns an empty string when none is present.
func EstimatedReceive(est types.Estimate, symbol string) string {
	if v, ok := parseDecimal(est.ToAmountUSD); ok {
		return v.StringFixed(2)
	}
	if v, ok := parseDecimal(est.ToAmountMinUSD); ok {
		return v.StringFixed(2)
	}
	if v, ok := parseDecimal(est.ToAmount); ok {
		return v.Shift(-tokenDecimals(est, symbol)).String()
	}
	return ""
}

// NetworkFee is fromAmountUSD - toAmountMinUSD floored at zero, or the
// explicit fee when either side is missing
func NetworkFee(est types.Estimate) string {
	from, fromOK := parseDecimal(est.FromAmountUSD)
	toMin, toOK := parseDecimal(est.ToAmountMinUSD)
	if fromOK && toOK {
		return decimal.Max(decimal.Zero, from.Sub(toMin)).StringFixed(2)
	}
	if fee, ok := parseDecimal(est.Fees); ok {
		return fee.StringFixed(2)
	}
	return ""
}

// tokenDecimals prefers the decimals reported with the quote and falls back
// to 6 for known stablecoins and 18 otherwise
func tokenDecimals(est types.Estimate, symbol string) int32 {
	if est.ToTokenDecimals != nil && *est.ToTokenDecimals >= 0 {
		return *est.ToTokenDecimals
	}
	if stablecoins[strings.ToUpper(strings.TrimSpace(symbol))] {
		return stablecoinDecimals
	}
	return defaultDecimals
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
