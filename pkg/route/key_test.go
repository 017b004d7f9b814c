package route_test

import (
	"strings"
	"testing"
	"time"

	"deposit-widget/pkg/route"
	"deposit-widget/pkg/types"
	"github.com/stretchr/testify/suite"
)

const (
	usdcMainnet = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	userAddress = "0xABc1230000000000000000000000000000000001"
	depositAddr = "0x1111111111111111111111111111111111111111"
	solanaAddr  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func testInputs() route.Inputs {
	return route.Inputs{
		SourceChain:    1,
		SourceToken:    usdcMainnet,
		SourceDecimals: 6,
		Amount:         "10",
		SourceAddress:  userAddress,
		Destination: types.Destination{
			ChainID: 8453,
			Token:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Address: depositAddr,
		},
		DestinationSymbol: "USDC",
	}
}

type KeyTestSuite struct {
	suite.Suite
}

func TestRunKeyTestSuite(t *testing.T) {
	suite.Run(t, new(KeyTestSuite))
}

func (s *KeyTestSuite) Test_NewKey_Canonical() {
	key, ok := route.NewKey(testInputs())

	s.True(ok)
	s.Equal("10000000", key.FromAmount)
	s.Equal("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", key.FromToken)
	s.Equal("0xabc1230000000000000000000000000000000001", key.FromAddress)
	s.Equal(types.ChainID(8453), key.ToChain)
}

func (s *KeyTestSuite) Test_NewKey_SameInputsAreEqual() {
	a, _ := route.NewKey(testInputs())

	in := testInputs()
	in.SourceAddress = "0xabc1230000000000000000000000000000000001"
	in.Amount = " 10.0 "
	b, _ := route.NewKey(in)

	s.Equal(a, b)
}

func (s *KeyTestSuite) Test_NewKey_EveryFieldChangesKey() {
	base, _ := route.NewKey(testInputs())

	mutations := []func(*route.Inputs){
		func(in *route.Inputs) { in.Amount = "11" },
		func(in *route.Inputs) { in.SourceToken = types.NativeToken },
		func(in *route.Inputs) { in.SourceChain = 10 },
		func(in *route.Inputs) { in.SourceAddress = "0xABc1230000000000000000000000000000000002" },
		func(in *route.Inputs) { in.Destination.Address = solanaAddr },
		func(in *route.Inputs) { in.Destination.ChainID = 42161 },
		func(in *route.Inputs) { in.Destination.Token = types.NativeToken },
	}
	for i, mutate := range mutations {
		in := testInputs()
		mutate(&in)
		key, ok := route.NewKey(in)
		s.True(ok, "mutation %d", i)
		s.NotEqual(base, key, "mutation %d", i)
	}
}

func (s *KeyTestSuite) Test_NewKey_Invalid() {
	mutations := map[string]func(*route.Inputs){
		"zero amount":      func(in *route.Inputs) { in.Amount = "0" },
		"negative amount":  func(in *route.Inputs) { in.Amount = "-1" },
		"non numeric":      func(in *route.Inputs) { in.Amount = "ten" },
		"empty amount":     func(in *route.Inputs) { in.Amount = "" },
		"infinite amount":  func(in *route.Inputs) { in.Amount = "Inf" },
		"below one unit":   func(in *route.Inputs) { in.Amount = "0.0000001" },
		"huge exponent":    func(in *route.Inputs) { in.Amount = "1e50000000" },
		"no wallet":        func(in *route.Inputs) { in.SourceAddress = "" },
		"bad wallet":       func(in *route.Inputs) { in.SourceAddress = "0xnothex" },
		"no token":         func(in *route.Inputs) { in.SourceToken = "" },
		"no chain":         func(in *route.Inputs) { in.SourceChain = 0 },
		"no destination":   func(in *route.Inputs) { in.Destination = types.Destination{} },
		"negative decimal": func(in *route.Inputs) { in.SourceDecimals = -1 },
	}
	for name, mutate := range mutations {
		in := testInputs()
		mutate(&in)
		_, ok := route.NewKey(in)
		s.False(ok, name)
	}
}

func (s *KeyTestSuite) Test_SmallestUnits_Bounds() {
	units, ok := route.SmallestUnits("1.5e3", 6)
	s.True(ok)
	s.Equal("1500000000", units)

	units, ok = route.SmallestUnits("1."+strings.Repeat("0", 40)+"1", 6)
	s.True(ok)
	s.Equal("1000000", units)

	widest := strings.Repeat("9", 72)
	units, ok = route.SmallestUnits(widest, 6)
	s.True(ok)
	s.Len(units, 78)

	for _, amount := range []string{"1e50000000", "1e-50000000", widest + "0", "1e72"} {
		start := time.Now()
		_, ok := route.SmallestUnits(amount, 6)
		s.False(ok, amount)
		s.Less(time.Since(start), time.Second, amount)
	}
}

func (s *KeyTestSuite) Test_NewKey_NativeSentinels() {
	in := testInputs()
	in.SourceToken = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
	a, _ := route.NewKey(in)
	in.SourceToken = "native"
	b, _ := route.NewKey(in)

	s.Equal(types.NativeToken, a.FromToken)
	s.Equal(a, b)
}

func (s *KeyTestSuite) Test_Request() {
	key, _ := route.NewKey(testInputs())

	req := key.Request(50)

	s.Equal("10000000", req.FromAmount)
	s.Equal(types.ChainID(1), req.FromChain)
	s.InDelta(0.005, req.Slippage, 1e-9)
}
