package client

import (
	"testing"

	"deposit-widget/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/suite"
)

type OneClickTestSuite struct {
	suite.Suite

	tokens []types.Token
}

func TestRunOneClickTestSuite(t *testing.T) {
	suite.Run(t, new(OneClickTestSuite))
}

func (s *OneClickTestSuite) SetupTest() {
	s.tokens = []types.Token{
		{Symbol: "ETH", Blockchain: "eth", ChainID: 1, AssetID: "nep141:eth.omft.near", Decimals: 18},
		{Symbol: "USDC", Blockchain: "eth", ChainID: 1, AssetID: "nep141:eth-usdc", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		{Symbol: "USDC", Blockchain: "base", ChainID: 8453, AssetID: "nep141:base-usdc", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
	}
}

func (s *OneClickTestSuite) Test_NewOneClickBackend_RequiresToken() {
	_, err := NewOneClickBackend(OneClickConfig{})

	s.NotNil(err)
}

func (s *OneClickTestSuite) Test_FindToken() {
	token, err := FindToken(s.tokens, 1, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	s.Nil(err)
	s.Equal("nep141:eth-usdc", token.AssetID)

	token, err = FindToken(s.tokens, 1, "native")
	s.Nil(err)
	s.Equal("ETH", token.Symbol)

	token, err = FindToken(s.tokens, 8453, "usdc")
	s.Nil(err)
	s.Equal("nep141:base-usdc", token.AssetID)
}

func (s *OneClickTestSuite) Test_FindToken_Unsupported() {
	_, err := FindToken(s.tokens, 8453, "native")
	s.ErrorIs(err, ErrRouteNotFound)

	_, err = FindToken(s.tokens, 999, "usdc")
	s.ErrorIs(err, ErrRouteNotFound)
}

func (s *OneClickTestSuite) Test_DepositTx_Native() {
	tx, err := depositTx(&s.tokens[0], "0x2222222222222222222222222222222222222222", "1000", 1)

	s.Nil(err)
	s.Equal("0x2222222222222222222222222222222222222222", tx.To)
	s.Equal("1000", tx.Value)
	s.Empty(tx.Data)
	s.Equal(types.ChainID(1), tx.ChainID)
}

func (s *OneClickTestSuite) Test_DepositTx_ERC20() {
	tx, err := depositTx(&s.tokens[1], "0x2222222222222222222222222222222222222222", "10000000", 1)

	s.Nil(err)
	s.Equal("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", tx.To)
	s.Empty(tx.Value)

	data, err := hexutil.Decode(tx.Data)
	s.Nil(err)
	s.Len(data, 4+32+32)
	s.Equal("0xa9059cbb", hexutil.Encode(data[:4]))
	s.Equal(byte(0x22), data[4+31])
	s.Equal(byte(0x80), data[4+32+31])
}

func (s *OneClickTestSuite) Test_DepositTx_Invalid() {
	_, err := depositTx(&s.tokens[0], "not-an-address", "1000", 1)
	s.NotNil(err)

	_, err = depositTx(&s.tokens[0], "0x2222222222222222222222222222222222222222", "0", 1)
	s.NotNil(err)
}

func (s *OneClickTestSuite) Test_MapStatus() {
	s.Equal(types.BackendConfirming, MapStatus("PENDING_DEPOSIT"))
	s.Equal(types.BackendConfirming, MapStatus("KNOWN_DEPOSIT_TX"))
	s.Equal(types.BackendProcessing, MapStatus("INCOMPLETE_DEPOSIT"))
	s.Equal(types.BackendBridging, MapStatus("PROCESSING"))
	s.Equal(types.BackendSuccess, MapStatus("success"))
	s.Equal(types.BackendFailed, MapStatus("REFUNDED"))
	s.Equal(types.BackendFailed, MapStatus("FAILED"))
}

func (s *OneClickTestSuite) Test_BlockchainNames() {
	name, ok := BlockchainName(8453)
	s.True(ok)
	s.Equal("base", name)

	id, ok := ChainIDForBlockchain("ARB")
	s.True(ok)
	s.Equal(types.ChainID(42161), id)
}
