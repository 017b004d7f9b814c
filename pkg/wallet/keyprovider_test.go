package wallet_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"deposit-widget/pkg/types"
	"deposit-widget/pkg/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/suite"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode answers the handful of JSON-RPC calls a local signer makes
type fakeNode struct {
	mu      sync.Mutex
	methods []string
	raw     []string
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := new(rpcRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.methods = append(n.methods, req.Method)
	n.mu.Unlock()

	var result interface{}
	switch req.Method {
	case "eth_getTransactionCount":
		result = "0x5"
	case "eth_gasPrice":
		result = "0x3b9aca00"
	case "eth_estimateGas":
		result = "0x186a0"
	case "eth_blockNumber":
		result = "0x10"
	case "eth_sendRawTransaction":
		var raw string
		_ = json.Unmarshal(req.Params[0], &raw)
		n.mu.Lock()
		n.raw = append(n.raw, raw)
		n.mu.Unlock()
		result = "0x0"
	default:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32601, "message": "method not found"},
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

type KeyProviderTestSuite struct {
	suite.Suite

	node     *fakeNode
	server   *httptest.Server
	provider *wallet.KeyProvider
	address  common.Address
	ctx      context.Context
}

func TestRunKeyProviderTestSuite(t *testing.T) {
	suite.Run(t, new(KeyProviderTestSuite))
}

func (s *KeyProviderTestSuite) SetupTest() {
	s.node = &fakeNode{}
	s.server = httptest.NewServer(s.node)
	s.ctx = context.Background()

	provider, err := wallet.NewKeyProvider("0x"+testKey, map[types.ChainID]string{
		1:    s.server.URL,
		8453: s.server.URL,
	}, 1)
	s.Nil(err)
	s.provider = provider

	key, err := crypto.HexToECDSA(testKey)
	s.Nil(err)
	s.address = crypto.PubkeyToAddress(key.PublicKey)
}

func (s *KeyProviderTestSuite) TearDownTest() {
	s.provider.Close()
	s.server.Close()
}

func (s *KeyProviderTestSuite) lastTx() *ethtypes.Transaction {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	s.Len(s.node.raw, 1)
	data, err := hexutil.Decode(s.node.raw[0])
	s.Nil(err)
	tx := new(ethtypes.Transaction)
	s.Nil(tx.UnmarshalBinary(data))
	return tx
}

func (s *KeyProviderTestSuite) Test_NewKeyProvider_InvalidKey() {
	_, err := wallet.NewKeyProvider("not-a-key", map[types.ChainID]string{1: s.server.URL}, 1)

	s.NotNil(err)
}

func (s *KeyProviderTestSuite) Test_NewKeyProvider_MissingRPC() {
	_, err := wallet.NewKeyProvider(testKey, map[types.ChainID]string{}, 1)

	s.NotNil(err)
}

func (s *KeyProviderTestSuite) Test_DirectProvider_OverKeyProvider() {
	capability, err := wallet.NewDirectProvider(s.ctx, s.provider)
	s.Nil(err)

	address, err := capability.Address(s.ctx)
	s.Nil(err)
	s.Equal(types.Address(s.address.Hex()), address)

	chain, err := capability.ChainID(s.ctx)
	s.Nil(err)
	s.Equal(types.ChainID(1), chain)
}

func (s *KeyProviderTestSuite) Test_SendTransaction_NativeTransfer() {
	capability, err := wallet.NewDirectProvider(s.ctx, s.provider)
	s.Nil(err)

	hash, err := capability.SendTransaction(s.ctx, &types.TxRequest{
		To:    "0x1111111111111111111111111111111111111111",
		Value: "1000",
	}, 8453)
	s.Nil(err)

	tx := s.lastTx()
	s.Equal(tx.Hash().Hex(), hash)
	s.Equal(uint64(5), tx.Nonce())
	s.Equal(uint64(21000), tx.Gas())
	s.Equal(big.NewInt(1000), tx.Value())
	s.Equal(big.NewInt(8453), tx.ChainId())

	sender, err := ethtypes.Sender(ethtypes.NewEIP155Signer(big.NewInt(8453)), tx)
	s.Nil(err)
	s.Equal(s.address, sender)
}

func (s *KeyProviderTestSuite) Test_SendTransaction_EstimatesContractCall() {
	capability, err := wallet.NewDirectProvider(s.ctx, s.provider)
	s.Nil(err)

	_, err = capability.SendTransaction(s.ctx, &types.TxRequest{
		To:      "0x1111111111111111111111111111111111111111",
		Data:    "0xa9059cbb",
		ChainID: 1,
	}, 1)
	s.Nil(err)

	tx := s.lastTx()
	s.Equal(uint64(120000), tx.Gas())
	s.Equal([]byte{0xa9, 0x05, 0x9c, 0xbb}, tx.Data())
}

func (s *KeyProviderTestSuite) Test_SwitchChain_Unrecognized() {
	capability, err := wallet.NewDirectProvider(s.ctx, s.provider)
	s.Nil(err)

	err = capability.SwitchChain(s.ctx, 10)

	rpcErr := new(wallet.RPCError)
	s.ErrorAs(err, &rpcErr)
	s.Equal(wallet.CodeUnrecognizedChain, rpcErr.Code)
}

func (s *KeyProviderTestSuite) Test_Request_PassesThroughToNode() {
	raw, err := s.provider.Request(s.ctx, "eth_blockNumber", nil)

	s.Nil(err)
	s.JSONEq(`"0x10"`, string(raw))
}
