package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"deposit-widget/pkg/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Gas limit for plain value transfers
const transferGas = uint64(21000)

// KeyProvider is an EIP-1193 provider that signs locally with a private key
// and broadcasts through per-chain RPC endpoints
type KeyProvider struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	rpcURLs    map[types.ChainID]string

	mu      sync.Mutex
	chainID types.ChainID
	clients map[types.ChainID]*ethclient.Client
}

// NewKeyProvider parses hexKey and starts on chain initial
func NewKeyProvider(hexKey string, rpcURLs map[types.ChainID]string, initial types.ChainID) (*KeyProvider, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if _, ok := rpcURLs[initial]; !ok {
		return nil, fmt.Errorf("RPC URL not configured for chain %s", initial)
	}

	return &KeyProvider{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		rpcURLs:    rpcURLs,
		chainID:    initial,
		clients:    make(map[types.ChainID]*ethclient.Client),
	}, nil
}

// client dials the current chain's endpoint on first use
func (k *KeyProvider) client(ctx context.Context) (*ethclient.Client, types.ChainID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	id := k.chainID
	if c, ok := k.clients[id]; ok {
		return c, id, nil
	}
	c, err := ethclient.DialContext(ctx, k.rpcURLs[id])
	if err != nil {
		return nil, id, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	k.clients[id] = c
	return c, id, nil
}

func (k *KeyProvider) Request(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts", "eth_accounts":
		return json.Marshal([]string{k.address.Hex()})
	case "eth_chainId":
		k.mu.Lock()
		id := k.chainID
		k.mu.Unlock()
		return json.Marshal(id.Hex())
	case "wallet_switchEthereumChain":
		return k.switchChain(params)
	case "eth_sendTransaction":
		return k.sendTransaction(ctx, params)
	}

	c, _, err := k.client(ctx)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.Client().CallContext(ctx, &raw, method, params...); err != nil {
		return nil, err
	}
	return raw, nil
}

func (k *KeyProvider) switchChain(params []interface{}) (json.RawMessage, error) {
	if len(params) != 1 {
		return nil, &RPCError{Code: -32602, Message: "expected one parameter"}
	}
	arg, err := remarshal[struct {
		ChainID string `json:"chainId"`
	}](params[0])
	if err != nil {
		return nil, &RPCError{Code: -32602, Message: err.Error()}
	}
	id, err := types.ParseChainID(arg.ChainID)
	if err != nil {
		return nil, &RPCError{Code: -32602, Message: err.Error()}
	}
	if _, ok := k.rpcURLs[id]; !ok {
		return nil, &RPCError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("unrecognized chain %s", id)}
	}

	k.mu.Lock()
	k.chainID = id
	k.mu.Unlock()
	return json.RawMessage("null"), nil
}

type sendParams struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
	Gas   string `json:"gas"`
}

func (k *KeyProvider) sendTransaction(ctx context.Context, params []interface{}) (json.RawMessage, error) {
	if len(params) != 1 {
		return nil, &RPCError{Code: -32602, Message: "expected one parameter"}
	}
	p, err := remarshal[sendParams](params[0])
	if err != nil {
		return nil, &RPCError{Code: -32602, Message: err.Error()}
	}
	if !common.IsHexAddress(p.To) {
		return nil, fmt.Errorf("invalid recipient address: %s", p.To)
	}
	if p.From != "" && !strings.EqualFold(p.From, k.address.Hex()) {
		return nil, &RPCError{Code: 4100, Message: "unknown account " + p.From}
	}

	to := common.HexToAddress(p.To)
	value := new(big.Int)
	if p.Value != "" {
		if value, err = hexutil.DecodeBig(p.Value); err != nil {
			return nil, fmt.Errorf("invalid value: %w", err)
		}
	}
	var data []byte
	if p.Data != "" && p.Data != "0x" {
		if data, err = hexutil.Decode(p.Data); err != nil {
			return nil, fmt.Errorf("invalid data: %w", err)
		}
	}

	c, chainID, err := k.client(ctx)
	if err != nil {
		return nil, err
	}

	nonce, err := c.PendingNonceAt(ctx, k.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit, err := k.gasLimit(ctx, c, p.Gas, to, value, data)
	if err != nil {
		return nil, err
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(new(big.Int).SetUint64(uint64(chainID))), k.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	return json.Marshal(signedTx.Hash().Hex())
}

// gasLimit uses the requested limit, else estimates with a 20% buffer
func (k *KeyProvider) gasLimit(ctx context.Context, c *ethclient.Client, requested string, to common.Address, value *big.Int, data []byte) (uint64, error) {
	if requested != "" {
		gas, err := hexutil.DecodeUint64(requested)
		if err != nil {
			return 0, fmt.Errorf("invalid gas: %w", err)
		}
		return gas, nil
	}
	if len(data) == 0 {
		return transferGas, nil
	}

	estimated, err := c.EstimateGas(ctx, ethereum.CallMsg{
		From:  k.address,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return 0, fmt.Errorf("gas estimation failed: %w", err)
	}
	return estimated * 120 / 100, nil
}

// Close releases every RPC connection
func (k *KeyProvider) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for id, c := range k.clients {
		c.Close()
		delete(k.clients, id)
	}
}

func remarshal[T any](v interface{}) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}
