package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"deposit-widget/pkg/types"
)

// DirectProvider wraps a raw EIP-1193 provider
type DirectProvider struct {
	provider Provider

	mu      sync.Mutex
	address types.Address
}

// NewDirectProvider requests account access and returns a capability bound
// to the first account
func NewDirectProvider(ctx context.Context, provider Provider) (*DirectProvider, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}

	raw, err := provider.Request(ctx, "eth_requestAccounts", nil)
	if err != nil {
		return nil, err
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("unexpected accounts response: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("wallet returned no accounts")
	}

	return &DirectProvider{
		provider: provider,
		address:  types.Address(accounts[0]),
	}, nil
}

func (d *DirectProvider) Kind() Kind {
	return KindEIP1193
}

func (d *DirectProvider) Address(ctx context.Context) (types.Address, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.address == "" {
		return "", ErrNotConnected
	}
	return d.address, nil
}

func (d *DirectProvider) ChainID(ctx context.Context) (types.ChainID, error) {
	raw, err := d.provider.Request(ctx, "eth_chainId", nil)
	if err != nil {
		return 0, err
	}
	hex, err := decodeString(raw)
	if err != nil {
		return 0, err
	}
	return types.ParseChainID(hex)
}

func (d *DirectProvider) SwitchChain(ctx context.Context, id types.ChainID) error {
	_, err := d.provider.Request(ctx, "wallet_switchEthereumChain", []interface{}{
		map[string]string{"chainId": id.Hex()},
	})
	return err
}

func (d *DirectProvider) SendTransaction(ctx context.Context, tx *types.TxRequest, fallback types.ChainID) (string, error) {
	if !tx.Usable() {
		return "", fmt.Errorf("transaction request has no recipient")
	}
	if err := ensureChain(ctx, d, targetChain(tx, fallback)); err != nil {
		return "", err
	}

	from, err := d.Address(ctx)
	if err != nil {
		return "", err
	}
	params, err := txParams(from, tx)
	if err != nil {
		return "", err
	}

	raw, err := d.provider.Request(ctx, "eth_sendTransaction", []interface{}{params})
	if err != nil {
		return "", err
	}
	return decodeString(raw)
}

func (d *DirectProvider) Request(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	return d.provider.Request(ctx, method, params)
}

// Disconnect forgets the account. Injected providers have no session to end.
func (d *DirectProvider) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.address = ""
	return nil
}
