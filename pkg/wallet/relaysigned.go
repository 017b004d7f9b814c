package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"deposit-widget/pkg/relay"
	"deposit-widget/pkg/types"
)

// RelaySession is the dapp side of a relay-brokered wallet session
type RelaySession interface {
	Connect(ctx context.Context, required relay.Namespaces) ([]relay.Account, error)
	Request(ctx context.Context, chain, method string, params interface{}) (json.RawMessage, error)
	Disconnect(ctx context.Context) error
	URI() string
	WaitForURI(ctx context.Context) (string, error)
}

// RelaySigned forwards signing to a remote wallet over an approved relay session
type RelaySigned struct {
	session RelaySession

	mu       sync.Mutex
	accounts []relay.Account
	active   relay.Account
}

// NewRelaySigned binds the capability to the first approved EVM account
func NewRelaySigned(session RelaySession, accounts []relay.Account) (*RelaySigned, error) {
	for _, acc := range accounts {
		if family(acc.Chain) == relay.FamilyEIP155 {
			return &RelaySigned{session: session, accounts: accounts, active: acc}, nil
		}
	}
	return nil, fmt.Errorf("%w: no evm account approved", relay.ErrConnectionFailed)
}

func (r *RelaySigned) Kind() Kind {
	return KindRelaySigned
}

func (r *RelaySigned) Address(ctx context.Context) (types.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return types.Address(r.active.Address), nil
}

func (r *RelaySigned) ChainID(ctx context.Context) (types.ChainID, error) {
	r.mu.Lock()
	chain := r.active.Chain
	r.mu.Unlock()
	_, ref, _ := strings.Cut(chain, ":")
	return types.ParseChainID(ref)
}

// SwitchChain moves to another approved chain. Chains outside the approved
// session are refused without contacting the wallet.
func (r *RelaySigned) SwitchChain(ctx context.Context, id types.ChainID) error {
	chain := evmChain(id)

	r.mu.Lock()
	var next *relay.Account
	for i := range r.accounts {
		if r.accounts[i].Chain == chain {
			next = &r.accounts[i]
			break
		}
	}
	current := r.active.Chain
	r.mu.Unlock()

	if next == nil {
		return &RPCError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("chain %s not approved in session", chain)}
	}
	if current == chain {
		return nil
	}

	_, err := r.session.Request(ctx, current, "wallet_switchEthereumChain", []interface{}{
		map[string]string{"chainId": id.Hex()},
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.active = *next
	r.mu.Unlock()
	return nil
}

func (r *RelaySigned) SendTransaction(ctx context.Context, tx *types.TxRequest, fallback types.ChainID) (string, error) {
	if !tx.Usable() {
		return "", fmt.Errorf("transaction request has no recipient")
	}
	if err := ensureChain(ctx, r, targetChain(tx, fallback)); err != nil {
		return "", err
	}

	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	params, err := txParams(types.Address(active.Address), tx)
	if err != nil {
		return "", err
	}
	raw, err := r.session.Request(ctx, active.Chain, "eth_sendTransaction", []interface{}{params})
	if err != nil {
		return "", err
	}
	return decodeString(raw)
}

func (r *RelaySigned) Request(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	r.mu.Lock()
	chain := r.active.Chain
	r.mu.Unlock()
	return r.session.Request(ctx, chain, method, params)
}

func (r *RelaySigned) Disconnect(ctx context.Context) error {
	return r.session.Disconnect(ctx)
}

func evmChain(id types.ChainID) string {
	return relay.FamilyEIP155 + ":" + id.String()
}

func family(chain string) string {
	f, _, _ := strings.Cut(chain, ":")
	return f
}
