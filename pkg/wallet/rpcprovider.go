package wallet

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/rpc"
)

// RPCProvider forwards EIP-1193 requests to a JSON-RPC endpoint that manages
// its own accounts, such as a development node
type RPCProvider struct {
	client *rpc.Client
}

func DialRPCProvider(ctx context.Context, url string) (*RPCProvider, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &RPCProvider{client: c}, nil
}

func (p *RPCProvider) Request(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := p.client.CallContext(ctx, &raw, method, params...); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return nil, &RPCError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
		}
		return nil, err
	}
	return raw, nil
}

func (p *RPCProvider) Close() {
	p.client.Close()
}
