package wallet

import (
	"context"
	"encoding/json"
	"strings"

	"deposit-widget/pkg/types"
)

// Connector is a wallet connection managed by the host application
type Connector interface {
	ID() string
	Name() string
	Category() Category
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Address(ctx context.Context) (types.Address, error)
	ChainID(ctx context.Context) (types.ChainID, error)
	SwitchChain(ctx context.Context, id types.ChainID) error
	SendTransaction(ctx context.Context, tx *types.TxRequest) (string, error)
	Request(ctx context.Context, method string, params []interface{}) (json.RawMessage, error)
}

// ConnectorRegistry exposes the host's connectors
type ConnectorRegistry interface {
	Connectors() []Connector
}

// MatchConnector finds the host connector for a detected wallet. Names are
// compared first as case-insensitive substrings in either direction, then
// ids, then categories.
func MatchConnector(connectors []Connector, w DetectedWallet) Connector {
	name := strings.ToLower(w.Name)
	if name != "" {
		for _, c := range connectors {
			cn := strings.ToLower(c.Name())
			if cn != "" && (strings.Contains(cn, name) || strings.Contains(name, cn)) {
				return c
			}
		}
	}
	if w.ID != "" {
		for _, c := range connectors {
			if c.ID() == w.ID {
				return c
			}
		}
	}
	if w.Category != "" {
		for _, c := range connectors {
			if c.Category() == w.Category {
				return c
			}
		}
	}
	return nil
}

// HostBridge delegates every operation to a host connector. It keeps no
// provider state of its own.
type HostBridge struct {
	connector Connector
}

func NewHostBridge(c Connector) *HostBridge {
	return &HostBridge{connector: c}
}

func (h *HostBridge) Kind() Kind {
	return KindHostBridge
}

// Connector returns the host connector backing the bridge
func (h *HostBridge) Connector() Connector {
	return h.connector
}

func (h *HostBridge) Address(ctx context.Context) (types.Address, error) {
	return h.connector.Address(ctx)
}

func (h *HostBridge) ChainID(ctx context.Context) (types.ChainID, error) {
	return h.connector.ChainID(ctx)
}

func (h *HostBridge) SwitchChain(ctx context.Context, id types.ChainID) error {
	return h.connector.SwitchChain(ctx, id)
}

func (h *HostBridge) SendTransaction(ctx context.Context, tx *types.TxRequest, fallback types.ChainID) (string, error) {
	target := targetChain(tx, fallback)
	if err := ensureChain(ctx, h, target); err != nil {
		return "", err
	}

	req := *tx
	req.ChainID = target
	return h.connector.SendTransaction(ctx, &req)
}

func (h *HostBridge) Request(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	return h.connector.Request(ctx, method, params)
}

func (h *HostBridge) Disconnect(ctx context.Context) error {
	return h.connector.Disconnect(ctx)
}
