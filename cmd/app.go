package cmd

import (
	"context"
	"fmt"
	"strings"

	"deposit-widget/config"
	"deposit-widget/pkg/client"
	"deposit-widget/pkg/metrics"
	"deposit-widget/pkg/relay"
	"deposit-widget/pkg/types"
	"deposit-widget/pkg/wallet"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

// depositBackend is what every command needs from a backend
type depositBackend interface {
	client.Backend
	client.TokenRegistry
}

// app holds the dependencies shared by the commands
type app struct {
	cfg     *config.Config
	backend depositBackend
	metrics *metrics.DepositMetrics

	closers []func()
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyLogLevel(cmd, cfg.LogLevel)

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	m, err := metrics.NewDepositMetrics(otel.GetMeterProvider().Meter("deposit-widget"))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return &app{cfg: cfg, backend: backend, metrics: m}, nil
}

func newBackend(cfg *config.Config) (depositBackend, error) {
	switch cfg.Backend {
	case config.BackendOneClick:
		return client.NewOneClickBackend(client.OneClickConfig{
			JWTToken:    cfg.JWTToken,
			BaseURL:     cfg.OneClickURL,
			SlippageBps: cfg.SlippageBps,
		})
	case config.BackendREST:
		return client.NewRESTBackend(client.RESTConfig{
			BaseURL:   cfg.APIURL,
			ProjectID: cfg.ProjectID,
			APIKey:    cfg.APIKey,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// walletManager builds the wallet stack. Local wallets answer discovery on
// the bus: a private key signer when one is configured, otherwise a node
// managed account on the first chain's RPC endpoint.
func (a *app) walletManager(ctx context.Context, onRelay func(wallet.RelaySession)) (*wallet.Manager, error) {
	bus := wallet.NewBus()

	endpoints, err := a.cfg.RPCEndpoints()
	if err != nil {
		return nil, err
	}
	chains := a.cfg.SourceChains()
	initial := chains[0]

	switch {
	case a.cfg.PrivateKey != "":
		kp, err := wallet.NewKeyProvider(a.cfg.PrivateKey, endpoints, initial)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, kp.Close)
		bus.Install(func(announce func(wallet.DetectedWallet)) {
			announce(wallet.DetectedWallet{
				ID:       "local-key",
				Name:     "Local Key",
				Category: wallet.CategoryInjected,
				Provider: kp,
			})
		})
	case endpoints[initial] != "":
		rp, err := wallet.DialRPCProvider(ctx, endpoints[initial])
		if err != nil {
			return nil, fmt.Errorf("failed to dial RPC for chain %s: %w", initial, err)
		}
		a.closers = append(a.closers, rp.Close)
		bus.Install(func(announce func(wallet.DetectedWallet)) {
			announce(wallet.DetectedWallet{
				ID:       "node",
				Name:     "Node Account",
				Category: wallet.CategoryInjected,
				Provider: rp,
			})
		})
	}

	relayURL, projectID := a.cfg.RelayURL, a.cfg.ProjectID
	return wallet.NewManager(wallet.ManagerConfig{
		Detector:      wallet.NewDetector(bus, wallet.DetectorConfig{Relay: relayURL != ""}),
		DetectTimeout: a.cfg.Timings.DetectTimeout,
		RelayChains:   a.cfg.RelayChains(),
		RelayFactory: func() (wallet.RelaySession, error) {
			return relay.NewSession(relay.Config{
				ProjectID: projectID,
				Metadata:  relay.Metadata{Name: "Deposit Widget"},
			}, func(ctx context.Context) (relay.Transport, error) {
				t, err := relay.DialWS(ctx, relayURL, projectID)
				if err != nil {
					return nil, err
				}
				return t, nil
			})
		},
		OnRelaySession: onRelay,
	}), nil
}

// connectWallet detects wallets and connects the one named by preferred,
// or the first local wallet found
func connectWallet(ctx context.Context, m *wallet.Manager, preferred string) (*wallet.DetectedWallet, error) {
	wallets, err := m.Detect(ctx)
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, wallet.ErrNoProvider
	}

	chosen := wallets[0]
	if preferred != "" {
		found := false
		for _, w := range wallets {
			if w.ID == preferred || strings.EqualFold(w.Name, preferred) {
				chosen, found = w, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("wallet %q not detected", preferred)
		}
	}

	log.Debug().Str("wallet", chosen.Name).Msg("connecting wallet")
	if err := m.ConnectDetected(ctx, chosen); err != nil {
		return nil, err
	}
	return &chosen, nil
}

// resolveToken looks up symbol on chain in the backend's token list
func (a *app) resolveToken(ctx context.Context, chain types.ChainID, symbol string) (*types.Token, error) {
	tokens, err := a.backend.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	return client.FindToken(tokens, chain, symbol)
}

// defaultChain is the first configured source chain
func (a *app) defaultChain() types.ChainID {
	return a.cfg.SourceChains()[0]
}

func (a *app) Close() {
	for _, c := range a.closers {
		c()
	}
}
