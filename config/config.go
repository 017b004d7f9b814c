package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"deposit-widget/pkg/types"
	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

const (
	BackendREST     = "rest"
	BackendOneClick = "oneclick"
)

// Config holds the application configuration
type Config struct {
	ProjectID   string `mapstructure:"project_id"`
	Backend     string `mapstructure:"backend" default:"oneclick"`
	APIURL      string `mapstructure:"api_url"`
	APIKey      string `mapstructure:"api_key"`
	JWTToken    string `mapstructure:"jwt_token"`
	OneClickURL string `mapstructure:"oneclick_url" default:"https://1click.chaindefuser.com"`
	SlippageBps int    `mapstructure:"slippage_bps" default:"100"`

	// Destination is supplied by the integrator and never changed by the widget
	Destination       types.Destination `mapstructure:"destination"`
	DestinationSymbol string            `mapstructure:"destination_symbol"`

	Chains     []uint64          `mapstructure:"chains" default:"[1]"`
	RPCURLs    map[string]string `mapstructure:"rpc_urls"`
	PrivateKey string            `mapstructure:"private_key"`
	RelayURL   string            `mapstructure:"relay_url" default:"wss://relay.walletconnect.com"`

	Timings  Timings `mapstructure:"timings"`
	LogLevel string  `mapstructure:"log_level" default:"info"`
}

type Timings struct {
	DetectTimeout time.Duration `mapstructure:"detect_timeout" default:"400ms"`
	Debounce      time.Duration `mapstructure:"debounce" default:"300ms"`
	PollInterval  time.Duration `mapstructure:"poll_interval" default:"3s"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout" default:"5m"`
}

// keys are bound to DEPOSIT_WIDGET_<KEY> environment variables
var keys = []string{
	"project_id", "backend", "api_url", "api_key", "jwt_token", "oneclick_url", "slippage_bps",
	"destination.chain_id", "destination.token", "destination.address", "destination_symbol",
	"chains", "private_key", "relay_url",
	"timings.detect_timeout", "timings.debounce", "timings.poll_interval", "timings.poll_timeout",
	"log_level",
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".deposit-widget")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	// Read from environment variables
	v.SetEnvPrefix("DEPOSIT_WIDGET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on missing required settings
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("project id not found. Please set DEPOSIT_WIDGET_PROJECT_ID environment variable or create a .deposit-widget.yaml config file")
	}

	switch c.Backend {
	case BackendOneClick:
		if c.JWTToken == "" {
			return fmt.Errorf("JWT token not found. Please set DEPOSIT_WIDGET_JWT_TOKEN for the oneclick backend")
		}
	case BackendREST:
		u, err := url.Parse(c.APIURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid api_url %q for the rest backend", c.APIURL)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.SlippageBps <= 0 || c.SlippageBps > 10000 {
		return fmt.Errorf("slippage_bps must be between 1 and 10000")
	}
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one source chain is required")
	}
	if _, err := c.RPCEndpoints(); err != nil {
		return err
	}
	return nil
}

// ValidateDestination is required before quoting or depositing
func (c *Config) ValidateDestination() error {
	if c.Destination.ChainID == 0 || c.Destination.Token == "" || c.Destination.Address == "" {
		return fmt.Errorf("destination chain_id, token and address must be configured")
	}
	return nil
}

// SourceChains returns the configured source chains
func (c *Config) SourceChains() []types.ChainID {
	chains := make([]types.ChainID, 0, len(c.Chains))
	for _, id := range c.Chains {
		chains = append(chains, types.ChainID(id))
	}
	return chains
}

// RelayChains returns the CAIP-2 ids requested from relay wallets
func (c *Config) RelayChains() []string {
	chains := make([]string, 0, len(c.Chains))
	for _, id := range c.Chains {
		chains = append(chains, "eip155:"+strconv.FormatUint(id, 10))
	}
	return chains
}

// RPCEndpoints parses rpc_urls keyed by chain id
func (c *Config) RPCEndpoints() (map[types.ChainID]string, error) {
	endpoints := make(map[types.ChainID]string, len(c.RPCURLs))
	for raw, endpoint := range c.RPCURLs {
		id, err := types.ParseChainID(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid rpc_urls key: %w", err)
		}
		endpoints[id] = endpoint
	}
	return endpoints, nil
}
