package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"deposit-widget/pkg/types"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	DefaultTokenTTL = 5 * time.Minute
	quoteDeadline   = time.Hour
	tokensKey       = "tokens"
)

// ERC20 transfer function ABI
const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

var erc20ABI = mustParseABI(erc20TransferABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// OneClickConfig configures a OneClickBackend
type OneClickConfig struct {
	JWTToken string
	// BaseURL overrides the SDK's default server
	BaseURL     string
	SlippageBps int
	TokenTTL    time.Duration
}

// OneClickBackend serves routes through the 1Click API. The deposit address
// of a quote is the intent id: the user's transaction pays into it.
type OneClickBackend struct {
	api      *oneclick.APIClient
	jwtToken string
	slippage int
	tokens   *ttlcache.Cache[string, []types.Token]
	log      zerolog.Logger
}

func NewOneClickBackend(cfg OneClickConfig) (*OneClickBackend, error) {
	if cfg.JWTToken == "" {
		return nil, fmt.Errorf("1Click JWT token is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}

	config := oneclick.NewConfiguration()
	if cfg.BaseURL != "" {
		config.Servers = oneclick.ServerConfigurations{{URL: strings.TrimRight(cfg.BaseURL, "/")}}
	}

	return &OneClickBackend{
		api:      oneclick.NewAPIClient(config),
		jwtToken: cfg.JWTToken,
		slippage: cfg.SlippageBps,
		tokens: ttlcache.New[string, []types.Token](
			ttlcache.WithTTL[string, []types.Token](cfg.TokenTTL),
		),
		log: log.With().Str("component", "oneclick").Logger(),
	}, nil
}

func (c *OneClickBackend) authed(ctx context.Context) context.Context {
	return context.WithValue(ctx, oneclick.ContextAccessToken, c.jwtToken)
}

// Tokens returns the supported tokens, cached for the configured ttl
func (c *OneClickBackend) Tokens(ctx context.Context) ([]types.Token, error) {
	if item := c.tokens.Get(tokensKey); item != nil {
		return item.Value(), nil
	}

	resp, httpResp, err := c.api.OneClickAPI.GetTokens(c.authed(ctx)).Execute()
	if err != nil {
		return nil, apiError(httpResp, fmt.Errorf("failed to get tokens: %w", err))
	}
	defer httpResp.Body.Close()

	tokens := make([]types.Token, 0, len(resp))
	for _, t := range resp {
		tokens = append(tokens, convertToken(t))
	}
	c.tokens.Set(tokensKey, tokens, ttlcache.DefaultTTL)
	return tokens, nil
}

func convertToken(t oneclick.TokenResponse) types.Token {
	token := types.Token{
		Symbol:     t.GetSymbol(),
		Blockchain: t.GetBlockchain(),
		AssetID:    t.GetAssetId(),
		Address:    t.GetContractAddress(),
		Decimals:   int32(t.GetDecimals()),
		PriceUSD:   decimal.NewFromFloat(float64(t.GetPrice())).String(),
	}
	if id, ok := ChainIDForBlockchain(t.GetBlockchain()); ok {
		token.ChainID = id
	}
	return token
}

// FindToken picks the token on a chain by contract address or symbol. Empty,
// "native" and 0xeeee... addresses select the chain's gas token.
func FindToken(tokens []types.Token, chain types.ChainID, token string) (*types.Token, error) {
	name, ok := BlockchainName(chain)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported chain %s", ErrRouteNotFound, chain)
	}

	native := types.IsNativeAddress(token)
	isAddress := common.IsHexAddress(token)
	for i := range tokens {
		t := tokens[i]
		if !strings.EqualFold(t.Blockchain, name) {
			continue
		}
		switch {
		case native && t.IsNative():
			return &t, nil
		case isAddress && strings.EqualFold(t.Address, token):
			return &t, nil
		case !native && !isAddress && strings.EqualFold(t.Symbol, token):
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: token %q unsupported on %s", ErrRouteNotFound, token, name)
}

func (c *OneClickBackend) BuildRoute(ctx context.Context, req RouteRequest) (*RouteResponse, error) {
	tokens, err := c.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	from, err := FindToken(tokens, req.FromChain, req.FromToken)
	if err != nil {
		return nil, err
	}
	to, err := FindToken(tokens, req.ToChain, req.ToToken)
	if err != nil {
		return nil, err
	}

	slippage := c.slippage
	if req.Slippage > 0 {
		slippage = int(req.Slippage * 10000)
	}

	quoteReq := oneclick.NewQuoteRequest(
		false,         // dry - false to get a real deposit address
		"EXACT_INPUT", // swapType
		float32(slippage),
		from.AssetID,
		"ORIGIN_CHAIN",
		to.AssetID,
		req.FromAmount,
		req.FromAddress, // refundTo
		"ORIGIN_CHAIN",
		req.ToAddress,
		"DESTINATION_CHAIN",
		time.Now().Add(quoteDeadline),
	)

	resp, httpResp, err := c.api.OneClickAPI.GetQuote(c.authed(ctx)).QuoteRequest(*quoteReq).Execute()
	if err != nil {
		return nil, apiError(httpResp, fmt.Errorf("failed to get quote from API: %w", err))
	}
	defer httpResp.Body.Close()
	if resp == nil {
		return nil, fmt.Errorf("empty quote response")
	}

	quote := resp.GetQuote()
	depositAddress := quote.GetDepositAddress()
	if depositAddress == "" {
		return nil, fmt.Errorf("quote without deposit address")
	}

	tx, err := depositTx(from, depositAddress, req.FromAmount, req.FromChain)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}

	decimals := to.Decimals
	return &RouteResponse{
		IntentID: depositAddress,
		Route: types.Route{
			TransactionRequest: tx,
			Estimate: types.Estimate{
				FromAmountUSD:   quote.GetAmountInUsd(),
				ToAmountUSD:     quote.GetAmountOutUsd(),
				ToAmount:        quote.GetMinAmountOut(),
				ToTokenDecimals: &decimals,
			},
		},
		Raw: raw,
	}, nil
}

// depositTx pays amount of token into the deposit address: a value transfer
// for the gas token, an ERC20 transfer call otherwise
func depositTx(token *types.Token, depositAddress, amount string, chain types.ChainID) (*types.TxRequest, error) {
	if !common.IsHexAddress(depositAddress) {
		return nil, fmt.Errorf("invalid deposit address: %s", depositAddress)
	}
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount: %s", amount)
	}

	if token.IsNative() {
		return &types.TxRequest{
			To:      common.HexToAddress(depositAddress).Hex(),
			Value:   value.String(),
			ChainID: chain,
		}, nil
	}

	if !common.IsHexAddress(token.Address) {
		return nil, fmt.Errorf("invalid token contract address: %s", token.Address)
	}
	data, err := erc20ABI.Pack("transfer", common.HexToAddress(depositAddress), value)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer data: %w", err)
	}
	return &types.TxRequest{
		To:      common.HexToAddress(token.Address).Hex(),
		Data:    hexutil.Encode(data),
		ChainID: chain,
	}, nil
}

func (c *OneClickBackend) GetStatus(ctx context.Context, intentID string) (*types.StatusResponse, error) {
	resp, httpResp, err := c.api.OneClickAPI.GetExecutionStatus(c.authed(ctx)).DepositAddress(intentID).Execute()
	if err != nil {
		return nil, apiError(httpResp, fmt.Errorf("failed to get status: %w", err))
	}
	defer httpResp.Body.Close()

	raw := resp.GetStatus()
	status := &types.StatusResponse{
		ID:        intentID,
		Status:    MapStatus(raw),
		StatusRaw: raw,
	}

	// 1Click reports transaction hashes rather than explorer links
	details := resp.GetSwapDetails()
	for _, tx := range details.GetOriginChainTxHashes() {
		if tx.GetHash() != "" {
			status.FromChainTxURL = tx.GetHash()
		}
	}
	for _, tx := range details.GetDestinationChainTxHashes() {
		if tx.GetHash() != "" {
			status.ToChainTxURL = tx.GetHash()
		}
	}
	return status, nil
}

// MapStatus converts a 1Click execution status to the backend status set.
// A deposit that is processing with outbound transactions is bridging.
func MapStatus(raw string) types.BackendStatus {
	switch strings.ToUpper(raw) {
	case "SUCCESS":
		return types.BackendSuccess
	case "FAILED", "REFUNDED":
		return types.BackendFailed
	case "PROCESSING":
		return types.BackendBridging
	case "INCOMPLETE_DEPOSIT":
		return types.BackendProcessing
	default:
		return types.BackendConfirming
	}
}

func (c *OneClickBackend) SubmitReceipt(ctx context.Context, intentID, txHash string) error {
	req := oneclick.NewSubmitDepositTxRequest(txHash, intentID)

	_, httpResp, err := c.api.OneClickAPI.SubmitDepositTx(c.authed(ctx)).SubmitDepositTxRequest(*req).Execute()
	if err != nil {
		return apiError(httpResp, fmt.Errorf("failed to submit deposit: %w", err))
	}
	defer httpResp.Body.Close()
	return nil
}

// apiError extracts the API's message from a failed SDK call
func apiError(httpResp *http.Response, err error) error {
	if httpResp == nil {
		return err
	}
	defer httpResp.Body.Close()

	body, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil || len(body) == 0 {
		return fmt.Errorf("%w (status %d)", err, httpResp.StatusCode)
	}
	return &APIError{StatusCode: httpResp.StatusCode, Message: errorMessage(body)}
}
