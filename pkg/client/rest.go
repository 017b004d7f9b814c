package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deposit-widget/pkg/types"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultRetryMax       = 2
	defaultRetryWait      = 500 * time.Millisecond

	projectHeader = "X-Project-Id"
)

// RESTConfig configures a RESTBackend
type RESTConfig struct {
	BaseURL   string
	ProjectID string
	APIKey    string
	Timeout   time.Duration
	RetryMax  int
}

// RESTBackend talks to the deposit backend's JSON API
type RESTBackend struct {
	HTTPClient *http.Client

	baseURL   string
	projectID string
	apiKey    string
}

func NewRESTBackend(cfg RESTConfig) (*RESTBackend, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = defaultRetryWait
	retryClient.RetryWaitMax = defaultRetryWait * 4
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &RESTBackend{
		HTTPClient: retryClient.StandardClient(),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		projectID:  cfg.ProjectID,
		apiKey:     cfg.APIKey,
	}, nil
}

func (b *RESTBackend) BuildRoute(ctx context.Context, req RouteRequest) (*RouteResponse, error) {
	body, err := b.do(ctx, http.MethodPost, "/v1/routes", req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusUnprocessableEntity) {
			return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, apiErr.Message)
		}
		return nil, err
	}

	resp := new(RouteResponse)
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, fmt.Errorf("failed to decode route response: %w", err)
	}
	if resp.IntentID == "" {
		return nil, fmt.Errorf("route response without intent id")
	}
	resp.Raw = body
	return resp, nil
}

func (b *RESTBackend) GetStatus(ctx context.Context, intentID string) (*types.StatusResponse, error) {
	body, err := b.do(ctx, http.MethodGet, "/v1/intents/"+url.PathEscape(intentID)+"/status", nil)
	if err != nil {
		return nil, err
	}

	status := new(types.StatusResponse)
	if err := json.Unmarshal(body, status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return status, nil
}

func (b *RESTBackend) SubmitReceipt(ctx context.Context, intentID, txHash string) error {
	_, err := b.do(ctx, http.MethodPost, "/v1/intents/"+url.PathEscape(intentID)+"/receipt", map[string]string{
		"txHash": txHash,
	})
	return err
}

// Tokens lists the source tokens the backend can route
func (b *RESTBackend) Tokens(ctx context.Context) ([]types.Token, error) {
	body, err := b.do(ctx, http.MethodGet, "/v1/tokens", nil)
	if err != nil {
		return nil, err
	}

	var tokens []types.Token
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode tokens response: %w", err)
	}
	return tokens, nil
}

func (b *RESTBackend) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(projectHeader, b.projectID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage extracts a message from an error body, falling back to the raw text
func errorMessage(body []byte) string {
	var errorResp map[string]interface{}
	if err := json.Unmarshal(body, &errorResp); err == nil {
		if message, ok := errorResp["message"].(string); ok {
			return message
		}
		if message, ok := errorResp["error"].(string); ok {
			return message
		}
	}
	return strings.TrimSpace(string(body))
}
