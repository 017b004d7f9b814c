// Package submit sends a quoted transaction through the connected wallet and
// reports the receipt to the backend.
package submit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"deposit-widget/pkg/apperr"
	"deposit-widget/pkg/client"
	"deposit-widget/pkg/metrics"
	"deposit-widget/pkg/types"
	"deposit-widget/pkg/wallet"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var ErrInvalidQuote = errors.New("quote has no usable transaction request")

const (
	DefaultReceiptRetries  = 3
	DefaultReceiptInterval = time.Second
	receiptTimeout         = 30 * time.Second
)

// StatusSink receives the transaction status transitions of a submission
type StatusSink interface {
	SetStatus(status types.TxStatus, err *apperr.Error)
}

// WalletSource returns the active wallet capability, or nil
type WalletSource interface {
	Wallet() wallet.Capability
}

type Config struct {
	Wallet  WalletSource
	Backend client.Backend
	Sink    StatusSink
	Metrics *metrics.DepositMetrics

	ReceiptRetries  uint64
	ReceiptInterval time.Duration
}

type Submitter struct {
	cfg Config

	mu     sync.Mutex
	result *types.SubmissionResult

	receipts       conc.WaitGroup
	receiptCtx     context.Context
	cancelReceipts context.CancelFunc

	log zerolog.Logger
}

func NewSubmitter(cfg Config) (*Submitter, error) {
	if cfg.Wallet == nil || cfg.Backend == nil || cfg.Sink == nil {
		return nil, errors.New("submitter requires a wallet source, backend and status sink")
	}
	if cfg.ReceiptRetries == 0 {
		cfg.ReceiptRetries = DefaultReceiptRetries
	}
	if cfg.ReceiptInterval <= 0 {
		cfg.ReceiptInterval = DefaultReceiptInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Submitter{
		cfg:            cfg,
		receiptCtx:     ctx,
		cancelReceipts: cancel,
		log:            log.With().Str("component", "submitter").Logger(),
	}, nil
}

// Submit prompts the wallet exactly once for quote's transaction. fallback
// is the selected source chain, used when the request carries none. On
// failure the error is classified, reported to the sink and no result is
// recorded.
func (s *Submitter) Submit(ctx context.Context, quote *types.RouteQuote, fallback types.ChainID) (*types.SubmissionResult, error) {
	if quote == nil || !quote.TxRequest.Usable() {
		return nil, apperr.New(apperr.KindRoute, ErrInvalidQuote)
	}
	w := s.cfg.Wallet.Wallet()
	if w == nil {
		return nil, apperr.Classify(wallet.ErrNotConnected)
	}

	s.mu.Lock()
	s.result = nil
	s.mu.Unlock()

	s.cfg.Sink.SetStatus(types.TxConfirming, nil)

	hash, err := w.SendTransaction(ctx, quote.TxRequest, fallback)
	if err == nil && hash == "" {
		err = fmt.Errorf("wallet returned an empty transaction hash")
	}
	if err != nil {
		appErr := apperr.Classify(err)
		s.log.Warn().Err(err).Str("kind", string(appErr.Kind)).Str("intentId", quote.IntentID).Msg("submission failed")
		s.cfg.Metrics.TrackSubmission(ctx, string(appErr.Kind))
		s.cfg.Sink.SetStatus(types.TxError, appErr)
		return nil, appErr
	}

	result := &types.SubmissionResult{TxHash: hash, IntentID: quote.IntentID}
	s.mu.Lock()
	s.result = result
	s.mu.Unlock()

	s.log.Info().Str("txHash", hash).Str("intentId", quote.IntentID).Msg("transaction submitted")
	s.cfg.Metrics.TrackSubmission(ctx, "success")
	s.cfg.Sink.SetStatus(types.TxProcessing, nil)

	if result.IntentID != "" {
		s.receipts.Go(func() {
			s.notifyReceipt(*result)
		})
	}

	return result, nil
}

// notifyReceipt tells the backend about the transaction. Failures are only logged.
func (s *Submitter) notifyReceipt(result types.SubmissionResult) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.ReceiptInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.cfg.ReceiptRetries), s.receiptCtx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		ctx, cancel := context.WithTimeout(s.receiptCtx, receiptTimeout)
		defer cancel()

		err := s.cfg.Backend.SubmitReceipt(ctx, result.IntentID, result.TxHash)
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if err != nil {
		s.log.Warn().Err(err).Int("attempts", attempt).Str("intentId", result.IntentID).Msg("receipt notification failed")
		return
	}
	s.log.Debug().Str("intentId", result.IntentID).Msg("receipt acknowledged")
}

// Result returns the last successful submission, or nil
func (s *Submitter) Result() *types.SubmissionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Reset forgets the recorded submission
func (s *Submitter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = nil
}

// Wait blocks until detached receipt notifications are done
func (s *Submitter) Wait() {
	s.receipts.Wait()
}

// Close abandons pending receipt notifications
func (s *Submitter) Close() {
	s.cancelReceipts()
	s.receipts.Wait()
}
