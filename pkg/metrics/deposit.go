// Package metrics holds the OpenTelemetry instruments of the deposit flow. A
// nil *DepositMetrics is valid and records nothing.
package metrics

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	SESSION_TTL = time.Minute * 10
)

type DepositMetrics struct {
	quoteLatencyHistogram metric.Float64Histogram
	quoteCounter          metric.Int64Counter
	submissionCounter     metric.Int64Counter
	pollCounter           metric.Int64Counter
	activeSessionsGauge   metric.Int64ObservableGauge

	depositTimeHistogram  metric.Float64Histogram
	sessionStartTimeCache *ttlcache.Cache[string, time.Time]
}

// NewDepositMetrics initializes metrics for quoting, submission and polling
func NewDepositMetrics(meter metric.Meter) (*DepositMetrics, error) {
	quoteLatencyHistogram, err := meter.Float64Histogram(
		"deposit.QuoteLatencySeconds",
		metric.WithDescription("Latency of route quote requests"),
	)
	if err != nil {
		return nil, err
	}
	quoteCounter, err := meter.Int64Counter(
		"deposit.Quotes",
		metric.WithDescription("Route quote requests by outcome"),
	)
	if err != nil {
		return nil, err
	}
	submissionCounter, err := meter.Int64Counter(
		"deposit.Submissions",
		metric.WithDescription("Transaction submissions by outcome"),
	)
	if err != nil {
		return nil, err
	}
	pollCounter, err := meter.Int64Counter(
		"deposit.StatusPolls",
		metric.WithDescription("Status polls by reported status"),
	)
	if err != nil {
		return nil, err
	}
	depositTimeHistogram, err := meter.Float64Histogram(
		"deposit.DepositTimeSeconds",
		metric.WithDescription("Time from submission to a terminal status"),
	)
	if err != nil {
		return nil, err
	}

	sessionStartTimeCache := ttlcache.New(
		ttlcache.WithTTL[string, time.Time](SESSION_TTL),
	)
	activeSessionsGauge, err := meter.Int64ObservableGauge(
		"deposit.ActivePollingSessions",
		metric.WithDescription("Polling sessions started and not yet finished"),
		metric.WithInt64Callback(func(ctx context.Context, result metric.Int64Observer) error {
			result.Observe(int64(sessionStartTimeCache.Len()))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return &DepositMetrics{
		quoteLatencyHistogram: quoteLatencyHistogram,
		quoteCounter:          quoteCounter,
		submissionCounter:     submissionCounter,
		pollCounter:           pollCounter,
		activeSessionsGauge:   activeSessionsGauge,
		depositTimeHistogram:  depositTimeHistogram,
		sessionStartTimeCache: sessionStartTimeCache,
	}, nil
}

func (m *DepositMetrics) TrackQuote(ctx context.Context, latency time.Duration, outcome string) {
	if m == nil {
		return
	}
	opts := metric.WithAttributes(attribute.String("outcome", outcome))
	m.quoteCounter.Add(ctx, 1, opts)
	m.quoteLatencyHistogram.Record(ctx, latency.Seconds(), opts)
}

func (m *DepositMetrics) TrackSubmission(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.submissionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *DepositMetrics) TrackPoll(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.pollCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *DepositMetrics) StartSession(sessionID string) {
	if m == nil {
		return
	}
	m.sessionStartTimeCache.Set(sessionID, time.Now(), ttlcache.DefaultTTL)
}

// Sessions returns the number of sessions started and not yet ended
func (m *DepositMetrics) Sessions() int {
	if m == nil {
		return 0
	}
	return m.sessionStartTimeCache.Len()
}

func (m *DepositMetrics) EndSession(sessionID string, outcome string) {
	if m == nil {
		return
	}
	startTime := m.sessionStartTimeCache.Get(sessionID)
	if startTime == nil {
		log.Warn().Msgf("Session start time with ID %s not found", sessionID)
		return
	}
	m.sessionStartTimeCache.Delete(sessionID)

	m.depositTimeHistogram.Record(
		context.Background(),
		time.Since(startTime.Value()).Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
