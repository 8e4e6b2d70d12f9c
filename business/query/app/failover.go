package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chainquery/internal/apperror"
	"github.com/fd1az/chainquery/internal/logger"
)

const (
	tracerName = "github.com/fd1az/chainquery/business/query/app"
	meterName  = "github.com/fd1az/chainquery/business/query/app"
)

// DefaultAttemptTimeout bounds the wait on a single endpoint before the
// rotation moves on.
const DefaultAttemptTimeout = 10 * time.Second

// failoverMetrics holds OTEL metric instruments.
type failoverMetrics struct {
	attempts        metric.Int64Counter
	attemptFailures metric.Int64Counter
	failovers       metric.Int64Counter
	exhausted       metric.Int64Counter
	attemptDuration metric.Float64Histogram
}

// FailoverExecutor runs a logical operation against endpoints in rotation
// until one succeeds, racing each attempt against a fixed timeout. Rotation
// starts from the endpoint that last succeeded, so a dead primary is not
// re-tried before a working secondary on every call.
type FailoverExecutor struct {
	pool    ProviderPool
	timeout time.Duration
	logger  logger.LoggerInterface

	tracer  trace.Tracer
	metrics *failoverMetrics
}

// NewFailoverExecutor creates an executor over the given pool. A
// non-positive timeout falls back to DefaultAttemptTimeout.
func NewFailoverExecutor(pool ProviderPool, timeout time.Duration, log logger.LoggerInterface) (*FailoverExecutor, error) {
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}

	e := &FailoverExecutor{
		pool:    pool,
		timeout: timeout,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

// initMetrics initializes OTEL metric instruments.
func (e *FailoverExecutor) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &failoverMetrics{}

	e.metrics.attempts, err = meter.Int64Counter(
		"rpc_attempts_total",
		metric.WithDescription("Total per-endpoint RPC attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	e.metrics.attemptFailures, err = meter.Int64Counter(
		"rpc_attempt_failures_total",
		metric.WithDescription("Per-endpoint RPC attempts that failed or timed out"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return err
	}

	e.metrics.failovers, err = meter.Int64Counter(
		"rpc_failovers_total",
		metric.WithDescription("Calls that succeeded only after leaving the first endpoint tried"),
		metric.WithUnit("{failover}"),
	)
	if err != nil {
		return err
	}

	e.metrics.exhausted, err = meter.Int64Counter(
		"rpc_rotations_exhausted_total",
		metric.WithDescription("Calls for which every configured endpoint failed"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	e.metrics.attemptDuration, err = meter.Float64Histogram(
		"rpc_attempt_duration_ms",
		metric.WithDescription("Duration of individual endpoint attempts"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Operation is one logical read executed against a single endpoint.
type Operation[T any] func(ctx context.Context, p Provider) (T, error)

// Execute runs op against endpoints in rotation order starting from the
// pool's last-good index. The first success wins and moves the cursor; if
// every endpoint fails the call fails with AllProvidersUnavailable carrying
// the last attempt's error. There is no outer retry.
func Execute[T any](ctx context.Context, e *FailoverExecutor, name string, op Operation[T]) (T, error) {
	var zero T

	providers := e.pool.Providers()
	n := len(providers)
	start := e.pool.StartIndex()

	ctx, span := e.tracer.Start(ctx, "query.failover",
		trace.WithAttributes(
			attribute.String("operation", name),
			attribute.Int("endpoints", n),
		),
	)
	defer span.End()

	var lastErr error

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		p := providers[idx]

		attrs := metric.WithAttributes(
			attribute.String("operation", name),
			attribute.String("endpoint", p.Name()),
		)
		e.metrics.attempts.Add(ctx, 1, attrs)

		began := time.Now()
		v, err := attempt(ctx, e, p, op)
		e.metrics.attemptDuration.Record(ctx, float64(time.Since(began).Milliseconds()), attrs)

		if err == nil {
			e.pool.RecordSuccess(idx)
			if i > 0 {
				e.metrics.failovers.Add(ctx, 1, attrs)
				e.logger.Info(ctx, "failover recovered",
					"operation", name, "endpoint", p.Name(), "attempts", i+1)
			}
			span.SetStatus(codes.Ok, "succeeded")
			span.SetAttributes(attribute.Int("attempts", i+1))
			return v, nil
		}

		lastErr = err
		e.metrics.attemptFailures.Add(ctx, 1, attrs)
		e.logger.Warn(ctx, "rpc attempt failed",
			"operation", name, "endpoint", p.Name(), "attempt", i+1, "error", err)

		if ctx.Err() != nil {
			break
		}
	}

	e.metrics.exhausted.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", name)))
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all endpoints failed")

	return zero, apperror.New(apperror.CodeAllProvidersUnavailable,
		apperror.WithCause(lastErr),
		apperror.WithContext(fmt.Sprintf("%s: %d endpoints tried", name, n)))
}

// attempt races one provider call against the attempt timeout. A losing call
// is abandoned, not cancelled: every operation here is a read-only query that
// is safe to leave running, and the buffered channel keeps the abandoned
// goroutine from blocking forever.
func attempt[T any](ctx context.Context, e *FailoverExecutor, p Provider, op Operation[T]) (T, error) {
	var zero T

	type outcome struct {
		v   T
		err error
	}

	resCh := make(chan outcome, 1)
	go func() {
		v, err := op(ctx, p)
		resCh <- outcome{v: v, err: err}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		if res.err != nil {
			return zero, apperror.Wrap(res.err, apperror.CodeProviderError, p.Name())
		}
		return res.v, nil

	case <-timer.C:
		return zero, apperror.New(apperror.CodeProviderTimeout,
			apperror.WithContext(fmt.Sprintf("%s after %s", p.Name(), e.timeout)))

	case <-ctx.Done():
		return zero, apperror.Wrap(ctx.Err(), apperror.CodeProviderError, p.Name())
	}
}
