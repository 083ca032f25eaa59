package history

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/codeready-toolchain/tarsy-core/pkg/database"
)

// opCreateSession is never retried: an ambiguous insert failure must surface
// instead of risking a duplicate session row.
const opCreateSession = "create_session"

// errNotFound is returned by repository lookups when the row does not exist.
// It lets the retry wrapper tell "logically absent" apart from a failed call.
var errNotFound = errors.New("not found")

type retryOptions struct {
	treatNoneAsSuccess bool
}

// RetryOption customizes a single RetryDatabaseOperation call.
type RetryOption func(*retryOptions)

// TreatNoneAsSuccess accepts a nil result (or errNotFound) as a legitimate
// answer instead of a failed attempt. Use it for lookups.
func TreatNoneAsSuccess() RetryOption {
	return func(o *retryOptions) { o.treatNoneAsSuccess = true }
}

// RetryDatabaseOperation runs fn with exponential backoff on retryable
// errors. It never returns an error: the bool is false when the operation
// did not happen (unhealthy infra, non-retryable error, retries exhausted or
// context cancelled), and callers must not read the zero value as "no
// effect".
func RetryDatabaseOperation[T any](ctx context.Context, infra Infra, name string, fn func(ctx context.Context) (T, error), opts ...RetryOption) (T, bool) {
	var zero T
	if !infra.IsHealthy() {
		slog.Debug("History database unavailable, skipping operation", "operation", name)
		return zero, false
	}

	var o retryOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := infra.RetryConfig()
	attempts := cfg.MaxRetries + 1
	if name == opCreateSession || attempts < 1 {
		attempts = 1
	}
	driver := infra.Driver()
	metrics := infra.Metrics()
	attrs := metric.WithAttributes(attribute.String("operation", name))

	log := slog.With("operation", name)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg, attempt-1)
			log.Warn("Retrying database operation",
				"attempt", attempt+1, "max_attempts", attempts, "delay", delay, "error", lastErr)
			metrics.DBRetries.Add(ctx, 1, attrs)
			if !sleepCtx(ctx, delay) {
				log.Warn("Database operation abandoned, context done", "error", ctx.Err())
				return zero, false
			}
		}

		result, err := fn(ctx)
		switch {
		case errors.Is(err, errNotFound):
			if o.treatNoneAsSuccess {
				return zero, true
			}
			lastErr = err
			continue
		case err != nil:
			lastErr = err
			if ctx.Err() != nil {
				log.Warn("Database operation abandoned, context done", "error", err)
				return zero, false
			}
			if !database.IsRetryable(driver, err) {
				log.Error("Database operation failed with non-retryable error", "error", err)
				return zero, false
			}
			continue
		case isNone(result) && !o.treatNoneAsSuccess:
			lastErr = errors.New("operation returned no result")
			continue
		}
		return result, true
	}

	log.Error("Database operation failed after all attempts", "attempts", attempts, "error", lastErr)
	metrics.DBRetryExhausted.Add(ctx, 1, attrs)
	return zero, false
}

// RetryResult is delivered by RetryDatabaseOperationAsync.
type RetryResult[T any] struct {
	Value T
	OK    bool
}

// RetryDatabaseOperationAsync runs RetryDatabaseOperation on its own
// goroutine. The returned channel receives exactly one result and is then
// closed.
func RetryDatabaseOperationAsync[T any](ctx context.Context, infra Infra, name string, fn func(ctx context.Context) (T, error), opts ...RetryOption) <-chan RetryResult[T] {
	out := make(chan RetryResult[T], 1)
	go func() {
		defer close(out)
		v, ok := RetryDatabaseOperation(ctx, infra, name, fn, opts...)
		out <- RetryResult[T]{Value: v, OK: ok}
	}()
	return out
}

// backoffDelay returns base*2^n capped at max, plus up to 10% jitter.
func backoffDelay(cfg RetryConfig, n int) time.Duration {
	delay := cfg.BaseDelay
	for i := 0; i < n && delay < cfg.MaxDelay; i++ {
		delay *= 2
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if delay <= 0 {
		return 0
	}
	return delay + time.Duration(rand.Int64N(int64(delay)/10+1))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// isNone reports whether v is a nil pointer, interface, map or slice.
func isNone(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
