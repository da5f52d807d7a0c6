package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "timekeeper-authcore"

var (
	metricsOnce      sync.Once
	loginCounter     metric.Int64Counter
	tokenCounter     metric.Int64Counter
	repoCounter      metric.Int64Counter
	rateLimitCounter metric.Int64Counter
	cacheCounter     metric.Int64Counter
)

func initCounters() {
	meter := otel.Meter(meterName)
	if c, err := meter.Int64Counter("auth.login.outcomes"); err == nil {
		loginCounter = c
	}
	if c, err := meter.Int64Counter("auth.token.operations"); err == nil {
		tokenCounter = c
	}
	if c, err := meter.Int64Counter("repository.operations"); err == nil {
		repoCounter = c
	}
	if c, err := meter.Int64Counter("ratelimit.decisions"); err == nil {
		rateLimitCounter = c
	}
	if c, err := meter.Int64Counter("revocation_cache.lookups"); err == nil {
		cacheCounter = c
	}
}

// RecordLoginOutcome counts terminal login outcomes (authenticated,
// invalid_credentials, mfa_required, mfa_invalid, account_locked).
func RecordLoginOutcome(ctx context.Context, outcome string) {
	metricsOnce.Do(initCounters)
	if loginCounter == nil {
		return
	}
	loginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTokenOperation counts issue/rotate/revoke operations and outcomes.
func RecordTokenOperation(ctx context.Context, op, outcome string) {
	metricsOnce.Do(initCounters)
	if tokenCounter == nil {
		return
	}
	tokenCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

// RecordRepositoryOperation counts store operations per entity.
func RecordRepositoryOperation(ctx context.Context, entity, op, outcome string) {
	metricsOnce.Do(initCounters)
	if repoCounter == nil {
		return
	}
	repoCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

// RecordRateLimitDecision counts allow/deny/backend_error per scope.
func RecordRateLimitDecision(ctx context.Context, scope, outcome string) {
	metricsOnce.Do(initCounters)
	if rateLimitCounter == nil {
		return
	}
	rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
	))
}

// RecordRevocationLookup counts cache hits, misses and fallbacks.
func RecordRevocationLookup(ctx context.Context, outcome string) {
	metricsOnce.Do(initCounters)
	if cacheCounter == nil {
		return
	}
	cacheCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
