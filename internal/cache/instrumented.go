package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	metricsOnce     sync.Once
	cacheOperations metric.Int64Counter
	cacheDuration   metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/forgetrack/forgetrack/internal/cache")

		var err error
		cacheOperations, err = meter.Int64Counter(
			"cache.operations",
			metric.WithDescription("Total durable cache tier operations"),
		)
		if err != nil {
			otel.Handle(err)
		}

		cacheDuration, err = meter.Float64Histogram(
			"cache.operation.duration",
			metric.WithDescription("Durable cache tier operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// Instrumented wraps a DurableTier with metrics instrumentation. The
// fast tier records its own statistics via otter; this covers the I/O
// bound tier where latency and failures actually matter.
type Instrumented struct {
	wrapped DurableTier
}

// NewInstrumented creates an instrumented durable tier wrapper.
func NewInstrumented(tier DurableTier) *Instrumented {
	initMetrics()
	return &Instrumented{wrapped: tier}
}

func (i *Instrumented) Get(ctx context.Context, key string) (Entry, bool, error) {
	start := time.Now()

	entry, found, err := i.wrapped.Get(ctx, key)

	duration := time.Since(start)
	i.recordDuration(ctx, "get", duration)

	status := "miss"
	if err != nil {
		status = "error"
	} else if found {
		status = "hit"
	}
	i.recordOperation(ctx, "get", status)
	i.setSpanAttributes(ctx, "get", status, duration)

	return entry, found, err
}

func (i *Instrumented) Set(ctx context.Context, key string, entry Entry) error {
	start := time.Now()

	err := i.wrapped.Set(ctx, key, entry)

	duration := time.Since(start)
	i.recordDuration(ctx, "set", duration)
	i.recordOperation(ctx, "set", statusOf(err))
	i.setSpanAttributes(ctx, "set", statusOf(err), duration)

	return err
}

func (i *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()

	err := i.wrapped.Delete(ctx, key)

	duration := time.Since(start)
	i.recordDuration(ctx, "delete", duration)
	i.recordOperation(ctx, "delete", statusOf(err))
	i.setSpanAttributes(ctx, "delete", statusOf(err), duration)

	return err
}

func (i *Instrumented) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()

	removed, err := i.wrapped.DeleteExpired(ctx, now)

	duration := time.Since(start)
	i.recordDuration(ctx, "sweep", duration)
	i.recordOperation(ctx, "sweep", statusOf(err))
	i.setSpanAttributes(ctx, "sweep", statusOf(err), duration)

	return removed, err
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (i *Instrumented) recordOperation(ctx context.Context, operation, status string) {
	if cacheOperations == nil {
		return
	}
	cacheOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("cache.tier", "durable"),
			attribute.String("cache.operation", operation),
			attribute.String("cache.status", status),
		),
	)
}

func (i *Instrumented) recordDuration(ctx context.Context, operation string, duration time.Duration) {
	if cacheDuration == nil {
		return
	}
	cacheDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("cache.tier", "durable"),
			attribute.String("cache.operation", operation),
		),
	)
}

func (i *Instrumented) setSpanAttributes(ctx context.Context, operation, status string, duration time.Duration) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("cache.tier", "durable"),
		attribute.String("cache."+operation+".status", status),
		attribute.Float64("cache."+operation+".duration", duration.Seconds()),
	)
}
