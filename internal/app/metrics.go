package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// registerPoolMetrics exports pgxpool statistics through the OTel meter.
func registerPoolMetrics(m *app.Telemetry, pool *pgxpool.Pool) error {
	meter := m.MeterProvider().Meter("github.com/buildkart/buildkart/internal/app")

	usage, err := meter.Int64ObservableUpDownCounter("db.client.connections.usage",
		metric.WithDescription("Open connections in the pool, by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return errors.Wrap(err, "usage instrument")
	}
	limit, err := meter.Int64ObservableUpDownCounter("db.client.connections.max",
		metric.WithDescription("Configured connection pool limit"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return errors.Wrap(err, "limit instrument")
	}
	waits, err := meter.Int64ObservableCounter("db.client.connections.wait_count",
		metric.WithDescription("Acquires that waited for a free connection"),
	)
	if err != nil {
		return errors.Wrap(err, "wait instrument")
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := pool.Stat()
		o.ObserveInt64(usage, int64(s.AcquiredConns()),
			metric.WithAttributes(attribute.String("state", "used")))
		o.ObserveInt64(usage, int64(s.IdleConns()),
			metric.WithAttributes(attribute.String("state", "idle")))
		o.ObserveInt64(limit, int64(s.MaxConns()))
		o.ObserveInt64(waits, s.EmptyAcquireCount())
		return nil
	}, usage, limit, waits)
	return errors.Wrap(err, "register callback")
}
