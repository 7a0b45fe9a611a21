package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type engineMetrics struct {
	commits       metric.Int64Counter
	rejections    metric.Int64Counter
	compensations metric.Int64Counter
	duration      metric.Float64Histogram
}

func newEngineMetrics(meter metric.Meter) (*engineMetrics, error) {
	var (
		m   engineMetrics
		err error
	)
	if m.commits, err = meter.Int64Counter("pos.checkout.commits",
		metric.WithDescription("Committed sales"),
	); err != nil {
		return nil, errors.Wrap(err, "commits counter")
	}
	if m.rejections, err = meter.Int64Counter("pos.checkout.rejections",
		metric.WithDescription("Rejected checkout attempts by reason"),
	); err != nil {
		return nil, errors.Wrap(err, "rejections counter")
	}
	if m.compensations, err = meter.Int64Counter("pos.checkout.compensations",
		metric.WithDescription("Stock decrements undone after a failed commit"),
	); err != nil {
		return nil, errors.Wrap(err, "compensations counter")
	}
	if m.duration, err = meter.Float64Histogram("pos.checkout.duration",
		metric.WithDescription("Checkout duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "duration histogram")
	}
	return &m, nil
}

func (m *engineMetrics) observe(ctx context.Context, start time.Time, err error) {
	outcome := "committed"
	if err != nil {
		outcome = "rejected"
		m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", Reason(err))))
	} else {
		m.commits.Add(ctx, 1)
	}
	m.duration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
