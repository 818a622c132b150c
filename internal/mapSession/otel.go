package mapSession

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/japersik/weather-map/logger"
)

const instrumentationName = "github.com/japersik/weather-map/internal/mapSession"

const (
	outcomeOK         = "ok"
	outcomeFailed     = "failed"
	outcomeSuperseded = "superseded"
)

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type instruments struct {
	lookups  metric.Int64Counter
	searches metric.Int64Counter
	inflight metric.Int64UpDownCounter
}

// newInstruments falls back to no-op instruments for anything the meter refuses to create.
func newInstruments(m metric.Meter) *instruments {
	if m == nil {
		m = meter()
	}
	fallback := noop.NewMeterProvider().Meter(instrumentationName)
	inst := &instruments{}
	var err error

	inst.lookups, err = m.Int64Counter("mapsession.weather.lookups",
		metric.WithDescription("Weather lookups issued by map clicks, by outcome"),
		metric.WithUnit("{lookup}"))
	if err != nil {
		logger.WarnF("creating lookups counter: %v", err)
		inst.lookups, _ = fallback.Int64Counter("mapsession.weather.lookups")
	}

	inst.searches, err = m.Int64Counter("mapsession.geocode.searches",
		metric.WithDescription("Address searches, by outcome"),
		metric.WithUnit("{search}"))
	if err != nil {
		logger.WarnF("creating searches counter: %v", err)
		inst.searches, _ = fallback.Int64Counter("mapsession.geocode.searches")
	}

	inst.inflight, err = m.Int64UpDownCounter("mapsession.lookups.inflight",
		metric.WithDescription("Weather lookups currently in flight"),
		metric.WithUnit("{lookup}"))
	if err != nil {
		logger.WarnF("creating inflight counter: %v", err)
		inst.inflight, _ = fallback.Int64UpDownCounter("mapsession.lookups.inflight")
	}
	return inst
}

func (i *instruments) lookupDone(ctx context.Context, outcome string) {
	i.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (i *instruments) searchDone(ctx context.Context, outcome string) {
	i.searches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
