package onlineasr

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ieee0824/onlineasr-go/internal/observe"
)

type options struct {
	logger        *slog.Logger
	meterProvider metric.MeterProvider
}

// Option configures a Model.
type Option func(*options)

// WithLogger sets the logger used by the model and every decoder built from it.
// The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeterProvider records decoding metrics through mp. The default records nothing.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

func buildOptions(opts []Option) (options, *observe.Metrics, error) {
	o := options{
		logger:        slog.New(slog.DiscardHandler),
		meterProvider: noop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	m, err := observe.NewMetrics(o.meterProvider)
	if err != nil {
		return o, nil, err
	}
	return o, m, nil
}
