// Package telemetry builds the logger and tracer used by the storage engine and its tools.
package telemetry

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds the process logger and tracer until Shutdown flushes the exporter.
type Telemetry struct {
	Tracer trace.Tracer

	logger   zerolog.Logger
	service  string
	shutdown func(context.Context) error
}

// New loads the telemetry config from the environment, applies opts on top, and sets up logging
// and tracing.
func New(opts Options) (*Telemetry, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load telemetry config")
	}

	options := newDefaultOptions()
	config.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid telemetry options")
	}

	tracer, logger, shutdown, err := setupOpenTelemetry(context.Background(), options)
	if err != nil {
		return nil, eris.Wrap(err, "failed to setup telemetry")
	}
	return &Telemetry{Tracer: tracer, logger: logger, service: options.ServiceName, shutdown: shutdown}, nil
}

// Logger returns the process logger tagged as <service>.<component>.
func (t *Telemetry) Logger(component string) zerolog.Logger {
	return t.logger.With().Str("component", t.service+"."+component).Logger()
}

// Shutdown flushes and stops the trace exporter.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}

// ConsoleLogger returns an info-level console logger on stderr, tagged with component. Library code
// uses it when the caller configured no logger.
func ConsoleLogger(component string) zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
