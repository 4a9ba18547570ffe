package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Apply(t *testing.T) {
	t.Parallel()

	opt := newDefaultOptions()
	cfg := Config{Endpoint: "collector:4317", LogLevel: "info", LogFormat: "json", TraceSampleRate: 0.5}
	cfg.applyToOptions(&opt)
	opt.apply(Options{ServiceName: "stash", LogLevel: "debug"})

	assert.Equal(t, "stash", opt.ServiceName)
	assert.Equal(t, "collector:4317", opt.Endpoint)
	assert.Equal(t, "debug", opt.LogLevel)
	assert.Equal(t, LogFormatJSON, opt.LogFormat)
	assert.InDelta(t, 0.5, opt.TraceSampleRate, 1e-9)
	require.NoError(t, opt.validate())
}

func TestOptions_Validate(t *testing.T) {
	t.Parallel()

	valid := Options{
		ServiceName:     "stash",
		LogLevel:        "info",
		LogFormat:       LogFormatPretty,
		TraceSampleRate: 1.0,
	}

	tests := []struct {
		name    string
		modify  func(*Options)
		wantErr bool
	}{
		{name: "valid", modify: func(*Options) {}},
		{name: "missing service name", modify: func(o *Options) { o.ServiceName = "" }, wantErr: true},
		{name: "enabled without endpoint", modify: func(o *Options) { o.Enabled = true }, wantErr: true},
		{name: "bad log level", modify: func(o *Options) { o.LogLevel = "loud" }, wantErr: true},
		{name: "undefined format", modify: func(o *Options) { o.LogFormat = LogFormatUndefined }, wantErr: true},
		{name: "sample rate too high", modify: func(o *Options) { o.TraceSampleRate = 1.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opt := valid
			tt.modify(&opt)
			err := opt.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LogFormatJSON, ParseLogFormat("JSON"))
	assert.Equal(t, LogFormatPretty, ParseLogFormat("pretty"))
	assert.Equal(t, LogFormatUndefined, ParseLogFormat("xml"))
	assert.Equal(t, "json", LogFormatJSON.String())
	assert.Equal(t, "undefined", LogFormat(42).String())
}

func TestNewLogger_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newLogger(Options{LogLevel: "warn", LogFormat: LogFormatJSON}, &buf)

	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Str("key", "value").Msg("kept")
	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "kept", fields["message"])
	assert.Equal(t, "value", fields["key"])
	assert.Equal(t, zerolog.WarnLevel.String(), fields["level"])
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("OTEL_LOG_LEVEL", "debug")
	t.Setenv("OTEL_LOG_FORMAT", "json")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Enabled)

	tel, err := New(Options{ServiceName: "stash"})
	require.NoError(t, err)
	assert.NotNil(t, tel.Tracer)
	assert.Equal(t, zerolog.DebugLevel, tel.Logger("bench").GetLevel())
	require.NoError(t, tel.Shutdown(context.Background()))

	t.Setenv("OTEL_LOG_FORMAT", "xml")
	_, err = loadConfig()
	assert.Error(t, err)
}

func TestConsoleLogger(t *testing.T) {
	t.Parallel()

	logger := ConsoleLogger("storage")
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
