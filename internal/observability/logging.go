package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/licensebot/licensebot/internal/config"

	slogmulti "github.com/samber/slog-multi"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// NewLogger builds the process logger. Records always go to w as JSON; when
// OTEL logs are enabled they are also exported through the otelslog bridge.
func NewLogger(ctx context.Context, cfg *config.Config, w io.Writer) (*slog.Logger, *sdklog.LoggerProvider, error) {
	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)})
	if !cfg.OTEL.LogsEnabled {
		return slog.New(jsonHandler), nil, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTEL.Endpoint)}
	if cfg.OTEL.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp log exporter: %w", err)
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create log resource: %w", err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	bridge := otelslog.NewHandler(cfg.OTEL.ServiceName, otelslog.WithLoggerProvider(lp))
	return slog.New(fanout(jsonHandler, bridge)), lp, nil
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fanout sends every record to all handlers that accept its level.
func fanout(handlers ...slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return slogmulti.Fanout(handlers...)
}
