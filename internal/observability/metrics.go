package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/licensebot/licensebot/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "licensebot"

type AppMetrics struct {
	activationCounter metric.Int64Counter
	revocationCounter metric.Int64Counter
	authLoginCounter  metric.Int64Counter
	authLogoutCounter metric.Int64Counter
	repositoryCounter metric.Int64Counter
	botCommandCounter metric.Int64Counter
	roleSyncCounter   metric.Int64Counter
	sessionCounter    metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTEL.MetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTEL.Endpoint)}
	if cfg.OTEL.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTEL.MetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	setAppMetrics(m)

	logger.Info("otel metrics initialized", "endpoint", cfg.OTEL.Endpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var (
		m   AppMetrics
		err error
	)
	counters := []struct {
		name string
		dst  *metric.Int64Counter
	}{
		{"license.activations", &m.activationCounter},
		{"license.revocations", &m.revocationCounter},
		{"auth.login.attempts", &m.authLoginCounter},
		{"auth.logout.attempts", &m.authLogoutCounter},
		{"repository.operations", &m.repositoryCounter},
		{"bot.commands", &m.botCommandCounter},
		{"bot.role_sync.events", &m.roleSyncCounter},
		{"session.validations", &m.sessionCounter},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}
	return &m, nil
}

func setAppMetrics(m *AppMetrics) {
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
}

func currentMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordLicenseActivation(ctx context.Context, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.activationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordLicenseRevocation(ctx context.Context, source, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.revocationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthLogin(ctx context.Context, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.authLoginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAuthLogout(ctx context.Context, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.authLogoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordRepositoryOperation(ctx context.Context, repo, op, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.repositoryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repo),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func RecordBotCommand(ctx context.Context, command, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.botCommandCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}

func RecordRoleSync(ctx context.Context, action, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.roleSyncCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordSessionValidation(ctx context.Context, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.sessionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
