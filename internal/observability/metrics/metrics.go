package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	otpGenerated          metric.Int64Counter
	otpVerifications      metric.Int64Counter
	otpDeliveryFailures   metric.Int64Counter
	invitationTransitions metric.Int64Counter
	membershipChanges     metric.Int64Counter
	rateLimitAllowed      metric.Int64Counter
	rateLimitDenied       metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "membership"
	}
	meter := provider.Meter(name)

	otpGenerated, err := meter.Int64Counter("membership_otp_generated_total")
	if err != nil {
		return nil, err
	}
	otpVerifications, err := meter.Int64Counter("membership_otp_verifications_total")
	if err != nil {
		return nil, err
	}
	otpDeliveryFailures, err := meter.Int64Counter("membership_otp_delivery_failures_total")
	if err != nil {
		return nil, err
	}
	invitationTransitions, err := meter.Int64Counter("membership_invitation_transitions_total")
	if err != nil {
		return nil, err
	}
	membershipChanges, err := meter.Int64Counter("membership_member_changes_total")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("membership_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("membership_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		otpGenerated:          otpGenerated,
		otpVerifications:      otpVerifications,
		otpDeliveryFailures:   otpDeliveryFailures,
		invitationTransitions: invitationTransitions,
		membershipChanges:     membershipChanges,
		rateLimitAllowed:      rateLimitAllowed,
		rateLimitDenied:       rateLimitDenied,
	}, nil
}

// RecordOTPGenerated increments issued code counts.
func (m *Metrics) RecordOTPGenerated(ctx context.Context, otpType, channel string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("otp_type", strings.TrimSpace(otpType)),
		attribute.String("channel", strings.TrimSpace(channel)),
	)
	m.otpGenerated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOTPVerification counts verification attempts by outcome.
func (m *Metrics) RecordOTPVerification(ctx context.Context, otpType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("otp_type", strings.TrimSpace(otpType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.otpVerifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOTPDeliveryFailure increments failed delivery counts.
func (m *Metrics) RecordOTPDeliveryFailure(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("channel", strings.TrimSpace(channel)))
	m.otpDeliveryFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvitationTransition counts invitations entering a status.
func (m *Metrics) RecordInvitationTransition(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.invitationTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMemberChange counts membership mutations such as joined or removed.
func (m *Metrics) RecordMemberChange(ctx context.Context, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.membershipChanges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Member, org and invitation ids never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"otp_type":    {},
	"channel":     {},
	"outcome":     {},
	"status":      {},
	"action":      {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
