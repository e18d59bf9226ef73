package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/membership/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithOrgID(ctx, "42")
	ctx = obscontext.WithActor(ctx, "user", "7")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "42", fields["org_id"])
		assert.Equal(t, "user", fields["actor_type"])
		assert.Equal(t, "7", fields["actor_id"])
		assert.Equal(t, "", fields["trace_id"])
	}
}

func TestWithContextCarriesSpanIDs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	assert.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	assert.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	WithContext(ctx, zap.New(core)).Info("traced")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, traceID.String(), fields["trace_id"])
		assert.Equal(t, spanID.String(), fields["span_id"])
		assert.Equal(t, "", fields["org_id"])
	}
}

func TestFieldHelpersTolerateNilLogger(t *testing.T) {
	assert.Nil(t, WithOrg(nil, "1"))
	assert.Nil(t, WithActor(nil, "user", "1"))
	assert.Nil(t, WithRequest(nil, "req", "", ""))

	core, logs := observer.New(zap.InfoLevel)
	WithOrg(zap.New(core), " 42 ").Info("scoped")
	if assert.Len(t, logs.All(), 1) {
		assert.Equal(t, "42", logs.All()[0].ContextMap()["org_id"])
	}
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("  select * from organizations"))
	assert.Equal(t, "UPDATE", operationFromSQL("UPDATE otp_records SET status = 'expired'"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}
