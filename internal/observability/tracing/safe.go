package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// ExtractContext restores the remote span context from inbound headers.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// sensitiveSegments are matched against whole key segments, so
// "invitation.token" and "otp_id" are dropped while "http.status_code" is kept.
var sensitiveSegments = map[string]struct{}{
	"token":         {},
	"otp":           {},
	"password":      {},
	"secret":        {},
	"authorization": {},
	"email":         {},
}

// redactedParams are masked when they appear as key=value in error text.
var redactedParams = []string{"token", "code", "otp", "password", "secret", "authorization", "email"}

// SafeAttributes drops attributes whose key suggests a credential or personal data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitiveKey(string(attr.Key)) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError reduces an error to its message with bearer material masked.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, key := range redactedParams {
		if idx := strings.Index(lower, key+"="); idx >= 0 {
			msg = msg[:idx] + key + "=[redacted]"
			break
		}
	}
	return errors.New(msg)
}

func isSensitiveKey(key string) bool {
	segments := strings.FieldsFunc(strings.ToLower(key), func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for _, segment := range segments {
		if _, ok := sensitiveSegments[segment]; ok {
			return true
		}
	}
	return false
}
