// Package tracer is a small tracing abstraction for identity verification so
// the service emits spans without importing OpenTelemetry directly.
//
// NoopTracer is used in tests; OTelTracer adapts the global OpenTelemetry provider.
package tracer

import (
	"context"
	"time"
)

// Span must be ended exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

const (
	SpanVerify         = "identity.verify"
	SpanProviderSubmit = "identity.provider.submit"
)

const (
	AttrBVNSuffix      = "bvn.suffix"
	AttrResultCode     = "provider.result_code"
	AttrSuccess        = "verification.success"
	AttrErrorCategory  = "provider.error_category"
	AttrHTTPStatus     = "http.status_code"
	AttrProviderTarget = "provider.base_url"
)
