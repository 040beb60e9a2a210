package tracer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNoopTracer(t *testing.T) {
	ctx := context.Background()
	newCtx, span := NewNoop().Start(ctx, SpanVerify, String(AttrBVNSuffix, "0000"))

	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)
	span.SetAttributes(Bool(AttrSuccess, true))
	span.AddEvent("provider.responded", Duration("latency", 120*time.Millisecond))
	span.End(errors.New("boom"))
}

func TestOTelTracer_WithInjectedTracer(t *testing.T) {
	tr := NewOTel(WithOTelTracer(noop.NewTracerProvider().Tracer("test")))

	_, span := tr.Start(context.Background(), SpanProviderSubmit,
		String(AttrResultCode, "1012"),
		Int64(AttrHTTPStatus, 200),
	)
	span.SetAttributes(String(AttrErrorCategory, "timeout"))
	span.End(errors.New("timeout"))
}

func TestToOTel_SkipsUnsupportedTypes(t *testing.T) {
	kvs := toOTel([]Attribute{String("a", "b"), {Key: "c", Value: struct{}{}}, Int64("d", 1)})
	assert.Len(t, kvs, 2)
	assert.Nil(t, toOTel(nil))
}
