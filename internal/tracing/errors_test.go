package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func endedSpan(t *testing.T, record func(tp *sdktrace.TracerProvider)) sdktrace.ReadOnlySpan {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	record(tp)
	ended := sr.Ended()
	require.Len(t, ended, 1)
	return ended[0]
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestRecordRabbitMQNack(t *testing.T) {
	span := endedSpan(t, func(tp *sdktrace.TracerProvider) {
		_, s := tp.Tracer("test").Start(context.Background(), "publish")
		RecordRabbitMQNack(s, "sess-1", "")
		s.End()
	})

	a := attrs(span)
	assert.Equal(t, "rabbitmq", a["error.type"].AsString())
	assert.Equal(t, "sess-1", a["messaging.message_id"].AsString())
	assert.Equal(t, "nack", a["messaging.error_type"].AsString())
	assert.False(t, a["messaging.rabbitmq.confirmed"].AsBool())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, "message not acknowledged by broker", span.Status().Description)
}

func TestRecordHTTPErrorCategories(t *testing.T) {
	span := endedSpan(t, func(tp *sdktrace.TracerProvider) {
		_, s := tp.Tracer("test").Start(context.Background(), "fetch")
		RecordHTTPError(s, errors.New("forbidden"), 403)
		s.End()
	})

	a := attrs(span)
	assert.Equal(t, "access_denied", a["error.category"].AsString())
	assert.Equal(t, int64(403), a["http.status_code"].AsInt64())
	assert.Len(t, span.Events(), 1, "错误作为事件记录")
}
