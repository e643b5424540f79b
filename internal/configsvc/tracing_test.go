package configsvc

import (
	"context"
	"testing"

	"github.com/signalsfoundry/radio-emulator/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]string {
	out := map[attribute.Key]string{}
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestTracingInterceptorTagsExistingSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	req, err := structpb.NewStruct(map[string]any{"radio": "rx0", "param": "ch0/gain_dB"})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	ctx, span := tp.Tracer("test").Start(logging.ContextWithRequestID(context.Background(), "req-7"), "grpc")
	info := &grpc.UnaryServerInfo{FullMethod: LockFullMethodName}

	_, err = TracingUnaryServerInterceptor()(ctx, req, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "radio not found")
	})
	span.End()
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %v", status.Code(err))
	}

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	got := ended[0]
	if got.Name() != "Config/Lock" {
		t.Fatalf("span name = %q", got.Name())
	}
	attrs := spanAttrs(got)
	if attrs["radio"] != "rx0" || attrs["request_id"] != "req-7" || attrs["rpc.grpc.status"] != "NotFound" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if got.Status().Code == otelcodes.Error {
		t.Fatal("client errors should not mark the span as failed")
	}
}

func TestTracingInterceptorMarksInternalErrors(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "grpc")
	info := &grpc.UnaryServerInfo{FullMethod: ListRadiosFullMethodName}
	_, _ = TracingUnaryServerInterceptor()(ctx, &structpb.Struct{}, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.Internal, "solver diverged")
	})
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 || ended[0].Status().Code != otelcodes.Error {
		t.Fatalf("expected an error span, got %+v", ended)
	}
	if _, ok := spanAttrs(ended[0])["radio"]; ok {
		t.Fatal("radio attribute should be absent when the request names none")
	}
}

func TestRequestRadio(t *testing.T) {
	if got := requestRadio(nil); got != "" {
		t.Fatalf("nil request: %q", got)
	}
	if got := requestRadio("not a struct"); got != "" {
		t.Fatalf("foreign request: %q", got)
	}
	s, _ := structpb.NewStruct(map[string]any{"radio": 3.0})
	if got := requestRadio(s); got != "" {
		t.Fatalf("numeric radio: %q", got)
	}
}
