package configsvc

import (
	"context"

	"github.com/signalsfoundry/radio-emulator/internal/logging"
	"github.com/signalsfoundry/radio-emulator/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const tracerName = "github.com/signalsfoundry/radio-emulator/internal/configsvc"

// TracingUnaryServerInterceptor names the RPC span "Config/<method>" and tags
// it with the target radio and the resulting gRPC code. It reuses the span
// opened by the otelgrpc stats handler when there is one.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		_, method := observability.SplitMethod(info.FullMethod)
		spanName := "Config/" + method

		span := trace.SpanFromContext(ctx)
		owned := !span.SpanContext().IsValid()
		if owned {
			ctx, span = tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		} else {
			span.SetName(spanName)
		}

		span.SetAttributes(attribute.String("rpc.method", method))
		if radio := requestRadio(req); radio != "" {
			span.SetAttributes(attribute.String("radio", radio))
		}
		if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
			span.SetAttributes(attribute.String(logging.RequestIDKey, reqID))
		}

		resp, err := handler(ctx, req)
		code := status.Code(err)
		span.SetAttributes(attribute.String("rpc.grpc.status", code.String()))
		if err != nil {
			span.RecordError(err)
			// Rejections of the caller's input are not server faults.
			if code == codes.Internal || code == codes.Unknown {
				span.SetStatus(otelcodes.Error, err.Error())
			}
		}
		return resp, err
	}
}

// requestRadio peeks at the "radio" field of a Struct request body.
func requestRadio(req any) string {
	s, ok := req.(*structpb.Struct)
	if !ok || s == nil {
		return ""
	}
	return s.GetFields()["radio"].GetStringValue()
}

// StartChildSpan starts a span for one radio operation inside a handler.
func StartChildSpan(ctx context.Context, name, radioID string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(extra)+1)
	if radioID != "" {
		attrs = append(attrs, attribute.String("radio", radioID))
	}
	attrs = append(attrs, extra...)
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}
