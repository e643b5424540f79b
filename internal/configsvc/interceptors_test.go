package configsvc

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/signalsfoundry/radio-emulator/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestRequestIDInterceptorUsesMetadata(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(nil)
	info := &grpc.UnaryServerInfo{FullMethod: LockFullMethodName}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "req-42"))
	var gotID string
	var gotLogger logging.Logger
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, _ any) (any, error) {
		gotID = logging.RequestIDFromContext(ctx)
		gotLogger = logging.LoggerFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor err = %v", err)
	}
	if gotID != "req-42" {
		t.Fatalf("request id = %q, want req-42", gotID)
	}
	if gotLogger == nil {
		t.Fatalf("no logger on context")
	}
}

func TestRequestIDInterceptorGeneratesID(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(logging.Noop())
	info := &grpc.UnaryServerInfo{FullMethod: ListRadiosFullMethodName}

	var gotID string
	_, _ = interceptor(context.Background(), nil, info, func(ctx context.Context, _ any) (any, error) {
		gotID = logging.RequestIDFromContext(ctx)
		return nil, nil
	})
	if gotID == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestRequestIDInterceptorBindsRadio(t *testing.T) {
	var buf bytes.Buffer
	interceptor := RequestIDUnaryServerInterceptor(logging.NewWithWriter(&buf, logging.Config{Format: "json"}))
	info := &grpc.UnaryServerInfo{FullMethod: UnlockFullMethodName}
	req, err := structpb.NewStruct(map[string]any{"radio": "tlm0"})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}

	_, _ = interceptor(context.Background(), req, info, func(ctx context.Context, _ any) (any, error) {
		logging.LoggerFromContext(ctx).Info(ctx, "handled")
		return nil, nil
	})

	out := buf.String()
	for _, want := range []string{`"radio":"tlm0"`, `"method":"` + UnlockFullMethodName + `"`, `"request_id":`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line %q missing %s", out, want)
		}
	}
}
