package configsvc

import (
	"context"

	"github.com/signalsfoundry/radio-emulator/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDMetadataKey carries a caller-chosen request id.
const RequestIDMetadataKey = "x-request-id"

// RequestIDUnaryServerInterceptor puts a request id and a request logger on
// the context. The id comes from RequestIDMetadataKey when the caller sent
// one. The logger carries the method and, when the body names one, the radio.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if id := incomingRequestID(ctx); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}

		l := base.With(logging.String("method", info.FullMethod))
		if radio := requestRadio(req); radio != "" {
			l = logging.ForRadio(l, radio)
		}
		ctx, l = logging.WithRequestLogger(ctx, l)
		return handler(logging.ContextWithLogger(ctx, l), req)
	}
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
