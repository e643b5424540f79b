// Package configsvc exposes radios of a core.KnowledgeBase over gRPC as
// radioemu.v1.ConfigService. Messages are google.protobuf.Struct bodies
// whose Go shapes live in messages.go.
package configsvc

import (
	"context"

	"github.com/signalsfoundry/radio-emulator/configurator"
	"github.com/signalsfoundry/radio-emulator/core"
	"github.com/signalsfoundry/radio-emulator/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "radioemu.v1.ConfigService"

const (
	LockFullMethodName       = "/" + ServiceName + "/Lock"
	UnlockFullMethodName     = "/" + ServiceName + "/Unlock"
	UnlockAllFullMethodName  = "/" + ServiceName + "/UnlockAll"
	GetRangesFullMethodName  = "/" + ServiceName + "/GetRanges"
	ListRadiosFullMethodName = "/" + ServiceName + "/ListRadios"
)

// ConfigServiceServer is the server API of radioemu.v1.ConfigService.
type ConfigServiceServer interface {
	Lock(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Unlock(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	UnlockAll(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GetRanges(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRadios(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes radioemu.v1.ConfigService for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConfigServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Lock", Handler: unary(LockFullMethodName, ConfigServiceServer.Lock)},
		{MethodName: "Unlock", Handler: unary(UnlockFullMethodName, ConfigServiceServer.Unlock)},
		{MethodName: "UnlockAll", Handler: unary(UnlockAllFullMethodName, ConfigServiceServer.UnlockAll)},
		{MethodName: "GetRanges", Handler: unary(GetRangesFullMethodName, ConfigServiceServer.GetRanges)},
		{MethodName: "ListRadios", Handler: unary(ListRadiosFullMethodName, ConfigServiceServer.ListRadios)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "radioemu/v1/config_service.proto",
}

// RegisterConfigServiceServer registers srv on s.
func RegisterConfigServiceServer(s grpc.ServiceRegistrar, srv ConfigServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](fullMethod string, call func(ConfigServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		invoke := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ConfigServiceServer), ctx, req.(*Req))
		}
		if interceptor == nil {
			return invoke(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, invoke)
	}
}

// Service implements ConfigServiceServer over a knowledge base.
type Service struct {
	kb  *core.KnowledgeBase
	log logging.Logger
}

var _ ConfigServiceServer = (*Service)(nil)

// NewService binds a Service to kb.
func NewService(kb *core.KnowledgeBase, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{kb: kb, log: log}
}

// Lock locks a parameter, and with apply set also configures the hardware.
// An infeasible lock is a successful RPC with locked=false.
func (s *Service) Lock(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var req LockRequest
	if err := decodeValid(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	radio, err := s.kb.GetRadio(req.Radio)
	if err != nil {
		return nil, ToStatusError(err)
	}
	reqLog := s.requestLogger(ctx)

	ctx, span := StartChildSpan(ctx, "radio/lock", req.Radio,
		attribute.String("param", req.Param),
		attribute.Bool("apply", req.Apply),
	)
	defer span.End()

	reply := LockReply{Radio: req.Radio, Param: req.Param}
	var res configurator.LockResult
	if req.Apply {
		var out core.ConfigureResult
		out, err = radio.Configure(ctx, req.Param, req.Value, req.Tolerance)
		res = out.LockResult
		reply.Applied = out.Locked
		reply.Actual = out.Actual
	} else {
		res, err = radio.Lock(ctx, req.Param, req.Value, req.Tolerance)
	}
	if err != nil {
		reqLog.Warn(ctx, "lock failed",
			logging.Radio(req.Radio),
			logging.Param(req.Param),
			logging.Err(err),
		)
		span.RecordError(err)
		return nil, ToStatusError(err)
	}

	reply.Locked = res.Locked
	reply.Diagnostic = res.Diagnostic
	reply.EmptyVars = res.EmptyVars
	reqLog.Debug(ctx, "lock handled",
		logging.Radio(req.Radio),
		logging.Param(req.Param),
		logging.Bool("locked", res.Locked),
	)
	return encodeReply(reply)
}

// Unlock releases one lock.
func (s *Service) Unlock(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var req ParamRequest
	if err := decodeValid(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	radio, err := s.kb.GetRadio(req.Radio)
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := StartChildSpan(ctx, "radio/unlock", req.Radio, attribute.String("param", req.Param))
	defer span.End()

	if err := radio.Unlock(ctx, req.Param); err != nil {
		span.RecordError(err)
		return nil, ToStatusError(err)
	}
	return &emptypb.Empty{}, nil
}

// UnlockAll releases every lock of a radio.
func (s *Service) UnlockAll(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var req RadioRequest
	if err := decodeValid(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	radio, err := s.kb.GetRadio(req.Radio)
	if err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := StartChildSpan(ctx, "radio/unlock_all", req.Radio)
	defer span.End()

	if err := radio.UnlockAll(ctx); err != nil {
		span.RecordError(err)
		return nil, ToStatusError(err)
	}
	s.requestLogger(ctx).Info(ctx, "all locks released", logging.Radio(req.Radio))
	return &emptypb.Empty{}, nil
}

// GetRanges returns feasible regions of the requested parameters.
func (s *Service) GetRanges(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var req RangesRequest
	if err := decodeValid(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	radio, err := s.kb.GetRadio(req.Radio)
	if err != nil {
		return nil, ToStatusError(err)
	}

	ranges, err := RadioRanges(radio, req.Params...)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return encodeReply(RangesReply{Radio: req.Radio, Ranges: ranges})
}

// ListRadios summarises every radio.
func (s *Service) ListRadios(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	reply := RadiosReply{Radios: []RadioInfo{}}
	for _, r := range s.kb.ListRadios() {
		reply.Radios = append(reply.Radios, RadioInfo{
			ID:            r.ID,
			TransceiverID: r.Model.ID,
			Params:        r.Params(),
			Locked:        len(r.Locks()),
		})
	}
	return encodeReply(reply)
}

// RadioRanges describes the feasible region of params, or of every parameter
// of the radio when params is empty.
func RadioRanges(radio *core.Radio, params ...string) ([]ParamRange, error) {
	if len(params) == 0 {
		params = radio.Params()
	}
	locks := make(map[string]configurator.Lock)
	for _, l := range radio.Locks() {
		locks[l.Param] = l
	}

	out := make([]ParamRange, 0, len(params))
	for _, p := range params {
		region, err := radio.Ranges(p)
		if err != nil {
			return nil, err
		}
		pr := ParamRange{
			Param:     p,
			Kind:      region.Kind().String(),
			Intervals: region.Bounds(),
		}
		if pr.Intervals == nil {
			pr.Intervals = [][2]float64{}
		}
		if l, ok := locks[p]; ok {
			pr.Locked = true
			pr.Value = l.Value
			pr.Tolerance = l.Tolerance
		}
		out = append(out, pr)
	}
	return out, nil
}

func (s *Service) ensureReady() error {
	if s == nil || s.kb == nil {
		return status.Error(codes.FailedPrecondition, "knowledge base is not configured")
	}
	return nil
}

func (s *Service) requestLogger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

type validator interface{ Validate() error }

func decodeValid(in *structpb.Struct, req validator) error {
	if err := Decode(in, req); err != nil {
		return err
	}
	return req.Validate()
}

func encodeReply(v any) (*structpb.Struct, error) {
	out, err := Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
