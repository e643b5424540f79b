package configsvc

import (
	"errors"

	"github.com/signalsfoundry/radio-emulator/configurator"
	"github.com/signalsfoundry/radio-emulator/core"
	"github.com/signalsfoundry/radio-emulator/csp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToStatusError maps emulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, core.ErrRadioNotFound),
		errors.Is(err, configurator.ErrUnknownParam):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, csp.ErrInvalidArgument),
		errors.Is(err, core.ErrRadioBadInput),
		errors.Is(err, core.ErrTransceiverBadInput),
		errors.Is(err, core.ErrTransceiverNotFound):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, core.ErrReadbackMismatch):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, core.ErrRadioExists),
		errors.Is(err, core.ErrTransceiverExists),
		errors.Is(err, configurator.ErrParamExists):
		return status.Error(codes.AlreadyExists, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
