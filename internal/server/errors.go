package server

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pgx404/RegretMarket/internal/errcode"
)

// toStatus maps an operation error onto a gRPC status. The error code name
// is the status message so clients can recover it with errcode.Parse.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	code := errcode.From(err)
	if code == errcode.Unknown {
		return status.Error(codes.Internal, err.Error())
	}
	return status.Error(grpcCode(code), code.String())
}

func grpcCode(c errcode.Code) codes.Code {
	switch c {
	case errcode.Unauthorized:
		return codes.PermissionDenied
	case errcode.ProgramPaused, errcode.ProgramAlreadyStarted:
		return codes.FailedPrecondition
	case errcode.RecordNotFound:
		return codes.NotFound
	case errcode.RecordExists, errcode.DuplicateRequest:
		return codes.AlreadyExists
	}

	switch c.Category() {
	case errcode.CategoryInput:
		return codes.InvalidArgument
	case errcode.CategoryArithmetic:
		return codes.OutOfRange
	case errcode.CategoryOracle:
		return codes.Unavailable
	case errcode.CategoryEconomic, errcode.CategoryLifecycle:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}
