package api

import (
	"context"
	"errors"

	"github.com/solatis/boorukeeper/internal/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error mapping for every handler:
//   ErrInvalidQuery, ErrInvalidToken   -> INVALID_ARGUMENT
//   ErrUnknownSite                     -> NOT_FOUND
//   ErrUnsupportedOperation            -> UNIMPLEMENTED
//   ErrFetchFailed                     -> UNAVAILABLE
//   ErrMalformedResponse               -> DATA_LOSS
//   context cancellation and deadline  -> CANCELED, DEADLINE_EXCEEDED
// Anything else is INTERNAL.

var errorCodes = []struct {
	err  error
	code codes.Code
}{
	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
	{types.ErrInvalidQuery, codes.InvalidArgument},
	{types.ErrInvalidToken, codes.InvalidArgument},
	{types.ErrUnknownSite, codes.NotFound},
	{types.ErrUnsupportedOperation, codes.Unimplemented},
	{types.ErrFetchFailed, codes.Unavailable},
	{types.ErrMalformedResponse, codes.DataLoss},
}

// toStatus converts a domain error to a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return status.Error(ec.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

func invalidArgument(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}
