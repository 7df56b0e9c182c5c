package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/verdantlabs/landchange/internal/engine"
	"github.com/verdantlabs/landchange/internal/models"
	"github.com/verdantlabs/landchange/internal/validation"
)

// UserMessage turns a run error into text suitable for an end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var geomErr *validation.GeometryError
	var yearErr *validation.YearError
	switch {
	case errors.As(err, &geomErr):
		return fmt.Sprintf("Invalid region of interest: %s.", geomErr.Reason)
	case errors.As(err, &yearErr):
		if yearErr.Reason != "" {
			return fmt.Sprintf("Unsupported year: %s.", yearErr.Reason)
		}
		return fmt.Sprintf("Unsupported %s %d: choose a year between %d and %d.", yearErr.Field, yearErr.Year, yearErr.Min, yearErr.Max)
	case errors.Is(err, models.ErrInvalidGeometry):
		return "Invalid region of interest."
	case errors.Is(err, models.ErrUnsupportedYear):
		return "Unsupported year."
	case errors.Is(err, engine.ErrInvalidThreshold):
		return "Invalid threshold: choose a value between -2 and 2."
	case errors.Is(err, models.ErrAuthentication):
		return "Could not authenticate with the imagery archive. Check the service-account credentials."
	case errors.Is(err, models.ErrNoMatchingImages):
		return "No imagery found for the selected region and years."
	case errors.Is(err, context.DeadlineExceeded):
		return "The imagery archive did not answer in time. Try a smaller region or try again later."
	case errors.Is(err, models.ErrArchiveUnavailable):
		return "The imagery archive is unavailable. Try again later."
	default:
		return "Change detection failed."
	}
}

// ReversedYearsWarning explains how to read a run whose end year precedes its
// start year. It returns an empty string for ordered runs.
func ReversedYearsWarning(result models.RunResult) string {
	if !result.YearsReversed {
		return ""
	}
	return fmt.Sprintf("End year %d precedes start year %d: changed pixels show vegetation loss between %d and %d.",
		result.EndYear, result.StartYear, result.EndYear, result.StartYear)
}

func errorCode(err error) codes.Code {
	switch {
	case errors.Is(err, models.ErrInvalidGeometry),
		errors.Is(err, models.ErrUnsupportedYear),
		errors.Is(err, engine.ErrInvalidThreshold):
		return codes.InvalidArgument
	case errors.Is(err, models.ErrAuthentication):
		return codes.Unauthenticated
	case errors.Is(err, models.ErrNoMatchingImages):
		return codes.NotFound
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, models.ErrArchiveUnavailable):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// ToStatusError converts a domain error into a gRPC status error carrying
// the user-facing message.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(errorCode(err), UserMessage(err))
}

// HTTPStatus maps a domain error to an HTTP status code.
func HTTPStatus(err error) int {
	switch errorCode(err) {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.NotFound:
		return http.StatusNotFound
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
