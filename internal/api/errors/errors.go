// Package errors provides error handling and HTTP status code mapping.
package errors

import (
	"errors"
	"net/http"

	"github.com/brave-experiments/hardware-backed-webcrypto/internal/api/dto"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/webcrypto"
)

// Error codes for API responses.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidBinding   = "INVALID_BINDING"
	CodeConflict         = "IDENTIFIER_CONFLICT"
	CodeNotFound         = "KEY_NOT_FOUND"
	CodeUnauthorized     = "ORIGIN_UNAUTHORIZED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeBackendFailed    = "OPERATION_FAILED"
	CodeBackendCancelled = "OPERATION_CANCELLED"
	CodeBackendTimeout   = "OPERATION_TIMEOUT"
	CodeInternal         = "INTERNAL_ERROR"
)

// StatusClientClosedRequest is the de-facto status for cancelled calls.
const StatusClientClosedRequest = 499

// MapError maps an internal error to an HTTP status code and APIError.
func MapError(err error) (int, *dto.APIError) {
	if err == nil {
		return http.StatusOK, nil
	}

	switch {
	case errors.Is(err, webcrypto.ErrInvalidBinding):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeInvalidBinding,
			Message: err.Error(),
		}
	case errors.Is(err, webcrypto.ErrConflict):
		return http.StatusConflict, &dto.APIError{
			Code:    CodeConflict,
			Message: err.Error(),
		}
	case errors.Is(err, webcrypto.ErrNotFound):
		return http.StatusNotFound, &dto.APIError{
			Code:    CodeNotFound,
			Message: err.Error(),
		}
	case errors.Is(err, webcrypto.ErrUnauthorized):
		return http.StatusForbidden, &dto.APIError{
			Code:    CodeUnauthorized,
			Message: err.Error(),
		}
	case errors.Is(err, webcrypto.ErrPermissionDenied):
		return http.StatusForbidden, &dto.APIError{
			Code:    CodePermissionDenied,
			Message: err.Error(),
		}
	}

	// Backend failures keep their operation context.
	var be *webcrypto.BackendError
	if errors.As(err, &be) {
		details := map[string]string{"operation": be.Op}
		switch be.Kind {
		case webcrypto.BackendCancelled:
			return StatusClientClosedRequest, &dto.APIError{
				Code:    CodeBackendCancelled,
				Message: be.Error(),
				Details: details,
			}
		case webcrypto.BackendTimeout:
			return http.StatusGatewayTimeout, &dto.APIError{
				Code:    CodeBackendTimeout,
				Message: be.Error(),
				Details: details,
			}
		default:
			return http.StatusBadGateway, &dto.APIError{
				Code:    CodeBackendFailed,
				Message: be.Error(),
				Details: details,
			}
		}
	}

	return http.StatusInternalServerError, &dto.APIError{
		Code:    CodeInternal,
		Message: "An internal error occurred",
	}
}

// NewBadRequest creates a bad request error.
func NewBadRequest(message string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeInvalidRequest,
		Message: message,
	}
}
