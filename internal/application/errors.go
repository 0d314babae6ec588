package application

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/relaypoint/partner-hub/internal/domain"
)

// ErrLockNotAcquired is returned by KeyLocker implementations when the
// per-key lock cannot be taken within its retry budget.
var ErrLockNotAcquired = errors.New("idempotency lock not acquired")

// ServiceError carries an application-level error across the REST boundary.
type ServiceError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeLockUnavailable = "LOCK_UNAVAILABLE"
	ErrCodeConsistency     = "CONSISTENCY_VIOLATION"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewLockUnavailableError marks a failed idempotency-lock acquisition as a
// transient fault the caller should retry. A second correlation ID is never
// minted instead.
func NewLockUnavailableError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeLockUnavailable,
		Message:    "Request is being processed. Please retry in a moment.",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewConsistencyError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeConsistency,
		Message:    "Stored state is inconsistent; operator attention required",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewInvalidInputError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInvalidInput,
		Message:    "Invalid input",
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
	}
}

func NewNotFoundError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeNotFound,
		Message:    "Request not found",
		HTTPStatus: http.StatusNotFound,
		Err:        err,
	}
}

func NewInternalError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInternal,
		Message:    "An internal error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func IsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	ok := errors.As(err, &svcErr)
	return svcErr, ok
}

// ToHTTPStatus maps any error to the status the REST layer should write.
func ToHTTPStatus(err error) int {
	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.HTTPStatus
	}
	if errors.Is(err, domain.ErrRequestNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// ToErrorCode maps any error to a stable machine-readable code.
func ToErrorCode(err error) string {
	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.Code
	}
	if errors.Is(err, domain.ErrRequestNotFound) {
		return ErrCodeNotFound
	}
	return ErrCodeInternal
}
