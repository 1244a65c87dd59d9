package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput         = "NOTIFY_BAD_INPUT"
	ServiceErrorUnauthorized     = "NOTIFY_UNAUTHORIZED"
	ServiceErrorNotFound         = "NOTIFY_NOT_FOUND"
	ServiceErrorRateLimited      = "NOTIFY_RATE_LIMITED"
	ServiceErrorExternalFailure  = "NOTIFY_EXTERNAL_FAILURE"
	ServiceErrorOperationFailed  = "NOTIFY_OPERATION_FAILED"
	ServiceErrorNotImplemented   = "NOTIFY_NOT_IMPLEMENTED"
	ServiceErrorInternal         = "NOTIFY_INTERNAL_ERROR"
	ServiceErrorInvalidSignature = "NOTIFY_INVALID_SIGNATURE"
)

const (
	MessageInvalidSignature = "Invalid webhook signature"
	MessageInternalError    = "Internal server error"
	MessageMissingFields    = "Missing required fields: fid, appFid, title, body"
	MessageTitleTooLong     = "Title must be 32 characters or less"
	MessageBodyTooLong      = "Body must be 128 characters or less"
	MessageTargetURLOrigin  = "Target URL must be on the same origin as the app"
	MessageInvalidBody      = "Invalid request body"
)

// AuthenticationError wraps a verification failure. The client facing message
// is always MessageInvalidSignature; the cause is kept for logs.
func AuthenticationError(cause error, metadata map[string]any) *goerrors.Error {
	var err *goerrors.Error
	if cause == nil {
		err = goerrors.New(MessageInvalidSignature, goerrors.CategoryAuth)
	} else {
		err = goerrors.Wrap(cause, goerrors.CategoryAuth, MessageInvalidSignature)
	}
	err = err.WithCode(http.StatusUnauthorized).WithTextCode(ServiceErrorInvalidSignature)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// ValidationError carries a message that is safe to return to the caller.
func ValidationError(field string, message string) *goerrors.Error {
	return goerrors.NewValidation(message, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func BadInputError(message string, metadata map[string]any) *goerrors.Error {
	return newServiceError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ServiceErrorBadInput, metadata)
}

func InternalError(message string, metadata map[string]any) *goerrors.Error {
	return newServiceError(message, goerrors.CategoryInternal, http.StatusInternalServerError, ServiceErrorInternal, metadata)
}

func NotImplementedError(message string) *goerrors.Error {
	return newServiceError(message, goerrors.CategoryOperation, http.StatusNotImplemented, ServiceErrorNotImplemented, nil)
}

func WrapOperationError(source error, message string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return newServiceError(message, goerrors.CategoryOperation, http.StatusInternalServerError, ServiceErrorOperationFailed, metadata)
	}
	err := goerrors.Wrap(source, goerrors.CategoryOperation, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ServiceErrorOperationFailed)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func newServiceError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func IsAuthentication(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryAuth
}

func IsValidation(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryValidation || richErr.Category == goerrors.CategoryBadInput
}

// MapError normalizes any error into the service envelope. Errors that are
// not already rich become internal errors; PublicMessage never exposes them.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}
	if errors.Is(err, ErrInvalidRecipientKey) || errors.Is(err, ErrInvalidNotificationInput) {
		return BadInputError(err.Error(), nil)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, err.Error()).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ServiceErrorInternal)
}

// PublicMessage is the text a client may see for err. Internal failures never
// leak their cause.
func PublicMessage(err error) string {
	mapped := MapError(err)
	if mapped == nil {
		return ""
	}
	switch mapped.Category {
	case goerrors.CategoryAuth:
		return MessageInvalidSignature
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		if message := strings.TrimSpace(mapped.Message); message != "" {
			return message
		}
		return MessageInvalidBody
	default:
		return MessageInternalError
	}
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = MessageInternalError
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ServiceErrorUnauthorized
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryExternal:
		return ServiceErrorExternalFailure
	case goerrors.CategoryOperation:
		return ServiceErrorOperationFailed
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
