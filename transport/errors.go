package transport

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-notify/core"
)

var categoryTextCodes = map[goerrors.Category]string{
	goerrors.CategoryBadInput:   core.ServiceErrorBadInput,
	goerrors.CategoryValidation: core.ServiceErrorBadInput,
	goerrors.CategoryAuth:       core.ServiceErrorUnauthorized,
	goerrors.CategoryAuthz:      core.ServiceErrorUnauthorized,
	goerrors.CategoryRateLimit:  core.ServiceErrorRateLimited,
	goerrors.CategoryOperation:  core.ServiceErrorOperationFailed,
	goerrors.CategoryExternal:   core.ServiceErrorExternalFailure,
}

// failure builds the adapter's error envelope. cause may be nil. Status codes
// follow the category: bad input 400, external 502, anything else 500.
func failure(cause error, category goerrors.Category, message string, metadata map[string]any) error {
	var err *goerrors.Error
	if cause != nil {
		err = goerrors.Wrap(cause, category, message)
	} else {
		err = goerrors.New(message, category)
	}
	textCode, ok := categoryTextCodes[category]
	if !ok {
		textCode = core.ServiceErrorInternal
	}
	err = err.WithCode(statusFor(category)).WithTextCode(textCode)
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["adapter"] = KindREST
	return err.WithMetadata(metadata)
}

func statusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
