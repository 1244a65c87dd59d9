package command

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-notify/core"
)

func commandDependencyError(message string) error {
	return core.InternalError(message, map[string]any{"layer": "command"})
}

func commandValidationError(field string, message string) error {
	return core.ValidationError(field, message).WithMetadata(map[string]any{"layer": "command"})
}

// commandWrapValidation keeps the cause of a failed domain validation under a
// command level message.
func commandWrapValidation(err error, message string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput).
		WithMetadata(map[string]any{"layer": "command"})
}
