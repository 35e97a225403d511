package service

import (
	"errors"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// newValidator is shared by the services so struct tags behave the same
// everywhere.
func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// validationError converts validator output into a VALIDATION_FAILED domain
// error with one {field, rule} entry per failed field.
func validationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	fields := make([]map[string]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		fields = append(fields, map[string]string{
			"field": e.Field(),
			"rule":  e.Tag(),
		})
	}
	return apperrors.NewValidationError("validation failed", map[string]any{"fields": fields})
}
