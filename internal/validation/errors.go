package validation

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is matched by every validation failure.
var ErrValidation = errors.New("validation failed")

// FieldError reports one invalid value.
type FieldError struct {
	Field   string
	Path    string
	Tag     string
	Message string
}

// Error implements error.
func (e *FieldError) Error() string {
	return e.Message
}

// Is matches ErrValidation.
func (e *FieldError) Is(target error) bool {
	return target == ErrValidation
}

func fieldError(field, path, tag, message string) *FieldError {
	return &FieldError{Field: field, Path: path, Tag: tag, Message: message}
}

// fromValidator converts validator errors into FieldErrors joined with
// errors.Join.
func fromValidator(err error, message func(field, tag string) string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fieldError(fe.Field(), fe.Namespace(), fe.Tag(), message(fe.Field(), fe.Tag())))
	}
	return errors.Join(errs...)
}
