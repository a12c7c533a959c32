package utils

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct validates an outbound request payload before it is sent.
// The first failing field is translated into a readable message so callers
// never see raw validator tags.
func ValidateStruct(obj interface{}) error {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return err
	}

	e := errs[0]
	switch e.Tag() {
	case "required":
		return fmt.Errorf("field '%s' is required", e.Field())
	case "oneof":
		return fmt.Errorf("field '%s' must be one of: %s", e.Field(), e.Param())
	case "gt":
		return fmt.Errorf("field '%s' must be greater than %s", e.Field(), e.Param())
	case "gte":
		return fmt.Errorf("field '%s' must be at least %s", e.Field(), e.Param())
	default:
		return fmt.Errorf("field '%s' failed validation on '%s'", e.Field(), e.Tag())
	}
}
