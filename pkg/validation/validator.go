// Package validation checks configuration sections and HTTP request bodies.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// MaxNameLength bounds user, project and vendor names.
const MaxNameLength = 256

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("name", func(fl validator.FieldLevel) bool {
		return ValidName(fl.Field().String()) == nil
	})
	return v
}

// CreateProjectRequest is the body of POST /projects
type CreateProjectRequest struct {
	User string `json:"user" validate:"required,max=256,name"`
	Name string `json:"name" validate:"omitempty,max=256,name"`
}

// VendorRequest is the body of POST /vendor-requests. Empty vendor or project
// is allowed through: the workflow reports it as an invalid-input outcome.
type VendorRequest struct {
	User    string `json:"user" validate:"required,max=256,name"`
	Vendor  string `json:"vendor" validate:"omitempty,max=256,name"`
	Project string `json:"project" validate:"omitempty,max=256,name"`
}

// ValidateRequest checks a request struct against its tags.
func ValidateRequest(req any) error {
	if req == nil {
		return errors.New("request cannot be nil")
	}
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidName rejects control characters and surrounding whitespace. An empty
// name passes; emptiness is checked by the callers that care.
func ValidName(name string) error {
	if len(name) > MaxNameLength {
		return fmt.Errorf("name exceeds maximum length of %d characters", MaxNameLength)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("name %q has leading or trailing whitespace", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("name %q contains control characters", name)
		}
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "max":
			return fmt.Errorf("%s: must not exceed %s characters", field, e.Param())
		case "name":
			return fmt.Errorf("%s: %w", field, ValidName(fmt.Sprint(e.Value())))
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
