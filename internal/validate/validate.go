// Package validate checks user input before it is sent to the backend.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Shorten is the input of a create-link request.
type Shorten struct {
	URL       string `label:"URL" validate:"required,url"`
	ShortCode string `label:"Short code" validate:"omitempty,alphanum,min=3,max=8"`
}

// Update is the input of an update-link request. Empty fields are unchanged.
type Update struct {
	URL string `label:"URL" validate:"omitempty,url"`
}

// Login is the input of a login request.
type Login struct {
	Email    string `label:"Email" validate:"required,email"`
	Password string `label:"Password" validate:"required"`
}

// Register is the input of a registration request.
type Register struct {
	Password        string `label:"Password" validate:"min=6"`
	ConfirmPassword string `label:"Password confirmation" validate:"eqfield=Password"`
	Username        string `label:"Username" validate:"min=3,max=20"`
	Email           string `label:"Email" validate:"required,email"`
	FullName        string `label:"Full name" validate:"required"`
}

// List is the input of a list-links request. Zero values mean server defaults.
type List struct {
	Page    int    `label:"Page" validate:"gte=0"`
	Limit   int    `label:"Limit" validate:"gte=0,lte=100"`
	SortBy  string `label:"Sort field" validate:"omitempty,oneof=created_at updated_at click_count"`
	SortDir string `label:"Sort direction" validate:"omitempty,oneof=asc desc"`
}

// FieldError is one failed rule.
type FieldError struct {
	Field   string
	Tag     string
	Message string
}

// Error is returned when input fails validation. Fields is ordered so the
// first entry is the one to show the user.
type Error struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "invalid input"
	}
	return e.Fields[0].Message
}

// AsError unwraps err to an *Error.
func AsError(err error) (*Error, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool {
	_, ok := AsError(err)
	return ok
}

var checker = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if l := f.Tag.Get("label"); l != "" {
			return l
		}
		return f.Name
	})
	return v
}

// Check validates in. String fields of Shorten and Update are trimmed in
// place first, so pass a pointer to keep the trimmed values.
func Check(in any) error {
	switch t := in.(type) {
	case *Shorten:
		t.URL = strings.TrimSpace(t.URL)
		t.ShortCode = strings.TrimSpace(t.ShortCode)
	case *Update:
		t.URL = strings.TrimSpace(t.URL)
	}

	err := checker.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.StructField(),
			Tag:     fe.Tag(),
			Message: message(fe),
		})
	}
	// A mismatch is reported before any length rule.
	sort.SliceStable(out.Fields, func(i, j int) bool {
		return out.Fields[i].Tag == "eqfield" && out.Fields[j].Tag != "eqfield"
	})
	return out
}

func message(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "eqfield":
		if fe.StructField() == "ConfirmPassword" {
			return "Passwords do not match"
		}
		return fmt.Sprintf("%s must match %s", name, fe.Param())
	case "email":
		return name + " must be a valid email address"
	case "url":
		return name + " must be a valid URL"
	case "alphanum":
		return name + " must contain only letters and numbers"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
}
