// Package schema holds the request-validation conventions shared by every
// API route: declarative struct tags, field names taken from json tags, and
// a single aggregated ValidationError per request.
//
// Validation is pure: the same input always yields the same accepted values
// or the same error messages, and nothing is partially applied.
package schema

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/karibu-labs/darasa/pkg/httperr"
)

const isoDateLayout = "2006-01-02"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Error messages name the wire field, not the Go field.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(isoDateLayout, fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		_, err := uuid.Parse(fl.Field().String())
		return err == nil
	})

	return v
}

// Validate checks v's constraint tags and returns nil or a
// *httperr.ValidationError listing every failing field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// An InvalidValidationError means the schema struct itself is
		// broken, not the request.
		return httperr.NewBackendUnavailable("schema: " + err.Error())
	}

	fields := make([]httperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, httperr.FieldError{
			Field:  fe.Field(),
			Reason: reasonFor(fe),
		})
	}
	return httperr.NewValidation(fields...)
}

func reasonFor(fe validator.FieldError) string {
	switch fe.ActualTag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "ident", "uuid", "uuid4":
		return "must be a valid identifier"
	case "isodate":
		return "must be a date in YYYY-MM-DD format"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return "is invalid"
	}
}

// ParseISODate parses a validated YYYY-MM-DD value. Call only after
// Validate accepted the field.
func ParseISODate(s string) (time.Time, error) {
	return time.Parse(isoDateLayout, s)
}
