package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// Placeholder syntax: braces must be balanced so the renderer never sees half a token.
	validate.RegisterValidation("template", func(fl validator.FieldLevel) bool {
		depth := 0
		for _, r := range fl.Field().String() {
			switch r {
			case '{':
				depth++
				if depth > 1 {
					return false
				}
			case '}':
				depth--
				if depth < 0 {
					return false
				}
			}
		}
		return depth == 0
	})

	validate.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		if s == "" {
			return true
		}
		dot := false
		for i, r := range s {
			switch {
			case r >= '0' && r <= '9':
			case r == '.' && !dot:
				dot = true
			case r == '-' && i == 0:
			default:
				return false
			}
		}
		return true
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}

	fields := make(map[string]string)
	for _, err := range verrs {
		field := err.Field()
		switch err.Tag() {
		case "required", "required_if":
			fields[field] = "This field is required"
		case "min":
			fields[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			fields[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			fields[field] = "Value must be at least " + err.Param()
		case "lte":
			fields[field] = "Value must be at most " + err.Param()
		case "gtefield":
			fields[field] = "Value must not be less than " + err.Param()
		case "oneof":
			fields[field] = "Must be one of: " + err.Param()
		case "template":
			fields[field] = "Unbalanced placeholder braces"
		case "decimal":
			fields[field] = "Invalid decimal amount"
		default:
			fields[field] = "Invalid value"
		}
	}
	return fields
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
