package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

type CustomValidator struct {
	validator *validator.Validate
	messages  map[string]string
}

func NewValidator() *CustomValidator {
	return &CustomValidator{
		validator: validator.New(),
		messages:  make(map[string]string),
	}
}

// RegisterPattern adds a validation tag that matches the value against pattern.
// Empty values are left to the "required" tag.
func (cv *CustomValidator) RegisterPattern(tag, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile pattern for tag %q: %w", tag, err)
	}

	return cv.validator.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return value == "" || re.MatchString(value)
	})
}

// UseTagNames reports fields under the name found in the given struct tag,
// falling back to the Go field name when the tag is absent.
func (cv *CustomValidator) UseTagNames(tag string) {
	cv.validator.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
}

// RegisterMessage overrides the message reported for a field/tag failure.
func (cv *CustomValidator) RegisterMessage(field, tag, message string) {
	cv.messages[field+"."+tag] = message
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// ValidateValue checks a single value against a comma-separated tag chain and
// returns the message of the first failing tag, or "" when the value passes.
func (cv *CustomValidator) ValidateValue(field string, value interface{}, tags string) string {
	err := cv.validator.Var(value, tags)
	if err == nil {
		return ""
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return field + " is invalid"
	}

	e := validationErrors[0]
	return cv.message(field, e.Tag(), e.Param())
}

func (cv *CustomValidator) FormatValidationErrors(err error) map[string]string {
	errors := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			field := e.Field()
			if _, exists := errors[field]; exists {
				continue
			}
			errors[field] = cv.message(field, e.Tag(), e.Param())
		}
	}

	return errors
}

func (cv *CustomValidator) message(field, tag, param string) string {
	if msg, ok := cv.messages[field+"."+tag]; ok {
		return msg
	}

	switch tag {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return field + " must be at least " + param + " characters"
	case "max":
		return field + " must be at most " + param + " characters"
	case "gt":
		return field + " must be greater than " + param
	case "gte":
		return field + " must be greater than or equal to " + param
	case "lte":
		return field + " must be less than or equal to " + param
	default:
		return field + " is invalid"
	}
}
