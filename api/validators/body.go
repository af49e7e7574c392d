// Package validators decodes and checks request input, turning every
// problem into a VALIDATION_ERROR with per-field details.
package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
)

const maxBodyBytes = 1 << 20

// phonePattern accepts an optional leading + and 8 to 15 digits, with
// spaces, dots and dashes as separators.
var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 .\-]{6,18}[0-9]$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("phone", validPhone)
	return v
}

func validPhone(fl validator.FieldLevel) bool {
	raw := strings.TrimSpace(fl.Field().String())
	if !phonePattern.MatchString(raw) {
		return false
	}
	digits := 0
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 8 && digits <= 15
}

// jsonFieldName reports fields by their wire name so details match the request.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// DecodeJSONBody decodes a single JSON object into dest and runs its
// validate tags. Unknown fields and trailing data are rejected.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil {
		return errBodyRequired()
	}
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _, _ = io.Copy(io.Discard, body) }()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	switch err := dec.Decode(dest); {
	case errors.Is(err, io.EOF):
		return errBodyRequired()
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}
	if dec.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	return ValidateStruct(dest)
}

func errBodyRequired() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "request body required")
}

// ValidateStruct runs the validate tags on an already-populated value.
func ValidateStruct(dest any) error {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = describe(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

// tagMessages holds a message per tag; %s receives the tag parameter.
var tagMessages = map[string]string{
	"required":      "is required",
	"notblank":      "must not be blank",
	"min":           "must be at least %s",
	"max":           "must be at most %s",
	"gt":            "must be greater than %s",
	"gte":           "must be %s or more",
	"oneof":         "must be one of: %s",
	"latitude":      "must be a valid latitude",
	"longitude":     "must be a valid longitude",
	"required_with": "is required with %s",
	"uuid":          "must be a valid id",
	"uuid4":         "must be a valid id",
	"phone":         "must be a valid phone number",
}

func describe(fe validator.FieldError) string {
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		return "is invalid"
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}
