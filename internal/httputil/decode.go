package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeError is a request body that could not be decoded or failed
// validation. Fields maps json field names to the failed rule.
type DecodeError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *DecodeError) Error() string {
	return e.Message
}

// Decode reads a JSON body into dst and validates it with its `validate`
// struct tags.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &DecodeError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		}
		return &DecodeError{Status: http.StatusBadRequest, Message: "invalid request body"}
	}
	return Validate(dst)
}

// Validate checks v against its `validate` struct tags.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &DecodeError{Status: http.StatusBadRequest, Message: "invalid request body"}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule = fmt.Sprintf("%s=%s", rule, fe.Param())
		}
		fields[fe.Field()] = rule
	}
	return &DecodeError{Status: http.StatusBadRequest, Message: "validation failed", Fields: fields}
}

// DecodeOrError decodes and validates the body, writing the error response
// itself. It reports whether the handler should continue.
func DecodeOrError(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := Decode(r, dst)
	if err == nil {
		return true
	}
	var de *DecodeError
	if errors.As(err, &de) {
		JSON(w, de.Status, ErrorResponse{Error: de.Message, Details: de.Fields})
		return false
	}
	Error(w, http.StatusBadRequest, "invalid request body")
	return false
}
