// Package validation binds request bodies and query strings to structs and checks their validate tags.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"

	"github.com/newsdesk/search/internal/api/response"
)

var (
	// ErrInvalidBody marks bodies that are not exactly one JSON object of the expected shape.
	ErrInvalidBody = errors.New("invalid request body")
	// ErrInvalidQuery marks query strings that do not decode into the target struct.
	ErrInvalidQuery = errors.New("invalid query parameters")
)

// Both are safe for concurrent use once built.
var (
	validate     = newValidator()
	queryDecoder = form.NewDecoder()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(wireName)

	if err := v.RegisterValidation("no_null_bytes", noNullBytes); err != nil {
		panic(fmt.Sprintf("validation: register no_null_bytes: %v", err))
	}

	return v
}

// wireName reports fields by their json or form name.
func wireName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		if name, _, _ := strings.Cut(f.Tag.Get(key), ","); name != "" && name != "-" {
			return name
		}
	}

	return f.Name
}

// Error lists every field that failed validation.
type Error struct {
	Fields []response.ErrorDetail
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}

	return "validation failed: " + strings.Join(msgs, "; ")
}

var messages = map[string]func(field, param string) string{
	"required":      func(f, _ string) string { return f + " is required" },
	"uuid":          func(f, _ string) string { return f + " must be a valid UUID" },
	"no_null_bytes": func(f, _ string) string { return f + " must not contain NULL bytes" },
	"max":           func(f, p string) string { return fmt.Sprintf("%s must be at most %s characters", f, p) },
}

func message(fe validator.FieldError) string {
	if m, ok := messages[fe.Tag()]; ok {
		return m(fe.Field(), fe.Param())
	}

	return fe.Field() + " is invalid"
}

// Struct checks v against its validate tags. Failures are returned as *Error.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate: %w", err)
	}

	out := &Error{Fields: make([]response.ErrorDetail, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, response.ErrorDetail{Location: fe.Field(), Message: message(fe)})
	}

	return out
}

// DecodeJSON decodes exactly one JSON object from the body into dst. Unknown fields are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrInvalidBody)
	}

	return nil
}

// BindJSON decodes the body into dst and validates it.
func BindJSON(r *http.Request, dst any) error {
	if err := DecodeJSON(r, dst); err != nil {
		return err
	}

	return Struct(dst)
}

// BindQuery decodes the query string into dst and validates it. Values of the fields named in lenient
// (form tag names) that fail to decode are left unset instead of rejected.
func BindQuery(r *http.Request, dst any, lenient ...string) error {
	if err := queryDecoder.Decode(dst, r.URL.Query()); err != nil {
		var decodeErrs form.DecodeErrors
		if !errors.As(err, &decodeErrs) {
			return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}

		for _, name := range lenient {
			delete(decodeErrs, name)
		}

		if len(decodeErrs) > 0 {
			return fmt.Errorf("%w: %w", ErrInvalidQuery, decodeErrs)
		}
	}

	return Struct(dst)
}

// Respond writes a 400 problem response for an error returned by this package.
func Respond(w http.ResponseWriter, err error) {
	var fieldErr *Error

	switch {
	case errors.As(err, &fieldErr):
		response.RespondProblem(w, response.ProblemDetails{
			Title:  "Validation Error",
			Status: http.StatusBadRequest,
			Detail: fieldErr.Error(),
			Errors: fieldErr.Fields,
		})
	case errors.Is(err, ErrInvalidQuery):
		response.RespondBadRequest(w, "Invalid query parameters")
	default:
		response.RespondBadRequest(w, "Invalid request body")
	}
}

// noNullBytes rejects strings containing NUL, which Postgres text columns cannot store.
func noNullBytes(fl validator.FieldLevel) bool {
	v := fl.Field()
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return true
		}

		v = v.Elem()
	}

	return v.Kind() != reflect.String || !strings.Contains(v.String(), "\x00")
}
