package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/places/internal/api/problem"
	"github.com/Togather-Foundation/places/internal/domain/ids"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a single JSON object and rejects unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// pathULID extracts a ULID path value, writing a 400 when it is malformed.
func pathULID(w http.ResponseWriter, r *http.Request, name, env string) (string, bool) {
	value := strings.TrimSpace(r.PathValue(name))
	if err := ids.ValidateULID(value); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", fmt.Errorf("%s: %w", name, err), env,
			problem.WithFieldError(name, "must be a ULID"))
		return "", false
	}
	return ids.Normalize(value), true
}

// writeBodyError maps a request decoding failure to 413 or 400.
func writeBodyError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Request too large", err, env)
		return
	}
	problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request body", err, env)
}

// writeValidationErrors reports validator failures field by field as 422.
func writeValidationErrors(w http.ResponseWriter, r *http.Request, err error, env string) {
	var opts []problem.Option
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			opts = append(opts, problem.WithFieldError(jsonFieldName(fe.Field()), describeTag(fe)))
		}
	}
	problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeValidation, "Validation failed", err, env, opts...)
}

func jsonFieldName(field string) string {
	return strings.ToLower(field)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
