// Package render writes the JSON envelopes shared by all API handlers.
package render

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/collabhub/internal/apperr"
)

// Error codes that do not originate from a service error class.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeRateLimited  = "RATE_LIMITED"
	CodeTooLarge     = "PAYLOAD_TOO_LARGE"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// Error is the body of an error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the standard API response wrapper.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// JSON writes data wrapped in the response envelope.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data})
}

// OK writes a 200 response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 response.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// NoContent writes a 204 response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// ErrorJSON writes an error envelope.
func ErrorJSON(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Error: &Error{Code: code, Message: message}})
}

// BadRequest writes a 400 with the BAD_REQUEST code.
func BadRequest(w http.ResponseWriter, message string) {
	ErrorJSON(w, http.StatusBadRequest, CodeBadRequest, message)
}

// Fail maps a service error onto its HTTP status. Internal failures are
// logged with op and answered with a generic message.
func Fail(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	status, code := apperr.HTTPStatus(err)
	if apperr.IsInternal(err) {
		if log != nil {
			log.Error(op+" failed", zap.Error(err))
		}
		ErrorJSON(w, status, code, "internal server error")
		return
	}
	ErrorJSON(w, status, code, err.Error())
}

// DecodeJSON reads a JSON body into v. It rejects unknown fields, trailing
// data and bodies larger than MaxBodyBytes.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
