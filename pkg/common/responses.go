// Package common holds the HTTP request/response helpers shared by all
// handlers.
package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// RespondJSON writes payload as the response body with the given status.
// Encoding failures are unrecoverable at this point: the status line is
// already gone, so they are dropped.
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// ParseJSONBody decodes the request body into v, rejecting bodies over
// maxBytes, unknown fields, and trailing content after the first value.
func ParseJSONBody(r *http.Request, v interface{}, maxBytes int64) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}
