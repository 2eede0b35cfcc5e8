// Package handler contains the HTTP handlers for the Promptify API.
//
// Handlers decode JSON requests, delegate to the service layer, and encode
// JSON responses. Error translation happens in ErrorResponse, which maps
// domain error codes to HTTP statuses.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// maxRequestBody bounds JSON request bodies. Chat conversations and resume
// text can be large but should never approach this.
const maxRequestBody = 1 << 20 // 1MB

// decodeJSON reads and decodes a JSON request body into dst.
// Unknown fields are rejected so client typos surface as errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeJSON encodes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
