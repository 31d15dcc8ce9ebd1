package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"trialrand/internal/errors"
)

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPlanBytes+1))
	if err != nil {
		return nil, errors.InvalidInput("failed to read request body")
	}
	if len(body) > maxPlanBytes {
		return nil, errors.InvalidInput("request body too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.InvalidInput("request body is empty")
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

// statusFor maps error codes to HTTP status codes
func statusFor(code string) int {
	switch code {
	case errors.CodeInvalidInput, errors.CodeInvalidParameter, errors.CodeEmptyInput, errors.CodeConfigInvalid:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeNotReproducible:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		log.Printf("[API] internal error: %v", err)
	}
	writeJSON(w, status, map[string]string{
		"code":  code,
		"error": err.Error(),
	})
}
