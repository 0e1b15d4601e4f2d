package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every error the admin API returns
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// internalErrorBody is preencoded so a failing encoder can still answer
var internalErrorBody = []byte(`{"error":"internal server error"}` + "\n")

// WriteJSON encodes data before touching the response, so an unencodable
// value becomes a 500 instead of a half-written body.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		writeRaw(w, http.StatusInternalServerError, internalErrorBody)
		return err
	}
	writeRaw(w, status, append(body, '\n'))
	return nil
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func fail(w http.ResponseWriter, status int, message string, details map[string]string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// WriteErrorMessage answers status with message as the error text
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	fail(w, status, message, nil)
}

// WriteDetailedError adds per-field messages, keyed by JSON field name
func WriteDetailedError(w http.ResponseWriter, status int, message string, details map[string]string) {
	fail(w, status, message, details)
}

// WriteSuccess answers 200 with data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated answers 201 with the new resource
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	fail(w, http.StatusBadRequest, message, nil)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	fail(w, http.StatusUnauthorized, message, nil)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	fail(w, http.StatusForbidden, message, nil)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	fail(w, http.StatusNotFound, message, nil)
}

func WriteConflict(w http.ResponseWriter, message string) {
	fail(w, http.StatusConflict, message, nil)
}

// WriteInternalError answers 500; the cause is logged by the caller, never sent
func WriteInternalError(w http.ResponseWriter) {
	writeRaw(w, http.StatusInternalServerError, internalErrorBody)
}
