package common

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody is the payload under "error" in every failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// JSON encodes v as the whole response body.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Data wraps v as {"data": v}.
func Data(w http.ResponseWriter, status int, v any) {
	JSON(w, status, envelope{Data: v})
}

func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, envelope{Error: &ErrorBody{Code: code, Message: message, Details: details}})
}

// WriteError maps an *AppError to its status and code. Other errors are
// reported as a bare 500 so internals stay out of the response.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		JSONError(w, appErr.Status(), appErr.Code, appErr.Message, appErr.Details)
		return
	}
	JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}
