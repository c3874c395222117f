package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func renderError(w http.ResponseWriter, status int, err error) {
	renderJSON(w, status, &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    errorCodeFromStatus(status),
	})
}

func errorCodeFromStatus(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return ""
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}
