// Package response writes the JSON envelope shared by every endpoint.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/autherr"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type Envelope struct {
	Success   bool         `json:"success"`
	Data      any          `json:"data,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, status, Envelope{Success: true, Data: data, RequestID: chimiddleware.GetReqID(r.Context())})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	write(w, status, Envelope{
		Error:     &ErrorDetail{Code: code, Message: message, Details: details},
		RequestID: chimiddleware.GetReqID(r.Context()),
	})
}

// FromError maps a typed failure to its status and public message. Causes of
// INTERNAL and EXTERNAL_SERVICE_ERROR failures never reach the body.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	code := autherr.GetCode(err)
	Error(w, r, code.HTTPStatus(), string(code), autherr.PublicMessage(err), nil)
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
