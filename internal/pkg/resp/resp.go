/*
Package resp provides helper functions for constructing and sending standardized HTTP JSON responses.

Every API answer uses the same envelope: a business code (0 for success, an errs code otherwise), a
message and optional data. Error codes that only exist on the websocket carry no HTTP status of their
own; over HTTP they are reported as 400.
*/
package resp

import (
	"encoding/json"
	"net/http"
	"strconv"

	"gridroom/internal/pkg/errs"
	"gridroom/internal/pkg/logx"
)

// retryAfterSeconds is advertised with throttling and busy responses.
const retryAfterSeconds = 5

// JSONResponse defines the standardized JSON response structure returned by the application to clients.
type JSONResponse struct {
	// Code is the business status code (0 for success, others for specific errors, see errs package).
	Code int `json:"code"`

	// Message is the client-friendly status description or error message.
	Message string `json:"message"`

	// Data is the optional response payload.
	Data any `json:"data,omitempty"`
}

// RespondJSON sets the JSON headers and writes payload with httpStatus.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		logx.Error(err, "Error encoding JSON response", "http_status", httpStatus, "path", r.URL.Path)
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(httpStatus)

	if _, err := w.Write(response); err != nil {
		logx.Debug("Failed to write JSON response", "error", err.Error())
	}
}

// RespondSuccess sends a successful HTTP response (HTTP 200 OK).
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, JSONResponse{Code: 0, Message: "success", Data: data})
}

// statusOf maps an application error to the HTTP status it is sent with.
func statusOf(e *errs.CustomError) int {
	if e.Status < http.StatusBadRequest {
		return http.StatusBadRequest
	}
	return e.Status
}

// RespondError sends an HTTP response containing custom error information.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	status := statusOf(customErr)
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}

	RespondJSON(w, r, status, JSONResponse{Code: customErr.Code, Message: customErr.Message})
}

// RespondErr sends any error, mapping errors that are not *errs.CustomError to ErrUnknown.
func RespondErr(w http.ResponseWriter, r *http.Request, err error) {
	RespondError(w, r, errs.As(err))
}
