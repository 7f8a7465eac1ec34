package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTPError represents an HTTP error response body.
type HTTPError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status code for an error.
// It maps error codes to appropriate HTTP status codes.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return codeToHTTPStatus(customErr.Code())
	}
	if errors.Is(err, ErrClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// codeToHTTPStatus maps an error code to an HTTP status.
func codeToHTTPStatus(code string) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidArgument, CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound, CodeUnknownSubscription:
		return http.StatusNotFound
	case CodeUnavailable, CodeClosed:
		return http.StatusServiceUnavailable
	case CodeTransportSubscribe, CodeTransportUnsubscribe, CodeTransportPublish:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP writes an error as a JSON HTTP response.
func WriteHTTP(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	resp := &HTTPError{
		Status:  status,
		Code:    GetCode(err),
		Message: err.Error(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
