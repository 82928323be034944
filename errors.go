package sketricgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strings"
)

// APIError represents an error response from the SketricGen API.
type APIError struct {
	// Status is the HTTP status code.
	Status int

	// Message is the error message reported by the API, if any.
	Message string

	// Body is the raw response body.
	Body string
}

func (e *APIError) Error() string {
	message := e.Message
	if message == "" {
		message = "unknown error"
	}
	return fmt.Sprintf("[%d] %s", e.Status, message)
}

// AuthenticationError is returned when the API rejects the provided
// credentials. It unwraps to *APIError, so a single errors.As check
// against *APIError matches both.
type AuthenticationError struct {
	APIError
}

func (e *AuthenticationError) Unwrap() error {
	return &e.APIError
}

// ValidationError is returned for client-side validation failures,
// before any network call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError is returned when a local file path does not exist.
// It unwraps to the underlying filesystem error, so errors.Is with
// fs.ErrNotExist also matches.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file not found: %s", e.Path)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return fs.ErrNotExist
}

// NetworkError is returned for transport-level failures.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when a request deadline is exceeded.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// UploadError is returned when the object store rejects a transfer.
type UploadError struct {
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed with status %d: %s", e.Status, e.Body)
}

// FileSizeError is returned when a file exceeds the upload size limit.
type FileSizeError struct {
	Size  int64
	Limit int64
}

func (e *FileSizeError) Error() string {
	return fmt.Sprintf("file size (%d bytes) exceeds maximum allowed size (%d bytes / %d MB)",
		e.Size, e.Limit, e.Limit/(1024*1024))
}

// ContentTypeError is returned when a file's content type is not in the
// set of types the backend accepts.
type ContentTypeError struct {
	ContentType string
	Allowed     []string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("unsupported content type: %s (allowed: %s)",
		e.ContentType, strings.Join(e.Allowed, ", "))
}

// errorBody is the shape of error payloads returned by the API.
type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// unmarshalAPIError turns a non-2xx response into an *APIError, or an
// *AuthenticationError for 401s.
func unmarshalAPIError(resp *http.Response, data []byte) error {
	var body errorBody
	message := ""
	if err := json.Unmarshal(data, &body); err == nil {
		message = body.Message
		if message == "" {
			message = body.Detail
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(data))
	}

	apiErr := APIError{
		Status:  resp.StatusCode,
		Message: message,
		Body:    string(data),
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthenticationError{APIError: apiErr}
	}

	return &apiErr
}

// wrapTransportError classifies a transport failure as a timeout or a
// generic network error.
func wrapTransportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Err: err}
	}

	return &NetworkError{Op: op, Err: err}
}
