package onedrive

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors. Every error returned by the SDK matches ErrOneDrive;
// use errors.Is against the narrower sentinels to branch on the cause.
var (
	ErrOneDrive        = errors.New("onedrive")
	ErrHTTPRequest     = fmt.Errorf("%w: http request failed", ErrOneDrive)
	ErrAuthentication  = fmt.Errorf("%w: authentication failed", ErrHTTPRequest)
	ErrNotFound        = fmt.Errorf("%w: item not found", ErrHTTPRequest)
	ErrClient          = fmt.Errorf("%w: client error", ErrOneDrive)
	ErrHashMismatch    = fmt.Errorf("%w: hash mismatch", ErrOneDrive)
	ErrUnknownItemType = fmt.Errorf("%w: unknown item type", ErrOneDrive)
	ErrDecodingFailed  = fmt.Errorf("%w: decoding failed", ErrOneDrive)
	ErrInvalidArgument = fmt.Errorf("%w: invalid argument", ErrOneDrive)
	ErrSessionExpired  = fmt.Errorf("%w: upload session expired", ErrOneDrive)
	ErrUploadFailed    = fmt.Errorf("%w: upload failed", ErrOneDrive)
)

// HTTPRequestError is returned when Graph answers with a status >= 400.
// It unwraps to ErrAuthentication (401, 403), ErrNotFound (404) or
// ErrHTTPRequest.
type HTTPRequestError struct {
	StatusCode int
	Code       string // Graph error code, e.g. "itemNotFound"
	Message    string // Graph error message, or the raw body when it is not a Graph error
	RequestID  string
	Err        error
}

func (e *HTTPRequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "onedrive: HTTP %d", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " %s", e.Code)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request-id: %s)", e.RequestID)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e *HTTPRequestError) Unwrap() error {
	return e.Err
}

// ClientError wraps a failure that happened before a response was received:
// DNS, connection resets, canceled contexts.
type ClientError struct {
	Method string
	URL    string
	Err    error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("onedrive: %s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap exposes both ErrClient and the underlying cause, so
// errors.Is(err, context.DeadlineExceeded) keeps working.
func (e *ClientError) Unwrap() []error {
	return []error{ErrClient, e.Err}
}

// HashMismatchError reports that the hash Graph computed for an uploaded
// file differs from the hash of the bytes that were sent.
type HashMismatchError struct {
	Expected string
	Actual   string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("onedrive: hash mismatch: local %s, remote %s", e.Expected, e.Actual)
}

func (e *HashMismatchError) Unwrap() error {
	return ErrHashMismatch
}

// StatusCode extracts the HTTP status from err, or 0 when err did not come
// from a Graph response.
func StatusCode(err error) int {
	var httpErr *HTTPRequestError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// newHTTPRequestError classifies an error response.
func newHTTPRequestError(res *http.Response, body []byte) *HTTPRequestError {
	httpErr := &HTTPRequestError{
		StatusCode: res.StatusCode,
		RequestID:  res.Header.Get("request-id"),
		Message:    strings.TrimSpace(string(body)),
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" {
		httpErr.Code = envelope.Error.Code
		httpErr.Message = envelope.Error.Message
	}

	switch res.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		httpErr.Err = ErrAuthentication
	case http.StatusNotFound:
		httpErr.Err = ErrNotFound
	default:
		httpErr.Err = ErrHTTPRequest
	}
	return httpErr
}
