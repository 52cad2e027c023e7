package inference

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/ai-image-tools/internal/imageencoder"
)

// ConfigError is returned before any network activity when the endpoint is
// not usable.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid endpoint %s: %s", e.Field, e.Message)
}

// TransportError wraps connection, DNS and timeout failures.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError carries a non-2xx response.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote service returned status %d: %s", e.StatusCode, e.Body)
}

// UnexpectedContentError is returned when the response is not declared as JSON.
type UnexpectedContentError struct {
	ContentType string
	Body        string
}

func (e *UnexpectedContentError) Error() string {
	return fmt.Sprintf("remote service did not return JSON (content type %q)", e.ContentType)
}

// MalformedResponseError is returned when the body is not a JSON array of
// label/score records with scores in [0, 1].
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	var syntaxErr *json.SyntaxError
	if errors.As(e.Err, &syntaxErr) {
		return fmt.Sprintf("response is not valid JSON: %v", e.Err)
	}
	return fmt.Sprintf("unexpected response shape: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Kind names an error class. Values are stable and used as metric labels.
type Kind string

const (
	KindNone              Kind = ""
	KindEncoding          Kind = "encoding"
	KindConfig            Kind = "config"
	KindTransport         Kind = "transport"
	KindRemote            Kind = "remote"
	KindUnexpectedContent Kind = "unexpected_content"
	KindMalformedResponse Kind = "malformed_response"
	KindUnknown           Kind = "unknown"
)

// KindOf classifies err, looking through wrapping.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var (
		configErr    *ConfigError
		transportErr *TransportError
		remoteErr    *RemoteError
		contentErr   *UnexpectedContentError
		malformedErr *MalformedResponseError
	)
	switch {
	case errors.Is(err, imageencoder.ErrEncoding):
		return KindEncoding
	case errors.As(err, &configErr):
		return KindConfig
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &remoteErr):
		return KindRemote
	case errors.As(err, &contentErr):
		return KindUnexpectedContent
	case errors.As(err, &malformedErr):
		return KindMalformedResponse
	default:
		return KindUnknown
	}
}

// Diagnostics extracts the status code and raw body carried by err, if any.
func Diagnostics(err error) (status int, body string) {
	var (
		remoteErr    *RemoteError
		contentErr   *UnexpectedContentError
		malformedErr *MalformedResponseError
	)
	switch {
	case errors.As(err, &remoteErr):
		return remoteErr.StatusCode, remoteErr.Body
	case errors.As(err, &contentErr):
		return 0, contentErr.Body
	case errors.As(err, &malformedErr):
		return 0, malformedErr.Body
	}
	return 0, ""
}
