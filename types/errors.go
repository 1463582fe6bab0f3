package types

import (
	"errors"
	"fmt"
)

var (
	ErrMiddlewareIsNil    = errors.New("middleware is nil")
	ErrNextCalledMultiple = errors.New("next() called multiple times")
	ErrStatusInvalid      = errors.New("status code out of range")
	ErrBodyEncodingFailed = errors.New("body encoding failed")
	ErrAppAlreadyRunning  = errors.New("application already running")
	ErrAppNotRunning      = errors.New("application not running")
	ErrPanicRecovered     = errors.New("panic recovered")
	ErrBodyTooLarge       = errors.New("body too large")
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrCacheKeyEmpty         = errors.New("cache key empty")
	ErrCacheNotFound         = errors.New("cache entry not found")
	ErrCacheConnectionFailed = errors.New("cache connection failed")
	ErrCacheTypeUnknown      = errors.New("cache type unknown")
)

var (
	ErrMetricsStartFailed = errors.New("metrics start failed")
	ErrLogFileIsEmpty     = errors.New("log file is empty")
	ErrLogFileWrongFormat = errors.New("log file wrong format")
)

// HTTPError carries an HTTP status through the pipeline's error path.
// Message is written to the client only when Expose is set; otherwise the
// dispatcher emits its generic fallback body.
type HTTPError struct {
	Code    int
	Message string
	Expose  bool
	cause   error
}

func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{Code: code, Message: message, Expose: true}
}

func NewHTTPErrorFrom(code int, err error) *HTTPError {
	return &HTTPError{Code: code, Message: err.Error(), cause: err}
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("http %d", e.Code)
}

func (e *HTTPError) Unwrap() error { return e.cause }

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
