package dispatcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/local/cropmargins/internal/geometry"
	"github.com/local/cropmargins/internal/source"
)

// classify sorts a run error into transient, fatal or unknown.
func classify(err error) string {
	switch {
	case isFatalError(err):
		return kindFatal
	case isTransientError(err):
		return kindTransient
	default:
		return kindUnknown
	}
}

// isTransientError checks if a retry could succeed.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var httpErr *source.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "slowdown") ||
		strings.Contains(errStr, "eof")
}

// isFatalError checks if the job can never succeed as submitted.
func isFatalError(err error) bool {
	if err == nil {
		return false
	}

	if geometry.IsValidationError(err) || geometry.IsContractError(err) {
		return true
	}

	var unsupported *source.UnsupportedFileError
	if errors.As(err, &unsupported) {
		return true
	}

	if errors.Is(err, os.ErrNotExist) {
		return true
	}

	var httpErr *source.HTTPError
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode
		return code >= 400 && code < 500 && code != http.StatusTooManyRequests
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "nosuchkey") ||
		strings.Contains(errStr, "nosuchbucket") ||
		strings.Contains(errStr, "password") ||
		strings.Contains(errStr, "malformed")
}
