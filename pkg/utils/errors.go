package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrRetryFailed     = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrClientHTTPError = errors.New("client HTTP error (4xx)")          // Wraps original error/status
	ErrServerHTTPError = errors.New("server HTTP error (5xx)")          // Wraps original error/status
	ErrOtherHTTPError  = errors.New("other HTTP error (non-2xx)")       // Wraps original error/status

	ErrConfigurationNotFound = errors.New("configuration not found")
	ErrConfigValidation      = errors.New("configuration validation error")
	ErrPageLoad              = errors.New("page load error")
	ErrElementResolution     = errors.New("element resolution error")
	ErrRegex                 = errors.New("regex error")
	ErrRequiredFieldMissing  = errors.New("required field missing")
	ErrSiteFetch             = errors.New("site fetch error")
	ErrActivationUnsupported = errors.New("element cannot be activated")
	ErrParsing               = errors.New("parsing error") // Wraps specific parsing error (HTML, URL, XPath)
	ErrDatabase              = errors.New("database error")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionTerminal       = errors.New("session already in a terminal state")
	ErrSessionActive         = errors.New("session already active")
)

// ErrValidation is returned for invalid user-supplied patterns and settings.
var ErrValidation = ErrConfigValidation

// WrapErrorf prefixes err with a formatted message, keeping it matchable with errors.Is.
// Returns nil if err is nil.
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// CategorizeError maps an error to a predefined category string for logging.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrRetryFailed):
		// The fetcher joins ErrRetryFailed with the last attempt's error, so inspect err itself
		if errors.Is(err, ErrServerHTTPError) {
			return "RetryFailed_HTTPServer"
		}
		if errors.Is(err, ErrClientHTTPError) {
			return "RetryFailed_HTTPClient"
		}
		errMsg := strings.ToLower(err.Error())
		if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded") {
			return "RetryFailed_NetworkTimeout"
		}
		if strings.Contains(errMsg, "connection refused") {
			return "RetryFailed_ConnectionRefused"
		}
		if strings.Contains(errMsg, "no such host") {
			return "RetryFailed_DNSLookup"
		}
		if err == ErrRetryFailed {
			return "RetryFailed_Unknown"
		}
		return "RetryFailed_NetworkOther"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		switch {
		case strings.Contains(errMsg, " 404 "):
			return "HTTP_404"
		case strings.Contains(errMsg, " 403 "):
			return "HTTP_403"
		case strings.Contains(errMsg, " 401 "):
			return "HTTP_401"
		case strings.Contains(errMsg, " 429 "):
			return "HTTP_429"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrConfigurationNotFound):
		return "Config_NotFound"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrPageLoad):
		return "Page_Load"
	case errors.Is(err, ErrSiteFetch):
		return "Site_Fetch"
	case errors.Is(err, ErrElementResolution):
		return "Extract_Element"
	case errors.Is(err, ErrRegex):
		return "Extract_Regex"
	case errors.Is(err, ErrRequiredFieldMissing):
		return "Extract_RequiredMissing"
	case errors.Is(err, ErrActivationUnsupported):
		return "Page_Activation"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "XPath") {
			return "Content_ParsingXPath"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrSessionNotFound):
		return "Session_NotFound"
	case errors.Is(err, ErrSessionTerminal):
		return "Session_Terminal"
	case errors.Is(err, ErrSessionActive):
		return "Session_Active"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"):
		return "Network_TimeoutGeneric"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "Network_ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "Network_DNSLookup"
	case strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate"):
		return "Network_TLS"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "Network_ConnectionReset"
	}

	return "Unknown"
}
