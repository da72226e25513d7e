package errors

import (
	"context"
	stderrors "errors"
	"strings"
)

// NetworkReason maps low level dial/read failures to a short label for logs and metrics.
func NetworkReason(err error) string {
	if err == nil {
		return ""
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if stderrors.Is(err, context.Canceled) {
		return "canceled"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "connection refused"):
		return "connection_refused"
	case strings.Contains(msg, "EOF") || strings.Contains(msg, "connection reset"):
		return "connection_reset"
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "name resolution"):
		return "dns_error"
	case strings.Contains(msg, "certificate") || strings.Contains(msg, "tls"):
		return "tls_error"
	}
	return ""
}

// IsNetworkError reports whether err looks like a transport failure.
func IsNetworkError(err error) bool {
	r := NetworkReason(err)
	return r != "" && r != "canceled"
}
