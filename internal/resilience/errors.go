package resilience

import (
	"errors"
	"net"
	"net/textproto"
	"strings"
	"syscall"
)

// TransientError marks an error as safe to retry. Code carries the FTP reply
// code or HTTP status that caused it, when there is one.
type TransientError struct {
	Err  error
	Code int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as transient.
func NewTransientError(err error, code int) *TransientError {
	return &TransientError{Err: err, Code: code}
}

// IsTransient reports whether err is worth retrying: an explicit
// TransientError, an FTP 4xx reply, a network timeout, a dropped
// connection, or one of the common transient messages.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var reply *textproto.Error
	if errors.As(err, &reply) {
		return IsTransientFTPCode(reply.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"i/o timeout",
	"unexpected eof",
	"data connection",
}

// IsTransientFTPCode reports whether an FTP reply code is a transient
// negative completion (4xx), e.g. 421 service not available or 426
// transfer aborted. 5xx replies such as 550 file unavailable are permanent.
func IsTransientFTPCode(code int) bool {
	return code >= 400 && code < 500
}

// IsTransientHTTPStatus reports whether an HTTP status is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
