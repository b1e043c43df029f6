package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("busy"), 421), true},
		{"wrapped explicit", fmt.Errorf("download: %w", NewTransientError(errors.New("busy"), 0)), true},
		{"eris wrapped ftp 421", eris.Wrap(&textproto.Error{Code: 421, Msg: "Service not available"}, "ftp: dial"), true},
		{"ftp 426 aborted", &textproto.Error{Code: 426, Msg: "Connection closed; transfer aborted"}, true},
		{"ftp 550 missing", &textproto.Error{Code: 550, Msg: "No such file or directory"}, false},
		{"ftp 530 login", &textproto.Error{Code: 530, Msg: "Login incorrect"}, false},
		{"network timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"connection reset", fmt.Errorf("read tcp: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"broken pipe message", errors.New("write: broken pipe"), true},
		{"unexpected eof", errors.New("ftp: retr: unexpected EOF"), true},
		{"plain", errors.New("invalid url"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientFTPCode(t *testing.T) {
	for _, code := range []int{421, 425, 426, 450, 451, 452} {
		assert.True(t, IsTransientFTPCode(code), "code %d", code)
	}
	for _, code := range []int{226, 331, 500, 530, 550, 553} {
		assert.False(t, IsTransientFTPCode(code), "code %d", code)
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestTransientError(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 503)

	assert.ErrorIs(t, te, inner)
	assert.Equal(t, 503, te.Code)
	assert.Equal(t, "root cause", te.Error())
}
