package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		sig    Signal
		expect Class
	}{
		{Signal{Message: "PartialReadError: Read error for undefined"}, Ignorable},
		{Signal{Message: "Unexpected buffer end while reading VarInt"}, Ignorable},
		{Signal{Message: "Chunk size is 12 but only 3 was read"}, Ignorable},
		{Signal{Message: "received partial packet"}, Ignorable},
		{Signal{Message: "read ECONNRESET"}, Ignorable},
		{Signal{Message: "connection reset", Code: CodeConnReset}, Ignorable},
		{Signal{Message: "connect ECONNREFUSED 1.2.3.4:25565", Code: CodeConnRefused}, Reportable},
		{Signal{Message: "getaddrinfo ENOTFOUND nowhere", Code: CodeNotFound}, Reportable},
		{Signal{Message: "connect ETIMEDOUT", Code: CodeTimedOut}, Reportable},
		{Signal{Message: "ECONNREFUSED without code"}, Fatal},
		{Signal{Message: "something exploded"}, Fatal},
		{Signal{Message: "", Code: "EPIPE"}, Fatal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expect, Classify(tt.sig), "Classify(%+v)", tt.sig)
	}
}

type codedErr struct{ code string }

func (e codedErr) Error() string { return "coded " + e.code }
func (e codedErr) Code() string  { return e.code }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestFromError(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	reset := &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}
	notFound := &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}}

	tests := []struct {
		name  string
		err   error
		code  string
		class Class
	}{
		{"refused", refused, CodeConnRefused, Reportable},
		{"reset", reset, CodeConnReset, Ignorable},
		{"dns not found", notFound, CodeNotFound, Reportable},
		{"timeout", fmt.Errorf("dial: %w", timeoutErr{}), CodeTimedOut, Reportable},
		{"deadline", context.DeadlineExceeded, CodeTimedOut, Reportable},
		{"unexpected eof", fmt.Errorf("read frame: %w", io.ErrUnexpectedEOF), "", Ignorable},
		{"coded", codedErr{code: CodeConnRefused}, CodeConnRefused, Reportable},
		{"plain", errors.New("boom"), "", Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := FromError(tt.err)
			assert.Equal(t, tt.code, sig.Code)
			assert.Equal(t, tt.class, ClassifyError(tt.err))
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	assert.Equal(t, Ignorable, ClassifyError(nil))
}
