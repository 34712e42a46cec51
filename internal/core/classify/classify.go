// Package classify triages raw session failures into ignorable protocol noise,
// reportable connect-level faults and everything else.
package classify

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Class determines how a failure is handled.
type Class int

const (
	// Ignorable failures are transient decode artifacts of the game protocol.
	// They never change session status and are never logged above debug.
	Ignorable Class = iota
	// Reportable failures are connect-level faults with a recognised code.
	// They move the session to the error status.
	Reportable
	// Fatal failures are not recognised. At the process fault boundary they
	// terminate the process.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Ignorable:
		return "ignorable"
	case Reportable:
		return "reportable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Low-level error codes understood by the classifier.
const (
	CodeConnRefused = "ECONNREFUSED"
	CodeNotFound    = "ENOTFOUND"
	CodeTimedOut    = "ETIMEDOUT"
	CodeConnReset   = "ECONNRESET"
)

// Signal is a raw failure: message text and an optional low-level code.
type Signal struct {
	Message string
	Code    string
}

// noisePatterns are matched case-insensitively against the message.
var noisePatterns = []string{
	"partialreaderror",
	"unexpected buffer",
	"chunk size",
	"partial packet",
	"econnreset",
}

var reportableCodes = map[string]bool{
	CodeConnRefused: true,
	CodeNotFound:    true,
	CodeTimedOut:    true,
}

// Classify determines the class for a given signal.
func Classify(sig Signal) Class {
	if sig.Code == CodeConnReset {
		return Ignorable
	}

	msg := strings.ToLower(sig.Message)
	for _, p := range noisePatterns {
		if strings.Contains(msg, p) {
			return Ignorable
		}
	}

	if reportableCodes[sig.Code] {
		return Reportable
	}

	return Fatal
}

// ClassifyError is shorthand for Classify(FromError(err)).
func ClassifyError(err error) Class {
	if err == nil {
		return Ignorable
	}
	return Classify(FromError(err))
}

// FromError derives a Signal from a Go error, mapping network failures onto
// the low-level codes.
func FromError(err error) Signal {
	if err == nil {
		return Signal{}
	}
	sig := Signal{Message: err.Error()}

	var coded interface{ Code() string }
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.As(err, &coded):
		sig.Code = coded.Code()
	case errors.Is(err, syscall.ECONNREFUSED):
		sig.Code = CodeConnRefused
	case errors.Is(err, syscall.ECONNRESET):
		sig.Code = CodeConnReset
	case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
		sig.Code = CodeNotFound
	case errors.As(err, &netErr) && netErr.Timeout():
		sig.Code = CodeTimedOut
	case errors.Is(err, io.ErrUnexpectedEOF):
		// A frame cut short by the peer is the Go shape of a partial read.
		sig.Message = "partial packet: " + sig.Message
	}
	return sig
}
