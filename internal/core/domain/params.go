package domain

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

var (
	ErrMissingHost     = errors.New("host is required")
	ErrMissingIdentity = errors.New("username is required")
	ErrPortOutOfRange  = errors.New("port must be between 1 and 65535")
)

// Params identifies the remote server and the identity a session logs in with.
// Params are compared structurally and never mutated after a session is created.
type Params struct {
	Host     string `json:"host"     yaml:"host"`
	Port     int    `json:"port"     yaml:"port"`
	Identity string `json:"username" yaml:"username"`
}

// Validate checks the preconditions for creating a session.
func (p Params) Validate() error {
	if p.Host == "" {
		return ErrMissingHost
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrPortOutOfRange, p.Port)
	}
	if p.Identity == "" {
		return ErrMissingIdentity
	}
	return nil
}

// Addr returns host:port suitable for net.Dial.
func (p Params) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

func (p Params) String() string {
	return p.Identity + "@" + p.Addr()
}
