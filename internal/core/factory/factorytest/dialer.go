// Package factorytest provides an in-memory Dialer for tests.
package factorytest

import (
	"context"
	"sync"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/core/session"
)

// Conn is a session whose events are pushed by the test.
type Conn struct {
	Params domain.Params

	events    chan domain.Event
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func newConn(params domain.Params) *Conn {
	return &Conn{Params: params, events: make(chan domain.Event, 16)}
}

func (c *Conn) Events() <-chan domain.Event { return c.events }

// Close ends the event stream. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.events)
		c.mu.Unlock()
	})
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Emit pushes an event unless the conn is closed.
func (c *Conn) Emit(ev domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.events <- ev
	}
}

// Dialer records every dialled Conn.
type Dialer struct {
	mu    sync.Mutex
	conns []*Conn
	err   error
}

func NewDialer() *Dialer {
	return &Dialer{}
}

func (d *Dialer) Dial(ctx context.Context, params domain.Params) (session.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := newConn(params)
	d.conns = append(d.conns, c)
	return c, nil
}

// Fail makes every following Dial return err. Pass nil to recover.
func (d *Dialer) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Conns returns every dialled Conn in dial order.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Last returns the most recently dialled Conn.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
