package mcclient

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/botkeeper/internal/core/classify"
	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/core/fault"
	"github.com/vietddude/botkeeper/internal/core/session"
)

// fakeServer accepts one connection, consumes handshake and login start,
// then hands the codec to script.
func fakeServer(t *testing.T, script func(c *Codec, conn net.Conn)) domain.Params {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		c := NewCodec(conn)
		if _, err := c.ReadPacket(); err != nil { // handshake
			return
		}
		if _, err := c.ReadPacket(); err != nil { // login start
			return
		}
		script(c, conn)
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return domain.Params{Host: host, Port: p, Identity: "retslav003"}
}

func collect(t *testing.T, conn session.Conn) []domain.Event {
	t.Helper()
	var events []domain.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("events not closed, got %v", events)
			return nil
		}
	}
}

func types(events []domain.Event) []domain.EventType {
	out := make([]domain.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func newTestDialer(proto int) *Dialer {
	cfg := DefaultConfig()
	cfg.ProtocolVersion = proto
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReadTimeout = 2 * time.Second
	return NewDialer(cfg)
}

func TestDial_LoginThenServerCloses(t *testing.T) {
	params := fakeServer(t, func(c *Codec, _ net.Conn) {
		_ = c.WritePacket(Packet{ID: 0x03, Data: AppendVarInt(nil, 256)})
		c.SetThreshold(256)
		_ = c.WritePacket(Packet{ID: 0x02, Data: AppendString(nil, "retslav003")})
	})

	conn, err := newTestDialer(763).Dial(context.Background(), params)
	require.NoError(t, err)

	events := collect(t, conn)
	assert.Equal(t, []domain.EventType{domain.EventTypeSpawn, domain.EventTypeEnd}, types(events))
	assert.Equal(t, domain.EndReasonSocketClosed, events[1].Reason)
}

func TestDial_LoginDisconnectIsKick(t *testing.T) {
	params := fakeServer(t, func(c *Codec, _ net.Conn) {
		_ = c.WritePacket(Packet{ID: 0x00, Data: AppendString(nil, `{"text":"You are banned"}`)})
	})

	conn, err := newTestDialer(763).Dial(context.Background(), params)
	require.NoError(t, err)

	events := collect(t, conn)
	require.Equal(t, []domain.EventType{domain.EventTypeKicked, domain.EventTypeEnd}, types(events))
	assert.Equal(t, "You are banned", events[0].Reason)
}

func TestDial_ConfigurationAndVitals(t *testing.T) {
	replies := make(chan Packet, 8)
	params := fakeServer(t, func(c *Codec, _ net.Conn) {
		_ = c.WritePacket(Packet{ID: 0x02})
		ack, err := c.ReadPacket()
		if err != nil {
			return
		}
		replies <- ack

		_ = c.WritePacket(Packet{ID: 0x0E, Data: AppendVarInt(nil, 0)})
		_ = c.WritePacket(Packet{ID: 0x04, Data: []byte{0, 0, 0, 0, 0, 0, 0, 42}})
		_ = c.WritePacket(Packet{ID: 0x03})
		for i := 0; i < 3; i++ {
			p, err := c.ReadPacket()
			if err != nil {
				return
			}
			replies <- p
		}

		health := binary.BigEndian.AppendUint32(nil, math.Float32bits(17.5))
		health = AppendVarInt(health, 12)
		_ = c.WritePacket(Packet{ID: 0x5D, Data: health})
		_ = c.WritePacket(Packet{ID: 0x1D})
	})

	conn, err := newTestDialer(767).Dial(context.Background(), params)
	require.NoError(t, err)

	events := collect(t, conn)
	require.Equal(t, []domain.EventType{
		domain.EventTypeSpawn, domain.EventTypeVitals, domain.EventTypeKicked, domain.EventTypeEnd,
	}, types(events))
	assert.Equal(t, 17.5, events[1].Health)
	assert.Equal(t, 12, events[1].Food)

	var ids []int32
	for len(replies) > 0 {
		p := <-replies
		ids = append(ids, p.ID)
		if p.ID == 0x04 {
			assert.True(t, bytes.Equal([]byte{0, 0, 0, 0, 0, 0, 0, 42}, p.Data))
		}
	}
	assert.Equal(t, []int32{0x03, 0x07, 0x04, 0x03}, ids)
}

func TestDial_EncryptionRequestIsFatal(t *testing.T) {
	params := fakeServer(t, func(c *Codec, _ net.Conn) {
		_ = c.WritePacket(Packet{ID: 0x01})
	})

	conn, err := newTestDialer(763).Dial(context.Background(), params)
	require.NoError(t, err)

	events := collect(t, conn)
	require.Equal(t, []domain.EventType{domain.EventTypeError, domain.EventTypeEnd}, types(events))
	assert.ErrorIs(t, events[0].Err, ErrOnlineMode)
	assert.Equal(t, classify.Fatal, classify.ClassifyError(events[0].Err))
}

func TestDial_TruncatedFrameIsNoise(t *testing.T) {
	params := fakeServer(t, func(_ *Codec, conn net.Conn) {
		frame := AppendVarInt(nil, 40)
		_, _ = conn.Write(append(frame, 0x02, 0x00))
	})

	conn, err := newTestDialer(763).Dial(context.Background(), params)
	require.NoError(t, err)

	events := collect(t, conn)
	require.Equal(t, []domain.EventType{domain.EventTypeError, domain.EventTypeEnd}, types(events))
	assert.Equal(t, classify.Ignorable, classify.ClassifyError(events[0].Err))
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	conn, err := newTestDialer(767).Dial(context.Background(),
		domain.Params{Host: "127.0.0.1", Port: port, Identity: "vibegames003"})
	require.NoError(t, err)

	events := collect(t, conn)
	require.Equal(t, []domain.EventType{domain.EventTypeError, domain.EventTypeEnd}, types(events))
	assert.Equal(t, classify.CodeConnRefused, classify.FromError(events[0].Err).Code)
	assert.Equal(t, classify.Reportable, classify.ClassifyError(events[0].Err))
}

func TestDial_InvalidParams(t *testing.T) {
	_, err := newTestDialer(767).Dial(context.Background(), domain.Params{Host: "x", Port: 0, Identity: "a"})
	assert.ErrorIs(t, err, domain.ErrPortOutOfRange)

	_, err = newTestDialer(0).Dial(context.Background(), domain.Params{Host: "x", Port: 1, Identity: "a"})
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	block := make(chan struct{})
	params := fakeServer(t, func(c *Codec, _ net.Conn) {
		_ = c.WritePacket(Packet{ID: 0x02})
		<-block
	})
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	conn, err := newTestDialer(763).Dial(ctx, params)
	require.NoError(t, err)
	cancel() // the request context does not bound the connection

	ev := <-conn.Events()
	require.Equal(t, domain.EventTypeSpawn, ev.Type)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	events := collect(t, conn)
	assert.Equal(t, []domain.EventType{domain.EventTypeEnd}, types(events))
}

func TestDial_PanicReachesFaultBoundary(t *testing.T) {
	codes := make(chan int, 1)
	restore := fault.SetExit(func(code int) { codes <- code })
	defer restore()

	d := newTestDialer(767)
	d.dial = func(context.Context, string, string) (net.Conn, error) {
		panic("decoder bug")
	}

	conn, err := d.Dial(context.Background(), domain.Params{Host: "127.0.0.1", Port: 1, Identity: "a"})
	require.NoError(t, err)

	events := collect(t, conn)
	assert.Equal(t, []domain.EventType{domain.EventTypeEnd}, types(events))

	select {
	case code := <-codes:
		assert.Equal(t, 1, code)
	case <-time.After(5 * time.Second):
		t.Fatal("panic did not reach the fault boundary")
	}
}

func TestDial_UnknownLayoutStillLogsIn(t *testing.T) {
	assert.Nil(t, lookupIDs(763))
	assert.NotNil(t, lookupIDs(767))

	_, err := newTestDialer(-1).Dial(context.Background(), domain.Params{Host: "x", Port: 1, Identity: "a"})
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)
}
