// Package mcclient is a minimal game client: it performs the handshake and the
// offline-mode login, answers keep-alives for the protocol versions it knows,
// and reports lifecycle events. It does not simulate a player.
package mcclient

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/core/fault"
	"github.com/vietddude/botkeeper/internal/core/session"
)

var (
	ErrOnlineMode          = errors.New("server requires online-mode authentication")
	ErrUnsupportedProtocol = errors.New("unsupported protocol version")
)

// Config holds client settings.
type Config struct {
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ProtocolVersion int           `yaml:"protocol_version"`
	ReadTimeout     time.Duration `yaml:"read_timeout"` // 0 disables the deadline
}

// DefaultConfig targets 1.21.1.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:  30 * time.Second,
		ProtocolVersion: 767,
		ReadTimeout:     60 * time.Second,
	}
}

// Dialer opens client connections. It satisfies factory.Dialer.
type Dialer struct {
	cfg    Config
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
	logger *slog.Logger
}

// NewDialer creates a dialer with the given settings.
func NewDialer(cfg Config) *Dialer {
	nd := &net.Dialer{Timeout: cfg.ConnectTimeout}
	logger := slog.Default().With("component", "mcclient")
	if cfg.ProtocolVersion > 0 && lookupIDs(cfg.ProtocolVersion) == nil {
		logger.Warn("No packet layout for protocol version, sessions will only drain after login",
			"protocol", cfg.ProtocolVersion)
	}
	return &Dialer{
		cfg:    cfg,
		dial:   nd.DialContext,
		logger: logger,
	}
}

// Dial starts connecting in the background and returns immediately. Network
// failures are delivered as events, not as the returned error. The
// connection outlives ctx; only Close stops it.
func (d *Dialer) Dial(ctx context.Context, params domain.Params) (session.Conn, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if d.cfg.ProtocolVersion <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedProtocol, d.cfg.ProtocolVersion)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Conn{
		params: params,
		cfg:    d.cfg,
		ids:    lookupIDs(d.cfg.ProtocolVersion),
		events: make(chan domain.Event, 16),
		ctx:    runCtx,
		cancel: cancel,
		logger: d.logger.With("addr", params.Addr(), "username", params.Identity),
	}
	fault.Go(func() { c.run(d.dial) })
	return c, nil
}

// Conn is one client connection.
type Conn struct {
	params domain.Params
	cfg    Config
	ids    *packetIDs
	events chan domain.Event
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu        sync.Mutex
	nc        net.Conn
	closeOnce sync.Once
}

// Events is closed after the final end event.
func (c *Conn) Events() <-chan domain.Event { return c.events }

// Close aborts the connection. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		if c.nc != nil {
			err = c.nc.Close()
		}
		c.mu.Unlock()
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Conn) emit(ev domain.Event) { c.events <- ev }

func (c *Conn) closed() bool { return c.ctx.Err() != nil }

func (c *Conn) run(dial func(ctx context.Context, network, addr string) (net.Conn, error)) {
	defer close(c.events)
	defer c.emit(domain.Event{Type: domain.EventTypeEnd, Reason: domain.EndReasonSocketClosed})

	nc, err := dial(c.ctx, "tcp", c.params.Addr())
	if err != nil {
		if !c.closed() {
			c.emit(domain.Event{Type: domain.EventTypeError, Err: err})
		}
		return
	}

	c.mu.Lock()
	if c.closed() {
		c.mu.Unlock()
		nc.Close()
		return
	}
	c.nc = nc
	c.mu.Unlock()
	defer nc.Close()

	err = c.session(nc)
	if err == nil || c.closed() || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return
	}
	c.emit(domain.Event{Type: domain.EventTypeError, Err: err})
}

func (c *Conn) session(nc net.Conn) error {
	codec := NewCodec(nc)

	if err := codec.WritePacket(handshake(c.cfg.ProtocolVersion, c.params)); err != nil {
		return fmt.Errorf("write handshake: %w", err)
	}
	if err := codec.WritePacket(loginStart(c.cfg.ProtocolVersion, c.params.Identity)); err != nil {
		return fmt.Errorf("write login start: %w", err)
	}

	next, err := c.login(nc, codec)
	if err != nil || next == stateDone {
		return err
	}
	if next == stateConfiguration {
		next, err = c.configuration(nc, codec)
		if err != nil || next == stateDone {
			return err
		}
	}

	c.logger.Debug("Entered play state")
	c.emit(domain.Event{Type: domain.EventTypeSpawn})
	return c.play(nc, codec)
}

type state int

const (
	stateDone state = iota
	stateConfiguration
	statePlay
)

func (c *Conn) read(nc net.Conn, codec *Codec) (Packet, error) {
	if c.cfg.ReadTimeout > 0 {
		_ = nc.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	return codec.ReadPacket()
}

func (c *Conn) login(nc net.Conn, codec *Codec) (state, error) {
	for {
		p, err := c.read(nc, codec)
		if err != nil {
			return stateDone, err
		}
		body := bytes.NewReader(p.Data)

		switch p.ID {
		case 0x00: // disconnect
			raw, err := ReadString(body)
			if err != nil {
				return stateDone, err
			}
			c.emit(domain.Event{Type: domain.EventTypeKicked, Reason: chatText(raw)})
			return stateDone, nil
		case 0x01: // encryption request
			return stateDone, ErrOnlineMode
		case 0x02: // login success
			if c.cfg.ProtocolVersion >= protoConfigState {
				if err := codec.WritePacket(Packet{ID: 0x03}); err != nil {
					return stateDone, fmt.Errorf("write login acknowledged: %w", err)
				}
				return stateConfiguration, nil
			}
			return statePlay, nil
		case 0x03: // set compression
			threshold, err := ReadVarInt(body)
			if err != nil {
				return stateDone, err
			}
			codec.SetThreshold(int(threshold))
		case 0x04: // plugin request: answer "not understood"
			msgID, err := ReadVarInt(body)
			if err != nil {
				return stateDone, err
			}
			if err := codec.WritePacket(Packet{ID: 0x02, Data: append(AppendVarInt(nil, msgID), 0)}); err != nil {
				return stateDone, err
			}
		}
	}
}

func (c *Conn) configuration(nc net.Conn, codec *Codec) (state, error) {
	if c.ids == nil {
		// Unknown layout: nothing can be answered, so the server will time us out.
		return statePlay, nil
	}
	ids := c.ids.config
	for {
		p, err := c.read(nc, codec)
		if err != nil {
			return stateDone, err
		}
		switch p.ID {
		case ids.disconnect:
			c.emit(domain.Event{Type: domain.EventTypeKicked, Reason: "disconnected during configuration"})
			return stateDone, nil
		case ids.keepAliveIn:
			if err := codec.WritePacket(Packet{ID: ids.keepAliveOut, Data: p.Data}); err != nil {
				return stateDone, err
			}
		case ids.knownPacksIn:
			if err := codec.WritePacket(Packet{ID: ids.knownPacksOut, Data: AppendVarInt(nil, 0)}); err != nil {
				return stateDone, err
			}
		case ids.finishIn:
			if err := codec.WritePacket(Packet{ID: ids.finishOut}); err != nil {
				return stateDone, err
			}
			return statePlay, nil
		}
	}
}

func (c *Conn) play(nc net.Conn, codec *Codec) error {
	for {
		p, err := c.read(nc, codec)
		if err != nil {
			return err
		}
		if c.ids == nil {
			continue
		}
		ids := c.ids.play
		switch p.ID {
		case ids.disconnect:
			c.emit(domain.Event{Type: domain.EventTypeKicked, Reason: "disconnected by server"})
			return nil
		case ids.keepAliveIn:
			if err := codec.WritePacket(Packet{ID: ids.keepAliveOut, Data: p.Data}); err != nil {
				return err
			}
		case ids.updateHealth:
			if ev, ok := vitals(p.Data); ok {
				c.emit(ev)
			}
		}
	}
}

func vitals(data []byte) (domain.Event, bool) {
	if len(data) < 5 {
		return domain.Event{}, false
	}
	health := math.Float32frombits(binary.BigEndian.Uint32(data[:4]))
	food, err := ReadVarInt(bytes.NewReader(data[4:]))
	if err != nil {
		return domain.Event{}, false
	}
	return domain.Event{Type: domain.EventTypeVitals, Health: float64(health), Food: int(food)}, true
}

func handshake(proto int, params domain.Params) Packet {
	data := AppendVarInt(nil, int32(proto))
	data = AppendString(data, params.Host)
	data = putUint16(data, uint16(params.Port))
	data = AppendVarInt(data, 2) // next state: login
	return Packet{ID: 0x00, Data: data}
}

func loginStart(proto int, name string) Packet {
	data := AppendString(nil, name)
	id := OfflineUUID(name)
	switch {
	case proto >= protoConfigState:
		data = append(data, id[:]...)
	case proto >= 761:
		data = append(data, 1)
		data = append(data, id[:]...)
	case proto >= 759:
		data = append(data, 0, 1) // no signature data, has uuid
		data = append(data, id[:]...)
	}
	return Packet{ID: 0x00, Data: data}
}

// OfflineUUID derives the identity servers assign to offline-mode players.
func OfflineUUID(name string) uuid.UUID {
	h := md5.Sum([]byte("OfflinePlayer:" + name))
	h[6] = h[6]&0x0f | 0x30
	h[8] = h[8]&0x3f | 0x80
	id, _ := uuid.FromBytes(h[:])
	return id
}

// chatText extracts readable text from a JSON chat component.
func chatText(raw string) string {
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return s
	}
	var comp struct {
		Text      string            `json:"text"`
		Translate string            `json:"translate"`
		Extra     []json.RawMessage `json:"extra"`
	}
	if err := json.Unmarshal([]byte(raw), &comp); err != nil {
		return raw
	}
	out := comp.Text
	if out == "" {
		out = comp.Translate
	}
	for _, e := range comp.Extra {
		out += chatText(string(e))
	}
	return out
}
