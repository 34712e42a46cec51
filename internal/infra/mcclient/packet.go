package mcclient

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxPacketSize bounds a single frame (2^21 - 1, the largest 3-byte VarInt).
const MaxPacketSize = 1<<21 - 1

var (
	ErrVarIntTooBig = errors.New("varint is too big")
	ErrChunkSize    = errors.New("chunk size exceeds maximum")
)

// Packet is one decoded frame: its id and the remaining payload.
type Packet struct {
	ID   int32
	Data []byte
}

// AppendVarInt appends v using the protocol's 7-bit little-endian encoding.
func AppendVarInt(b []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		b = append(b, byte(u)|0x80)
		u >>= 7
	}
	return append(b, byte(u))
}

// ReadVarInt decodes a VarInt from r.
func ReadVarInt(r io.ByteReader) (int32, error) {
	var result uint32
	for i := 0; i < 5; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return int32(result), nil
		}
	}
	return 0, ErrVarIntTooBig
}

// AppendString appends a VarInt length-prefixed UTF-8 string.
func AppendString(b []byte, s string) []byte {
	b = AppendVarInt(b, int32(len(s)))
	return append(b, s...)
}

// ReadString decodes a length-prefixed string from r.
func ReadString(r *bytes.Reader) (string, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > r.Len() {
		return "", fmt.Errorf("string length %d: %w", n, io.ErrUnexpectedEOF)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Codec reads and writes length-prefixed frames, switching to the compressed
// layout once the server has sent a threshold.
type Codec struct {
	r         *bufio.Reader
	w         io.Writer
	threshold int
}

// NewCodec wraps a stream. Compression is off until SetThreshold.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{r: bufio.NewReader(rw), w: rw, threshold: -1}
}

// SetThreshold enables compression. A negative value disables it.
func (c *Codec) SetThreshold(n int) { c.threshold = n }

// ReadPacket reads one frame. A frame cut short by the peer yields an error
// wrapping io.ErrUnexpectedEOF; a clean close between frames yields io.EOF.
func (c *Codec) ReadPacket() (Packet, error) {
	length, err := ReadVarInt(c.r)
	if err != nil {
		return Packet{}, err
	}
	if length < 0 || length > MaxPacketSize {
		return Packet{}, fmt.Errorf("%w: chunk size is %d but max is %d", ErrChunkSize, length, MaxPacketSize)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(c.r, frame); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Packet{}, fmt.Errorf("read frame: %w", err)
	}

	if c.threshold >= 0 {
		frame, err = inflate(frame)
		if err != nil {
			return Packet{}, err
		}
	}

	body := bytes.NewReader(frame)
	id, err := ReadVarInt(body)
	if err != nil {
		return Packet{}, fmt.Errorf("read packet id: %w", io.ErrUnexpectedEOF)
	}
	data := frame[len(frame)-body.Len():]
	return Packet{ID: id, Data: data}, nil
}

// WritePacket frames and writes one packet.
func (c *Codec) WritePacket(p Packet) error {
	body := AppendVarInt(nil, p.ID)
	body = append(body, p.Data...)

	if c.threshold >= 0 {
		var err error
		body, err = deflate(body, c.threshold)
		if err != nil {
			return err
		}
	}

	frame := AppendVarInt(make([]byte, 0, len(body)+5), int32(len(body)))
	frame = append(frame, body...)
	_, err := c.w.Write(frame)
	return err
}

// inflate decodes the compressed layout: VarInt uncompressed length (0 when
// the body was sent as is) followed by the body.
func inflate(frame []byte) ([]byte, error) {
	r := bytes.NewReader(frame)
	size, err := ReadVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("read data length: %w", io.ErrUnexpectedEOF)
	}
	rest := frame[len(frame)-r.Len():]
	if size == 0 {
		return rest, nil
	}
	if size < 0 || size > MaxPacketSize {
		return nil, fmt.Errorf("%w: chunk size is %d but max is %d", ErrChunkSize, size, MaxPacketSize)
	}

	zr, err := zlib.NewReader(bytes.NewReader(rest))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	defer zr.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out, nil
}

func deflate(body []byte, threshold int) ([]byte, error) {
	if len(body) < threshold {
		return append(AppendVarInt(nil, 0), body...), nil
	}
	var buf bytes.Buffer
	buf.Write(AppendVarInt(nil, int32(len(body))))
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// putUint16 appends a big-endian unsigned short.
func putUint16(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}
