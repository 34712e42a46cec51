package mcclient

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarInt(t *testing.T) {
	tests := []struct {
		value int32
		bytes []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{2097151, []byte{0xff, 0xff, 0x7f}},
		{-1, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.bytes, AppendVarInt(nil, tt.value), "encode %d", tt.value)

		got, err := ReadVarInt(bytes.NewReader(tt.bytes))
		require.NoError(t, err)
		assert.Equal(t, tt.value, got, "decode %x", tt.bytes)
	}
}

func TestReadVarInt_TooBig(t *testing.T) {
	_, err := ReadVarInt(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}))
	assert.ErrorIs(t, err, ErrVarIntTooBig)
}

func TestCodec_Compression(t *testing.T) {
	var buf bytes.Buffer
	w := NewCodec(&buf)
	w.SetThreshold(64)

	small := Packet{ID: 0x26, Data: []byte{1, 2, 3}}
	large := Packet{ID: 0x5D, Data: bytes.Repeat([]byte("x"), 500)}
	require.NoError(t, w.WritePacket(small))
	require.NoError(t, w.WritePacket(large))

	r := NewCodec(&buf)
	r.SetThreshold(64)

	got, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, small, got)

	got, err = r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, large.ID, got.ID)
	assert.Equal(t, large.Data, got.Data)

	_, err = r.ReadPacket()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCodec_TruncatedFrame(t *testing.T) {
	frame := AppendVarInt(nil, 10)
	frame = append(frame, 0x00, 0x01, 0x02)

	_, err := NewCodec(bytes.NewBuffer(frame)).ReadPacket()
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestCodec_ChunkTooLarge(t *testing.T) {
	frame := AppendVarInt(nil, MaxPacketSize+1)

	_, err := NewCodec(bytes.NewBuffer(frame)).ReadPacket()
	assert.ErrorIs(t, err, ErrChunkSize)
	assert.Contains(t, err.Error(), "chunk size is")
}

func TestReadString_Short(t *testing.T) {
	data := AppendVarInt(nil, 20)
	data = append(data, "abc"...)

	_, err := ReadString(bytes.NewReader(data))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestChatText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain string", `"Server closed"`, "Server closed"},
		{"text component", `{"text":"You are banned"}`, "You are banned"},
		{"translate", `{"translate":"multiplayer.disconnect.server_full"}`, "multiplayer.disconnect.server_full"},
		{"extra", `{"text":"Kicked: ","extra":[{"text":"afk"}]}`, "Kicked: afk"},
		{"not json", `go away`, "go away"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chatText(tt.raw))
		})
	}
}

func TestOfflineUUID(t *testing.T) {
	id := OfflineUUID("retslav003")
	assert.Equal(t, uuid.Version(3), id.Version())
	assert.Equal(t, id, OfflineUUID("retslav003"))
	assert.NotEqual(t, id, OfflineUUID("vibegames003"))
}
