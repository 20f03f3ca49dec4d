package tcp

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_WriteRead(t *testing.T) {
	var buf bytes.Buffer
	in := &frame{
		Type:    frameInvite,
		Name:    "alice",
		Key:     "2NEpo7TZRRrLZSi2U",
		Service: "chat",
		Body:    []byte("hello"),
	}
	require.NoError(t, writeFrame(&buf, in))
	require.NoError(t, writeFrame(&buf, &frame{Type: frameResourceBegin, ID: "x", Size: 1 << 20}))

	r := bufio.NewReader(&buf)
	out, err := readFrame(r)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out, err = readFrame(r)
	require.NoError(t, err)
	assert.Equal(t, frameResourceBegin, out.Type)
	assert.Equal(t, "x", out.ID)
	assert.Equal(t, int64(1<<20), out.Size)
	assert.Empty(t, out.Body)

	_, err = readFrame(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrame_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, &frame{Type: frameData, Body: []byte("payload")}))

	data := buf.Bytes()
	_, err := readFrame(bufio.NewReader(bytes.NewReader(data[:len(data)-3])))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFrame_TooLarge(t *testing.T) {
	err := writeFrame(io.Discard, &frame{Type: frameData, Body: make([]byte, maxBodySize+1)})
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	data := varint.ToUvarint(maxHeaderSize + 1)
	_, err = readFrame(bufio.NewReader(bytes.NewReader(data)))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFrame_Malformed(t *testing.T) {
	// 头部不是合法的 protobuf
	var buf bytes.Buffer
	buf.Write(varint.ToUvarint(2))
	buf.Write([]byte{0xff, 0xff})
	buf.Write(varint.ToUvarint(0))
	_, err := readFrame(bufio.NewReader(&buf))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	// 缺少类型字段
	buf.Reset()
	buf.Write(varint.ToUvarint(0))
	buf.Write(varint.ToUvarint(0))
	_, err = readFrame(bufio.NewReader(&buf))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.jpg", "photo.jpg"},
		{"../../etc/passwd", "passwd"},
		{`..\..\boot.ini`, "boot.ini"},
		{"dir/", "dir"},
		{"..", "resource"},
		{"", "resource"},
		{"a*b", "a_b"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, safeName(tt.in))
		})
	}
}
