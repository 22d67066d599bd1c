// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// onlyReader hides every method except Read.
type onlyReader struct {
	io.Reader
}

// The three variants report emptiness and length.
func TestByteStreamVariants(t *testing.T) {
	tests := []struct {
		name       string
		stream     ByteStream
		wantEmpty  bool
		wantLen    int64
		wantLenOK  bool
		wantSource bool
	}{{
		name:      "empty",
		stream:    NoBody,
		wantEmpty: true,
		wantLenOK: true,
	}, {
		name:      "buffered nil",
		stream:    FromBytes(nil),
		wantEmpty: true,
		wantLenOK: true,
	}, {
		name:      "buffered",
		stream:    FromString("hello"),
		wantLen:   5,
		wantLenOK: true,
	}, {
		name:       "seekable source",
		stream:     FromReader(strings.NewReader("hello")),
		wantLen:    5,
		wantLenOK:  true,
		wantSource: true,
	}, {
		name:       "non-seekable source with unknown length",
		stream:     FromReader(onlyReader{strings.NewReader("hello")}),
		wantLen:    -1,
		wantSource: true,
	}, {
		name:       "non-seekable source with known length",
		stream:     FromReaderLength(onlyReader{strings.NewReader("")}, 0),
		wantEmpty:  true,
		wantLenOK:  true,
		wantSource: true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			length, ok := tt.stream.Len()

			assert.Equal(t, tt.wantEmpty, tt.stream.IsEmpty())
			assert.Equal(t, tt.wantLen, length)
			assert.Equal(t, tt.wantLenOK, ok)
			assert.Equal(t, tt.wantSource, tt.stream.IsSource())
		})
	}
}

// A seekable source returns the same bytes on every read.
func TestByteStreamSeekableReread(t *testing.T) {
	stream := FromReader(strings.NewReader("hello, world"))
	require.True(t, stream.Rewindable())

	for range 3 {
		data, err := stream.ReadAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "hello, world", string(data))
	}
}

// A non-seekable source is consumed once and then reads as empty.
func TestByteStreamNonSeekableSinglePass(t *testing.T) {
	stream := FromReaderLength(onlyReader{strings.NewReader("hello")}, 5)
	assert.False(t, stream.Rewindable())

	data, err := stream.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.True(t, stream.IsEmpty())

	data, err = stream.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, data)
}

// A file is neither read nor copied when wrapped.
func TestByteStreamFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body.txt")
	require.NoError(t, os.WriteFile(path, []byte("file body"), 0600))
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	stream := FromFile(file)

	length, ok := stream.Len()
	require.True(t, ok)
	assert.Equal(t, int64(9), length)
	assert.Equal(t, "ByteStream(seekable stream, 9 bytes)", stream.String())
	data, err := stream.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "file body", string(data))
}

// Reader failures become StreamError and cancellation becomes CanceledError.
func TestByteStreamReadAllErrors(t *testing.T) {
	wantErr := errors.New("mocked error")
	_, err := FromReader(iotest.ErrReader(wantErr)).ReadAll(context.Background())
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "read", streamErr.Op)
	assert.ErrorIs(t, err, wantErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FromReader(strings.NewReader("data")).ReadAll(ctx)
	var canceledErr *CanceledError
	require.ErrorAs(t, err, &canceledErr)
	assert.ErrorIs(t, err, context.Canceled)
}

// Reader streams the body from the beginning.
func TestByteStreamReader(t *testing.T) {
	for _, stream := range []ByteStream{FromString("abc"), FromReader(strings.NewReader("abc"))} {
		for range 2 {
			r, err := stream.Reader()
			require.NoError(t, err)
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "abc", string(data))
		}
	}

	r, err := NoBody.Reader()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, data)
}

// Equality compares bytes for buffered streams and identity for sources.
func TestByteStreamEqual(t *testing.T) {
	stream := NewStream(strings.NewReader("x"), -1)

	assert.True(t, NoBody.Equal(ByteStream{}))
	assert.True(t, FromString("a").Equal(FromBytes([]byte("a"))))
	assert.False(t, FromString("a").Equal(FromString("b")))
	assert.False(t, NoBody.Equal(FromBytes(nil)))
	assert.True(t, FromStream(stream).Equal(FromStream(stream)))
	assert.False(t, FromStream(stream).Equal(FromReader(strings.NewReader("x"))))
}

// String never consumes the body.
func TestByteStreamString(t *testing.T) {
	assert.Equal(t, "ByteStream(empty)", NoBody.String())
	assert.Equal(t, "ByteStream(buffered, nil)", FromBytes(nil).String())
	assert.Equal(t, "ByteStream(buffered, 3 bytes)", FromString("abc").String())

	stream := FromReaderLength(onlyReader{strings.NewReader("abc")}, 3)
	assert.Equal(t, "ByteStream(non-seekable stream, position: 0, length: 3)", stream.String())
	data, err := stream.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

// Buffered bodies encode as base64 and sources refuse encoding.
func TestByteStreamJSON(t *testing.T) {
	type wrapper struct {
		Body ByteStream `json:"body"`
	}

	data, err := json.Marshal(wrapper{Body: FromString("hi")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"body":"aGk="}`, string(data))

	data, err = json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"body":null}`, string(data))

	var decoded wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"body":"aGk="}`), &decoded))
	assert.True(t, decoded.Body.Equal(FromString("hi")))
	require.NoError(t, json.Unmarshal([]byte(`{"body":null}`), &decoded))
	assert.True(t, decoded.Body.Equal(FromBytes(nil)))

	_, err = json.Marshal(wrapper{Body: FromReader(strings.NewReader("x"))})
	require.ErrorIs(t, err, ErrStreamNotEncodable)
}
