// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
)

// readChunkSize is the size of the chunks read by [ByteStream.ReadAll].
const readChunkSize = 32 << 10

// Stream is a lazily readable body source.
//
// A Stream references, but does not own, the underlying reader: whoever
// created the reader is responsible for closing it. When the reader is
// seekable, every [ByteStream.ReadAll] restarts from offset zero.
// Otherwise, the stream can be consumed only once.
//
// A Stream allows one active reader at a time and must not be shared
// across concurrent operations.
type Stream struct {
	// length is the total length or -1 if unknown.
	length int64

	// mu serializes readers.
	mu sync.Mutex

	// position counts bytes consumed from a non-seekable reader.
	position int64

	// reader is the underlying reader.
	reader io.Reader

	// seeker is non-nil when the reader is seekable.
	seeker io.Seeker
}

// NewStream wraps r into a [*Stream] without reading from it.
//
// The length argument is the total body length or a negative value when
// unknown. When unknown and r is seekable, the length is computed by
// seeking to the end and back.
func NewStream(r io.Reader, length int64) *Stream {
	s := &Stream{length: -1, reader: r}
	if seeker, ok := r.(io.Seeker); ok {
		// pipes and sockets wrapped by *os.File implement Seek but fail
		if _, err := seeker.Seek(0, io.SeekCurrent); err == nil {
			s.seeker = seeker
		}
	}
	switch {
	case length >= 0:
		s.length = length
	case s.seeker != nil:
		s.length = seekLength(s.seeker)
	default:
		if lr, ok := r.(interface{ Len() int }); ok {
			s.length = int64(lr.Len())
		}
	}
	return s
}

func seekLength(seeker io.Seeker) int64 {
	current, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	end, err := seeker.Seek(0, io.SeekEnd)
	if _, rerr := seeker.Seek(current, io.SeekStart); err != nil || rerr != nil {
		return -1
	}
	return end
}

// Seekable reports whether the stream can be read more than once.
func (s *Stream) Seekable() bool {
	return s.seeker != nil
}

// Read implements [io.Reader].
func (s *Stream) Read(buffer []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(buffer)
}

func (s *Stream) readLocked(buffer []byte) (int, error) {
	count, err := s.reader.Read(buffer)
	s.position += int64(count)
	return count, err
}

func (s *Stream) rewindLocked() error {
	if s.seeker == nil {
		return nil
	}
	if _, err := s.seeker.Seek(0, io.SeekStart); err != nil {
		return &StreamError{Op: "seek", Err: err}
	}
	s.position = 0
	return nil
}

// readAll reads until EOF honouring ctx between chunks.
func (s *Stream) readAll(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rewindLocked(); err != nil {
		return nil, err
	}
	out := []byte{}
	chunk := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, &CanceledError{Err: err}
		}
		count, err := s.readLocked(chunk)
		out = append(out, chunk[:count]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, &StreamError{Op: "read", Err: err}
		}
	}
}

// remaining returns the number of unread bytes or -1 when unknown.
func (s *Stream) remaining() int64 {
	if s.length < 0 {
		return -1
	}
	if s.seeker != nil {
		return s.length
	}
	return max(s.length-s.position, 0)
}

type byteStreamKind int

const (
	byteStreamEmpty = byteStreamKind(iota)
	byteStreamBuffered
	byteStreamSource
)

// ByteStream is the body of a [Request] or of a [Response].
//
// A ByteStream is one of three variants: empty (no body), buffered
// (in-memory bytes, possibly nil) or source (a lazily read [*Stream]).
// The zero value is the empty variant.
type ByteStream struct {
	data   []byte
	kind   byteStreamKind
	stream *Stream
}

// NoBody is the empty [ByteStream].
var NoBody = ByteStream{}

// FromBytes returns a buffered [ByteStream]. The slice is not copied.
func FromBytes(data []byte) ByteStream {
	return ByteStream{data: data, kind: byteStreamBuffered}
}

// FromString returns a buffered [ByteStream] containing s.
func FromString(s string) ByteStream {
	return FromBytes([]byte(s))
}

// FromStream returns a source [ByteStream] referencing stream.
func FromStream(stream *Stream) ByteStream {
	return ByteStream{kind: byteStreamSource, stream: stream}
}

// FromReader returns a source [ByteStream] wrapping r without reading from it.
func FromReader(r io.Reader) ByteStream {
	return FromStream(NewStream(r, -1))
}

// FromReaderLength is like [FromReader] with a known total length.
func FromReaderLength(r io.Reader, length int64) ByteStream {
	return FromStream(NewStream(r, length))
}

// FromFile returns a source [ByteStream] wrapping an open file.
//
// The file is neither read nor copied and the caller keeps ownership.
func FromFile(file *os.File) ByteStream {
	return FromReader(file)
}

// ReadAll reads the whole body into memory.
//
// The buffered variant returns the stored bytes and the empty variant
// returns nil. A seekable source restarts from offset zero, so repeated
// calls return the same bytes. A non-seekable source is read once: calling
// ReadAll again after exhaustion returns empty content and no error.
//
// Failures of the underlying reader are returned as [*StreamError] and
// cancellation of ctx as [*CanceledError].
func (bs ByteStream) ReadAll(ctx context.Context) ([]byte, error) {
	switch bs.kind {
	case byteStreamBuffered:
		return bs.data, nil
	case byteStreamSource:
		return bs.stream.readAll(ctx)
	default:
		return nil, nil
	}
}

// IsEmpty reports whether the body has no content.
//
// A source is empty only when it reports a zero length; sources
// with unknown length are not considered empty.
func (bs ByteStream) IsEmpty() bool {
	switch bs.kind {
	case byteStreamBuffered:
		return len(bs.data) == 0
	case byteStreamSource:
		return bs.stream.remaining() == 0
	default:
		return true
	}
}

// IsSource reports whether the body is backed by a [*Stream].
func (bs ByteStream) IsSource() bool {
	return bs.kind == byteStreamSource
}

// Len returns the body length when known.
func (bs ByteStream) Len() (int64, bool) {
	switch bs.kind {
	case byteStreamBuffered:
		return int64(len(bs.data)), true
	case byteStreamSource:
		length := bs.stream.remaining()
		return length, length >= 0
	default:
		return 0, true
	}
}

// Rewindable reports whether the body can be sent more than once.
func (bs ByteStream) Rewindable() bool {
	return bs.kind != byteStreamSource || bs.stream.Seekable()
}

// Reader returns a reader streaming the body from its beginning.
//
// For a seekable source, Reader seeks to offset zero first.
func (bs ByteStream) Reader() (io.Reader, error) {
	switch bs.kind {
	case byteStreamBuffered:
		return bytes.NewReader(bs.data), nil
	case byteStreamSource:
		bs.stream.mu.Lock()
		err := bs.stream.rewindLocked()
		bs.stream.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return bs.stream, nil
	default:
		return http.NoBody, nil
	}
}

// Equal reports whether two byte streams are equal.
//
// Buffered streams compare byte by byte, empty streams are always equal
// to each other, and source streams are equal only when they reference
// the same [*Stream]. Different variants are never equal.
func (bs ByteStream) Equal(other ByteStream) bool {
	if bs.kind != other.kind {
		return false
	}
	switch bs.kind {
	case byteStreamBuffered:
		return bytes.Equal(bs.data, other.data)
	case byteStreamSource:
		return bs.stream == other.stream
	default:
		return true
	}
}

// String returns a debug rendering that never consumes the body.
func (bs ByteStream) String() string {
	switch bs.kind {
	case byteStreamBuffered:
		if bs.data == nil {
			return "ByteStream(buffered, nil)"
		}
		return fmt.Sprintf("ByteStream(buffered, %d bytes)", len(bs.data))
	case byteStreamSource:
		return bs.stream.describe()
	default:
		return "ByteStream(empty)"
	}
}

func (s *Stream) describe() string {
	if !s.mu.TryLock() {
		return "ByteStream(stream, busy)"
	}
	defer s.mu.Unlock()
	if s.seeker != nil {
		if length := seekLength(s.seeker); length >= 0 {
			return fmt.Sprintf("ByteStream(seekable stream, %d bytes)", length)
		}
		return "ByteStream(seekable stream, not readable)"
	}
	return fmt.Sprintf("ByteStream(non-seekable stream, position: %d, length: %d)", s.position, s.length)
}

// ErrStreamNotEncodable indicates an attempt to JSON-encode a source [ByteStream].
var ErrStreamNotEncodable = errors.New("cannot encode a stream")

// MarshalJSON implements [json.Marshaler].
//
// Buffered bytes are encoded as base64, while the empty variant and
// nil buffered bytes are encoded as null.
func (bs ByteStream) MarshalJSON() ([]byte, error) {
	switch bs.kind {
	case byteStreamBuffered:
		if bs.data == nil {
			return []byte("null"), nil
		}
		return json.Marshal(bs.data)
	case byteStreamSource:
		return nil, ErrStreamNotEncodable
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements [json.Unmarshaler].
//
// A null value decodes to nil buffered bytes.
func (bs *ByteStream) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*bs = FromBytes(nil)
		return nil
	}
	var decoded []byte
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*bs = FromBytes(decoded)
	return nil
}
