package dosscan

import (
	"io"

	"github.com/pkg/errors"
)

// byteSource wraps a raw byte stream with one-byte lookahead and
// fully-buffered reads, per spec `4.A Peekable byte source`. It is the
// Go analog of the original's PeekInputStream, generalized to the
// read_byte/peek_byte/read_exact/available_hint/skip/close contract.
type byteSource struct {
	rd     io.Reader
	closer io.Closer
	peekb  int // buffered lookahead byte, or -1 if empty
}

// newByteSource wraps rd. If rd also implements io.Closer, close()
// releases it.
func newByteSource(rd io.Reader) *byteSource {
	bs := &byteSource{rd: rd, peekb: -1}
	if c, ok := rd.(io.Closer); ok {
		bs.closer = c
	}
	return bs
}

// peekByte returns the next byte without consuming it. A subsequent
// readByte must return the same value. Returns ErrUnexpectedEOF (wrapped)
// at end of stream.
func (bs *byteSource) peekByte() (byte, error) {
	if bs.peekb >= 0 {
		return byte(bs.peekb), nil
	}

	var b [1]byte
	if _, err := io.ReadFull(bs.rd, b[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, errors.Wrap(ErrUnexpectedEOF, "error peeking byte")
		}
		return 0, errors.Wrap(err, "error peeking byte")
	}

	bs.peekb = int(b[0])

	return b[0], nil
}

// readByte consumes and returns the next byte.
func (bs *byteSource) readByte() (byte, error) {
	if bs.peekb >= 0 {
		v := byte(bs.peekb)
		bs.peekb = -1

		return v, nil
	}

	var b [1]byte
	if _, err := io.ReadFull(bs.rd, b[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, errors.Wrap(ErrUnexpectedEOF, "error reading byte")
		}
		return 0, errors.Wrap(err, "error reading byte")
	}

	return b[0], nil
}

// readExact reads exactly n bytes, failing with ErrUnexpectedEOF if the
// stream ends first.
func (bs *byteSource) readExact(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}

	buf := make([]byte, n)
	start := 0

	if bs.peekb >= 0 {
		buf[0] = byte(bs.peekb)
		bs.peekb = -1
		start = 1
	}

	if start < n {
		if _, err := io.ReadFull(bs.rd, buf[start:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, errors.Wrap(ErrUnexpectedEOF, "error reading exact bytes")
			}
			return nil, errors.Wrap(err, "error reading exact bytes")
		}
	}

	return buf, nil
}

// atEOF reports whether the stream is known to be exhausted. It
// is a best-effort lower bound: a false "more data" hint is allowed, a
// false "exhausted" hint is not, matching the peekByte-driven end()
// check the teacher performs via bufio.Reader.Buffered()/Peek(1).
func (bs *byteSource) atEOF() bool {
	if bs.peekb >= 0 {
		return false
	}

	var b [1]byte
	n, err := io.ReadFull(bs.rd, b[:])
	if n == 1 {
		bs.peekb = int(b[0])
	}

	return err != nil
}

// skip discards n bytes.
func (bs *byteSource) skip(n int) error {
	if n <= 0 {
		return nil
	}

	if bs.peekb >= 0 {
		bs.peekb = -1
		n--
	}

	if n == 0 {
		return nil
	}

	if _, err := io.CopyN(io.Discard, bs.rd, int64(n)); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return errors.Wrap(ErrUnexpectedEOF, "error skipping bytes")
		}
		return errors.Wrap(err, "error skipping bytes")
	}

	return nil
}

// close releases the underlying stream, if it is closable.
func (bs *byteSource) close() error {
	if bs.closer != nil {
		return bs.closer.Close()
	}
	return nil
}
