package dosscan

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Tunable sizes for the block-data framed reader, per spec `4.B`.
const (
	maxBlockSize  = 1024
	maxHeaderSize = 5
)

// defaultMaxStringLen bounds how large a single modified-UTF-8 body this
// reader will allocate for, independent of the array/reference DoS
// ceilings (which only cover array lengths and reference fan-out). A
// TC_LONGSTRING declares its length in a 4-byte word; without a cap, a
// single declared length could itself demand an outsized allocation
// before a single byte of attacker data is verified to exist.
const defaultMaxStringLen = 1 << 20

// blockReader wraps a byteSource with the dual-mode (raw/block) framing
// described in spec `4.B`. In raw mode it behaves like a plain
// big-endian primitive reader; in block mode it transparently unwraps
// TC_BLOCKDATA/TC_BLOCKDATALONG frames (swallowing TC_RESET markers
// between them) so that primitive reads appear contiguous across frame
// boundaries.
type blockReader struct {
	src *byteSource

	blockMode bool
	buf       [maxBlockSize]byte
	pos       int
	end       int // -1 means "no more block data here"
	unread    int

	maxStringLen int
}

func newBlockReader(src *byteSource) *blockReader {
	return &blockReader{src: src, end: -1, maxStringLen: defaultMaxStringLen}
}

// inBlockMode reports the current mode.
func (r *blockReader) inBlockMode() bool { return r.blockMode }

// setBlockMode switches between raw and block mode. Switching to block
// mode resets (pos, end, unread) to zero. Switching to raw mode while
// unconsumed block bytes remain is a programming error, per spec `4.B`.
func (r *blockReader) setBlockMode(on bool) error {
	if r.blockMode == on {
		return nil
	}

	if on {
		r.pos, r.end, r.unread = 0, 0, 0
	} else if r.pos < r.end || r.unread > 0 {
		return errors.WithStack(ErrBlockStateViolation)
	}

	r.blockMode = on

	return nil
}

// readBlockHeader looks for the next TC_BLOCKDATA/TC_BLOCKDATALONG
// header, swallowing any TC_RESET markers found first. Returns the
// declared block length, or -1 if the next tag is not a block header
// (the tag, if any, is left unconsumed).
func (r *blockReader) readBlockHeader() (int, error) {
	for {
		tc, err := r.src.peekByte()
		if err != nil {
			if causeIs(err, ErrUnexpectedEOF) {
				return -1, nil
			}

			return -1, err
		}

		switch tc {
		case tcBlockData:
			hdr, err := r.src.readExact(2)
			if err != nil {
				return -1, err
			}

			return int(hdr[1]), nil

		case tcBlockDataLong:
			hdr, err := r.src.readExact(5)
			if err != nil {
				return -1, err
			}

			length := int32(binary.BigEndian.Uint32(hdr[1:5]))
			if length < 0 {
				return -1, errors.Wrapf(ErrCorruptedStream, "illegal block data header length: %d", length)
			}

			return int(length), nil

		case tcReset:
			if _, err := r.src.readByte(); err != nil {
				return -1, err
			}
			// TC_RESET may occur between data blocks; keep looking.
			continue

		default:
			return -1, nil
		}
	}
}

// refill loads the next chunk of block data into buf, following a
// current unread block payload or searching for the next header.
func (r *blockReader) refill() error {
	for {
		r.pos = 0

		if r.unread > 0 {
			n := r.unread
			if n > maxBlockSize {
				n = maxBlockSize
			}

			data, err := r.src.readExact(n)
			if err != nil {
				r.pos, r.end, r.unread = 0, -1, 0

				if causeIs(err, ErrUnexpectedEOF) {
					return errors.Wrap(ErrCorruptedStream, "unexpected EOF in middle of data block")
				}

				return err
			}

			copy(r.buf[:n], data)
			r.end = n
			r.unread -= n
		} else {
			length, err := r.readBlockHeader()
			if err != nil {
				r.pos, r.end, r.unread = 0, -1, 0

				return err
			}

			if length >= 0 {
				r.end = 0
				r.unread = length
			} else {
				r.end = -1
				r.unread = 0
			}
		}

		if r.pos != r.end {
			return nil
		}
	}
}

// skipToEndOfBlocks consumes and discards all bytes until the next
// non-block tag. Only valid in block mode; does not change mode.
func (r *blockReader) skipToEndOfBlocks() error {
	if !r.blockMode {
		return errors.New("skipToEndOfBlocks called outside block mode")
	}

	for r.end >= 0 {
		if err := r.refill(); err != nil {
			return err
		}
	}

	return nil
}

// currentBlockRemaining returns (end-pos)+unread in block mode while
// block data is present; it returns 0 in raw mode or once end is -1.
func (r *blockReader) currentBlockRemaining() int {
	if !r.blockMode || r.end < 0 {
		return 0
	}

	return (r.end - r.pos) + r.unread
}

// peek returns the next byte, or -1 at end of stream/block data.
func (r *blockReader) peek() (int, error) {
	if r.blockMode {
		if r.pos == r.end {
			if err := r.refill(); err != nil {
				return 0, err
			}
		}

		if r.end < 0 {
			return -1, nil
		}

		return int(r.buf[r.pos]), nil
	}

	b, err := r.src.peekByte()
	if err != nil {
		if causeIs(err, ErrUnexpectedEOF) {
			return -1, nil
		}

		return 0, err
	}

	return int(b), nil
}

// peekTag is peek, but fails with ErrUnexpectedEOF instead of -1.
func (r *blockReader) peekTag() (byte, error) {
	v, err := r.peek()
	if err != nil {
		return 0, err
	}

	if v < 0 {
		return 0, errors.WithStack(ErrUnexpectedEOF)
	}

	return byte(v), nil
}

// atEOF reports whether the reader has no further bytes available in
// the current mode (raw stream exhausted, or block mode has run out of
// framed data).
func (r *blockReader) atEOF() (bool, error) {
	v, err := r.peek()
	if err != nil {
		return false, err
	}

	return v < 0, nil
}

func (r *blockReader) readRawByte() (byte, error) {
	if r.blockMode {
		if r.pos == r.end {
			if err := r.refill(); err != nil {
				return 0, err
			}
		}

		if r.end < 0 {
			return 0, errors.WithStack(ErrUnexpectedEOF)
		}

		b := r.buf[r.pos]
		r.pos++

		return b, nil
	}

	return r.src.readByte()
}

// readN returns exactly n bytes, honoring block framing. When a read
// straddles a block boundary it falls back to a byte-by-byte slow path
// that reassembles the value across refills.
func (r *blockReader) readN(n int) ([]byte, error) {
	if !r.blockMode {
		return r.src.readExact(n)
	}

	if r.end-r.pos >= n {
		b := make([]byte, n)
		copy(b, r.buf[r.pos:r.pos+n])
		r.pos += n

		return b, nil
	}

	b := make([]byte, n)
	for i := 0; i < n; i++ {
		v, err := r.readRawByte()
		if err != nil {
			return nil, err
		}

		b[i] = v
	}

	return b, nil
}

func (r *blockReader) readUint8() (uint8, error) {
	b, err := r.readN(1)
	if err != nil {
		return 0, errors.Wrap(err, "error reading uint8")
	}

	return b[0], nil
}

func (r *blockReader) readInt8() (int8, error) {
	u, err := r.readUint8()
	return int8(u), err
}

func (r *blockReader) readUint16() (uint16, error) {
	b, err := r.readN(2)
	if err != nil {
		return 0, errors.Wrap(err, "error reading uint16")
	}

	return binary.BigEndian.Uint16(b), nil
}

func (r *blockReader) readInt16() (int16, error) {
	u, err := r.readUint16()
	return int16(u), err
}

func (r *blockReader) readUint32() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, errors.Wrap(err, "error reading uint32")
	}

	return binary.BigEndian.Uint32(b), nil
}

func (r *blockReader) readInt32() (int32, error) {
	u, err := r.readUint32()
	return int32(u), err
}

func (r *blockReader) readInt64() (int64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, errors.Wrap(err, "error reading int64")
	}

	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *blockReader) readFloat32() (float32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, errors.Wrap(err, "error reading float32")
	}

	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

func (r *blockReader) readFloat64() (float64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, errors.Wrap(err, "error reading float64")
	}

	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// decodeModifiedUTF8 decodes the three byte-pattern classes the format
// allows (1/2/3 byte sequences) per spec `4.B`. It does not accept
// 4-byte sequences or any other prefix.
func decodeModifiedUTF8(b []byte) (string, error) {
	var sb strings.Builder

	i := 0
	for i < len(b) {
		c := b[i]

		switch {
		case c&0x80 == 0: // 0xxxxxxx
			sb.WriteByte(c)
			i++

		case c&0xE0 == 0xC0: // 110xxxxx 10xxxxxx
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", errors.Errorf("invalid 2-byte continuation at offset %d", i)
			}

			sb.WriteRune(rune(c&0x1F)<<6 | rune(b[i+1]&0x3F))
			i += 2

		case c&0xF0 == 0xE0: // 1110xxxx 10xxxxxx 10xxxxxx
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", errors.Errorf("invalid 3-byte continuation at offset %d", i)
			}

			sb.WriteRune(rune(c&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F))
			i += 3

		default:
			return "", errors.Errorf("invalid leading byte %#x at offset %d", c, i)
		}
	}

	return sb.String(), nil
}

// readModifiedUTF8 reads n raw bytes (honoring the current cursor
// position, so a decode failure still leaves the reader positioned at
// start+n as spec `4.B` requires) and decodes them as modified UTF-8.
func (r *blockReader) readModifiedUTF8(n int) (string, error) {
	if n > r.maxStringLen {
		return "", errors.Errorf("string length %d exceeds maximum of %d", n, r.maxStringLen)
	}

	b, err := r.readN(n)
	if err != nil {
		return "", errors.Wrap(err, "error reading utf body")
	}

	s, err := decodeModifiedUTF8(b)
	if err != nil {
		return "", errors.Wrap(ErrMalformedUTF, err.Error())
	}

	return s, nil
}

// readUTF reads a 2-byte-length-prefixed modified-UTF-8 string (the
// TC_STRING body format).
func (r *blockReader) readUTF() (string, error) {
	n, err := r.readUint16()
	if err != nil {
		return "", errors.Wrap(err, "error reading utf: unable to read segment length")
	}

	return r.readModifiedUTF8(int(n))
}

// readUTFLong reads the TC_LONGSTRING body format: an 8-byte big-endian
// length (as two 4-byte words; the high word must be zero) followed by
// that many bytes of modified UTF-8.
func (r *blockReader) readUTFLong() (string, error) {
	hi, err := r.readUint32()
	if err != nil {
		return "", errors.Wrap(err, "error reading utf long: unable to read first segment length")
	}

	if hi != 0 {
		return "", errors.New("unable to read string larger than 2^32 bytes")
	}

	lo, err := r.readUint32()
	if err != nil {
		return "", errors.Wrap(err, "error reading utf long: unable to read second segment length")
	}

	return r.readModifiedUTF8(int(lo))
}
