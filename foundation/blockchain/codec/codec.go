// Package codec implements the canonical, deterministic binary encoding used
// for transaction/block hashing, signing, and the wire protocol: fixed
// little-endian integers, length-prefixed sequences via a Bitcoin-style
// variable-length integer, and field order matching the data model's
// declaration order.
//
// Two forms of a transaction exist on top of these primitives: full form
// (wire/storage, includes input signatures) and sighash form (signing,
// excludes them). Package database builds both on top of Writer/Reader.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCodec is the sentinel every error this package returns wraps, so callers
// can test with errors.Is(err, codec.ErrCodec) per spec §7's CodecError kind.
var ErrCodec = errors.New("codec")

// MaxFieldSize bounds any single length-prefixed field this package will
// decode, independent of any higher-level MAX_TX_SIZE/MAX_BLOCK_SIZE check —
// it exists purely to stop a malicious length prefix from provoking an
// oversized allocation before the caller gets a chance to reject the message.
const MaxFieldSize = 32 * 1024 * 1024

// =============================================================================

// Writer accumulates a canonical encoding. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter constructs a Writer with a pre-sized backing buffer.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// PutUint32 appends a little-endian uint32.
func (w *Writer) PutUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// PutUint64 appends a little-endian uint64.
func (w *Writer) PutUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// PutBytes appends raw bytes with no length prefix, for fixed-size fields
// (32-byte hashes, etc).
func (w *Writer) PutBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// PutVarInt appends a CompactSize-encoded length or count.
func (w *Writer) PutVarInt(v uint64) {
	w.buf = append(w.buf, EncodeVarInt(v)...)
}

// PutVarBytes appends a VarInt length prefix followed by the bytes.
func (w *Writer) PutVarBytes(b []byte) {
	w.PutVarInt(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// =============================================================================

// Reader consumes a canonical encoding, tracking position and rejecting
// truncated or oversized reads.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential decoding.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining reports how many bytes are left to read.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Exhausted reports whether every byte has been consumed; callers use this to
// reject trailing garbage after a full decode.
func (r *Reader) Exhausted() bool {
	return r.pos == len(r.buf)
}

func (r *Reader) readExact(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w: truncated, need %d have %d", ErrCodec, n, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// GetUint32 reads a little-endian uint32.
func (r *Reader) GetUint32() (uint32, error) {
	b, err := r.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// GetUint64 reads a little-endian uint64.
func (r *Reader) GetUint64() (uint64, error) {
	b, err := r.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// GetBytes reads n raw bytes with no length prefix.
func (r *Reader) GetBytes(n int) ([]byte, error) {
	b, err := r.readExact(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// GetVarInt reads a CompactSize-encoded length or count, rejecting
// non-minimal encodings.
func (r *Reader) GetVarInt() (uint64, error) {
	v, used, err := DecodeVarInt(r.buf[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += used
	return v, nil
}

// GetVarBytes reads a VarInt length prefix followed by that many bytes,
// rejecting lengths beyond MaxFieldSize.
func (r *Reader) GetVarBytes() ([]byte, error) {
	n, err := r.GetVarInt()
	if err != nil {
		return nil, err
	}
	if n > MaxFieldSize {
		return nil, fmt.Errorf("%w: field of %d bytes exceeds max %d", ErrCodec, n, MaxFieldSize)
	}
	return r.GetBytes(int(n))
}

// =============================================================================

// EncodeVarInt encodes v using the Bitcoin CompactSize scheme:
//
//	v <  0xfd                 -> 1 byte
//	v <= 0xffff                -> 0xfd, uint16 LE
//	v <= 0xffffffff             -> 0xfe, uint32 LE
//	otherwise                   -> 0xff, uint64 LE
func EncodeVarInt(v uint64) []byte {
	switch {
	case v < 0xfd:
		return []byte{byte(v)}
	case v <= 0xffff:
		b := make([]byte, 3)
		b[0] = 0xfd
		binary.LittleEndian.PutUint16(b[1:], uint16(v))
		return b
	case v <= 0xffffffff:
		b := make([]byte, 5)
		b[0] = 0xfe
		binary.LittleEndian.PutUint32(b[1:], uint32(v))
		return b
	default:
		b := make([]byte, 9)
		b[0] = 0xff
		binary.LittleEndian.PutUint64(b[1:], v)
		return b
	}
}

// DecodeVarInt decodes a CompactSize value from the front of b, returning the
// value and the number of bytes consumed. Non-minimal encodings (a multi-byte
// prefix used to encode a value that fits in a smaller form) are rejected per
// spec §4.2.
func DecodeVarInt(b []byte) (uint64, int, error) {
	if len(b) < 1 {
		return 0, 0, fmt.Errorf("%w: truncated varint", ErrCodec)
	}

	switch b[0] {
	case 0xfd:
		if len(b) < 3 {
			return 0, 0, fmt.Errorf("%w: truncated varint", ErrCodec)
		}
		v := uint64(binary.LittleEndian.Uint16(b[1:3]))
		if v < 0xfd {
			return 0, 0, fmt.Errorf("%w: non-minimal varint", ErrCodec)
		}
		return v, 3, nil

	case 0xfe:
		if len(b) < 5 {
			return 0, 0, fmt.Errorf("%w: truncated varint", ErrCodec)
		}
		v := uint64(binary.LittleEndian.Uint32(b[1:5]))
		if v <= 0xffff {
			return 0, 0, fmt.Errorf("%w: non-minimal varint", ErrCodec)
		}
		return v, 5, nil

	case 0xff:
		if len(b) < 9 {
			return 0, 0, fmt.Errorf("%w: truncated varint", ErrCodec)
		}
		v := binary.LittleEndian.Uint64(b[1:9])
		if v <= 0xffffffff {
			return 0, 0, fmt.Errorf("%w: non-minimal varint", ErrCodec)
		}
		return v, 9, nil

	default:
		return uint64(b[0]), 1, nil
	}
}
