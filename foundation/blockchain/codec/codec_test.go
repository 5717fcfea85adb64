package codec_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xorcoin/node/foundation/blockchain/codec"
)

func Test_VarIntRoundTrip(t *testing.T) {
	tests := []uint64{0, 1, 0xfc, 0xfd, 0xfe, 0xffff, 0x10000, 0xffffffff, 0x100000000, 1<<64 - 1}

	for _, v := range tests {
		enc := codec.EncodeVarInt(v)
		got, used, err := codec.DecodeVarInt(enc)
		if err != nil {
			t.Fatalf("DecodeVarInt(%d): %s", v, err)
		}
		if got != v {
			t.Fatalf("DecodeVarInt(%d): got %d", v, got)
		}
		if used != len(enc) {
			t.Fatalf("DecodeVarInt(%d): consumed %d, want %d", v, used, len(enc))
		}
	}
}

func Test_VarIntMinimalEncodingSize(t *testing.T) {
	tests := []struct {
		v    uint64
		size int
	}{
		{0, 1},
		{0xfc, 1},
		{0xfd, 3},
		{0xffff, 3},
		{0x10000, 5},
		{0xffffffff, 5},
		{0x100000000, 9},
	}

	for _, tt := range tests {
		enc := codec.EncodeVarInt(tt.v)
		if len(enc) != tt.size {
			t.Fatalf("EncodeVarInt(%d): got %d bytes, want %d", tt.v, len(enc), tt.size)
		}
	}
}

func Test_VarIntRejectsNonMinimal(t *testing.T) {
	tests := [][]byte{
		{0xfd, 0x00, 0x00}, // encodes 0, should be 1 byte
		{0xfd, 0xfc, 0x00}, // encodes 0xfc, should be 1 byte
		{0xfe, 0xff, 0xff, 0x00, 0x00}, // encodes 0xffff, should be 3 bytes
		{0xff, 0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00}, // encodes 0xffffffff, should be 5 bytes
	}

	for i, b := range tests {
		if _, _, err := codec.DecodeVarInt(b); err == nil {
			t.Fatalf("case %d: expected non-minimal varint to be rejected", i)
		} else if !errors.Is(err, codec.ErrCodec) {
			t.Fatalf("case %d: expected a codec.ErrCodec, got %T", i, err)
		}
	}
}

func Test_VarIntRejectsTruncated(t *testing.T) {
	tests := [][]byte{
		{},
		{0xfd},
		{0xfd, 0x01},
		{0xfe, 0x01, 0x00, 0x00},
		{0xff, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	}

	for i, b := range tests {
		if _, _, err := codec.DecodeVarInt(b); err == nil {
			t.Fatalf("case %d: expected truncated varint to be rejected", i)
		}
	}
}

func Test_WriterReaderRoundTrip(t *testing.T) {
	w := codec.NewWriter(0)
	w.PutUint32(1)
	w.PutUint64(1234567890123)
	w.PutBytes([]byte{1, 2, 3, 4})
	w.PutVarBytes([]byte("hello, xorcoin"))

	r := codec.NewReader(w.Bytes())

	v32, err := r.GetUint32()
	if err != nil || v32 != 1 {
		t.Fatalf("GetUint32: got %d, %v", v32, err)
	}

	v64, err := r.GetUint64()
	if err != nil || v64 != 1234567890123 {
		t.Fatalf("GetUint64: got %d, %v", v64, err)
	}

	fixed, err := r.GetBytes(4)
	if err != nil || !bytes.Equal(fixed, []byte{1, 2, 3, 4}) {
		t.Fatalf("GetBytes: got %v, %v", fixed, err)
	}

	varBytes, err := r.GetVarBytes()
	if err != nil || string(varBytes) != "hello, xorcoin" {
		t.Fatalf("GetVarBytes: got %q, %v", varBytes, err)
	}

	if !r.Exhausted() {
		t.Fatalf("expected reader to be exhausted after consuming the full encoding")
	}
}

func Test_ReaderRejectsTruncatedFixedRead(t *testing.T) {
	r := codec.NewReader([]byte{1, 2, 3})
	if _, err := r.GetUint32(); err == nil {
		t.Fatalf("expected a truncated read to fail")
	}
}

func Test_ReaderRejectsOversizedVarBytes(t *testing.T) {
	w := codec.NewWriter(0)
	w.PutVarInt(codec.MaxFieldSize + 1)

	r := codec.NewReader(w.Bytes())
	if _, err := r.GetVarBytes(); err == nil {
		t.Fatalf("expected an oversized field length to be rejected")
	}
}
