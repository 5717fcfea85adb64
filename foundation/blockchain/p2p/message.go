// Package p2p implements the node-to-node wire protocol (§4.8, §6): frame
// encoding, message payload schemas, and the inventory/handshake types a
// peer connection's reader and writer loops trade over a TCP socket.
package p2p

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/xorcoin/node/foundation/blockchain/codec"
	"github.com/xorcoin/node/foundation/blockchain/database"
	"github.com/xorcoin/node/foundation/blockchain/signature"
)

// Magic identifies this network; a frame with any other value is a protocol
// violation (§4.8's HANDSHAKING → DISCONNECTED transition).
const Magic uint32 = 0xd9b4bef9

// MaxMessageSize bounds a single frame's payload (§4.8).
const MaxMessageSize = 32 * 1024 * 1024

// commandSize is the fixed width of a frame's null-padded ASCII command.
const commandSize = 12

// ErrProtocol is the sentinel every frame/payload decode error wraps.
var ErrProtocol = errors.New("p2p: protocol violation")

// Command names a frame's payload schema (§4.8).
type Command string

const (
	CmdVersion    Command = "version"
	CmdVerAck     Command = "verack"
	CmdPing       Command = "ping"
	CmdPong       Command = "pong"
	CmdGetAddr    Command = "getaddr"
	CmdAddr       Command = "addr"
	CmdInv        Command = "inv"
	CmdGetData    Command = "getdata"
	CmdBlock      Command = "block"
	CmdTx         Command = "tx"
	CmdGetBlocks  Command = "getblocks"
)

// =============================================================================

// Frame is one wire message: magic || command (12B) || payload_len (4B LE)
// || checksum (4B, first 4 bytes of hash256(payload)) || payload (§6).
type Frame struct {
	Command Command
	Payload []byte
}

// Encode serializes f into its wire representation.
func (f Frame) Encode() ([]byte, error) {
	if len(f.Command) > commandSize {
		return nil, fmt.Errorf("%w: command %q exceeds %d bytes", ErrProtocol, f.Command, commandSize)
	}
	if len(f.Payload) > MaxMessageSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds MaxMessageSize", ErrProtocol, len(f.Payload))
	}

	var cmd [commandSize]byte
	copy(cmd[:], f.Command)

	checksum := signature.Hash256(f.Payload)

	w := codec.NewWriter(4 + commandSize + 4 + 4 + len(f.Payload))
	w.PutUint32(Magic)
	w.PutBytes(cmd[:])
	w.PutUint32(uint32(len(f.Payload)))
	w.PutBytes(checksum[:4])
	w.PutBytes(f.Payload)

	return w.Bytes(), nil
}

// HeaderSize is the fixed portion of a frame preceding its payload.
const HeaderSize = 4 + commandSize + 4 + 4

// DecodeHeader parses a frame's fixed header, returning the command and the
// payload length so the caller knows how many more bytes to read off the
// socket before calling DecodePayload.
func DecodeHeader(b []byte) (Command, uint32, error) {
	if len(b) < HeaderSize {
		return "", 0, fmt.Errorf("%w: truncated frame header", ErrProtocol)
	}

	magic := binary.LittleEndian.Uint32(b[0:4])
	if magic != Magic {
		return "", 0, fmt.Errorf("%w: bad magic %x", ErrProtocol, magic)
	}

	cmdBytes := b[4 : 4+commandSize]
	end := commandSize
	for i, c := range cmdBytes {
		if c == 0 {
			end = i
			break
		}
	}
	cmd := Command(cmdBytes[:end])

	payloadLen := binary.LittleEndian.Uint32(b[4+commandSize : 4+commandSize+4])
	if payloadLen > MaxMessageSize {
		return "", 0, fmt.Errorf("%w: payload_len %d exceeds MaxMessageSize", ErrProtocol, payloadLen)
	}

	return cmd, payloadLen, nil
}

// VerifyChecksum reports whether checksum (the 4 bytes following
// payload_len in the frame header) matches payload's hash256 prefix.
func VerifyChecksum(header []byte, payload []byte) error {
	want := header[4+commandSize+4 : HeaderSize]
	got := signature.Hash256(payload)
	for i := range want {
		if want[i] != got[i] {
			return fmt.Errorf("%w: checksum mismatch", ErrProtocol)
		}
	}
	return nil
}

// =============================================================================

// Version is CmdVersion's payload: what a node advertises about itself the
// moment a connection is established (§4.8's CONNECTING → HANDSHAKING step).
type Version struct {
	Protocol    uint32
	ChainID     uint32
	StartHeight uint64
	Nonce       uint64 // random per connection; not checked on receipt
	UserAgent   string
}

func (v Version) encode() []byte {
	w := codec.NewWriter(4 + 4 + 8 + 8 + len(v.UserAgent) + 9)
	w.PutUint32(v.Protocol)
	w.PutUint32(v.ChainID)
	w.PutUint64(v.StartHeight)
	w.PutUint64(v.Nonce)
	w.PutVarBytes([]byte(v.UserAgent))
	return w.Bytes()
}

func decodeVersion(b []byte) (Version, error) {
	r := codec.NewReader(b)

	protocol, err := r.GetUint32()
	if err != nil {
		return Version{}, err
	}
	chainID, err := r.GetUint32()
	if err != nil {
		return Version{}, err
	}
	startHeight, err := r.GetUint64()
	if err != nil {
		return Version{}, err
	}
	nonce, err := r.GetUint64()
	if err != nil {
		return Version{}, err
	}
	userAgent, err := r.GetVarBytes()
	if err != nil {
		return Version{}, err
	}
	if !r.Exhausted() {
		return Version{}, fmt.Errorf("%w: trailing bytes in version payload", ErrProtocol)
	}

	return Version{
		Protocol:    protocol,
		ChainID:     chainID,
		StartHeight: startHeight,
		Nonce:       nonce,
		UserAgent:   string(userAgent),
	}, nil
}

// =============================================================================

// InvType names the kind of item an Inventory vector identifies.
type InvType uint32

const (
	InvBlock InvType = 1
	InvTx    InvType = 2
)

// Inventory identifies one block or transaction by hash, used by INV and
// GETDATA (§4.8).
type Inventory struct {
	Type InvType
	Hash [32]byte
}

func encodeInvList(items []Inventory) []byte {
	w := codec.NewWriter(4 + len(items)*36)
	w.PutVarInt(uint64(len(items)))
	for _, inv := range items {
		w.PutUint32(uint32(inv.Type))
		w.PutBytes(inv.Hash[:])
	}
	return w.Bytes()
}

func decodeInvList(b []byte) ([]Inventory, error) {
	r := codec.NewReader(b)

	n, err := r.GetVarInt()
	if err != nil {
		return nil, err
	}

	items := make([]Inventory, 0, n)
	for i := uint64(0); i < n; i++ {
		typ, err := r.GetUint32()
		if err != nil {
			return nil, err
		}
		hashBytes, err := r.GetBytes(32)
		if err != nil {
			return nil, err
		}
		var hash [32]byte
		copy(hash[:], hashBytes)
		items = append(items, Inventory{Type: InvType(typ), Hash: hash})
	}

	if !r.Exhausted() {
		return nil, fmt.Errorf("%w: trailing bytes in inventory payload", ErrProtocol)
	}

	return items, nil
}

// =============================================================================

// Addr is one entry of an ADDR payload: a peer worth trying.
type Addr struct {
	Host string
}

func encodeAddrList(addrs []Addr) []byte {
	w := codec.NewWriter(4)
	w.PutVarInt(uint64(len(addrs)))
	for _, a := range addrs {
		w.PutVarBytes([]byte(a.Host))
	}
	return w.Bytes()
}

func decodeAddrList(b []byte) ([]Addr, error) {
	r := codec.NewReader(b)

	n, err := r.GetVarInt()
	if err != nil {
		return nil, err
	}

	addrs := make([]Addr, 0, n)
	for i := uint64(0); i < n; i++ {
		host, err := r.GetVarBytes()
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, Addr{Host: string(host)})
	}

	if !r.Exhausted() {
		return nil, fmt.Errorf("%w: trailing bytes in addr payload", ErrProtocol)
	}

	return addrs, nil
}

// =============================================================================

// GetBlocks is GETBLOCKS's payload: a block locator, exponentially-spaced
// hashes from the requester's tip back to genesis, used to find the common
// ancestor for initial block download (§4.8).
type GetBlocks struct {
	Locator []([32]byte)
}

func encodeGetBlocks(g GetBlocks) []byte {
	w := codec.NewWriter(4 + len(g.Locator)*32)
	w.PutVarInt(uint64(len(g.Locator)))
	for _, h := range g.Locator {
		w.PutBytes(h[:])
	}
	return w.Bytes()
}

func decodeGetBlocks(b []byte) (GetBlocks, error) {
	r := codec.NewReader(b)

	n, err := r.GetVarInt()
	if err != nil {
		return GetBlocks{}, err
	}

	locator := make([][32]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		hashBytes, err := r.GetBytes(32)
		if err != nil {
			return GetBlocks{}, err
		}
		var hash [32]byte
		copy(hash[:], hashBytes)
		locator = append(locator, hash)
	}

	if !r.Exhausted() {
		return GetBlocks{}, fmt.Errorf("%w: trailing bytes in getblocks payload", ErrProtocol)
	}

	return GetBlocks{Locator: locator}, nil
}

// =============================================================================

// EncodeVersion builds a version Frame.
func EncodeVersion(v Version) Frame { return Frame{Command: CmdVersion, Payload: v.encode()} }

// EncodeVerAck builds a verack Frame (empty payload).
func EncodeVerAck() Frame { return Frame{Command: CmdVerAck} }

// EncodePing builds a ping Frame carrying a nonce the peer must echo in pong.
func EncodePing(nonce uint64) Frame {
	w := codec.NewWriter(8)
	w.PutUint64(nonce)
	return Frame{Command: CmdPing, Payload: w.Bytes()}
}

// EncodePong builds a pong Frame echoing nonce.
func EncodePong(nonce uint64) Frame {
	w := codec.NewWriter(8)
	w.PutUint64(nonce)
	return Frame{Command: CmdPong, Payload: w.Bytes()}
}

// EncodeGetAddr builds a getaddr Frame (empty payload).
func EncodeGetAddr() Frame { return Frame{Command: CmdGetAddr} }

// EncodeAddr builds an addr Frame.
func EncodeAddr(addrs []Addr) Frame { return Frame{Command: CmdAddr, Payload: encodeAddrList(addrs)} }

// EncodeInv builds an inv Frame.
func EncodeInv(items []Inventory) Frame { return Frame{Command: CmdInv, Payload: encodeInvList(items)} }

// EncodeGetData builds a getdata Frame.
func EncodeGetData(items []Inventory) Frame {
	return Frame{Command: CmdGetData, Payload: encodeInvList(items)}
}

// EncodeGetBlocks builds a getblocks Frame.
func EncodeGetBlocks(g GetBlocks) Frame {
	return Frame{Command: CmdGetBlocks, Payload: encodeGetBlocks(g)}
}

// EncodeBlock builds a block Frame carrying the full-form encoded block.
func EncodeBlock(block database.Block) (Frame, error) {
	payload, err := encodeBlock(block)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Command: CmdBlock, Payload: payload}, nil
}

// EncodeTx builds a tx Frame carrying the full-form encoded transaction.
func EncodeTx(tx database.Transaction) (Frame, error) {
	payload, err := tx.EncodeFull()
	if err != nil {
		return Frame{}, err
	}
	return Frame{Command: CmdTx, Payload: payload}, nil
}

// DecodePayload decodes f's payload according to its Command, returning one
// of Version, struct{} (verack/getaddr), uint64 (ping/pong nonce), []Addr,
// []Inventory (inv/getdata), GetBlocks, database.Block, or
// database.Transaction.
func DecodePayload(f Frame) (any, error) {
	switch f.Command {
	case CmdVersion:
		return decodeVersion(f.Payload)
	case CmdVerAck, CmdGetAddr:
		return struct{}{}, nil
	case CmdPing, CmdPong:
		r := codec.NewReader(f.Payload)
		nonce, err := r.GetUint64()
		if err != nil {
			return nil, err
		}
		return nonce, nil
	case CmdAddr:
		return decodeAddrList(f.Payload)
	case CmdInv, CmdGetData:
		return decodeInvList(f.Payload)
	case CmdGetBlocks:
		return decodeGetBlocks(f.Payload)
	case CmdBlock:
		return decodeBlock(f.Payload)
	case CmdTx:
		return database.DecodeTransaction(f.Payload)
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrProtocol, f.Command)
	}
}
