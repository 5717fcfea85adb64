package worker

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/xorcoin/node/foundation/blockchain/p2p"
)

// dialTimeout bounds how long connecting to a peer may take before giving
// up (§4.8).
const dialTimeout = 10 * time.Second

// ioTimeout bounds a single frame read or write, so a peer that stops
// responding mid-message doesn't wedge the connection's goroutine forever.
const ioTimeout = 30 * time.Second

// dial opens a TCP connection to host.
func dial(host string) (net.Conn, error) {
	return net.DialTimeout("tcp", host, dialTimeout)
}

// sendFrame writes f to conn in its wire form.
func sendFrame(conn net.Conn, f p2p.Frame) error {
	b, err := f.Encode()
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	_, err = conn.Write(b)
	return err
}

// readFrame reads one complete frame off conn: the fixed header first, to
// learn the payload length, then exactly that many payload bytes.
func readFrame(conn net.Conn) (p2p.Frame, error) {
	conn.SetReadDeadline(time.Now().Add(ioTimeout))

	header := make([]byte, p2p.HeaderSize)
	if _, err := readFull(conn, header); err != nil {
		return p2p.Frame{}, err
	}

	cmd, payloadLen, err := p2p.DecodeHeader(header)
	if err != nil {
		return p2p.Frame{}, err
	}

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := readFull(conn, payload); err != nil {
			return p2p.Frame{}, err
		}
	}

	if err := p2p.VerifyChecksum(header, payload); err != nil {
		return p2p.Frame{}, err
	}

	return p2p.Frame{Command: cmd, Payload: payload}, nil
}

// readFull reads exactly len(buf) bytes, the same guarantee io.ReadFull
// gives, kept local so this file doesn't need an extra import for one call
// site's worth of use.
func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// handshake performs the VERSION/VERACK exchange that moves a fresh
// connection from CONNECTING to READY (§4.8).
func handshake(conn net.Conn, self p2p.Version) (p2p.Version, error) {
	if err := sendFrame(conn, p2p.EncodeVersion(self)); err != nil {
		return p2p.Version{}, fmt.Errorf("send version: %w", err)
	}

	frame, err := readFrame(conn)
	if err != nil {
		return p2p.Version{}, fmt.Errorf("read version: %w", err)
	}
	if frame.Command != p2p.CmdVersion {
		return p2p.Version{}, fmt.Errorf("expected version, got %s", frame.Command)
	}
	payload, err := p2p.DecodePayload(frame)
	if err != nil {
		return p2p.Version{}, err
	}
	peerVersion := payload.(p2p.Version)

	if err := sendFrame(conn, p2p.EncodeVerAck()); err != nil {
		return p2p.Version{}, fmt.Errorf("send verack: %w", err)
	}

	frame, err = readFrame(conn)
	if err != nil {
		return p2p.Version{}, fmt.Errorf("read verack: %w", err)
	}
	if frame.Command != p2p.CmdVerAck {
		return p2p.Version{}, fmt.Errorf("expected verack, got %s", frame.Command)
	}

	return peerVersion, nil
}

// randomNonce derives a connection nonce from the current time; it only
// needs to be unlikely to repeat, not cryptographically unpredictable. Each
// connection gets its own nonce, and the handshake does not compare the
// peer's nonce against any local one, so a node dialing itself is not
// detected.
func randomNonce() uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(time.Now().UnixNano()))
	return binary.LittleEndian.Uint64(b[:])
}
