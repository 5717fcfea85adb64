package p2p

import (
	"sync"
	"time"
)

// State is where a connection sits in the handshake state machine (§4.8).
type State int

const (
	Connecting State = iota
	Handshaking
	Ready
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Ready:
		return "ready"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Ban score increments (§4.8): accumulated per misbehavior until a
// connection crosses BanThreshold and gets dropped and blacklisted.
const (
	ScoreInvalidBlock    = 100
	ScoreInvalidTx       = 10
	ScoreOversizedMsg    = 50
	ScoreTooManyMessages = 20

	// BanThreshold is the accumulated ban score that forces a disconnect.
	BanThreshold = 100

	// BanDuration is how long a banned host is refused a new connection.
	BanDuration = 24 * time.Hour
)

// Peer connection limits (§4.8).
const (
	MaxInboundPerIP = 3
	MaxPeers        = 125
	MaxRequestsPerMinute = 60
)

// Conn tracks the live, per-connection state of one peer: handshake
// progress, misbehavior score, and the token bucket that rate-limits its
// requests. This is deliberately separate from peer.Peer, which is the
// durable, comparable "we know this host exists" record kept in a
// peer.PeerSet independent of whether anything is connected to it right
// now.
type Conn struct {
	mu sync.Mutex

	Host  string
	state State

	banScore int

	// version is populated once the handshake's VERSION message arrives.
	version   Version
	handshook bool

	tokens     float64
	lastRefill time.Time
}

// NewConn constructs a Conn in the Connecting state for host.
func NewConn(host string) *Conn {
	return &Conn{
		Host:       host,
		state:      Connecting,
		tokens:     MaxRequestsPerMinute,
		lastRefill: time.Now(),
	}
}

// State reports the connection's current handshake state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// SetState transitions the connection to state.
func (c *Conn) SetState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = state
}

// RecordVersion stores the peer's handshake VERSION payload and marks the
// connection ready to move past HANDSHAKING once VERACK is exchanged.
func (c *Conn) RecordVersion(v Version) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.version = v
	c.handshook = true
}

// Version returns the peer's handshake VERSION payload, if received.
func (c *Conn) Version() (Version, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.version, c.handshook
}

// AddBanScore increments the connection's ban score by delta and reports
// whether it has now crossed BanThreshold.
func (c *Conn) AddBanScore(delta int) (banned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.banScore += delta
	return c.banScore >= BanThreshold
}

// BanScore returns the connection's current accumulated ban score.
func (c *Conn) BanScore() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.banScore
}

// Allow reports whether another request may proceed under the token
// bucket, consuming one token if so (§4.8's MAX_REQUESTS_PER_MINUTE).
func (c *Conn) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(c.lastRefill).Seconds()
	c.lastRefill = now

	c.tokens += elapsed * (MaxRequestsPerMinute / 60.0)
	if c.tokens > MaxRequestsPerMinute {
		c.tokens = MaxRequestsPerMinute
	}

	if c.tokens < 1 {
		return false
	}

	c.tokens--
	return true
}
