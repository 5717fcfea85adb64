package p2p

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrTooManyPeers is returned when accepting a connection would exceed
// MaxPeers or MaxInboundPerIP (§4.8).
var ErrTooManyPeers = errors.New("p2p: too many peers")

// ErrBanned is returned when a host is still serving out BanDuration after
// crossing BanThreshold.
var ErrBanned = errors.New("p2p: host is banned")

// ConnSet tracks every live connection plus a blacklist of recently banned
// hosts, enforcing the inbound-per-IP and total-peer caps from §4.8.
type ConnSet struct {
	mu      sync.Mutex
	conns   map[string]*Conn
	banned  map[string]time.Time // host -> ban expiry
	inbound map[string]int       // ip -> inbound connection count
}

// NewConnSet constructs an empty ConnSet.
func NewConnSet() *ConnSet {
	return &ConnSet{
		conns:   make(map[string]*Conn),
		banned:  make(map[string]time.Time),
		inbound: make(map[string]int),
	}
}

// AddInbound admits a new inbound connection from host, enforcing the
// per-IP cap, the total peer cap, and the ban list.
func (cs *ConnSet) AddInbound(host string) (*Conn, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if expiry, ok := cs.banned[host]; ok {
		if time.Now().Before(expiry) {
			return nil, fmt.Errorf("%w: %s until %s", ErrBanned, host, expiry)
		}
		delete(cs.banned, host)
	}

	ip := ipOf(host)
	if cs.inbound[ip] >= MaxInboundPerIP {
		return nil, fmt.Errorf("%w: %s already has %d inbound connections", ErrTooManyPeers, ip, cs.inbound[ip])
	}

	if len(cs.conns) >= MaxPeers {
		return nil, fmt.Errorf("%w: at capacity (%d)", ErrTooManyPeers, MaxPeers)
	}

	conn := NewConn(host)
	cs.conns[host] = conn
	cs.inbound[ip]++

	return conn, nil
}

// AddOutbound admits a new outbound connection to host, enforcing only the
// total peer cap (outbound connections are ones we chose to make).
func (cs *ConnSet) AddOutbound(host string) (*Conn, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if len(cs.conns) >= MaxPeers {
		return nil, fmt.Errorf("%w: at capacity (%d)", ErrTooManyPeers, MaxPeers)
	}

	conn := NewConn(host)
	cs.conns[host] = conn

	return conn, nil
}

// Remove drops host's connection, freeing its per-IP inbound slot if any.
func (cs *ConnSet) Remove(host string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	delete(cs.conns, host)

	ip := ipOf(host)
	if n := cs.inbound[ip]; n > 0 {
		cs.inbound[ip]--
	}
}

// Ban removes host's connection and blacklists it for BanDuration.
func (cs *ConnSet) Ban(host string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	delete(cs.conns, host)
	ip := ipOf(host)
	if n := cs.inbound[ip]; n > 0 {
		cs.inbound[ip]--
	}
	cs.banned[host] = time.Now().Add(BanDuration)
}

// Len returns the number of live connections.
func (cs *ConnSet) Len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	return len(cs.conns)
}

// Ready returns every connection currently in the Ready state.
func (cs *ConnSet) Ready() []*Conn {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var ready []*Conn
	for _, c := range cs.conns {
		if c.State() == Ready {
			ready = append(ready, c)
		}
	}
	return ready
}

func ipOf(host string) string {
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}
