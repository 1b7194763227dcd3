package enet

import (
	"container/list"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Host owns one UDP socket and every Peer multiplexed on it (§3). All of
// its methods run on whichever goroutine calls Service/Connect/Broadcast —
// there is no internal locking, matching the single-threaded cooperative
// model of §5. Concurrent access from multiple goroutines is the caller's
// responsibility to serialize.
type Host struct {
	socket Socket
	peers  []*Peer

	ChannelLimit       uint32
	IncomingBandwidth  uint32
	OutgoingBandwidth  uint32
	MaximumPacketSize  uint32
	MaximumWaitingData uint32

	Checksum   Checksum
	Compressor Compressor

	clock                       Clock
	serviceTime                 int64
	bandwidthThrottleEpoch      int64
	recalculateBandwidthLimits  bool
	outgoingBandwidthUsed       uint32

	dispatchQueue *list.List // of *Peer, drained for EventReceive
	pendingEvents []Event    // connect/disconnect/timeout events awaiting delivery
	deadlines     *deadlineQueue

	queueTimeCounter int64
	rng              *rand.Rand

	logger *zap.Logger
}

// HostOption configures optional Host behavior at construction time.
type HostOption func(*Host)

// WithChecksum installs a Checksum hook (§4.10/§9).
func WithChecksum(c Checksum) HostOption { return func(h *Host) { h.Checksum = c } }

// WithCompressor installs a Compressor hook (§4.10/§9).
func WithCompressor(c Compressor) HostOption { return func(h *Host) { h.Compressor = c } }

// WithChannelLimit caps the channel count a remote CONNECT may request.
func WithChannelLimit(limit uint32) HostOption { return func(h *Host) { h.ChannelLimit = limit } }

// WithBandwidth sets the host's incoming/outgoing bandwidth budget in
// bytes/sec, used by §4.7's fair-share throttle.
func WithBandwidth(incoming, outgoing uint32) HostOption {
	return func(h *Host) {
		h.IncomingBandwidth = incoming
		h.OutgoingBandwidth = outgoing
		h.recalculateBandwidthLimits = true
	}
}

// WithClock overrides the default system clock, for deterministic tests.
func WithClock(c Clock) HostOption { return func(h *Host) { h.clock = c } }

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) HostOption { return func(h *Host) { h.logger = l } }

// NewHost binds addr (host:port, or ":0" for an ephemeral port) and
// prepares peerCount peer slots.
func NewHost(addr string, peerCount uint32, opts ...HostOption) (*Host, error) {
	h := &Host{
		peers:              make([]*Peer, peerCount),
		MaximumPacketSize:  HostDefaultMaximumPacketSize,
		MaximumWaitingData: HostDefaultMaximumWaitingData,
		clock:              newSystemClock(),
		dispatchQueue:      list.New(),
		deadlines:          newDeadlineQueue(),
		logger:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.rng = rand.New(rand.NewSource(h.clock.NowMillis()))
	h.serviceTime = h.clock.NowMillis()
	h.bandwidthThrottleEpoch = h.serviceTime

	socket, err := NewUDPSocket(addr, hostReceiveBufferSize, hostSendBufferSize, false)
	if err != nil {
		return nil, err
	}
	h.socket = socket

	for i := range h.peers {
		h.peers[i] = newPeer(h, i)
	}
	return h, nil
}

// LocalAddr reports the address the Host's socket is bound to, useful when
// NewHost was given an ephemeral port (":0").
func (h *Host) LocalAddr() Address {
	return h.socket.LocalAddr()
}

func (h *Host) nextQueueTime() int64 {
	h.queueTimeCounter++
	return h.queueTimeCounter
}

func (h *Host) randomConnectID() uint32 {
	return h.rng.Uint32()
}

// allocatePeer returns the first disconnected slot, or an error if every
// slot is in use (§7: resource exhaustion is InvalidArgument, not a
// crash).
func (h *Host) allocatePeer() (*Peer, error) {
	for _, p := range h.peers {
		if p.State == StateDisconnected {
			return p, nil
		}
	}
	return nil, wrapf(ErrInvalidArgument, "no free peer slots (max %d)", len(h.peers))
}

// Connect begins a new outgoing connection and returns its Peer
// immediately; the peer is not usable for Send until the handshake
// completes and Service delivers an EventConnect for it.
func (h *Host) Connect(address string, channelCount uint32, data uint32) (*Peer, error) {
	addr, err := resolveAddress(address)
	if err != nil {
		return nil, err
	}
	if channelCount < ProtocolMinimumChannelCount {
		channelCount = ProtocolMinimumChannelCount
	}
	if channelCount > ProtocolMaximumChannelCount {
		channelCount = ProtocolMaximumChannelCount
	}

	p, err := h.allocatePeer()
	if err != nil {
		return nil, err
	}
	p.Address = addr
	p.connectInitiate(channelCount, h.IncomingBandwidth, h.OutgoingBandwidth, h.randomConnectID(), data)
	p.eventData = data
	return p, nil
}

// Broadcast queues packet for every connected peer on channelID, sharing
// one reference-counted Packet rather than copying it per peer (§5
// "Shared resources").
func (h *Host) Broadcast(channelID uint8, packet *Packet) {
	for _, p := range h.peers {
		if p == nil || p.State != StateConnected {
			continue
		}
		if err := p.Send(channelID, packet); err != nil {
			h.logger.Debug("broadcast send failed", zap.Error(err), zap.Int("peer", p.IncomingPeerID))
		}
	}
}

// Flush immediately sends every peer's pending outgoing commands without
// waiting for the next Service call (§4.10).
func (h *Host) Flush() {
	h.serviceTime = h.clock.NowMillis()
	for _, p := range h.peers {
		h.flushPeer(p)
	}
}

func (h *Host) flushPeer(p *Peer) {
	if p == nil {
		return
	}
	if _, err := h.sendPeer(p); err != nil {
		h.logger.Debug("flush send failed", zap.Error(err), zap.Int("peer", p.IncomingPeerID))
	}
}

// Destroy releases the socket and every peer's queued packets. The Host
// must not be used after Destroy.
func (h *Host) Destroy() error {
	for _, p := range h.peers {
		if p != nil {
			p.reset()
		}
	}
	return h.socket.Close()
}

func (h *Host) raiseConnect(p *Peer) {
	h.pendingEvents = append(h.pendingEvents, Event{Type: EventConnect, Peer: p, Data: p.eventData})
}

func (h *Host) raiseDisconnect(p *Peer) {
	h.pendingEvents = append(h.pendingEvents, Event{Type: EventDisconnect, Peer: p, Data: p.eventData})
}

func (h *Host) popPendingEvent() (Event, bool) {
	if len(h.pendingEvents) == 0 {
		return Event{}, false
	}
	ev := h.pendingEvents[0]
	h.pendingEvents = h.pendingEvents[1:]
	return ev, true
}

// Service drives one iteration of the cooperative scheduling loop (§5):
// it delivers one already-queued event if there is one, otherwise checks
// every peer for timeouts and idle pings, flushes all pending sends, waits
// up to timeout for incoming datagrams, and processes whatever arrives.
// It returns an EventNone event (not an error) when nothing happened
// within timeout.
func (h *Host) Service(timeout time.Duration) (Event, error) {
	h.serviceTime = h.clock.NowMillis()

	if ev, ok := h.popPendingEvent(); ok {
		return ev, nil
	}
	if ev, ok := h.popDispatchedEvent(); ok {
		return ev, nil
	}

	for _, p := range h.peers {
		if p == nil || p.State == StateDisconnected || p.State == StateZombie {
			continue
		}
		if p.checkTimeouts() {
			h.raiseDisconnect(p)
			continue
		}
		p.maybePing()
	}
	if ev, ok := h.popPendingEvent(); ok {
		return ev, nil
	}

	for _, p := range h.peers {
		h.flushPeer(p)
	}
	h.throttleBandwidth()

	if err := h.receiveFor(timeout); err != nil {
		return Event{}, err
	}

	if ev, ok := h.popPendingEvent(); ok {
		return ev, nil
	}
	if ev, ok := h.popDispatchedEvent(); ok {
		return ev, nil
	}
	return Event{Type: EventNone}, nil
}

// popDispatchedEvent drains the host-wide dispatch queue built by
// dispatch.go's queueDispatch, surfacing one EventReceive at a time.
func (h *Host) popDispatchedEvent() (Event, bool) {
	for {
		e := h.dispatchQueue.Front()
		if e == nil {
			return Event{}, false
		}
		p := e.Value.(*Peer)
		entry, ok := p.popDispatched()
		if !ok {
			h.dispatchQueue.Remove(e)
			p.inDispatchQueue = false
			continue
		}
		return Event{Type: EventReceive, Peer: p, ChannelID: entry.ChannelID, Packet: entry.Packet}, true
	}
}

// receiveFor blocks for up to timeout waiting for one or more datagrams
// and applies every one it gets before returning.
func (h *Host) receiveFor(timeout time.Duration) error {
	deadline := timeout
	if soonest, ok := h.deadlines.soonest(); ok {
		if until := time.Duration(soonest-h.serviceTime) * time.Millisecond; until < deadline {
			deadline = until
		}
	}
	if deadline < 0 {
		deadline = 0
	}

	buf := make([]byte, ProtocolMaximumMTU)
	readDeadline := time.Now().Add(deadline)
	for {
		_ = h.socket.SetReadDeadline(readDeadline)
		n, from, err := h.socket.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				return nil
			}
			return wrapf(ErrSocketError, "read: %v", err)
		}
		if err := h.receiveDatagram(buf[:n], from); err != nil {
			h.logger.Debug("dropping datagram", zap.Error(err))
		}
		if time.Now().After(readDeadline) {
			return nil
		}
	}
}

func isTimeout(err error) bool {
	type timeoutErr interface{ Timeout() bool }
	te, ok := err.(timeoutErr)
	return ok && te.Timeout()
}
