package enet

import (
	"container/list"
	"math"

	"go.uber.org/zap"
)

// Peer is one logical connection multiplexed on a Host's UDP endpoint (§3).
// A Peer is only ever touched from the goroutine driving its Host's
// Service loop — there is no internal locking, matching the
// single-threaded cooperative model of §5.
type Peer struct {
	host *Host

	IncomingPeerID int // slot index into host.peers
	OutgoingPeerID uint16
	ConnectID      uint32

	Address Address
	State   PeerState
	flags   uint32

	MTU          uint32
	WindowSize   uint32
	ChannelCount uint32

	IncomingBandwidth uint32
	OutgoingBandwidth uint32

	IncomingSessionID uint8
	OutgoingSessionID uint8

	incomingBandwidthSinceEpoch uint32
	outgoingBandwidthSinceEpoch uint32
	bandwidthThrottleEpoch      int64

	OutgoingDataTotal uint32
	IncomingDataTotal uint32
	TotalWaitingData  uint32

	// Throttle and RTT (§4.6).
	PacketThrottle             uint32
	PacketThrottleLimit        uint32
	PacketThrottleCounter      uint32
	PacketThrottleEpoch        int64
	PacketThrottleAcceleration uint32
	PacketThrottleDeceleration uint32
	PacketThrottleInterval     int64

	RoundTripTime                int64
	RoundTripTimeVariance        int64
	LastRoundTripTime            int64
	LastRoundTripTimeVariance    int64
	LowestRoundTripTime          int64
	HighestRoundTripTimeVariance int64

	PacketsSent      uint32
	PacketsLost      uint32
	PacketLoss       uint32
	packetLossEpoch  int64
	packetsSentEpoch uint32
	packetsLostEpoch uint32

	ReliableDataInTransit uint32

	OutgoingReliableSequenceNumber uint16 // system channel (0xFF)
	OutgoingUnsequencedGroup       uint16
	IncomingUnsequencedGroup       uint16
	unsequencedWindow              []uint32

	Channels []*Channel

	acknowledgements             *list.List // of *OutgoingCommand
	outgoingCommands             *list.List // of *OutgoingCommand
	outgoingSendReliableCommands *list.List // of *OutgoingCommand
	sentReliableCommands         *list.List // of *OutgoingCommand
	dispatchedCommands           *list.List // of *dispatchedEntry

	earliestTimeout int64

	TimeoutLimit   int64
	TimeoutMinimum int64
	TimeoutMaximum int64

	lastReceiveTime int64
	lastSendTime    int64
	pingInterval    int64

	eventData uint32 // user data carried by the pending connect/disconnect event

	inDispatchQueue bool
}

// dispatchedEntry is one fully-sequenced incoming command ready for
// Peer.Receive (§4.9).
type dispatchedEntry struct {
	ChannelID uint8
	Packet    *Packet
}

func newPeer(host *Host, slot int) *Peer {
	p := &Peer{
		host:                        host,
		IncomingPeerID:              slot,
		OutgoingPeerID:              ProtocolMaximumPeerID,
		State:                       StateDisconnected,
		MTU:                         HostDefaultMTU,
		WindowSize:                  ProtocolMaximumWindowSize,
		PacketThrottle:              PeerDefaultPacketThrottle,
		PacketThrottleLimit:         PeerPacketThrottleScale,
		PacketThrottleAcceleration:  PeerDefaultPacketThrottleAcceleration,
		PacketThrottleDeceleration:  PeerDefaultPacketThrottleDeceleration,
		PacketThrottleInterval:      PeerDefaultPacketThrottleInterval,
		RoundTripTime:               PeerDefaultRoundTripTime,
		LastRoundTripTime:           PeerDefaultRoundTripTime,
		LowestRoundTripTime:         PeerDefaultRoundTripTime,
		TimeoutLimit:                PeerTimeoutLimit,
		TimeoutMinimum:              PeerTimeoutMinimum,
		TimeoutMaximum:              PeerTimeoutMaximum,
		pingInterval:                PeerPingInterval,
		acknowledgements:            list.New(),
		outgoingCommands:            list.New(),
		outgoingSendReliableCommands: list.New(),
		sentReliableCommands:        list.New(),
		dispatchedCommands:          list.New(),
	}
	return p
}

func (p *Peer) logger() *zap.Logger {
	return p.host.logger.With(zap.Int("peer", p.IncomingPeerID), zap.Stringer("state", p.State))
}

// reset reinitializes all statistics, clears every queue, frees channels,
// and releases packet references (§4.12 reset()).
func (p *Peer) reset() {
	p.releaseQueue(p.acknowledgements)
	p.releaseQueue(p.outgoingCommands)
	p.releaseQueue(p.outgoingSendReliableCommands)
	p.releaseQueue(p.sentReliableCommands)
	p.releaseDispatched()

	p.Channels = nil
	p.State = StateDisconnected
	p.flags = 0
	p.ConnectID = 0
	p.OutgoingPeerID = ProtocolMaximumPeerID
	p.MTU = HostDefaultMTU
	p.WindowSize = ProtocolMaximumWindowSize
	p.IncomingBandwidth = 0
	p.OutgoingBandwidth = 0
	p.incomingBandwidthSinceEpoch = 0
	p.outgoingBandwidthSinceEpoch = 0
	p.OutgoingDataTotal = 0
	p.IncomingDataTotal = 0
	p.TotalWaitingData = 0
	p.PacketThrottle = PeerDefaultPacketThrottle
	p.PacketThrottleLimit = PeerPacketThrottleScale
	p.PacketThrottleCounter = 0
	p.PacketThrottleEpoch = 0
	p.PacketThrottleAcceleration = PeerDefaultPacketThrottleAcceleration
	p.PacketThrottleDeceleration = PeerDefaultPacketThrottleDeceleration
	p.PacketThrottleInterval = PeerDefaultPacketThrottleInterval
	p.RoundTripTime = PeerDefaultRoundTripTime
	p.RoundTripTimeVariance = 0
	p.LastRoundTripTime = PeerDefaultRoundTripTime
	p.LastRoundTripTimeVariance = 0
	p.LowestRoundTripTime = PeerDefaultRoundTripTime
	p.HighestRoundTripTimeVariance = 0
	p.PacketsSent = 0
	p.PacketsLost = 0
	p.PacketLoss = 0
	p.ReliableDataInTransit = 0
	p.OutgoingReliableSequenceNumber = 0
	p.OutgoingUnsequencedGroup = 0
	p.IncomingUnsequencedGroup = 0
	p.unsequencedWindow = nil
	p.earliestTimeout = 0
	p.eventData = 0
	p.inDispatchQueue = false
	p.host.deadlines.clear(p.IncomingPeerID)
}

func (p *Peer) releaseQueue(q *list.List) {
	for e := q.Front(); e != nil; e = e.Next() {
		cmd := e.Value.(*OutgoingCommand)
		cmd.releasePacket()
	}
	q.Init()
}

func (p *Peer) releaseDispatched() {
	for e := p.dispatchedCommands.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*dispatchedEntry)
		entry.Packet.unref()
	}
	p.dispatchedCommands.Init()
}

func (p *Peer) allocateChannels(count uint32) {
	p.ChannelCount = count
	p.Channels = make([]*Channel, count)
	for i := range p.Channels {
		p.Channels[i] = newChannel()
	}
}

func (p *Peer) channel(id uint8) *Channel {
	if uint32(id) >= p.ChannelCount {
		return nil
	}
	return p.Channels[id]
}

// ---- §4.2 Setup: queuing an outgoing command ----

type setupCommand struct {
	opcode         uint8
	channelID      uint8
	acknowledge    bool
	unsequenced    bool
	payload        []byte
	data           []byte
	fragmentOffset uint32
	fragmentLength uint32
	packet         *Packet
}

func (p *Peer) queueOutgoing(sc setupCommand) *OutgoingCommand {
	cmd := &OutgoingCommand{
		payload:        sc.payload,
		data:           sc.data,
		FragmentOffset: sc.fragmentOffset,
		FragmentLength: sc.fragmentLength,
		Packet:         sc.packet,
	}

	p.OutgoingDataTotal += uint32(wireSize(CommandHeader{})) + uint32(len(sc.payload)) + sc.fragmentLength

	if sc.channelID == channelIDSystem {
		p.OutgoingReliableSequenceNumber++
		cmd.ReliableSequenceNumber = p.OutgoingReliableSequenceNumber
		cmd.UnreliableSequenceNumber = 0
	} else {
		ch := p.channel(sc.channelID)
		switch {
		case sc.acknowledge:
			ch.OutgoingReliableSequenceNumber++
			ch.OutgoingUnreliableSequenceNumber = 0
			cmd.ReliableSequenceNumber = ch.OutgoingReliableSequenceNumber
			cmd.UnreliableSequenceNumber = 0
		case sc.unsequenced:
			cmd.ReliableSequenceNumber = ch.OutgoingReliableSequenceNumber
			cmd.UnreliableSequenceNumber = 0
		default:
			if sc.fragmentOffset == 0 {
				ch.OutgoingUnreliableSequenceNumber++
			}
			cmd.ReliableSequenceNumber = ch.OutgoingReliableSequenceNumber
			cmd.UnreliableSequenceNumber = ch.OutgoingUnreliableSequenceNumber
		}
	}

	cmd.SendAttempts = 0
	cmd.SentTime = 0
	cmd.RoundTripTimeout = 0
	cmd.QueueTime = p.host.nextQueueTime()

	cmd.Header = CommandHeader{
		Command:                makeCommandHeader(sc.opcode, sc.acknowledge, sc.unsequenced),
		ChannelID:              sc.channelID,
		ReliableSequenceNumber: cmd.ReliableSequenceNumber,
	}

	if cmd.reliable() && cmd.Packet != nil {
		p.outgoingSendReliableCommands.PushBack(cmd)
	} else {
		p.outgoingCommands.PushBack(cmd)
	}
	return cmd
}

// ---- §4.3 Send (fragmenting) ----

// Send implements §4.3 and rejects every precondition in §7's
// InvalidArgument row.
func (p *Peer) Send(channelID uint8, packet *Packet) error {
	if p.State != StateConnected {
		return wrapf(ErrInvalidArgument, "peer not connected (state=%s)", p.State)
	}
	if uint32(channelID) >= p.ChannelCount {
		return wrapf(ErrInvalidArgument, "channel %d >= channelCount %d", channelID, p.ChannelCount)
	}
	if uint32(len(packet.Data)) > p.host.MaximumPacketSize {
		return wrapf(ErrInvalidArgument, "packet length %d exceeds maximum %d", len(packet.Data), p.host.MaximumPacketSize)
	}

	ch := p.channel(channelID)
	checksumOverhead := 0
	if p.host.Checksum != nil {
		checksumOverhead = 4
	}
	fragmentLength := int(p.MTU) - wireSize(CommandHeader{}) - wireSize(sendFragmentPayload{}) - checksumOverhead
	if fragmentLength <= 0 {
		return wrapf(ErrInvalidArgument, "mtu %d too small for fragmentation overhead", p.MTU)
	}

	reliable := packet.Flags&PacketFlagReliable != 0
	unsequenced := packet.Flags&PacketFlagUnsequenced != 0
	unreliableFragOK := packet.Flags&PacketFlagUnreliableFragment != 0 && !reliable

	if len(packet.Data) <= fragmentLength {
		packet.ref()
		switch {
		case unsequenced:
			payload := encodeBE(sendUnsequencedPayload{UnsequencedGroup: p.OutgoingUnsequencedGroup + 1, DataLength: uint16(len(packet.Data))})
			p.OutgoingUnsequencedGroup++
			p.queueOutgoing(setupCommand{opcode: CommandSendUnsequenced, channelID: channelID, unsequenced: true, payload: payload, data: packet.Data, packet: packet})
		case reliable:
			payload := encodeBE(sendReliablePayload{DataLength: uint16(len(packet.Data))})
			p.queueOutgoing(setupCommand{opcode: CommandSendReliable, channelID: channelID, acknowledge: true, payload: payload, data: packet.Data, packet: packet})
		default:
			payload := encodeBE(sendUnreliablePayload{UnreliableSequenceNumber: ch.OutgoingUnreliableSequenceNumber + 1, DataLength: uint16(len(packet.Data))})
			p.queueOutgoing(setupCommand{opcode: CommandSendUnreliable, channelID: channelID, payload: payload, data: packet.Data, packet: packet})
		}
		return nil
	}

	fragmentCount := uint32(math.Ceil(float64(len(packet.Data)) / float64(fragmentLength)))
	if fragmentCount > ProtocolMaximumFragmentCount {
		return wrapf(ErrInvalidArgument, "fragment count %d exceeds maximum %d", fragmentCount, ProtocolMaximumFragmentCount)
	}
	if unsequenced {
		return wrapf(ErrInvalidArgument, "unsequenced packets may not be fragmented")
	}

	useUnreliableFragment := unreliableFragOK && ch.OutgoingUnreliableSequenceNumber < 0xFFFF
	opcode := CommandSendFragment
	if useUnreliableFragment {
		opcode = CommandSendUnreliableFragment
	}

	// The wire StartSequenceNumber is only a peek at the value the first
	// queued fragment will receive; queueOutgoing does the actual advance
	// on every call, once per fragment.
	var startSequence uint16
	if useUnreliableFragment {
		startSequence = ch.OutgoingUnreliableSequenceNumber + 1
	} else {
		startSequence = ch.OutgoingReliableSequenceNumber + 1
	}

	packet.mu.Lock()
	packet.refs += int(fragmentCount)
	packet.mu.Unlock()

	totalLength := uint32(len(packet.Data))
	for i := uint32(0); i < fragmentCount; i++ {
		offset := i * uint32(fragmentLength)
		end := offset + uint32(fragmentLength)
		if end > totalLength {
			end = totalLength
		}
		chunk := packet.Data[offset:end]
		payload := encodeBE(sendFragmentPayload{
			StartSequenceNumber: startSequence,
			DataLength:          uint16(len(chunk)),
			FragmentCount:       fragmentCount,
			FragmentNumber:      i,
			TotalLength:         totalLength,
			FragmentOffset:      offset,
		})
		p.queueOutgoing(setupCommand{
			opcode:         opcode,
			channelID:      channelID,
			acknowledge:    opcode == CommandSendFragment,
			payload:        payload,
			data:           chunk,
			fragmentOffset: offset,
			fragmentLength: uint32(len(chunk)),
			packet:         packet,
		})
	}
	return nil
}

// ---- §4.4 reliable-transit promotion ----

// promoteReliableCommands moves commands from outgoingSendReliableCommands
// into sentReliableCommands as reliable-window and bandwidth budget permit,
// stamping SentTime/RoundTripTimeout for the §4.5 resend walk.
func (p *Peer) promoteReliableCommands() []*OutgoingCommand {
	var promoted []*OutgoingCommand
	for e := p.outgoingSendReliableCommands.Front(); e != nil; {
		cmd := e.Value.(*OutgoingCommand)
		next := e.Next()

		ch := p.channel(cmd.Header.ChannelID)
		limit := p.MTU
		if p.WindowSize > limit {
			limit = p.WindowSize
		}
		if p.ReliableDataInTransit+cmd.FragmentLength > limit {
			break
		}
		if ch != nil && !ch.reliableWindowHasRoom(cmd.ReliableSequenceNumber) {
			e = next
			continue
		}

		if ch != nil {
			ch.reliableWindowAcquire(cmd.ReliableSequenceNumber)
		}
		p.ReliableDataInTransit += cmd.FragmentLength
		cmd.SendAttempts++
		cmd.SentTime = p.host.serviceTime
		if cmd.RoundTripTimeout == 0 {
			cmd.RoundTripTimeout = p.RoundTripTime + 4*p.RoundTripTimeVariance
		}

		p.outgoingSendReliableCommands.Remove(e)
		p.sentReliableCommands.PushBack(cmd)
		promoted = append(promoted, cmd)
		e = next
	}
	return promoted
}

// ---- §4.5 resend and timeout ----

// checkTimeouts walks sentReliableCommands and either requeues expired
// commands for resend (doubling RoundTripTimeout) or, past the timeout
// ladder of §4.5, zombifies the peer.
func (p *Peer) checkTimeouts() (timedOut bool) {
	now := p.host.serviceTime
	for e := p.sentReliableCommands.Front(); e != nil; {
		cmd := e.Value.(*OutgoingCommand)
		next := e.Next()

		if timeDifference(uint32(now), uint32(cmd.SentTime)) < uint32(cmd.RoundTripTimeout) {
			e = next
			continue
		}

		if p.earliestTimeout == 0 || timeLess(uint32(cmd.SentTime), uint32(p.earliestTimeout)) {
			p.earliestTimeout = cmd.SentTime
		}

		elapsed := uint32(now) - uint32(p.earliestTimeout)
		if elapsed >= uint32(p.TimeoutMaximum) ||
			(cmd.SendAttempts >= int(p.TimeoutLimit) && elapsed >= uint32(p.TimeoutMinimum)) {
			p.logger().Warn("peer timed out", zap.Int("sendAttempts", cmd.SendAttempts))
			p.sentReliableCommands.Remove(e)
			cmd.releasePacket()
			p.timeout()
			return true
		}

		if ch := p.channel(cmd.Header.ChannelID); ch != nil {
			ch.reliableWindowRelease(cmd.ReliableSequenceNumber)
		}
		p.ReliableDataInTransit -= cmd.FragmentLength
		cmd.RoundTripTimeout *= 2

		p.sentReliableCommands.Remove(e)
		p.outgoingSendReliableCommands.PushFront(cmd)
		e = next
	}
	return false
}

func (p *Peer) timeout() {
	p.eventData = 0
	p.State = StateZombie
	p.host.deadlines.clear(p.IncomingPeerID)
}

// ---- §4.6 RTT and throttle ----

// updateRoundTripTime folds one RTT sample into the exponential-smoothing
// estimators, matching the formulas of §4.6.
func (p *Peer) updateRoundTripTime(sample int64) {
	if sample <= 0 {
		sample = 1
	}
	p.RoundTripTimeVariance -= p.RoundTripTimeVariance / 4
	if sample >= p.RoundTripTime {
		diff := sample - p.RoundTripTime
		p.RoundTripTimeVariance += diff / 4
		p.RoundTripTime += diff / 8
	} else {
		diff := p.RoundTripTime - sample
		p.RoundTripTimeVariance += diff / 4
		p.RoundTripTime -= diff / 8
	}

	if p.RoundTripTime < p.LowestRoundTripTime {
		p.LowestRoundTripTime = p.RoundTripTime
	}
	if p.RoundTripTimeVariance > p.HighestRoundTripTimeVariance {
		p.HighestRoundTripTimeVariance = p.RoundTripTimeVariance
	}

	if p.PacketThrottleEpoch == 0 || timeDifference(uint32(p.host.serviceTime), uint32(p.PacketThrottleEpoch)) >= uint32(p.PacketThrottleInterval) {
		p.LastRoundTripTime = p.LowestRoundTripTime
		p.LastRoundTripTimeVariance = p.HighestRoundTripTimeVariance
		p.LowestRoundTripTime = p.RoundTripTime
		p.HighestRoundTripTimeVariance = p.RoundTripTimeVariance
		p.PacketThrottleEpoch = p.host.serviceTime
	}
}

// adjustThrottle nudges PacketThrottle toward PacketThrottleLimit or zero
// based on how sample compares to the last throttle-epoch RTT (§4.6).
func (p *Peer) adjustThrottle(sample int64) {
	if p.LastRoundTripTime <= p.LastRoundTripTimeVariance {
		p.PacketThrottle = p.PacketThrottleLimit
		return
	}
	switch {
	case sample <= p.LastRoundTripTime:
		p.PacketThrottle = minu32(p.PacketThrottle+p.PacketThrottleAcceleration, p.PacketThrottleLimit)
	case sample > p.LastRoundTripTime+2*p.LastRoundTripTimeVariance:
		p.PacketThrottle = subClamp(p.PacketThrottle, p.PacketThrottleDeceleration)
	}
}

// unreliablePasses implements the probabilistic unreliable-send gate of
// §4.6: PacketThrottle/PacketThrottleScale is the fraction of unreliable
// commands that get sent rather than silently dropped.
func (p *Peer) unreliablePasses() bool {
	p.PacketThrottleCounter += PeerPacketThrottleScale
	p.PacketThrottleCounter %= PeerPacketThrottleCounter * PeerPacketThrottleScale
	return p.PacketThrottleCounter <= p.PacketThrottle*PeerPacketThrottleCounter
}

func minu32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func subClamp(a, b uint32) uint32 {
	if a < b {
		return 0
	}
	return a - b
}

// ---- §4.11 connection handshake ----

// connectInitiate sends the CONNECT command that starts a new outgoing
// connection, transitioning the peer to StateConnecting.
func (p *Peer) connectInitiate(channelCount uint32, incomingBandwidth, outgoingBandwidth, connectID, data uint32) {
	p.allocateChannels(channelCount)
	p.ConnectID = connectID
	p.IncomingBandwidth = incomingBandwidth
	p.OutgoingBandwidth = outgoingBandwidth
	p.State = StateConnecting
	p.IncomingSessionID = 0xFF
	p.OutgoingSessionID = 0xFF

	payload := encodeBE(connectPayload{
		OutgoingPeerID:             uint16(p.IncomingPeerID),
		IncomingSessionID:          p.IncomingSessionID,
		OutgoingSessionID:          p.OutgoingSessionID,
		MTU:                        p.MTU,
		WindowSize:                 p.WindowSize,
		ChannelCount:               channelCount,
		IncomingBandwidth:          incomingBandwidth,
		OutgoingBandwidth:          outgoingBandwidth,
		PacketThrottleInterval:     uint32(p.PacketThrottleInterval),
		PacketThrottleAcceleration: p.PacketThrottleAcceleration,
		PacketThrottleDeceleration: p.PacketThrottleDeceleration,
		ConnectID:                  connectID,
		Data:                       data,
	})
	p.queueOutgoing(setupCommand{opcode: CommandConnect, channelID: channelIDSystem, acknowledge: true, payload: payload})
}

// acceptConnect handles an incoming CONNECT on the listening side: it
// allocates channels to the min of both sides' requests, clamps MTU and
// window size, and replies with VERIFY_CONNECT (§4.11).
func (p *Peer) acceptConnect(req connectPayload, addr Address) {
	p.Address = addr
	p.ConnectID = req.ConnectID
	p.OutgoingPeerID = req.OutgoingPeerID
	p.IncomingSessionID = req.OutgoingSessionID
	p.OutgoingSessionID = req.IncomingSessionID

	channelCount := req.ChannelCount
	if channelCount < ProtocolMinimumChannelCount {
		channelCount = ProtocolMinimumChannelCount
	}
	if channelCount > ProtocolMaximumChannelCount {
		channelCount = ProtocolMaximumChannelCount
	}
	if p.host.ChannelLimit > 0 && channelCount > p.host.ChannelLimit {
		channelCount = p.host.ChannelLimit
	}
	p.allocateChannels(channelCount)

	p.MTU = req.MTU
	if p.MTU < ProtocolMinimumMTU {
		p.MTU = ProtocolMinimumMTU
	}
	if p.MTU > ProtocolMaximumMTU {
		p.MTU = ProtocolMaximumMTU
	}
	p.WindowSize = req.WindowSize
	if p.WindowSize < ProtocolMinimumWindowSize {
		p.WindowSize = ProtocolMinimumWindowSize
	}
	if p.WindowSize > ProtocolMaximumWindowSize {
		p.WindowSize = ProtocolMaximumWindowSize
	}
	p.IncomingBandwidth = req.IncomingBandwidth
	p.OutgoingBandwidth = req.OutgoingBandwidth
	p.PacketThrottleInterval = int64(req.PacketThrottleInterval)
	p.PacketThrottleAcceleration = req.PacketThrottleAcceleration
	p.PacketThrottleDeceleration = req.PacketThrottleDeceleration
	p.eventData = req.Data

	p.State = StateAcknowledgingConnect

	reply := encodeBE(verifyConnectPayload{
		OutgoingPeerID:             uint16(p.IncomingPeerID),
		IncomingSessionID:          p.IncomingSessionID,
		OutgoingSessionID:          p.OutgoingSessionID,
		MTU:                        p.MTU,
		WindowSize:                 p.WindowSize,
		ChannelCount:               channelCount,
		IncomingBandwidth:          p.host.IncomingBandwidth,
		OutgoingBandwidth:          p.host.OutgoingBandwidth,
		PacketThrottleInterval:     uint32(p.PacketThrottleInterval),
		PacketThrottleAcceleration: p.PacketThrottleAcceleration,
		PacketThrottleDeceleration: p.PacketThrottleDeceleration,
		ConnectID:                  p.ConnectID,
	})
	p.queueOutgoing(setupCommand{opcode: CommandVerifyConnect, channelID: channelIDSystem, acknowledge: true, payload: reply})
}

// handleVerifyConnect processes the VERIFY_CONNECT reply on the connecting
// side, rejecting a mismatched handshake per §4.11's sanity checks.
func (p *Peer) handleVerifyConnect(resp verifyConnectPayload) error {
	if p.State != StateConnecting {
		return wrapf(ErrMalformedDatagram, "unexpected VERIFY_CONNECT in state %s", p.State)
	}
	if resp.ConnectID != p.ConnectID ||
		resp.PacketThrottleInterval != uint32(p.PacketThrottleInterval) ||
		resp.PacketThrottleAcceleration != p.PacketThrottleAcceleration ||
		resp.PacketThrottleDeceleration != p.PacketThrottleDeceleration {
		return wrapf(ErrMalformedDatagram, "verify_connect does not match the CONNECT it answers")
	}
	if resp.ChannelCount < ProtocolMinimumChannelCount || resp.ChannelCount > ProtocolMaximumChannelCount {
		return wrapf(ErrMalformedDatagram, "verify_connect channel count %d out of range", resp.ChannelCount)
	}
	if uint32(len(p.Channels)) != resp.ChannelCount {
		if resp.ChannelCount < uint32(len(p.Channels)) {
			p.Channels = p.Channels[:resp.ChannelCount]
		}
		p.ChannelCount = resp.ChannelCount
	}

	p.OutgoingPeerID = resp.OutgoingPeerID
	p.IncomingSessionID = resp.IncomingSessionID
	p.OutgoingSessionID = resp.OutgoingSessionID

	mtu := resp.MTU
	if mtu < ProtocolMinimumMTU {
		mtu = ProtocolMinimumMTU
	}
	if mtu > ProtocolMaximumMTU {
		mtu = ProtocolMaximumMTU
	}
	if mtu < p.MTU {
		p.MTU = mtu
	}
	if resp.WindowSize < p.WindowSize {
		p.WindowSize = resp.WindowSize
	}
	p.PacketThrottleInterval = int64(resp.PacketThrottleInterval)
	p.PacketThrottleAcceleration = resp.PacketThrottleAcceleration
	p.PacketThrottleDeceleration = resp.PacketThrottleDeceleration

	p.State = StateConnected
	return nil
}

// ---- §4.12 disconnection ----

// Disconnect queues a DISCONNECT and moves to StateDisconnecting; the peer
// is finally reset once the DISCONNECT is acknowledged or times out.
func (p *Peer) Disconnect(data uint32) {
	if p.State == StateDisconnecting || p.State == StateDisconnected || p.State == StateZombie {
		return
	}
	p.releaseQueue(p.outgoingCommands)
	p.releaseQueue(p.outgoingSendReliableCommands)
	if p.State == StateConnectionSucceeded {
		p.reset()
		return
	}
	acknowledge := p.State != StateConnecting
	p.eventData = data
	p.State = StateDisconnecting
	p.queueOutgoing(setupCommand{opcode: CommandDisconnect, channelID: channelIDSystem, acknowledge: acknowledge, payload: encodeBE(disconnectPayload{Data: data})})
}

// DisconnectNow disconnects immediately: unless the peer is connecting or a
// zombie, it queues a DISCONNECT and flushes it to the remote together with
// any pending commands, then resets the peer without raising a local
// disconnect event.
func (p *Peer) DisconnectNow(data uint32) {
	if p.State == StateDisconnected {
		return
	}
	if p.State != StateZombie && p.State != StateConnecting {
		p.queueOutgoing(setupCommand{opcode: CommandDisconnect, channelID: channelIDSystem, acknowledge: true, payload: encodeBE(disconnectPayload{Data: data})})
		p.host.flushPeer(p)
	}
	p.reset()
}

// DisconnectLater flushes outstanding reliable sends before disconnecting.
func (p *Peer) DisconnectLater(data uint32) {
	if (p.State == StateConnected || p.State == StateDisconnectLater) &&
		(p.outgoingSendReliableCommands.Len() > 0 || p.sentReliableCommands.Len() > 0 || p.outgoingCommands.Len() > 0) {
		p.State = StateDisconnectLater
		p.eventData = data
		return
	}
	p.Disconnect(data)
}

// ---- ping / keepalive (supplemented feature) ----

// Ping queues a zero-payload PING command, used both explicitly and by
// maybePing's idle-detection.
func (p *Peer) Ping() {
	if p.State != StateConnected {
		return
	}
	p.queueOutgoing(setupCommand{opcode: CommandPing, channelID: channelIDSystem, acknowledge: true})
}

// PingInterval overrides the idle interval after which the peer is sent a
// keepalive PING (default PeerPingInterval).
func (p *Peer) PingInterval(ms int64) {
	p.pingInterval = ms
}

// Timeout overrides the §4.5 timeout ladder.
func (p *Peer) Timeout(limit, min, max int64) {
	p.TimeoutLimit = limit
	p.TimeoutMinimum = min
	p.TimeoutMaximum = max
}

// ThrottleConfigure updates the local throttle parameters and informs the
// remote peer so both sides compute resend timeouts consistently.
func (p *Peer) ThrottleConfigure(interval int64, acceleration, deceleration uint32) {
	p.PacketThrottleInterval = interval
	p.PacketThrottleAcceleration = acceleration
	p.PacketThrottleDeceleration = deceleration
	p.queueOutgoing(setupCommand{
		opcode:      CommandThrottleConfigure,
		channelID:   channelIDSystem,
		acknowledge: true,
		payload: encodeBE(throttleConfigurePayload{
			PacketThrottleInterval:     uint32(interval),
			PacketThrottleAcceleration: acceleration,
			PacketThrottleDeceleration: deceleration,
		}),
	})
}

// maybePing sends a keepalive once lastSendTime has been idle for longer
// than pingInterval, per the SUPPLEMENTED FEATURES ping/ping_interval rule.
func (p *Peer) maybePing() {
	if p.State != StateConnected {
		return
	}
	if timeDifference(uint32(p.host.serviceTime), uint32(p.lastSendTime)) >= uint32(p.pingInterval) {
		p.Ping()
	}
}
