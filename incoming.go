package enet

import (
	"bytes"
	"encoding/binary"

	"go.uber.org/zap"
)

// incoming.go implements the receive half of §4.8/§4.9: decode one
// datagram, verify/decompress it, then walk its commands — queuing acks,
// folding ACK replies back into RTT/throttle, feeding fragments through
// reassembly.go, and handing completed sequenced deliveries to dispatch.go.

// receiveDatagram decodes buf (as read from the Socket) and applies it to
// the peer it names, creating a new peer slot for an unrecognized CONNECT.
func (h *Host) receiveDatagram(buf []byte, from Address) error {
	if h.Checksum != nil {
		if len(buf) < 4 {
			return wrapf(ErrMalformedDatagram, "datagram too short for checksum trailer")
		}
		body, trailer := buf[:len(buf)-4], buf[len(buf)-4:]
		want := binary.BigEndian.Uint32(trailer)
		if h.Checksum.Sum(body) != want {
			return wrapf(ErrMalformedDatagram, "checksum mismatch from %v", from)
		}
		buf = body
	}

	headerSize := wireSize(ProtocolHeader{})
	if len(buf) < headerSize {
		return wrapf(ErrMalformedDatagram, "datagram shorter than protocol header")
	}
	var hdr ProtocolHeader
	if err := decodeBE(buf[:headerSize], &hdr); err != nil {
		return err
	}
	body := buf[headerSize:]

	if hdr.PeerID&headerFlagCompressed != 0 {
		if h.Compressor == nil {
			return wrapf(ErrMalformedDatagram, "compressed datagram but no Compressor configured")
		}
		decompressed, err := h.Compressor.Decompress(body)
		if err != nil {
			return wrapf(ErrMalformedDatagram, "decompress: %v", err)
		}
		body = decompressed
	}

	peerID := hdr.PeerID & headerPeerIDMask
	r := bytes.NewReader(body)
	cmdHeaderSize := wireSize(CommandHeader{})

	for r.Len() > 0 {
		if r.Len() < cmdHeaderSize {
			return wrapf(ErrMalformedDatagram, "truncated command header")
		}
		var ch CommandHeader
		headerBuf := make([]byte, cmdHeaderSize)
		if _, err := r.Read(headerBuf); err != nil {
			return wrapf(ErrMalformedDatagram, "read command header: %v", err)
		}
		if err := decodeBE(headerBuf, &ch); err != nil {
			return err
		}

		if ch.opcode() == CommandConnect {
			if err := h.handleIncomingConnect(r, from); err != nil {
				h.logger.Warn("connect rejected", zap.Error(err), zap.Stringer("from", from))
			}
			continue
		}

		if int(peerID) >= len(h.peers) {
			return wrapf(ErrMalformedDatagram, "peer id %d out of range", peerID)
		}
		p := h.peers[peerID]
		if p == nil || p.State == StateDisconnected {
			return nil // stale datagram for a peer slot we've since freed
		}
		sessionID := uint8((hdr.PeerID >> headerSessionShift) & headerSessionMask)
		if sessionID != p.IncomingSessionID&uint8(headerSessionMask) {
			return wrapf(ErrMalformedDatagram, "session id %d from %v does not match peer's %d", sessionID, from, p.IncomingSessionID)
		}
		p.lastReceiveTime = h.serviceTime

		if err := h.handleCommand(p, ch, r); err != nil {
			h.logger.Debug("dropping malformed command", zap.Error(err), zap.Int("peer", p.IncomingPeerID))
			return nil
		}
	}
	return nil
}

// handleCommand dispatches one decoded command to its opcode handler and
// reads exactly its payload+data from r so the reader stays in sync for
// the next command in the datagram.
func (h *Host) handleCommand(p *Peer, ch CommandHeader, r *bytes.Reader) error {
	switch ch.opcode() {
	case CommandAcknowledge:
		var ack ackPayload
		if err := readPayload(r, &ack); err != nil {
			return err
		}
		h.handleAcknowledge(p, ch.ChannelID, ack)
		return nil

	case CommandVerifyConnect:
		var resp verifyConnectPayload
		if err := readPayload(r, &resp); err != nil {
			return err
		}
		if err := p.handleVerifyConnect(resp); err != nil {
			return err
		}
		h.raiseConnect(p)
		return nil

	case CommandDisconnect:
		var d disconnectPayload
		if err := readPayload(r, &d); err != nil {
			return err
		}
		h.handleIncomingDisconnect(p, ch, d)
		return nil

	case CommandPing:
		h.queueAck(p, ch)
		return nil

	case CommandBandwidthLimit:
		var bw bandwidthLimitPayload
		if err := readPayload(r, &bw); err != nil {
			return err
		}
		p.IncomingBandwidth = bw.IncomingBandwidth
		p.OutgoingBandwidth = bw.OutgoingBandwidth
		h.queueAck(p, ch)
		return nil

	case CommandThrottleConfigure:
		var t throttleConfigurePayload
		if err := readPayload(r, &t); err != nil {
			return err
		}
		p.PacketThrottleInterval = int64(t.PacketThrottleInterval)
		p.PacketThrottleAcceleration = t.PacketThrottleAcceleration
		p.PacketThrottleDeceleration = t.PacketThrottleDeceleration
		h.queueAck(p, ch)
		return nil

	case CommandSendReliable:
		var s sendReliablePayload
		if err := readPayload(r, &s); err != nil {
			return err
		}
		data := make([]byte, s.DataLength)
		if _, err := r.Read(data); err != nil {
			return wrapf(ErrMalformedDatagram, "read reliable payload: %v", err)
		}
		return h.handleSendReliable(p, ch, data)

	case CommandSendUnreliable:
		var s sendUnreliablePayload
		if err := readPayload(r, &s); err != nil {
			return err
		}
		data := make([]byte, s.DataLength)
		if _, err := r.Read(data); err != nil {
			return wrapf(ErrMalformedDatagram, "read unreliable payload: %v", err)
		}
		h.handleSendUnreliable(p, ch, s, data)
		return nil

	case CommandSendUnsequenced:
		var s sendUnsequencedPayload
		if err := readPayload(r, &s); err != nil {
			return err
		}
		data := make([]byte, s.DataLength)
		if _, err := r.Read(data); err != nil {
			return wrapf(ErrMalformedDatagram, "read unsequenced payload: %v", err)
		}
		h.handleSendUnsequenced(p, ch, s, data)
		return nil

	case CommandSendFragment, CommandSendUnreliableFragment:
		var s sendFragmentPayload
		if err := readPayload(r, &s); err != nil {
			return err
		}
		data := make([]byte, s.DataLength)
		if _, err := r.Read(data); err != nil {
			return wrapf(ErrMalformedDatagram, "read fragment payload: %v", err)
		}
		return h.handleSendFragment(p, ch, s, data, ch.opcode() == CommandSendFragment)

	default:
		return wrapf(ErrMalformedDatagram, "unknown opcode %d", ch.opcode())
	}
}

func readPayload(r *bytes.Reader, v interface{}) error {
	n := wireSize(v)
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return wrapf(ErrMalformedDatagram, "read %T: %v", v, err)
	}
	return decodeBE(buf, v)
}

// queueAck enqueues an ACKNOWLEDGE reply for a reliable command, unless
// the sequence number falls outside the acceptable window (§4.1).
func (h *Host) queueAck(p *Peer, ch CommandHeader) {
	if !ch.acknowledge() {
		return
	}
	if ch.ChannelID != channelIDSystem {
		channel := p.channel(ch.ChannelID)
		if channel == nil {
			return
		}
		accept, ackable := windowAccept(ch.ReliableSequenceNumber, channel.IncomingReliableSequenceNumber+1)
		if !accept || !ackable {
			return
		}
	}
	ack := encodeBE(ackPayload{
		ReceivedReliableSequenceNumber: ch.ReliableSequenceNumber,
		ReceivedSentTime:               uint16(h.serviceTime & 0xFFFF),
	})
	cmd := &OutgoingCommand{
		Header:  CommandHeader{Command: CommandAcknowledge, ChannelID: ch.ChannelID, ReliableSequenceNumber: ch.ReliableSequenceNumber},
		payload: ack,
	}
	p.acknowledgements.PushBack(cmd)
}

// handleAcknowledge matches an ACK against sentReliableCommands, releases
// the matched command, and folds the RTT sample into §4.6's estimators.
// A matched VERIFY_CONNECT ack completes the accepting side's handshake;
// a matched DISCONNECT ack completes the initiating side's teardown.
func (h *Host) handleAcknowledge(p *Peer, channelID uint8, ack ackPayload) {
	for e := p.sentReliableCommands.Front(); e != nil; e = e.Next() {
		cmd := e.Value.(*OutgoingCommand)
		if cmd.Header.ChannelID != channelID || cmd.ReliableSequenceNumber != ack.ReceivedReliableSequenceNumber {
			continue
		}
		p.sentReliableCommands.Remove(e)
		if ch := p.channel(cmd.Header.ChannelID); ch != nil {
			ch.reliableWindowRelease(cmd.ReliableSequenceNumber)
		}
		p.ReliableDataInTransit -= cmd.FragmentLength

		sample := h.serviceTime - cmd.SentTime
		p.updateRoundTripTime(sample)
		p.adjustThrottle(sample)

		switch cmd.Header.opcode() {
		case CommandVerifyConnect:
			p.State = StateConnected
			h.raiseConnect(p)
		case CommandDisconnect:
			h.raiseDisconnect(p)
			p.reset()
		}
		cmd.releasePacket()
		return
	}
}

func (h *Host) handleIncomingDisconnect(p *Peer, ch CommandHeader, d disconnectPayload) {
	if p.State == StateDisconnected || p.State == StateZombie {
		return
	}
	h.queueAck(p, ch)
	p.eventData = d.Data
	h.raiseDisconnect(p)
	p.reset()
}

// handleIncomingConnect accepts a new peer on the listening side,
// allocating a fresh slot (§4.11).
func (h *Host) handleIncomingConnect(r *bytes.Reader, from Address) error {
	var req connectPayload
	if err := readPayload(r, &req); err != nil {
		return err
	}
	p, err := h.allocatePeer()
	if err != nil {
		return err
	}
	p.acceptConnect(req, from)
	return nil
}

func (h *Host) handleSendReliable(p *Peer, ch CommandHeader, data []byte) error {
	channel := p.channel(ch.ChannelID)
	if channel == nil {
		return wrapf(ErrMalformedDatagram, "channel %d out of range", ch.ChannelID)
	}
	accept, ackable := windowAccept(ch.ReliableSequenceNumber, channel.IncomingReliableSequenceNumber+1)
	if !accept {
		return wrapf(ErrWindowViolation, "reliable seq %d outside window", ch.ReliableSequenceNumber)
	}
	if ackable {
		h.queueAck(p, ch)
	}

	packet := NewPacket(data, PacketFlagReliable)
	cmd := &IncomingCommand{Header: ch, ReliableSequenceNumber: ch.ReliableSequenceNumber, Packet: packet}
	if channel.insertIncomingReliable(cmd) {
		p.drainReliable(ch.ChannelID, channel)
	}
	return nil
}

func (h *Host) handleSendUnreliable(p *Peer, ch CommandHeader, s sendUnreliablePayload, data []byte) {
	channel := p.channel(ch.ChannelID)
	if channel == nil {
		return
	}
	packet := NewPacket(data, 0)
	cmd := &IncomingCommand{Header: ch, ReliableSequenceNumber: ch.ReliableSequenceNumber, UnreliableSequenceNumber: s.UnreliableSequenceNumber, Packet: packet}
	if channel.insertIncomingUnreliable(cmd) {
		p.drainUnreliable(ch.ChannelID, channel)
	}
}

func (h *Host) handleSendUnsequenced(p *Peer, ch CommandHeader, s sendUnsequencedPayload, data []byte) {
	if p.unsequencedWindow == nil {
		p.unsequencedWindow = make([]uint32, (peerUnsequencedWindowSize*peerFreeUnsequencedWindows)/32)
	}
	word := unsequencedWordIndex(s.UnsequencedGroup)
	bit := unsequencedBit(s.UnsequencedGroup)
	if p.unsequencedWindow[word]&bit != 0 {
		return // duplicate
	}
	p.unsequencedWindow[word] |= bit
	packet := NewPacket(data, PacketFlagUnsequenced)
	p.queueDispatch(ch.ChannelID, packet)
}

func (h *Host) handleSendFragment(p *Peer, ch CommandHeader, s sendFragmentPayload, data []byte, reliable bool) error {
	channel := p.channel(ch.ChannelID)
	if channel == nil {
		return wrapf(ErrMalformedDatagram, "channel %d out of range", ch.ChannelID)
	}

	if reliable {
		accept, ackable := windowAccept(ch.ReliableSequenceNumber, channel.IncomingReliableSequenceNumber+1)
		if !accept {
			return wrapf(ErrWindowViolation, "fragment reliable seq %d outside window", ch.ReliableSequenceNumber)
		}
		if ackable {
			h.queueAck(p, ch)
		}
	}

	full, complete, err := channel.receiveFragment(reliable, s.StartSequenceNumber, s.FragmentNumber, s.FragmentCount, s.TotalLength, s.FragmentOffset, data)
	if err != nil {
		return err
	}
	if !complete {
		return nil
	}

	flags := uint32(0)
	if reliable {
		flags = PacketFlagReliable
	}
	packet := NewPacket(full, flags)
	if reliable {
		cmd := &IncomingCommand{Header: ch, ReliableSequenceNumber: s.StartSequenceNumber, Packet: packet}
		if channel.insertIncomingReliable(cmd) {
			p.drainReliable(ch.ChannelID, channel)
		}
	} else {
		cmd := &IncomingCommand{Header: ch, ReliableSequenceNumber: ch.ReliableSequenceNumber, UnreliableSequenceNumber: s.StartSequenceNumber, Packet: packet}
		if channel.insertIncomingUnreliable(cmd) {
			p.drainUnreliable(ch.ChannelID, channel)
		}
	}
	return nil
}
