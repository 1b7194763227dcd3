package enet

import (
	"bytes"
	"encoding/binary"

	"go.uber.org/zap"
)

// outgoing.go implements §4.10: assembling a peer's pending commands into
// one or more datagrams bounded by MTU and ProtocolMaximumPacketCommands,
// applying the optional Compressor and Checksum hooks, and handing the
// result to the Socket.

// wireCommand is one fully-encoded command waiting to go into a datagram.
type wireCommand struct {
	header  CommandHeader
	payload []byte
	data    []byte
	outgoing *OutgoingCommand // nil for ACKs, which are never resent
}

func (w wireCommand) size() int {
	return wireSize(CommandHeader{}) + len(w.payload) + len(w.data)
}

// sendPeer drains everything the peer currently has ready to transmit:
// queued acknowledgements, newly promoted reliable commands, and
// unreliable/unsequenced sends gated by the throttle. It returns the
// number of datagrams written.
func (h *Host) sendPeer(p *Peer) (int, error) {
	if p.State == StateDisconnected || p.State == StateZombie {
		return 0, nil
	}

	var pending []wireCommand

	for e := p.acknowledgements.Front(); e != nil; {
		cmd := e.Value.(*OutgoingCommand)
		next := e.Next()
		pending = append(pending, wireCommand{header: cmd.Header, payload: cmd.payload})
		p.acknowledgements.Remove(e)
		e = next
	}

	for _, cmd := range p.promoteReliableCommands() {
		pending = append(pending, wireCommand{header: cmd.Header, payload: cmd.payload, data: cmd.data, outgoing: cmd})
	}

	if p.State == StateConnected {
		for e := p.outgoingCommands.Front(); e != nil; {
			cmd := e.Value.(*OutgoingCommand)
			next := e.Next()
			if op := cmd.Header.opcode(); (op == CommandSendUnreliable || op == CommandSendUnsequenced) && !p.unreliablePasses() {
				p.outgoingCommands.Remove(e)
				cmd.releasePacket()
				e = next
				continue
			}
			pending = append(pending, wireCommand{header: cmd.Header, payload: cmd.payload, data: cmd.data})
			p.outgoingCommands.Remove(e)
			cmd.releasePacket()
			e = next
		}
	}

	if len(pending) == 0 {
		return 0, nil
	}

	datagrams := packDatagrams(pending, int(p.MTU), h.checksumOverhead())
	sent := 0
	for _, dg := range datagrams {
		buf, err := h.encodeDatagram(p, dg)
		if err != nil {
			return sent, err
		}
		if _, err := h.socket.WriteTo(buf, p.Address); err != nil {
			h.logger.Warn("write failed", zap.Error(err), zap.Int("peer", p.IncomingPeerID))
			return sent, wrapf(ErrSocketError, "write to peer %d: %v", p.IncomingPeerID, err)
		}
		p.lastSendTime = h.serviceTime
		h.outgoingBandwidthUsed += uint32(len(buf))
		sent++
	}
	return sent, nil
}

// packDatagrams groups wire commands into MTU- and count-bounded batches,
// preserving order (ACKs first, as sendPeer appended them first).
func packDatagrams(cmds []wireCommand, mtu, checksumOverhead int) [][]wireCommand {
	headerSize := wireSize(ProtocolHeader{})
	budget := mtu - headerSize - checksumOverhead

	var batches [][]wireCommand
	var cur []wireCommand
	curSize := 0
	for _, c := range cmds {
		sz := c.size()
		if len(cur) > 0 && (curSize+sz > budget || len(cur) >= ProtocolMaximumPacketCommands) {
			batches = append(batches, cur)
			cur = nil
			curSize = 0
		}
		cur = append(cur, c)
		curSize += sz
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

func (h *Host) checksumOverhead() int {
	if h.Checksum != nil {
		return 4
	}
	return 0
}

// encodeDatagram serializes ProtocolHeader followed by each command's
// CommandHeader+payload+data, compressing the command section and/or
// appending a checksum trailer as the Host is configured.
func (h *Host) encodeDatagram(p *Peer, cmds []wireCommand) ([]byte, error) {
	body := &bytes.Buffer{}
	for _, c := range cmds {
		if err := binary.Write(body, binary.BigEndian, c.header); err != nil {
			return nil, wrapf(ErrSocketError, "encode command header: %v", err)
		}
		body.Write(c.payload)
		body.Write(c.data)
	}
	bodyBytes := body.Bytes()

	flags := headerFlagSentTime
	if h.Compressor != nil {
		compressed, err := h.Compressor.Compress(bodyBytes)
		if err != nil {
			return nil, err
		}
		if len(compressed) < len(bodyBytes) {
			bodyBytes = compressed
			flags |= headerFlagCompressed
		}
	}
	flags |= (uint16(p.OutgoingSessionID) & headerSessionMask) << headerSessionShift

	hdr := ProtocolHeader{
		PeerID:   (p.OutgoingPeerID & headerPeerIDMask) | flags,
		SentTime: uint16(h.serviceTime & 0xFFFF),
	}

	out := &bytes.Buffer{}
	binary.Write(out, binary.BigEndian, hdr)
	out.Write(bodyBytes)

	final := out.Bytes()
	if h.Checksum != nil {
		sum := h.Checksum.Sum(final)
		var sumBuf [4]byte
		binary.BigEndian.PutUint32(sumBuf[:], sum)
		final = append(final, sumBuf[:]...)
	}
	return final, nil
}
