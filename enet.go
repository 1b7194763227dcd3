// Package enet implements the protocol engine of a reliable, sequenced,
// multi-channel datagram transport layered over UDP: per-peer command
// queues, sequence-number windows, reliable resend/ack bookkeeping,
// fragment reassembly, RTT-driven throttling, host-wide bandwidth fairness,
// and the dispatcher that surfaces completed messages to the application.
package enet

// ProtocolHeader is the fixed part of every datagram. SentTime is always
// on the wire: encodeDatagram always sets headerFlagSentTime in PeerID's
// high bits, and receiveDatagram always reads both fields.
type ProtocolHeader struct {
	PeerID   uint16
	SentTime uint16
}

// CommandHeader precedes every command on the wire. The ACKNOWLEDGE and
// UNSEQUENCED flags occupy the top two bits of Command; the opcode is the
// low four bits.
type CommandHeader struct {
	Command                 uint8
	ChannelID               uint8
	ReliableSequenceNumber  uint16
}

func (h CommandHeader) opcode() uint8 {
	return h.Command & commandMask
}

func (h CommandHeader) acknowledge() bool {
	return h.Command&flagAcknowledge != 0
}

func (h CommandHeader) unsequenced() bool {
	return h.Command&flagUnsequenced != 0
}

func makeCommandHeader(opcode uint8, ack, unsequenced bool) uint8 {
	c := opcode & commandMask
	if ack {
		c |= flagAcknowledge
	}
	if unsequenced {
		c |= flagUnsequenced
	}
	return c
}
