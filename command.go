package enet

// OutgoingCommand is the in-memory record for a command queued for send or
// awaiting ack (§3). It lives on exactly one of a Peer's command lists at a
// time (outgoingCommands, outgoingSendReliableCommands, or
// sentReliableCommands), matching the "moved between lists in O(1)" design
// note — Go's container/list gives us that without intrusive pointers.
type OutgoingCommand struct {
	Header                   CommandHeader
	payload                  []byte // opcode-specific fixed payload, pre-encoded
	data                     []byte // application bytes for this command/fragment

	ReliableSequenceNumber   uint16
	UnreliableSequenceNumber uint16
	SendAttempts             int
	SentTime                 int64
	RoundTripTimeout         int64
	QueueTime                int64
	FragmentOffset           uint32
	FragmentLength           uint32

	Packet *Packet // nil for commands with no application payload (ACK, PING, ...)
}

func (c *OutgoingCommand) wireSize() int {
	return wireSize(CommandHeader{}) + len(c.payload) + len(c.data)
}

func (c *OutgoingCommand) reliable() bool {
	return c.Header.opcode() == CommandSendReliable ||
		c.Header.opcode() == CommandSendFragment ||
		c.Header.opcode() == CommandConnect ||
		c.Header.opcode() == CommandVerifyConnect ||
		c.Header.opcode() == CommandDisconnect ||
		c.Header.opcode() == CommandPing ||
		c.Header.opcode() == CommandBandwidthLimit ||
		c.Header.opcode() == CommandThrottleConfigure
}

func (c *OutgoingCommand) releasePacket() {
	if c.Packet != nil {
		c.Packet.unref()
		c.Packet = nil
	}
}

// IncomingCommand is the receive-side counterpart (§3): the header, the two
// sequence numbers and the packet. A fragmented send's reassembly state lives
// separately in reassembly.go's fragmentAssembly, keyed by
// StartSequenceNumber rather than tracked per IncomingCommand, since a
// send isn't dispatchable (and doesn't get one of these) until every
// fragment has already arrived and been reassembled.
type IncomingCommand struct {
	Header                   CommandHeader
	ReliableSequenceNumber   uint16
	UnreliableSequenceNumber uint16

	Packet *Packet
}
