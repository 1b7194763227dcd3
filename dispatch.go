package enet

// dispatch.go implements §4.9: once a channel's incoming lists yield a
// command whose sequence number is exactly the next expected one, it is
// handed to the peer's dispatch queue and the peer is linked onto the
// host's dispatch queue so Host.Service can drain completed deliveries
// without rescanning every peer.

// queueDispatch appends a completed delivery to the peer's dispatch queue
// and links the peer onto the host's dispatch queue if it isn't already
// there (host.dispatchQueue is drained by Host.Service, step 1).
func (p *Peer) queueDispatch(channelID uint8, packet *Packet) {
	p.dispatchedCommands.PushBack(&dispatchedEntry{ChannelID: channelID, Packet: packet})
	if !p.inDispatchQueue {
		p.inDispatchQueue = true
		p.host.dispatchQueue.PushBack(p)
	}
}

// popDispatched removes and returns the oldest queued delivery, or
// ok=false if the peer has none left.
func (p *Peer) popDispatched() (entry *dispatchedEntry, ok bool) {
	e := p.dispatchedCommands.Front()
	if e == nil {
		return nil, false
	}
	p.dispatchedCommands.Remove(e)
	return e.Value.(*dispatchedEntry), true
}

// drainReliable walks a channel's sorted IncomingReliableCommands list,
// dispatching every prefix run starting at IncomingReliableSequenceNumber+1
// (§4.8's reassembly-then-dispatch ordering guarantee, §8 property 1).
func (p *Peer) drainReliable(channelID uint8, ch *Channel) {
	for {
		e := ch.IncomingReliableCommands.Front()
		if e == nil {
			return
		}
		cmd := e.Value.(*IncomingCommand)
		if cmd.ReliableSequenceNumber != ch.IncomingReliableSequenceNumber+1 {
			return
		}
		ch.IncomingReliableCommands.Remove(e)
		ch.IncomingReliableSequenceNumber = cmd.ReliableSequenceNumber
		ch.IncomingUnreliableSequenceNumber = 0
		if cmd.Packet != nil {
			p.queueDispatch(channelID, cmd.Packet)
		}
	}
}

// drainUnreliable dispatches every buffered unreliable command whose
// sequence number is not behind the channel's current expectation,
// dropping (not blocking on) any gap left by loss — matching §4.8's
// unreliable delivery rule.
func (p *Peer) drainUnreliable(channelID uint8, ch *Channel) {
	for {
		e := ch.IncomingUnreliableCommands.Front()
		if e == nil {
			return
		}
		cmd := e.Value.(*IncomingCommand)
		if cmd.ReliableSequenceNumber != ch.IncomingReliableSequenceNumber {
			if !seq16Less(cmd.ReliableSequenceNumber, ch.IncomingReliableSequenceNumber) {
				return
			}
			ch.IncomingUnreliableCommands.Remove(e)
			if cmd.Packet != nil {
				cmd.Packet.unref()
			}
			continue
		}
		if seq16Less(cmd.UnreliableSequenceNumber, ch.IncomingUnreliableSequenceNumber) {
			ch.IncomingUnreliableCommands.Remove(e)
			if cmd.Packet != nil {
				cmd.Packet.unref()
			}
			continue
		}
		ch.IncomingUnreliableCommands.Remove(e)
		ch.IncomingUnreliableSequenceNumber = cmd.UnreliableSequenceNumber
		if cmd.Packet != nil {
			p.queueDispatch(channelID, cmd.Packet)
		}
	}
}
