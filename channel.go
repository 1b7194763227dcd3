package enet

import "container/list"

// Channel holds one peer's per-channel sequence state (§3): independent
// reliable and unreliable sequence spaces, the reliable-window usage
// bitmap, and the two ordered incoming-command lists that feed the
// dispatcher (§4.9).
type Channel struct {
	OutgoingReliableSequenceNumber   uint16
	OutgoingUnreliableSequenceNumber uint16
	IncomingReliableSequenceNumber   uint16
	IncomingUnreliableSequenceNumber uint16

	IncomingReliableCommands   *list.List // of *IncomingCommand, sorted
	IncomingUnreliableCommands *list.List // of *IncomingCommand, sorted

	ReliableWindows     [peerReliableWindows]uint16 // count per window
	UsedReliableWindows uint16                       // bitmask of non-empty windows

	// Fragment reassembly state (§4.8), keyed by the fragment's
	// StartSequenceNumber. Reliable and unreliable fragmented sends use
	// separate sequence spaces and so get separate maps.
	reliableFragments   map[uint16]*fragmentAssembly
	unreliableFragments map[uint16]*fragmentAssembly
}

func newChannel() *Channel {
	return &Channel{
		IncomingReliableCommands:   list.New(),
		IncomingUnreliableCommands: list.New(),
		reliableFragments:          make(map[uint16]*fragmentAssembly),
		unreliableFragments:        make(map[uint16]*fragmentAssembly),
	}
}

func (ch *Channel) reset() {
	ch.OutgoingReliableSequenceNumber = 0
	ch.OutgoingUnreliableSequenceNumber = 0
	ch.IncomingReliableSequenceNumber = 0
	ch.IncomingUnreliableSequenceNumber = 0
	ch.IncomingReliableCommands.Init()
	ch.IncomingUnreliableCommands.Init()
	ch.ReliableWindows = [peerReliableWindows]uint16{}
	ch.UsedReliableWindows = 0
	ch.reliableFragments = make(map[uint16]*fragmentAssembly)
	ch.unreliableFragments = make(map[uint16]*fragmentAssembly)
}

// reliableWindowHasRoom reports whether the reliable window a sequence
// number falls into may accept another outstanding command (§3 invariant:
// at most peerReliableWindowSize outstanding reliable commands per window).
func (ch *Channel) reliableWindowHasRoom(seq uint16) bool {
	w := reliableWindowOf(seq)
	return ch.ReliableWindows[w] < peerReliableWindowSize
}

func (ch *Channel) reliableWindowAcquire(seq uint16) {
	w := reliableWindowOf(seq)
	ch.ReliableWindows[w]++
	ch.UsedReliableWindows |= 1 << w
}

func (ch *Channel) reliableWindowRelease(seq uint16) {
	w := reliableWindowOf(seq)
	if ch.ReliableWindows[w] > 0 {
		ch.ReliableWindows[w]--
	}
	if ch.ReliableWindows[w] == 0 {
		ch.UsedReliableWindows &^= 1 << w
	}
}

// insertIncomingReliable inserts cmd into IncomingReliableCommands keeping
// the list sorted by ReliableSequenceNumber (window-relative to the
// channel's current expected sequence, per §4.8). Returns false if a
// command with the same sequence number is already present (duplicate).
func (ch *Channel) insertIncomingReliable(cmd *IncomingCommand) bool {
	base := ch.IncomingReliableSequenceNumber + 1
	for e := ch.IncomingReliableCommands.Back(); e != nil; e = e.Prev() {
		existing := e.Value.(*IncomingCommand)
		if existing.ReliableSequenceNumber == cmd.ReliableSequenceNumber {
			return false
		}
		if sequenceLess(existing.ReliableSequenceNumber, cmd.ReliableSequenceNumber, base) {
			ch.IncomingReliableCommands.InsertAfter(cmd, e)
			return true
		}
	}
	ch.IncomingReliableCommands.PushFront(cmd)
	return true
}

// insertIncomingUnreliable inserts cmd into IncomingUnreliableCommands,
// sorted by (ReliableSequenceNumber, UnreliableSequenceNumber).
func (ch *Channel) insertIncomingUnreliable(cmd *IncomingCommand) bool {
	relBase := ch.IncomingReliableSequenceNumber + 1
	for e := ch.IncomingUnreliableCommands.Back(); e != nil; e = e.Prev() {
		existing := e.Value.(*IncomingCommand)
		if existing.ReliableSequenceNumber == cmd.ReliableSequenceNumber &&
			existing.UnreliableSequenceNumber == cmd.UnreliableSequenceNumber {
			return false
		}
		if existing.ReliableSequenceNumber == cmd.ReliableSequenceNumber {
			if existing.UnreliableSequenceNumber < cmd.UnreliableSequenceNumber {
				ch.IncomingUnreliableCommands.InsertAfter(cmd, e)
				return true
			}
			continue
		}
		if sequenceLess(existing.ReliableSequenceNumber, cmd.ReliableSequenceNumber, relBase) {
			ch.IncomingUnreliableCommands.InsertAfter(cmd, e)
			return true
		}
	}
	ch.IncomingUnreliableCommands.PushFront(cmd)
	return true
}
