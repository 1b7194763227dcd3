package enet

import (
	"container/list"
	"testing"

	"go.uber.org/zap"
)

// testHost builds a *Host with just enough state for Peer's methods to run
// without touching a real socket.
func testHost() *Host {
	h := &Host{
		MaximumPacketSize:  HostDefaultMaximumPacketSize,
		MaximumWaitingData: HostDefaultMaximumWaitingData,
		dispatchQueue:      list.New(),
		deadlines:          newDeadlineQueue(),
		logger:             zap.NewNop(),
	}
	return h
}

func connectedPeer(h *Host) *Peer {
	p := newPeer(h, 0)
	p.allocateChannels(2)
	p.State = StateConnected
	return p
}

func TestQueueOutgoingAssignsSequentialReliableNumbers(t *testing.T) {
	h := testHost()
	p := connectedPeer(h)

	cmd1 := p.queueOutgoing(setupCommand{opcode: CommandSendReliable, channelID: 0, acknowledge: true})
	cmd2 := p.queueOutgoing(setupCommand{opcode: CommandSendReliable, channelID: 0, acknowledge: true})

	if cmd1.ReliableSequenceNumber != 1 || cmd2.ReliableSequenceNumber != 2 {
		t.Fatalf("sequence numbers = %d, %d; want 1, 2", cmd1.ReliableSequenceNumber, cmd2.ReliableSequenceNumber)
	}
}

func TestQueueOutgoingSystemChannelUsesPeerSequence(t *testing.T) {
	h := testHost()
	p := connectedPeer(h)

	cmd := p.queueOutgoing(setupCommand{opcode: CommandPing, channelID: channelIDSystem, acknowledge: true})
	if cmd.ReliableSequenceNumber != 1 {
		t.Fatalf("system command sequence = %d, want 1", cmd.ReliableSequenceNumber)
	}
	if p.OutgoingReliableSequenceNumber != 1 {
		t.Fatalf("peer sequence counter = %d, want 1", p.OutgoingReliableSequenceNumber)
	}
}

func TestSendRejectsWhenNotConnected(t *testing.T) {
	h := testHost()
	p := newPeer(h, 0)
	p.allocateChannels(1)

	err := p.Send(0, NewPacket([]byte("hi"), 0))
	if err == nil {
		t.Fatal("expected an error sending on an unconnected peer")
	}
}

func TestSendRejectsOversizedChannel(t *testing.T) {
	h := testHost()
	p := connectedPeer(h)

	err := p.Send(uint8(p.ChannelCount), NewPacket([]byte("hi"), 0))
	if err == nil {
		t.Fatal("expected an error sending on an out-of-range channel")
	}
}

func TestSendRejectsOversizedPacket(t *testing.T) {
	h := testHost()
	h.MaximumPacketSize = 4
	p := connectedPeer(h)

	err := p.Send(0, NewPacket([]byte("too long"), 0))
	if err == nil {
		t.Fatal("expected an error sending a packet over MaximumPacketSize")
	}
}

func TestSendSmallReliablePacketQueuesOneCommand(t *testing.T) {
	h := testHost()
	p := connectedPeer(h)

	if err := p.Send(0, NewPacket([]byte("hello"), PacketFlagReliable)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.outgoingSendReliableCommands.Len() != 1 {
		t.Fatalf("outgoingSendReliableCommands.Len() = %d, want 1", p.outgoingSendReliableCommands.Len())
	}
}

func TestSendLargePacketFragments(t *testing.T) {
	h := testHost()
	p := connectedPeer(h)
	p.MTU = ProtocolMinimumMTU
	ch := p.channel(0)

	fragmentLength := int(p.MTU) - wireSize(CommandHeader{}) - wireSize(sendFragmentPayload{})
	data := make([]byte, fragmentLength*3+10)
	if err := p.Send(0, NewPacket(data, PacketFlagReliable)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.outgoingSendReliableCommands.Len() != 4 {
		t.Fatalf("fragment count = %d, want 4", p.outgoingSendReliableCommands.Len())
	}

	want := uint16(1)
	for e := p.outgoingSendReliableCommands.Front(); e != nil; e = e.Next() {
		cmd := e.Value.(*OutgoingCommand)
		if cmd.ReliableSequenceNumber != want {
			t.Fatalf("fragment reliable sequence number = %d, want %d", cmd.ReliableSequenceNumber, want)
		}
		want++
	}
	if ch.OutgoingReliableSequenceNumber != 4 {
		t.Fatalf("channel OutgoingReliableSequenceNumber = %d, want 4 after 4 fragments", ch.OutgoingReliableSequenceNumber)
	}

	// A following reliable send on the same channel must continue the
	// sequence rather than colliding with the last fragment.
	if err := p.Send(0, NewPacket([]byte("next"), PacketFlagReliable)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := p.outgoingSendReliableCommands.Back().Value.(*OutgoingCommand)
	if last.ReliableSequenceNumber != 5 {
		t.Fatalf("follow-up send reliable sequence number = %d, want 5", last.ReliableSequenceNumber)
	}
}

func TestPromoteReliableCommandsStopsAtReliableDataBudget(t *testing.T) {
	h := testHost()
	p := connectedPeer(h)
	p.MTU = 600
	p.WindowSize = 600

	for i := 0; i < 5; i++ {
		p.queueOutgoing(setupCommand{
			opcode: CommandSendReliable, channelID: 0, acknowledge: true,
			fragmentLength: 200, packet: NewPacket(nil, PacketFlagReliable),
		})
	}

	promoted := p.promoteReliableCommands()
	if len(promoted) != 3 {
		t.Fatalf("promoted %d commands, want 3 (600/200 before exceeding the budget)", len(promoted))
	}
	if p.outgoingSendReliableCommands.Len() != 2 {
		t.Fatalf("remaining queued = %d, want 2", p.outgoingSendReliableCommands.Len())
	}
	if p.ReliableDataInTransit != 600 {
		t.Fatalf("ReliableDataInTransit = %d, want 600", p.ReliableDataInTransit)
	}
}

func TestCheckTimeoutsResendsBeforeZombifying(t *testing.T) {
	h := testHost()
	p := connectedPeer(h)
	p.TimeoutMinimum = 100
	p.TimeoutMaximum = 1000
	p.TimeoutLimit = 2

	p.queueOutgoing(setupCommand{opcode: CommandSendReliable, channelID: 0, acknowledge: true, packet: NewPacket(nil, PacketFlagReliable)})
	p.promoteReliableCommands()

	cmd := p.sentReliableCommands.Front().Value.(*OutgoingCommand)
	h.serviceTime = cmd.SentTime + cmd.RoundTripTimeout + 1

	if p.checkTimeouts() {
		t.Fatal("should resend, not zombify, on the first expiry")
	}
	if p.sentReliableCommands.Len() != 0 {
		t.Fatal("expired command should have been moved back to outgoingSendReliableCommands")
	}
	if p.outgoingSendReliableCommands.Len() != 1 {
		t.Fatal("expired command should be requeued for resend")
	}

	// Drive the timeout ladder past TimeoutMaximum.
	p.promoteReliableCommands()
	cmd = p.sentReliableCommands.Front().Value.(*OutgoingCommand)
	h.serviceTime = cmd.SentTime + int64(p.TimeoutMaximum) + 1

	if !p.checkTimeouts() {
		t.Fatal("should zombify once elapsed exceeds TimeoutMaximum")
	}
	if p.State != StateZombie {
		t.Fatalf("state = %s, want zombie", p.State)
	}
}

func TestUpdateRoundTripTimeTracksLowest(t *testing.T) {
	h := testHost()
	p := connectedPeer(h)
	p.RoundTripTime = 500
	p.LowestRoundTripTime = 500

	p.updateRoundTripTime(100)
	if p.RoundTripTime >= 500 {
		t.Fatalf("RoundTripTime should decrease toward a lower sample, got %d", p.RoundTripTime)
	}
	if p.LowestRoundTripTime > p.RoundTripTime {
		t.Fatalf("LowestRoundTripTime (%d) should track the new lower RoundTripTime (%d)", p.LowestRoundTripTime, p.RoundTripTime)
	}
}

func TestAdjustThrottleRaisesOnFastSample(t *testing.T) {
	h := testHost()
	p := connectedPeer(h)
	p.LastRoundTripTime = 100
	p.LastRoundTripTimeVariance = 10
	p.PacketThrottle = 10
	p.PacketThrottleLimit = 32

	p.adjustThrottle(50)
	if p.PacketThrottle <= 10 {
		t.Fatalf("PacketThrottle should rise on a fast sample, got %d", p.PacketThrottle)
	}
}

func TestAdjustThrottleLowersOnSlowSample(t *testing.T) {
	h := testHost()
	p := connectedPeer(h)
	p.LastRoundTripTime = 100
	p.LastRoundTripTimeVariance = 10
	p.PacketThrottle = 20
	p.PacketThrottleDeceleration = 5

	p.adjustThrottle(200)
	if p.PacketThrottle >= 20 {
		t.Fatalf("PacketThrottle should fall on a slow sample, got %d", p.PacketThrottle)
	}
}

func TestUnreliablePassesAlwaysAtMaxThrottle(t *testing.T) {
	h := testHost()
	p := connectedPeer(h)
	p.PacketThrottle = PeerPacketThrottleScale

	for i := 0; i < 100; i++ {
		if !p.unreliablePasses() {
			t.Fatal("unreliable sends should never be dropped at maximum throttle")
		}
	}
}

func TestDisconnectMovesToDisconnecting(t *testing.T) {
	h := testHost()
	p := connectedPeer(h)

	p.Disconnect(42)
	if p.State != StateDisconnecting {
		t.Fatalf("state = %s, want disconnecting", p.State)
	}
	if p.acknowledgements.Len()+p.outgoingCommands.Len()+p.outgoingSendReliableCommands.Len() == 0 {
		t.Fatal("Disconnect should have queued a DISCONNECT command")
	}
}

func TestDisconnectIsIdempotentOnceZombie(t *testing.T) {
	h := testHost()
	p := connectedPeer(h)
	p.State = StateZombie

	p.Disconnect(0) // must not panic or queue anything
	if p.outgoingSendReliableCommands.Len() != 0 {
		t.Fatal("Disconnect on a zombie peer should be a no-op")
	}
}
