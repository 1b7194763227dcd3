package enet

import "testing"

func commandTestPeer(h *Host, channels uint32) *Peer {
	p := newPeer(h, 0)
	p.allocateChannels(channels)
	p.State = StateConnected
	h.peers = append(h.peers, p)
	return p
}

func TestHandleSendReliableDispatchesOnlyInOrder(t *testing.T) {
	h := testHost()
	p := commandTestPeer(h, 1)
	ch := p.channel(0)

	// Sequence 2 arrives before sequence 1: nothing should dispatch yet.
	hdr2 := CommandHeader{Command: makeCommandHeader(CommandSendReliable, true, false), ChannelID: 0, ReliableSequenceNumber: 2}
	if err := h.handleSendReliable(p, hdr2, []byte("b")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.dispatchedCommands.Len() != 0 {
		t.Fatal("out-of-order command should not dispatch yet")
	}

	hdr1 := CommandHeader{Command: makeCommandHeader(CommandSendReliable, true, false), ChannelID: 0, ReliableSequenceNumber: 1}
	if err := h.handleSendReliable(p, hdr1, []byte("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.dispatchedCommands.Len() != 2 {
		t.Fatalf("dispatchedCommands.Len() = %d, want 2 once the gap is filled", p.dispatchedCommands.Len())
	}
	if ch.IncomingReliableSequenceNumber != 2 {
		t.Fatalf("IncomingReliableSequenceNumber = %d, want 2", ch.IncomingReliableSequenceNumber)
	}

	first, _ := p.popDispatched()
	second, _ := p.popDispatched()
	if string(first.Packet.Data) != "a" || string(second.Packet.Data) != "b" {
		t.Fatalf("dispatched out of order: %q then %q", first.Packet.Data, second.Packet.Data)
	}
}

func TestHandleSendReliableRejectsSequenceOutsideWindow(t *testing.T) {
	h := testHost()
	p := commandTestPeer(h, 1)

	future := uint16(peerReliableWindowSize * (peerFreeReliableWindows - 1))
	hdr := CommandHeader{Command: makeCommandHeader(CommandSendReliable, true, false), ChannelID: 0, ReliableSequenceNumber: future}
	if err := h.handleSendReliable(p, hdr, []byte("x")); err == nil {
		t.Fatal("expected a window-violation error for a far-future sequence number")
	}
}

func TestHandleSendFragmentReassemblesThenDispatches(t *testing.T) {
	h := testHost()
	p := commandTestPeer(h, 1)

	full := []byte("helloworld!")
	chunkA, chunkB := full[:6], full[6:]

	hdrA := CommandHeader{Command: makeCommandHeader(CommandSendFragment, true, false), ChannelID: 0, ReliableSequenceNumber: 1}
	payloadA := sendFragmentPayload{StartSequenceNumber: 1, DataLength: uint16(len(chunkA)), FragmentCount: 2, FragmentNumber: 0, TotalLength: uint32(len(full)), FragmentOffset: 0}
	if err := h.handleSendFragment(p, hdrA, payloadA, chunkA, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.dispatchedCommands.Len() != 0 {
		t.Fatal("should not dispatch before every fragment arrives")
	}

	hdrB := CommandHeader{Command: makeCommandHeader(CommandSendFragment, true, false), ChannelID: 0, ReliableSequenceNumber: 1}
	payloadB := sendFragmentPayload{StartSequenceNumber: 1, DataLength: uint16(len(chunkB)), FragmentCount: 2, FragmentNumber: 1, TotalLength: uint32(len(full)), FragmentOffset: uint32(len(chunkA))}
	if err := h.handleSendFragment(p, hdrB, payloadB, chunkB, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.dispatchedCommands.Len() != 1 {
		t.Fatalf("dispatchedCommands.Len() = %d, want 1 once reassembly completes", p.dispatchedCommands.Len())
	}
	entry, _ := p.popDispatched()
	if string(entry.Packet.Data) != string(full) {
		t.Fatalf("reassembled data = %q, want %q", entry.Packet.Data, full)
	}
}

func TestQueueAckRespectsWindowOnNonSystemChannel(t *testing.T) {
	h := testHost()
	p := commandTestPeer(h, 1)

	future := uint16(peerReliableWindowSize * (peerFreeReliableWindows - 1))
	ch := CommandHeader{Command: makeCommandHeader(CommandSendReliable, true, false), ChannelID: 0, ReliableSequenceNumber: future}
	h.queueAck(p, ch)
	if p.acknowledgements.Len() != 0 {
		t.Fatal("queueAck should drop an ack request far outside the window")
	}

	okHeader := CommandHeader{Command: makeCommandHeader(CommandSendReliable, true, false), ChannelID: 0, ReliableSequenceNumber: 1}
	h.queueAck(p, okHeader)
	if p.acknowledgements.Len() != 1 {
		t.Fatal("queueAck should accept a sequence number inside the window")
	}
}

func TestQueueAckIgnoresNonAcknowledgeCommands(t *testing.T) {
	h := testHost()
	p := commandTestPeer(h, 1)

	ch := CommandHeader{Command: makeCommandHeader(CommandSendUnreliable, false, false), ChannelID: 0, ReliableSequenceNumber: 1}
	h.queueAck(p, ch)
	if p.acknowledgements.Len() != 0 {
		t.Fatal("queueAck should ignore commands without the ACKNOWLEDGE flag set")
	}
}

func TestHandleAcknowledgeCompletesVerifyConnectHandshake(t *testing.T) {
	h := testHost()
	p := commandTestPeer(h, 1)
	p.State = StateConnecting

	cmd := &OutgoingCommand{
		Header:                 CommandHeader{Command: makeCommandHeader(CommandVerifyConnect, true, false), ChannelID: channelIDSystem, ReliableSequenceNumber: 1},
		ReliableSequenceNumber: 1,
		SentTime:               0,
	}
	p.sentReliableCommands.PushBack(cmd)
	h.serviceTime = 50

	h.handleAcknowledge(p, channelIDSystem, ackPayload{ReceivedReliableSequenceNumber: 1})

	if p.State != StateConnected {
		t.Fatalf("state = %s, want connected", p.State)
	}
	if len(h.pendingEvents) != 1 || h.pendingEvents[0].Type != EventConnect {
		t.Fatalf("expected a pending EventConnect, got %v", h.pendingEvents)
	}
	if p.sentReliableCommands.Len() != 0 {
		t.Fatal("acknowledged command should be removed from sentReliableCommands")
	}
}

func TestHandleAcknowledgeIgnoresChannelMismatch(t *testing.T) {
	h := testHost()
	p := commandTestPeer(h, 2)

	cmd := &OutgoingCommand{
		Header:                 CommandHeader{Command: makeCommandHeader(CommandSendReliable, true, false), ChannelID: 0, ReliableSequenceNumber: 1},
		ReliableSequenceNumber: 1,
	}
	p.sentReliableCommands.PushBack(cmd)

	// Same sequence number, different channel: must not match.
	h.handleAcknowledge(p, 1, ackPayload{ReceivedReliableSequenceNumber: 1})
	if p.sentReliableCommands.Len() != 1 {
		t.Fatal("ack for a different channel should not remove a command with a colliding sequence number")
	}
}

func TestPackDatagramsSplitsOnMTUBudget(t *testing.T) {
	big := make([]byte, 50)
	cmdSize := wireSize(CommandHeader{}) + len(big)
	cmds := []wireCommand{
		{header: CommandHeader{}, data: big},
		{header: CommandHeader{}, data: big},
		{header: CommandHeader{}, data: big},
	}
	// budget (mtu - protocol header) is exactly room for two commands.
	mtu := wireSize(ProtocolHeader{}) + cmdSize*2
	batches := packDatagrams(cmds, mtu, 0)
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if len(batches[0]) != 2 || len(batches[1]) != 1 {
		t.Fatalf("batch sizes = %d, %d; want 2, 1", len(batches[0]), len(batches[1]))
	}
}

func TestPackDatagramsSplitsOnCommandCount(t *testing.T) {
	var cmds []wireCommand
	for i := 0; i < ProtocolMaximumPacketCommands+3; i++ {
		cmds = append(cmds, wireCommand{header: CommandHeader{}})
	}
	batches := packDatagrams(cmds, ProtocolMaximumMTU, 0)
	if len(batches[0]) != ProtocolMaximumPacketCommands {
		t.Fatalf("first batch = %d commands, want %d", len(batches[0]), ProtocolMaximumPacketCommands)
	}
}

func TestEncodeDecodeDatagramRoundTripsWithChecksum(t *testing.T) {
	h := testHost()
	h.Checksum = NewCRC32Checksum()
	p := commandTestPeer(h, 1)
	p.OutgoingPeerID = 0

	cmds := []wireCommand{{header: CommandHeader{Command: makeCommandHeader(CommandPing, true, false), ChannelID: channelIDSystem, ReliableSequenceNumber: 1}}}
	buf, err := h.encodeDatagram(p, cmds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := h.receiveDatagram(buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.acknowledgements.Len() != 1 {
		t.Fatalf("expected the decoded PING to queue an ack, acknowledgements.Len() = %d", p.acknowledgements.Len())
	}
}

func TestReceiveDatagramRejectsBadChecksum(t *testing.T) {
	h := testHost()
	h.Checksum = NewCRC32Checksum()
	p := commandTestPeer(h, 1)
	p.OutgoingPeerID = 0

	cmds := []wireCommand{{header: CommandHeader{Command: makeCommandHeader(CommandPing, true, false), ChannelID: channelIDSystem, ReliableSequenceNumber: 1}}}
	buf, err := h.encodeDatagram(p, cmds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf[0] ^= 0xFF // corrupt the header, checksum no longer matches

	if err := h.receiveDatagram(buf, nil); err == nil {
		t.Fatal("expected a checksum-mismatch error")
	}
}
