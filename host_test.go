package enet

import (
	"testing"
	"time"
)

func newLoopbackHost(t *testing.T, peerCount uint32) *Host {
	t.Helper()
	h, err := NewHost("127.0.0.1:0", peerCount)
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	t.Cleanup(func() { h.Destroy() })
	return h
}

func TestHostConnectHandshakeAndReliableExchange(t *testing.T) {
	server := newLoopbackHost(t, 4)
	client := newLoopbackHost(t, 4)

	peer, err := client.Connect(server.LocalAddr().String(), 2, 7)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	serverSeenConnect := false
	clientSeenConnect := false

	deadline := time.Now().Add(5 * time.Second)
	for (!serverSeenConnect || !clientSeenConnect) && time.Now().Before(deadline) {
		if ev, err := server.Service(20 * time.Millisecond); err != nil {
			t.Fatalf("server Service: %v", err)
		} else if ev.Type == EventConnect {
			serverSeenConnect = true
		}
		if ev, err := client.Service(20 * time.Millisecond); err != nil {
			t.Fatalf("client Service: %v", err)
		} else if ev.Type == EventConnect {
			clientSeenConnect = true
			if ev.Data != 7 {
				t.Fatalf("client connect event data = %d, want 7", ev.Data)
			}
		}
	}
	if !serverSeenConnect || !clientSeenConnect {
		t.Fatal("handshake did not complete within the deadline")
	}
	if peer.State != StateConnected {
		t.Fatalf("client peer state = %s, want connected", peer.State)
	}

	payload := []byte("integration test payload")
	if err := peer.Send(0, NewPacket(append([]byte(nil), payload...), PacketFlagReliable)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var received []byte
	deadline = time.Now().Add(5 * time.Second)
	for received == nil && time.Now().Before(deadline) {
		if ev, err := server.Service(20 * time.Millisecond); err != nil {
			t.Fatalf("server Service: %v", err)
		} else if ev.Type == EventReceive {
			received = ev.Packet.Data
		}
		client.Service(5 * time.Millisecond)
	}
	if received == nil {
		t.Fatal("server never received the reliable message")
	}
	if string(received) != string(payload) {
		t.Fatalf("received %q, want %q", received, payload)
	}
}

func TestHostDisconnectIsDeliveredToBothSides(t *testing.T) {
	server := newLoopbackHost(t, 4)
	client := newLoopbackHost(t, 4)

	peer, err := client.Connect(server.LocalAddr().String(), 1, 0)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for peer.State != StateConnected && time.Now().Before(deadline) {
		server.Service(20 * time.Millisecond)
		client.Service(20 * time.Millisecond)
	}
	if peer.State != StateConnected {
		t.Fatal("handshake never completed")
	}

	peer.Disconnect(99)

	serverDisconnected := false
	deadline = time.Now().Add(5 * time.Second)
	for !serverDisconnected && time.Now().Before(deadline) {
		if ev, _ := server.Service(20 * time.Millisecond); ev.Type == EventDisconnect {
			serverDisconnected = true
			if ev.Data != 99 {
				t.Fatalf("server disconnect event data = %d, want 99", ev.Data)
			}
		}
		client.Service(20 * time.Millisecond)
	}
	if !serverDisconnected {
		t.Fatal("server never observed the disconnect")
	}
}

func TestHostAllocatePeerFailsWhenExhausted(t *testing.T) {
	h := testHost()
	h.peers = []*Peer{newPeer(h, 0)}
	h.peers[0].State = StateConnected

	if _, err := h.allocatePeer(); err == nil {
		t.Fatal("expected an error when every peer slot is in use")
	}
}

func TestHostBroadcastSkipsUnconnectedPeers(t *testing.T) {
	h := testHost()
	connected := newPeer(h, 0)
	connected.allocateChannels(1)
	connected.State = StateConnected
	disconnected := newPeer(h, 1)
	disconnected.allocateChannels(1)
	h.peers = []*Peer{connected, disconnected}

	h.Broadcast(0, NewPacket([]byte("hi"), PacketFlagReliable))

	if connected.outgoingSendReliableCommands.Len() != 1 {
		t.Fatal("Broadcast should have queued a send on the connected peer")
	}
	if disconnected.outgoingSendReliableCommands.Len() != 0 {
		t.Fatal("Broadcast should not queue anything on a disconnected peer")
	}
}
