package enet

import "testing"

func TestPacketRefUnrefInvokesFreeCallbackAtZero(t *testing.T) {
	freed := false
	p := NewPacket([]byte("hello"), PacketFlagReliable)
	p.FreeCallback = func(*Packet) { freed = true }

	p.ref()
	p.ref()
	p.ref()
	p.unref()
	if freed {
		t.Fatal("FreeCallback fired before refcount reached zero")
	}
	p.unref()
	if freed {
		t.Fatal("FreeCallback fired with one reference still held")
	}
	p.unref()
	if !freed {
		t.Fatal("FreeCallback did not fire once refcount reached zero")
	}
}

func TestPacketUnrefWithoutFreeCallbackDoesNotPanic(t *testing.T) {
	p := NewPacket([]byte("hello"), 0)
	p.ref()
	p.unref()
	p.unref() // drops to -1, should be a no-op, not a panic
}

func TestPacketLen(t *testing.T) {
	p := NewPacket([]byte("abc"), 0)
	if got := p.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
}

func TestPacketMarkSentSetsFlag(t *testing.T) {
	p := NewPacket(nil, 0)
	p.markSent()
	if p.Flags&PacketFlagSent == 0 {
		t.Error("markSent did not set PacketFlagSent")
	}
}
