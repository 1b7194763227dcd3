package enet

import "sync"

// Packet is the application-visible buffer. It is reference counted: a
// packet from NewPacket starts at zero, the engine takes one reference per
// OutgoingCommand/IncomingCommand that references it, and FreeCallback (if
// set) runs the instant unref brings the count to zero or below.
type Packet struct {
	mu    sync.Mutex
	Data  []byte
	Flags uint32
	refs  int

	// FreeCallback, if set, is invoked instead of releasing Data when the
	// packet's reference count reaches zero.
	FreeCallback func(*Packet)
}

// NewPacket allocates a Packet the application can hand to Peer.Send or
// Host.Broadcast. data is not copied; the caller must not mutate it after
// submission (spec §5, "Shared resources").
func NewPacket(data []byte, flags uint32) *Packet {
	return &Packet{Data: data, Flags: flags}
}

func (p *Packet) ref() {
	p.mu.Lock()
	p.refs++
	p.mu.Unlock()
}

func (p *Packet) unref() {
	p.mu.Lock()
	p.refs--
	n := p.refs
	p.mu.Unlock()
	if n <= 0 {
		if p.FreeCallback != nil {
			p.FreeCallback(p)
		}
	}
}

func (p *Packet) markSent() {
	p.mu.Lock()
	p.Flags |= PacketFlagSent
	p.mu.Unlock()
}

// Len reports the payload length without racing a concurrent unref.
func (p *Packet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Data)
}
