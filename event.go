package enet

// EventType is the result kind of Host.Service (§6).
type EventType uint8

const (
	EventNone EventType = iota
	EventConnect
	EventDisconnect
	EventReceive
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventReceive:
		return "receive"
	default:
		return "none"
	}
}

// Event is produced by a single Host.Service call. Peer is nil only for
// EventNone. Packet is non-nil only for EventReceive. Data carries the
// connect/disconnect user data word (spec §3's "eventData").
type Event struct {
	Type      EventType
	Peer      *Peer
	ChannelID uint8
	Packet    *Packet
	Data      uint32
}
