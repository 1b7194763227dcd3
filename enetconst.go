package enet

// Command opcodes, matching the low 4 bits of the wire CommandHeader.Command
// byte. ACKNOWLEDGE (bit 7) and UNSEQUENCED (bit 6) are flags layered on top
// of the opcode, not separate values.
const (
	CommandNone                   uint8 = 0
	CommandAcknowledge            uint8 = 1
	CommandConnect                uint8 = 2
	CommandVerifyConnect          uint8 = 3
	CommandDisconnect             uint8 = 4
	CommandPing                   uint8 = 5
	CommandSendReliable           uint8 = 6
	CommandSendUnreliable         uint8 = 7
	CommandSendFragment           uint8 = 8
	CommandSendUnsequenced        uint8 = 9
	CommandBandwidthLimit         uint8 = 10
	CommandThrottleConfigure      uint8 = 11
	CommandSendUnreliableFragment uint8 = 12
	CommandCount                  uint8 = 13

	commandMask  uint8 = 0x0f
	flagAcknowledge uint8 = 1 << 7
	flagUnsequenced uint8 = 1 << 6
)

// Header flags and session bits carried in the high bits of
// ProtocolHeader.PeerID: bits 0-11 are the peer id, bits 12-13 are the
// 2-bit session id, bits 14-15 are the compressed/sent-time flags.
// Checksum presence has no wire bit; it's inferred from host-config
// symmetry, so it is never OR'd into PeerID.
const (
	headerFlagCompressed uint16 = 1 << 14
	headerFlagSentTime   uint16 = 1 << 15
	headerSessionShift          = 12
	headerSessionMask    uint16 = 0x3
	headerPeerIDMask     uint16 = 0x0fff
)

// Packet (application-visible) flags.
const (
	PacketFlagReliable          uint32 = 1 << 0
	PacketFlagUnsequenced       uint32 = 1 << 1
	PacketFlagNoAllocate        uint32 = 1 << 2
	PacketFlagUnreliableFragment uint32 = 1 << 3
	PacketFlagSent              uint32 = 1 << 8
)

// Peer flags.
const (
	peerFlagNeedsDispatch   uint32 = 1 << 0
	peerFlagContinueSending uint32 = 1 << 1
)

// Protocol-wide hard limits (§6).
const (
	ProtocolMinimumMTU            = 576
	ProtocolMaximumMTU            = 4096
	ProtocolMaximumPacketCommands = 32
	ProtocolMinimumWindowSize     = 4096
	ProtocolMaximumWindowSize     = 65536
	ProtocolMinimumChannelCount   = 1
	ProtocolMaximumChannelCount  = 255
	ProtocolMaximumPeerID        = 0x0FFF
	ProtocolMaximumFragmentCount = 1048576

	channelIDSystem uint8 = 0xFF

	peerReliableWindows        = 16
	peerReliableWindowSize     = 4096
	peerFreeReliableWindows    = 16
	peerUnsequencedWindowSize  = 1024
	peerFreeUnsequencedWindows = 16

	peerPacketLossScale = 1 << 16
)

// Defaults (§6).
const (
	PeerDefaultPacketThrottle        = 32
	PeerPacketThrottleScale          = 32
	PeerPacketThrottleCounter        = 7
	PeerDefaultPacketThrottleInterval = 5000
	PeerDefaultPacketThrottleAcceleration = 2
	PeerDefaultPacketThrottleDeceleration = 2
	PeerPingInterval                 = 500
	PeerTimeoutLimit                 = 32
	PeerTimeoutMinimum               = 5000
	PeerTimeoutMaximum               = 30000
	PeerDefaultRoundTripTime         = 500
	PeerWindowSizeScale              = 65536

	HostDefaultMTU                = 1400
	HostDefaultMaximumPacketSize  = 32 * 1024 * 1024
	HostDefaultMaximumWaitingData = 32 * 1024 * 1024

	hostBandwidthThrottleInterval = 1000
	hostSendBufferSize            = 256 * 1024
	hostReceiveBufferSize         = 65536

	wrapTimeHalf int64 = 86400000 // §8 property 7: 24h in ms
)

// Peer connection states (§3).
type PeerState uint8

const (
	StateDisconnected PeerState = iota
	StateConnecting
	StateAcknowledgingConnect
	StateConnectionPending
	StateConnectionSucceeded
	StateConnected
	StateDisconnectLater
	StateDisconnecting
	StateAcknowledgingDisconnect
	StateZombie
)

func (s PeerState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAcknowledgingConnect:
		return "acknowledging-connect"
	case StateConnectionPending:
		return "connection-pending"
	case StateConnectionSucceeded:
		return "connection-succeeded"
	case StateConnected:
		return "connected"
	case StateDisconnectLater:
		return "disconnect-later"
	case StateDisconnecting:
		return "disconnecting"
	case StateAcknowledgingDisconnect:
		return "acknowledging-disconnect"
	case StateZombie:
		return "zombie"
	default:
		return "unknown"
	}
}
