package enet

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Wire payload structs, one per opcode in §6's table. Field order matches
// the wire layout exactly; encode/decode always uses big-endian, matching
// every multi-byte field in the spec.

type ackPayload struct {
	ReceivedReliableSequenceNumber uint16
	ReceivedSentTime                uint16
}

type connectPayload struct {
	OutgoingPeerID           uint16
	IncomingSessionID        uint8
	OutgoingSessionID        uint8
	MTU                      uint32
	WindowSize               uint32
	ChannelCount             uint32
	IncomingBandwidth        uint32
	OutgoingBandwidth        uint32
	PacketThrottleInterval   uint32
	PacketThrottleAcceleration uint32
	PacketThrottleDeceleration uint32
	ConnectID                uint32
	Data                     uint32
}

type verifyConnectPayload struct {
	OutgoingPeerID           uint16
	IncomingSessionID        uint8
	OutgoingSessionID        uint8
	MTU                      uint32
	WindowSize               uint32
	ChannelCount             uint32
	IncomingBandwidth        uint32
	OutgoingBandwidth        uint32
	PacketThrottleInterval   uint32
	PacketThrottleAcceleration uint32
	PacketThrottleDeceleration uint32
	ConnectID                uint32
}

type disconnectPayload struct {
	Data uint32
}

// PING carries no payload beyond CommandHeader.

type sendReliablePayload struct {
	DataLength uint16
	// followed by DataLength bytes
}

type sendUnreliablePayload struct {
	UnreliableSequenceNumber uint16
	DataLength               uint16
	// followed by DataLength bytes
}

type sendFragmentPayload struct {
	StartSequenceNumber uint16
	DataLength          uint16
	FragmentCount       uint32
	FragmentNumber      uint32
	TotalLength         uint32
	FragmentOffset      uint32
	// followed by DataLength bytes
}

type sendUnsequencedPayload struct {
	UnsequencedGroup uint16
	DataLength       uint16
	// followed by DataLength bytes
}

type bandwidthLimitPayload struct {
	IncomingBandwidth uint32
	OutgoingBandwidth uint32
}

type throttleConfigurePayload struct {
	PacketThrottleInterval     uint32
	PacketThrottleAcceleration uint32
	PacketThrottleDeceleration uint32
}

// wireSize returns the fixed size of a decoded struct, matching
// binary.Size for these flat, fixed-width structs.
func wireSize(v interface{}) int {
	n := binary.Size(v)
	if n < 0 {
		panic(errors.Errorf("enet: non-fixed-size wire struct %T", v))
	}
	return n
}

func encodeBE(v interface{}) []byte {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.BigEndian, v); err != nil {
		panic(errors.Wrapf(err, "enet: encode %T", v))
	}
	return buf.Bytes()
}

func decodeBE(data []byte, v interface{}) error {
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.BigEndian, v); err != nil {
		return errors.Wrapf(ErrMalformedDatagram, "decode %T: %v", v, err)
	}
	return nil
}
