package enet

// bandwidth.go implements §4.7's host-wide fair-share bandwidth throttle,
// adapted from the iterative peer-removal algorithm in ENet's
// enet_host_bandwidth_throttle: peers whose declared incoming/outgoing
// bandwidth is below an equal split get exactly what they declared: the
// leftover is redistributed evenly among the rest, repeating until no
// further peer falls below the shrinking equal share.

// throttleBandwidth recomputes every connected peer's PacketThrottleLimit
// from the Host's OutgoingBandwidth budget, and (if recalculateLimits is
// set) renegotiates each peer's incoming-bandwidth share via
// BANDWIDTH_LIMIT commands. It is a no-op until hostBandwidthThrottleInterval
// has elapsed since the last call.
func (h *Host) throttleBandwidth() {
	elapsed := h.serviceTime - h.bandwidthThrottleEpoch
	if elapsed < hostBandwidthThrottleInterval {
		return
	}
	h.bandwidthThrottleEpoch = h.serviceTime

	connected := h.connectedPeers()
	if len(connected) == 0 {
		return
	}

	dataTotal := ^uint64(0)
	bandwidth := ^uint64(0)
	if h.OutgoingBandwidth != 0 {
		dataTotal = 0
		bandwidth = uint64(h.OutgoingBandwidth) * uint64(elapsed) / 1000
		for _, p := range connected {
			dataTotal += uint64(p.OutgoingDataTotal)
		}
	}

	throttled := make(map[int]bool)
	peersRemaining := len(connected)
	needsAdjustment := h.OutgoingBandwidth != 0

	for peersRemaining > 0 && needsAdjustment {
		needsAdjustment = false

		var throttle uint64 = PeerPacketThrottleScale
		if dataTotal > bandwidth {
			throttle = bandwidth * PeerPacketThrottleScale / dataTotal
		}

		for _, p := range connected {
			if throttled[p.IncomingPeerID] || p.IncomingBandwidth == 0 {
				continue
			}
			peerBandwidth := uint64(p.IncomingBandwidth) * uint64(elapsed) / 1000
			if throttle*uint64(p.OutgoingDataTotal) <= peerBandwidth*PeerPacketThrottleScale {
				continue
			}

			limit := peerBandwidth * PeerPacketThrottleScale / uint64(p.OutgoingDataTotal)
			if limit == 0 {
				limit = 1
			}
			p.PacketThrottleLimit = uint32(limit)
			if p.PacketThrottle > p.PacketThrottleLimit {
				p.PacketThrottle = p.PacketThrottleLimit
			}
			p.OutgoingDataTotal = 0
			p.IncomingDataTotal = 0

			throttled[p.IncomingPeerID] = true
			needsAdjustment = true
			peersRemaining--
			if bandwidth > peerBandwidth {
				bandwidth -= peerBandwidth
			} else {
				bandwidth = 0
			}
			if dataTotal > peerBandwidth {
				dataTotal -= peerBandwidth
			} else {
				dataTotal = 0
			}
		}
	}

	if peersRemaining > 0 {
		var throttle uint32 = PeerPacketThrottleScale
		if dataTotal > bandwidth {
			throttle = uint32(bandwidth * PeerPacketThrottleScale / dataTotal)
		}
		for _, p := range connected {
			if throttled[p.IncomingPeerID] {
				continue
			}
			p.PacketThrottleLimit = throttle
			if p.PacketThrottle > p.PacketThrottleLimit {
				p.PacketThrottle = p.PacketThrottleLimit
			}
			p.OutgoingDataTotal = 0
			p.IncomingDataTotal = 0
		}
	}

	if h.recalculateBandwidthLimits {
		h.recalculateIncomingLimits(connected)
	}
}

// recalculateIncomingLimits mirrors the outgoing pass for the Host's
// IncomingBandwidth budget and informs every connected peer of the result
// via a BANDWIDTH_LIMIT command, matching host.cpp's trailing loop.
func (h *Host) recalculateIncomingLimits(connected []*Peer) {
	h.recalculateBandwidthLimits = false

	exempt := make(map[int]bool)
	var bandwidthLimit uint32
	if h.IncomingBandwidth != 0 {
		peersRemaining := len(connected)
		bandwidth := h.IncomingBandwidth
		needsAdjustment := true
		for peersRemaining > 0 && needsAdjustment {
			needsAdjustment = false
			bandwidthLimit = bandwidth / uint32(peersRemaining)
			for _, p := range connected {
				if exempt[p.IncomingPeerID] {
					continue
				}
				if p.OutgoingBandwidth > 0 && p.OutgoingBandwidth >= bandwidthLimit {
					continue
				}
				exempt[p.IncomingPeerID] = true
				needsAdjustment = true
				peersRemaining--
				bandwidth -= p.OutgoingBandwidth
			}
		}
	}

	for _, p := range connected {
		outgoingBandwidth := h.OutgoingBandwidth
		incomingBandwidth := bandwidthLimit
		if exempt[p.IncomingPeerID] {
			incomingBandwidth = p.OutgoingBandwidth
		}
		p.queueOutgoing(setupCommand{
			opcode:      CommandBandwidthLimit,
			channelID:   channelIDSystem,
			acknowledge: true,
			payload: encodeBE(bandwidthLimitPayload{
				IncomingBandwidth: incomingBandwidth,
				OutgoingBandwidth: outgoingBandwidth,
			}),
		})
	}
}

func (h *Host) connectedPeers() []*Peer {
	var out []*Peer
	for _, p := range h.peers {
		if p != nil && (p.State == StateConnected || p.State == StateDisconnectLater) {
			out = append(out, p)
		}
	}
	return out
}
