package enet

// fragmentAssembly tracks one in-progress fragmented send on a channel
// (§4.8). It is keyed in Channel.reliableFragments/unreliableFragments by
// the SEND_FRAGMENT command's StartSequenceNumber.
type fragmentAssembly struct {
	buffer    []byte
	bitmap    []uint32
	remaining uint32
}

func newFragmentBitmap(count uint32) []uint32 {
	words := (count + 31) / 32
	return make([]uint32, words)
}

// receiveFragment folds one SEND_FRAGMENT or SEND_UNRELIABLE_FRAGMENT
// chunk into the assembly for startSequence, allocating the assembly on
// the first fragment seen. It returns the completed buffer once every
// fragment has arrived, and removes the assembly from the channel.
func (ch *Channel) receiveFragment(reliable bool, startSequence uint16, fragmentNumber, fragmentCount, totalLength, fragmentOffset uint32, data []byte) ([]byte, bool, error) {
	table := ch.unreliableFragments
	if reliable {
		table = ch.reliableFragments
	}

	asm, ok := table[startSequence]
	if !ok {
		if fragmentNumber >= fragmentCount {
			return nil, false, wrapf(ErrMalformedDatagram, "fragment number %d >= count %d", fragmentNumber, fragmentCount)
		}
		if fragmentCount > ProtocolMaximumFragmentCount {
			return nil, false, wrapf(ErrMalformedDatagram, "fragment count %d exceeds maximum", fragmentCount)
		}
		asm = &fragmentAssembly{
			buffer:    make([]byte, totalLength),
			bitmap:    newFragmentBitmap(fragmentCount),
			remaining: fragmentCount,
		}
		table[startSequence] = asm
	}

	if fragmentOffset+uint32(len(data)) > uint32(len(asm.buffer)) {
		return nil, false, wrapf(ErrMalformedDatagram, "fragment offset %d+%d exceeds total length %d", fragmentOffset, len(data), len(asm.buffer))
	}

	word := fragmentNumber / 32
	bit := uint32(1) << (fragmentNumber % 32)
	if int(word) >= len(asm.bitmap) {
		return nil, false, wrapf(ErrMalformedDatagram, "fragment index %d out of range", fragmentNumber)
	}
	if asm.bitmap[word]&bit != 0 {
		// duplicate fragment, already accounted for
		return nil, false, nil
	}
	asm.bitmap[word] |= bit
	copy(asm.buffer[fragmentOffset:], data)
	asm.remaining--

	if asm.remaining > 0 {
		return nil, false, nil
	}
	delete(table, startSequence)
	return asm.buffer, true, nil
}
