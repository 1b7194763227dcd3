package enet

import "testing"

func TestTimeLessWrapsAt32Bits(t *testing.T) {
	if !timeLess(0, 1) {
		t.Error("0 should be less than 1")
	}
	if timeLess(1, 0) {
		t.Error("1 should not be less than 0")
	}
	// Just past the wrap: 0 is "after" 0xFFFFFFFF.
	if timeLess(0, 0xFFFFFFFF) {
		t.Error("0 should not be less than the value just before it across the wrap")
	}
	if !timeLess(0xFFFFFFFF, 0) {
		t.Error("the value just before the wrap should be less than 0")
	}
}

func TestTimeDifferenceIsSymmetric(t *testing.T) {
	if got := timeDifference(100, 80); got != 20 {
		t.Errorf("timeDifference(100,80) = %d, want 20", got)
	}
	if got := timeDifference(80, 100); got != 20 {
		t.Errorf("timeDifference(80,100) = %d, want 20", got)
	}
}

func TestSeq16LessWrapsAt16Bits(t *testing.T) {
	if !seq16Less(0, 1) {
		t.Error("0 should be less than 1")
	}
	if seq16Less(1, 0) {
		t.Error("1 should not be less than 0")
	}
	if !seq16Less(0xFFFF, 0) {
		t.Error("0xFFFF should be less than 0 across the wrap")
	}
	if seq16Less(0, 0xFFFF) {
		t.Error("0 should not be less than 0xFFFF across the wrap")
	}
}

func TestReliableWindowOf(t *testing.T) {
	if got := reliableWindowOf(0); got != 0 {
		t.Errorf("window of 0 = %d, want 0", got)
	}
	if got := reliableWindowOf(peerReliableWindowSize); got != 1 {
		t.Errorf("window of %d = %d, want 1", peerReliableWindowSize, got)
	}
}

func TestWindowAcceptAcceptsCurrentWindow(t *testing.T) {
	accept, ackable := windowAccept(5, 0)
	if !accept || !ackable {
		t.Errorf("windowAccept(5,0) = (%v,%v), want (true,true)", accept, ackable)
	}
}

func TestWindowAcceptAcceptsRightUpToTheBoundary(t *testing.T) {
	// One window short of the reject boundary is still accepted.
	r := uint16(peerReliableWindowSize * (peerFreeReliableWindows - 2))
	accept, _ := windowAccept(r, 0)
	if !accept {
		t.Errorf("windowAccept(%d, 0) should accept a sequence number just inside the free windows", r)
	}
}

func TestWindowAcceptRejectsTooFarFuture(t *testing.T) {
	// A sequence number peerFreeReliableWindows-1 windows ahead of the
	// expected value has lapped the free-window budget.
	r := uint16(peerReliableWindowSize * (peerFreeReliableWindows - 1))
	accept, _ := windowAccept(r, 0)
	if accept {
		t.Errorf("windowAccept(%d, 0) should reject a sequence number beyond the free windows", r)
	}
}

func TestSequenceLessIsWindowRelative(t *testing.T) {
	base := uint16(10)
	if !sequenceLess(11, 12, base) {
		t.Error("11 should sort before 12 relative to base 10")
	}
	if sequenceLess(12, 11, base) {
		t.Error("12 should not sort before 11 relative to base 10")
	}
}
