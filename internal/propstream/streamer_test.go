package propstream_test

import (
	"testing"
	"time"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/msgtype"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/propstream"
)

func TestInvalidateMarksPeerPending(t *testing.T) {
	s := propstream.NewStreamer()
	peer := netid.ClientIdentifier(1)
	data := s.AddPeer(peer)

	var mask propstream.PropertyMask
	mask.Set(2)
	s.Invalidate(peer, msgtype.Identifier(100), netid.BoundObjectIdentifier(1), mask)

	if !data.HasPendingDataToSend() {
		t.Fatal("expected pending data after Invalidate")
	}
}

func TestDuePendingRespectsUpdatePeriod(t *testing.T) {
	s := propstream.NewStreamer()
	peer := netid.ClientIdentifier(1)
	s.AddPeer(peer)

	var mask propstream.PropertyMask
	mask.Set(0)
	mt := msgtype.Identifier(100)
	obj := netid.BoundObjectIdentifier(1)
	s.Invalidate(peer, mt, obj, mask)

	now := time.Unix(1000, 0)
	due := s.DuePending(now, time.Second)
	if len(due) != 1 {
		t.Fatalf("expected 1 due entry, got %d", len(due))
	}
	if !due[0].Changed {
		t.Fatal("expected Changed true on first due check")
	}
	if _, ok := due[0].Objects[obj]; !ok {
		t.Fatal("expected dirty object in snapshot")
	}

	seq, err := due[0].AllocateSequence()
	if err != nil {
		t.Fatal(err)
	}
	due[0].MarkSent(now, seq)

	// Immediately after sending, the type should not be due again within
	// the update period.
	due2 := s.DuePending(now.Add(100*time.Millisecond), time.Second)
	if len(due2) != 0 {
		t.Fatalf("expected no due entries before update period elapses, got %d", len(due2))
	}

	due3 := s.DuePending(now.Add(2*time.Second), time.Second)
	if len(due3) != 1 {
		t.Fatalf("expected 1 due entry after update period elapses, got %d", len(due3))
	}
	if due3[0].Changed {
		t.Fatal("expected Changed false on resend pass with no new dirtiness")
	}
}

func TestOnConfirmationReceiptDrainsEmptyTypeInfo(t *testing.T) {
	s := propstream.NewStreamer()
	peer := netid.ClientIdentifier(1)
	data := s.AddPeer(peer)

	var mask propstream.PropertyMask
	mask.Set(0)
	mt := msgtype.Identifier(100)
	s.Invalidate(peer, mt, netid.BoundObjectIdentifier(1), mask)

	now := time.Unix(1000, 0)
	due := s.DuePending(now, time.Second)
	seq, err := due[0].AllocateSequence()
	if err != nil {
		t.Fatal(err)
	}
	due[0].MarkSent(now, seq)

	outcome := s.OnConfirmationReceipt(peer, mt, seq)
	if outcome != propstream.AcceptedLastSentSequence {
		t.Fatalf("outcome = %v, want AcceptedLastSentSequence", outcome)
	}
	if data.HasPendingDataToSend() {
		t.Fatal("expected no pending data after full ack with no new dirtiness")
	}
}

func TestOnConfirmationReceiptRetainsDirtyWhenChangedAgain(t *testing.T) {
	s := propstream.NewStreamer()
	peer := netid.ClientIdentifier(1)
	data := s.AddPeer(peer)

	var mask propstream.PropertyMask
	mask.Set(0)
	mt := msgtype.Identifier(100)
	obj := netid.BoundObjectIdentifier(1)
	s.Invalidate(peer, mt, obj, mask)

	now := time.Unix(1000, 0)
	due := s.DuePending(now, time.Second)
	seq, err := due[0].AllocateSequence()
	if err != nil {
		t.Fatal(err)
	}
	due[0].MarkSent(now, seq)

	// New dirtiness arrives after the send but before the ack.
	var mask2 propstream.PropertyMask
	mask2.Set(1)
	s.Invalidate(peer, mt, obj, mask2)

	outcome := s.OnConfirmationReceipt(peer, mt, seq)
	if outcome != propstream.AcceptedLastSentSequence {
		t.Fatalf("outcome = %v, want AcceptedLastSentSequence", outcome)
	}
	if !data.HasPendingDataToSend() {
		t.Fatal("expected pending data retained: new dirtiness arrived after the acked send")
	}
}

func TestRemovePeerDropsState(t *testing.T) {
	s := propstream.NewStreamer()
	peer := netid.ClientIdentifier(1)
	s.AddPeer(peer)
	s.RemovePeer(peer)
	if s.Peer(peer) != nil {
		t.Fatal("expected peer data removed")
	}
}
