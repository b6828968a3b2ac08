package propstream

import (
	"sync"
	"time"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
)

// TypeInfo is the per-(peer, MessageType) propagated-property state: the
// dirty flag, last-send timestamp, sequence window, and per-object dirty
// masks (spec §3 "TypeInfo").
type TypeInfo struct {
	mu           sync.Mutex
	changed      bool
	lastSendTime time.Time
	window       SendWindow
	objects      map[netid.BoundObjectIdentifier]*PropertyMask
}

func newTypeInfo() *TypeInfo {
	return &TypeInfo{objects: make(map[netid.BoundObjectIdentifier]*PropertyMask)}
}

// invalidate ORs propertyMask into the dirty bits recorded for boundObject
// and marks the type changed. Must be called with mu NOT already held.
func (t *TypeInfo) invalidate(boundObject netid.BoundObjectIdentifier, mask PropertyMask) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.objects[boundObject]
	if !ok {
		m = &PropertyMask{}
		t.objects[boundObject] = m
	}
	m.Merge(mask)
	t.changed = true
}

// flush zeroes lastSendTime so the next due-check fires immediately
// (spec §4.6 "FlushProperties ... zeroes lastSendTime").
func (t *TypeInfo) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSendTime = time.Time{}
}

// due reports whether this TypeInfo is ready to be considered for sending
// at now, given updatePeriod (spec §4.6 send pass step 1).
func (t *TypeInfo) due(now time.Time, updatePeriod time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.lastSendTime) >= updatePeriod
}

// snapshotForSend returns the changed flag (false means nothing new went
// dirty since the last send, so only a keep-alive resend of the last sent
// sequence is due) along with a point-in-time copy of the dirty object map. It does not mutate state; callers apply
// markSent after a successful encode+transmit.
func (t *TypeInfo) snapshotForSend() (changed bool, objects map[netid.BoundObjectIdentifier]PropertyMask) {
	t.mu.Lock()
	defer t.mu.Unlock()
	objects = make(map[netid.BoundObjectIdentifier]PropertyMask, len(t.objects))
	for id, m := range t.objects {
		objects[id] = *m
	}
	return t.changed, objects
}

// markSent records that seq went out at now, clearing changed. The dirty
// object masks are intentionally left untouched -- they are cleared only on
// acknowledgement (spec §4.6: "objectPropertyMaskMap is NOT cleared on
// send").
func (t *TypeInfo) markSent(now time.Time, seq uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSendTime = now
	t.changed = false
	t.window.OnSequenceSent(seq)
}

// allocateSequence allocates the next send sequence, or ErrWindowFull.
func (t *TypeInfo) allocateSequence() (uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window.GetNewSequenceNumber()
}

// lastSentSequence returns the most recently transmitted sequence, for a
// keep-alive resend of unchanged data.
func (t *TypeInfo) lastSentSequence() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window.LastSentSequence()
}

// acknowledge applies a confirmation and, per outcome, clears drained dirty
// state. Returns the outcome and whether the TypeInfo is now empty (no
// changed flag, no dirty objects) and should be dropped by the caller.
func (t *TypeInfo) acknowledge(seq uint16) (outcome AckOutcome, empty bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	outcome = t.window.OnSequenceAcknowledged(seq)
	switch outcome {
	case Rejected:
		return outcome, false
	case AcceptedLastSentSequence:
		if !t.changed {
			// The peer has now confirmed receipt of every bit that was
			// dirty as of the send that carried lastSentSequence, and
			// nothing has gone dirty since -- safe to drop the dirty
			// state entirely (spec §4.6: "if changed is false, remove
			// the TypeInfo entry entirely").
			for id := range t.objects {
				delete(t.objects, id)
			}
			return outcome, true
		}
		return outcome, false
	default:
		return outcome, false
	}
}
