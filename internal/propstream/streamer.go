package propstream

import (
	"sync"
	"time"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/msgtype"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
)

// PerPeerPropagatedPropertyData is the propagated-property state kept for
// one remote peer: on the host, one per connected client; on the client,
// the single instance addressing the host (spec §3
// "PerPeerPropagatedPropertyData").
type PerPeerPropagatedPropertyData struct {
	mu    sync.Mutex
	types map[msgtype.Identifier]*TypeInfo
}

func newPerPeerData() *PerPeerPropagatedPropertyData {
	return &PerPeerPropagatedPropertyData{types: make(map[msgtype.Identifier]*TypeInfo)}
}

// HasPendingDataToSend reports whether any TypeInfo for this peer currently
// has dirty state.
func (p *PerPeerPropagatedPropertyData) HasPendingDataToSend() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.types) > 0
}

// typeInfo returns (creating if necessary) the TypeInfo for messageTypeID.
// Lock order is always (PerPeerPropagatedPropertyData.mu, TypeInfo.mu), both
// here and in every other method that touches both -- matching the spec's
// documented lock order so invalidation from any thread can never deadlock
// against the tick thread's send pass (spec §4.7 suspension-points table).
func (p *PerPeerPropagatedPropertyData) typeInfo(messageTypeID msgtype.Identifier) *TypeInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	ti, ok := p.types[messageTypeID]
	if !ok {
		ti = newTypeInfo()
		p.types[messageTypeID] = ti
	}
	return ti
}

// dropIfEmpty removes messageTypeID's TypeInfo if it still has no dirty
// state -- called after OnConfirmationReceipt reports the window as fully
// drained.
func (p *PerPeerPropagatedPropertyData) dropIfEmpty(messageTypeID msgtype.Identifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ti, ok := p.types[messageTypeID]
	if !ok {
		return
	}
	ti.mu.Lock()
	empty := !ti.changed && len(ti.objects) == 0
	ti.mu.Unlock()
	if empty {
		delete(p.types, messageTypeID)
	}
}

// Streamer owns every PerPeerPropagatedPropertyData for one local Peer,
// keyed by remote client (the host keys by the client that owns each
// instance; a ClientPeer uses the single key netid.InvalidClient to mean
// "the host").
type Streamer struct {
	mu    sync.Mutex
	peers map[netid.ClientIdentifier]*PerPeerPropagatedPropertyData
}

// NewStreamer returns an empty Streamer.
func NewStreamer() *Streamer {
	return &Streamer{peers: make(map[netid.ClientIdentifier]*PerPeerPropagatedPropertyData)}
}

// AddPeer creates PerPeerPropagatedPropertyData for a newly connected peer
// (spec §3 lifecycle: "created on host on client connect").
func (s *Streamer) AddPeer(peer netid.ClientIdentifier) *PerPeerPropagatedPropertyData {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := newPerPeerData()
	s.peers[peer] = d
	return d
}

// RemovePeer destroys a disconnected peer's propagated-property state
// (spec §3 lifecycle: "destroyed on disconnect").
func (s *Streamer) RemovePeer(peer netid.ClientIdentifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, peer)
}

// Peer returns the PerPeerPropagatedPropertyData for peer, or nil if none is
// registered.
func (s *Streamer) Peer(peer netid.ClientIdentifier) *PerPeerPropagatedPropertyData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[peer]
}

// Peers returns every currently tracked remote client identifier.
func (s *Streamer) Peers() []netid.ClientIdentifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]netid.ClientIdentifier, 0, len(s.peers))
	for id := range s.peers {
		out = append(out, id)
	}
	return out
}

// Invalidate marks propertyMask dirty for boundObject under messageTypeID,
// for the given peer (spec §4.6 "Invalidate(messageTypeId, boundObjectId,
// propertyMask)").
func (s *Streamer) Invalidate(peer netid.ClientIdentifier, messageTypeID msgtype.Identifier, boundObject netid.BoundObjectIdentifier, mask PropertyMask) {
	d := s.Peer(peer)
	if d == nil {
		return
	}
	d.typeInfo(messageTypeID).invalidate(boundObject, mask)
}

// FlushProperties forces messageTypeID's next due-check to pass immediately
// for peer (spec §4.6 "FlushProperties(messageTypeId)").
func (s *Streamer) FlushProperties(peer netid.ClientIdentifier, messageTypeID msgtype.Identifier) {
	d := s.Peer(peer)
	if d == nil {
		return
	}
	d.typeInfo(messageTypeID).flush()
}

// PendingSend describes one TypeInfo that is due to be considered for
// sending this tick, with a point-in-time snapshot of its dirty object
// masks (spec §4.6 send pass).
type PendingSend struct {
	Peer          netid.ClientIdentifier
	MessageType   msgtype.Identifier
	Changed       bool
	Objects       map[netid.BoundObjectIdentifier]PropertyMask
	typeInfo      *TypeInfo
}

// DuePending scans every peer's TypeInfo entries and returns the ones whose
// rate-limit period has elapsed, for the tick loop's outbound pass
// (spec §4.3 "Outbound property streaming").
func (s *Streamer) DuePending(now time.Time, updatePeriod time.Duration) []PendingSend {
	s.mu.Lock()
	snapshot := make(map[netid.ClientIdentifier]*PerPeerPropagatedPropertyData, len(s.peers))
	for id, d := range s.peers {
		snapshot[id] = d
	}
	s.mu.Unlock()

	var out []PendingSend
	for peer, d := range snapshot {
		d.mu.Lock()
		entries := make(map[msgtype.Identifier]*TypeInfo, len(d.types))
		for id, ti := range d.types {
			entries[id] = ti
		}
		d.mu.Unlock()

		for mt, ti := range entries {
			if !ti.due(now, updatePeriod) {
				continue
			}
			changed, objects := ti.snapshotForSend()
			out = append(out, PendingSend{Peer: peer, MessageType: mt, Changed: changed, Objects: objects, typeInfo: ti})
		}
	}
	return out
}

// AllocateSequence allocates the next sequence number for a pending send,
// or ErrWindowFull if the window is saturated (spec §4.6 step 2).
func (p PendingSend) AllocateSequence() (uint16, error) {
	return p.typeInfo.allocateSequence()
}

// LastSentSequence returns the sequence to resend when Changed is false and
// the caller chooses to keep the ack pipeline alive.
func (p PendingSend) LastSentSequence() uint16 {
	return p.typeInfo.lastSentSequence()
}

// MarkSent records a successful transmission of seq at now.
func (p PendingSend) MarkSent(now time.Time, seq uint16) {
	p.typeInfo.markSent(now, seq)
}

// OnConfirmationReceipt applies an acknowledgement for messageTypeID from
// peer and reports the outcome (spec §4.6 "ProcessConfirmationReceipt").
func (s *Streamer) OnConfirmationReceipt(peer netid.ClientIdentifier, messageTypeID msgtype.Identifier, sequence uint16) AckOutcome {
	d := s.Peer(peer)
	if d == nil {
		return Rejected
	}
	d.mu.Lock()
	ti, ok := d.types[messageTypeID]
	d.mu.Unlock()
	if !ok {
		return Rejected
	}

	outcome, empty := ti.acknowledge(sequence)
	if empty {
		d.dropIfEmpty(messageTypeID)
	}
	return outcome
}
