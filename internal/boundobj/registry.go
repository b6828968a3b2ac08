// Package boundobj implements the bound-object registry: the mapping from
// a persistent GUID and from a session-scoped BoundObjectIdentifier to an
// opaque owner handle, plus the per-object authority bitmask and delegation
// map (spec §3 "BoundObject", §4.4 "Authority").
package boundobj

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/ident"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
)

// ErrNotBound indicates the identifier names no live bound object (spec §4.3
// edge case: "Bound object does not exist").
var ErrNotBound = errors.New("boundobj: not bound")

// ErrAlreadyBound indicates a persistent GUID is already bound.
var ErrAlreadyBound = errors.New("boundobj: already bound")

// OwnerKind tags which scene-side shape an OwnerHandle resolves to, so
// dispatch can route to the right argument-assembly path (spec §4.3 step 4,
// §9 "Opaque owner handles").
type OwnerKind uint8

const (
	// OwnerPlainObject is a bare engine object with no component identity.
	OwnerPlainObject OwnerKind = iota
	// OwnerComponent is a hierarchy component.
	OwnerComponent
	// OwnerDataComponent is a data-component attached to a hierarchy
	// component.
	OwnerDataComponent
)

// OwnerHandle is the tagged variant over the permitted owner kinds -- the
// Go stand-in for the source's AnyView (pointer + type tag) described in
// spec §9.
type OwnerHandle struct {
	Kind  OwnerKind
	Value any
}

// Destroying reports whether the owner's liveness check fails -- any owner
// value satisfying this interface can mark itself torn down without the
// registry needing to know its concrete type (spec §4.3 edge case:
// "owning component is flagged destroying").
type Destroying interface {
	Destroying() bool
}

// record is one registry entry.
type record struct {
	owner OwnerHandle
	guid  uuid.UUID // zero UUID if this object has no persistent identity

	// hostAuthoritative is true when the host holds authority. When false,
	// delegate names the client holding it (spec §3 "BoundObject").
	hostAuthoritative bool
	delegate          netid.ClientIdentifier

	// localAuthority is set on a ClientPeer's own registry by
	// GrantLocalAuthority/RevokeLocalAuthority, tracking whether this client
	// currently holds authority over its own entry for id (spec §4.4, client
	// view -- the host's hostAuthoritative/delegate pair answers a different
	// question: who among potentially many clients holds it).
	localAuthority bool
}

// Registry is the per-peer bound-object table. The same type serves both
// host and client; which side's `m_boundObjectAuthorityMask` bit it tracks
// depends on whether the peer itself is the host (see peer.HostPeer /
// peer.ClientPeer).
type Registry struct {
	mu      sync.RWMutex
	pool    *ident.Pool
	byID    map[netid.BoundObjectIdentifier]*record
	byGUID  map[uuid.UUID]netid.BoundObjectIdentifier
	pending map[uuid.UUID][]func(netid.BoundObjectIdentifier)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		pool:    ident.NewPool(),
		byID:    make(map[netid.BoundObjectIdentifier]*record),
		byGUID:  make(map[uuid.UUID]netid.BoundObjectIdentifier),
		pending: make(map[uuid.UUID][]func(netid.BoundObjectIdentifier)),
	}
}

// Bind allocates a fresh BoundObjectIdentifier for owner, authoritative to
// the host by default (spec §3: "the host is authoritative by default").
// If guid is non-nil, it is recorded as the object's persistent identity and
// any resolver staged via StageResolver fires immediately.
func (r *Registry) Bind(owner OwnerHandle, guid uuid.UUID) (netid.BoundObjectIdentifier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if guid != uuid.Nil {
		if _, exists := r.byGUID[guid]; exists {
			return netid.InvalidBoundObject, ErrAlreadyBound
		}
	}

	raw, err := r.pool.Allocate()
	if err != nil {
		return netid.InvalidBoundObject, err
	}
	id := netid.BoundObjectIdentifier(raw)
	r.byID[id] = &record{owner: owner, guid: guid, hostAuthoritative: true}
	if guid != uuid.Nil {
		r.byGUID[guid] = id
		r.fireResolversLocked(guid, id)
	}
	return id, nil
}

// BindAt installs owner at an externally assigned identifier -- used on the
// client when the host's ObjectBound message names the id directly.
func (r *Registry) BindAt(id netid.BoundObjectIdentifier, owner OwnerHandle, guid uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = &record{owner: owner, guid: guid, hostAuthoritative: true}
	if guid != uuid.Nil {
		r.byGUID[guid] = id
		r.fireResolversLocked(guid, id)
	}
}

// StageResolver registers a callback to fire with the BoundObjectIdentifier
// once guid is bound, for a caller that wants to bind before the host's
// identifier has arrived (spec §6 "BindObject(persistentGuid, object,
// callback)"). If guid is already bound, the callback fires immediately.
func (r *Registry) StageResolver(guid uuid.UUID, cb func(netid.BoundObjectIdentifier)) {
	r.mu.Lock()
	if id, ok := r.byGUID[guid]; ok {
		r.mu.Unlock()
		cb(id)
		return
	}
	r.pending[guid] = append(r.pending[guid], cb)
	r.mu.Unlock()
}

// fireResolversLocked must be called with mu held.
func (r *Registry) fireResolversLocked(guid uuid.UUID, id netid.BoundObjectIdentifier) {
	cbs := r.pending[guid]
	delete(r.pending, guid)
	for _, cb := range cbs {
		cb(id)
	}
}

// Unbind releases id and forgets any persistent-GUID mapping for it.
func (r *Registry) Unbind(id netid.BoundObjectIdentifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotBound
	}
	delete(r.byID, id)
	if rec.guid != uuid.Nil {
		delete(r.byGUID, rec.guid)
	}
	return r.pool.Release(ident.ID(id))
}

// Lookup resolves id to its owner handle. Returns ErrNotBound if id is
// unknown or its owner reports itself as destroying (spec §4.3 edge case).
func (r *Registry) Lookup(id netid.BoundObjectIdentifier) (OwnerHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return OwnerHandle{}, ErrNotBound
	}
	if d, ok := rec.owner.Value.(Destroying); ok && d.Destroying() {
		return OwnerHandle{}, ErrNotBound
	}
	return rec.owner, nil
}

// LookupByGUID resolves a persistent GUID to its current session identifier.
func (r *Registry) LookupByGUID(guid uuid.UUID) (netid.BoundObjectIdentifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byGUID[guid]
	return id, ok
}

// GUIDOf returns the persistent GUID bound to id, if any.
func (r *Registry) GUIDOf(id netid.BoundObjectIdentifier) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok || rec.guid == uuid.Nil {
		return uuid.Nil, false
	}
	return rec.guid, true
}

// All returns every currently bound (id, guid) pair with a persistent
// identity, for the batched handshake's ObjectBoundMessage enumeration
// (spec §4.5 step 3).
func (r *Registry) All() []struct {
	ID   netid.BoundObjectIdentifier
	GUID uuid.UUID
} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]struct {
		ID   netid.BoundObjectIdentifier
		GUID uuid.UUID
	}, 0, len(r.byGUID))
	for guid, id := range r.byGUID {
		out = append(out, struct {
			ID   netid.BoundObjectIdentifier
			GUID uuid.UUID
		}{ID: id, GUID: guid})
	}
	return out
}
