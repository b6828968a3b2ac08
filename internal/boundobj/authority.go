package boundobj

import (
	"errors"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
)

// ErrNotHostAuthoritative is returned when a delegate/revoke is attempted
// with callerIsHost false -- only the host may delegate or revoke (spec §4.4: "only the host may grant
// or revoke authority").
var ErrNotHostAuthoritative = errors.New("boundobj: caller does not hold host authority")

// HasAuthorityOfBoundObject reports whether holder currently holds authority
// over id: the host by default, or the delegate client if one has been
// granted (spec §4.4 "HasAuthorityOfBoundObject").
//
// holder identifies the caller's own role: netid.InvalidClient means "I am
// the host", any other value means "I am that client".
func (r *Registry) HasAuthorityOfBoundObject(id netid.BoundObjectIdentifier, holder netid.ClientIdentifier) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return false
	}
	if rec.hostAuthoritative {
		return !holder.Valid()
	}
	return holder.Valid() && rec.delegate == holder
}

// CanHandleBoundObjectMessage reports whether a message arriving from
// sender, targeting id, should be accepted: sender must currently hold
// authority, OR the message is host-originated control traffic accepted
// unconditionally (spec §4.4 "CanHandleBoundObjectMessage", §7 edge case
// "Message arrives from a client lacking current authority").
func (r *Registry) CanHandleBoundObjectMessage(id netid.BoundObjectIdentifier, sender netid.ClientIdentifier, fromHost bool) bool {
	if fromHost {
		return true
	}
	return r.HasAuthorityOfBoundObject(id, sender)
}

// DelegateBoundObjectAuthority grants authority over id to newClient,
// replacing any client that currently holds it. Sending the revoke to a
// previous holder before the give, on the same ordered channel, is the
// caller's job -- the registry itself does not re-derive channel ordering
// and does not require a prior RevokeBoundObjectAuthority call.
//
// callerIsHost must be true; only the host may delegate.
func (r *Registry) DelegateBoundObjectAuthority(id netid.BoundObjectIdentifier, newClient netid.ClientIdentifier, callerIsHost bool) error {
	if !callerIsHost {
		return ErrNotHostAuthoritative
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotBound
	}
	rec.hostAuthoritative = false
	rec.delegate = newClient
	return nil
}

// RevokeBoundObjectAuthority restores host authority over id, clearing any
// delegate. callerIsHost must be true.
func (r *Registry) RevokeBoundObjectAuthority(id netid.BoundObjectIdentifier, callerIsHost bool) error {
	if !callerIsHost {
		return ErrNotHostAuthoritative
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotBound
	}
	rec.hostAuthoritative = true
	rec.delegate = netid.InvalidClient
	return nil
}

// GrantLocalAuthority marks id authoritative in this client's own registry,
// in response to a BoundObjectAuthorityGivenToLocalClient message. A
// ClientPeer's registry only ever holds entries relevant to itself, so there
// is no other client identifier to record here (spec §4.4, client view).
func (r *Registry) GrantLocalAuthority(id netid.BoundObjectIdentifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotBound
	}
	rec.localAuthority = true
	return nil
}

// RevokeLocalAuthority clears the flag set by GrantLocalAuthority, in
// response to a BoundObjectAuthorityRevokedFromLocalClient message.
func (r *Registry) RevokeLocalAuthority(id netid.BoundObjectIdentifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotBound
	}
	rec.localAuthority = false
	return nil
}

// HasLocalAuthority reports whether this client's registry currently
// believes it holds authority over id.
func (r *Registry) HasLocalAuthority(id netid.BoundObjectIdentifier) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	return ok && rec.localAuthority
}

// DelegateOf returns the client currently holding delegated authority over
// id, or (InvalidClient, false) if the host holds authority or id is
// unknown.
func (r *Registry) DelegateOf(id netid.BoundObjectIdentifier) (netid.ClientIdentifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok || rec.hostAuthoritative {
		return netid.InvalidClient, false
	}
	return rec.delegate, true
}

// ClearClientAuthority revokes authority from every object currently
// delegated to client, restoring host authority -- called on client
// disconnect (spec §4.4 edge case: "authoritative client disconnects
// without relinquishing authority").
func (r *Registry) ClearClientAuthority(client netid.ClientIdentifier) []netid.BoundObjectIdentifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected []netid.BoundObjectIdentifier
	for id, rec := range r.byID {
		if !rec.hostAuthoritative && rec.delegate == client {
			rec.hostAuthoritative = true
			rec.delegate = netid.InvalidClient
			affected = append(affected, id)
		}
	}
	return affected
}
