package msgtype

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownIdentifier indicates a MessageTypeIdentifier with no registered
// MessageType -- the dispatcher's standard response is to reject the
// message, not disconnect the peer (spec §4.3 step 1, §7).
var ErrUnknownIdentifier = errors.New("msgtype: unknown message type identifier")

// ErrDuplicateFunction indicates Register was called twice for the same
// function GUID.
var ErrDuplicateFunction = errors.New("msgtype: function already registered")

// ErrRegistryExhausted indicates every Identifier slot up to BitsForIdentifier's
// range has been handed out.
var ErrRegistryExhausted = errors.New("msgtype: registry exhausted")

// maxIdentifier is the highest Identifier value representable in
// BitsForIdentifier bits.
const maxIdentifier = 1<<BitsForIdentifier - 1

// Registry maps MessageTypeIdentifier to MessageType, and function GUID to
// Identifier, on one peer (spec §3 "Registries on the Peer").
//
// Message types are registered during host construction (from reflected
// functions/properties) and, for scripted types, later at runtime; once
// registered they live until peer teardown (spec §3 lifecycles), so unlike
// BoundObjectIdentifier there is no release/generation churn here -- a
// plain monotonically increasing counter is enough.
type Registry struct {
	mu         sync.RWMutex
	byID       map[Identifier]*MessageType
	byFuncGUID map[uuid.UUID]Identifier
	next       uint32
}

// NewRegistry returns an empty Registry. The first custom Identifier issued
// is DefaultCount, immediately after the protocol-reserved range.
func NewRegistry() *Registry {
	return &Registry{
		byID:       make(map[Identifier]*MessageType),
		byFuncGUID: make(map[uuid.UUID]Identifier),
		next:       uint32(DefaultCount),
	}
}

// Register assigns the next free Identifier to mt (whose ID field is
// overwritten) and indexes it by function GUID. Returns
// ErrDuplicateFunction if mt.FunctionGUID is already registered.
func (r *Registry) Register(mt *MessageType) (Identifier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byFuncGUID[mt.FunctionGUID]; exists {
		return Invalid, fmt.Errorf("register %s: %w", mt.FunctionGUID, ErrDuplicateFunction)
	}
	if r.next > maxIdentifier {
		return Invalid, ErrRegistryExhausted
	}

	id := Identifier(r.next)
	r.next++
	mt.ID = id
	r.byID[id] = mt
	r.byFuncGUID[mt.FunctionGUID] = id
	return id, nil
}

// RegisterReserved installs a protocol (DefaultMessageType) handler at its
// fixed Identifier. Used once during Peer construction to wire the
// built-in handshake/forwarding/time-sync handlers.
func (r *Registry) RegisterReserved(id Identifier, mt *MessageType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mt.ID = id
	r.byID[id] = mt
}

// RegisterAt installs mt at an externally agreed Identifier -- used on the
// client side of the registration handshake, where the host has already
// chosen the id (spec §4.5 RegisterMessageTypeMessage/RegisterPropertyStreamMessage).
func (r *Registry) RegisterAt(id Identifier, mt *MessageType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mt.ID = id
	r.byID[id] = mt
	if mt.FunctionGUID != uuid.Nil {
		r.byFuncGUID[mt.FunctionGUID] = id
	}
	if uint32(id) >= r.next {
		r.next = uint32(id) + 1
	}
	return nil
}

// Unbind removes whatever MessageType is registered at id, including its
// function-GUID index entry if any. Used when a handshake-learned Identifier
// supersedes a MessageType a peer had registered locally at a different id
// (spec §4.5: the host's chosen id is authoritative once learned).
func (r *Registry) Unbind(id Identifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mt, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	if mt.FunctionGUID != uuid.Nil && r.byFuncGUID[mt.FunctionGUID] == id {
		delete(r.byFuncGUID, mt.FunctionGUID)
	}
}

// Lookup returns the MessageType registered at id.
func (r *Registry) Lookup(id Identifier) (*MessageType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mt, ok := r.byID[id]
	return mt, ok
}

// FindIdentifier returns the Identifier a function GUID was assigned,
// locally, by either side of the registration handshake (spec §3:
// "FindMessageIdentifier<Function>() works locally").
func (r *Registry) FindIdentifier(functionGUID uuid.UUID) (Identifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byFuncGUID[functionGUID]
	return id, ok
}

// All returns every registered MessageType, including protocol-reserved
// ones, for enumeration during the batched handshake (spec §4.5).
func (r *Registry) All() []*MessageType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*MessageType, 0, len(r.byID))
	for _, mt := range r.byID {
		out = append(out, mt)
	}
	return out
}

// Count returns the number of registered message types, including
// protocol-reserved ones.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
