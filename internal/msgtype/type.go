package msgtype

import (
	"github.com/google/uuid"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
)

// ValueSource supplies the current value of one property of one bound
// object, for a KindPropertyStream MessageType's outbound encode pass. Its
// implementation belongs to whatever owns the reflected type's live data --
// the entity/component scene graph, which this module treats as an external
// collaborator consumed only through OwnerHandle (spec §1) -- so the
// networking core never reads a property value itself, it only asks for one
// through this interface.
type ValueSource interface {
	PropertyValue(boundObject netid.BoundObjectIdentifier, propertyIndex int) any
}

// Registers is the six-slot heterogeneous argument register file the
// dispatcher fills before invoking a trampoline (spec §4.3 step 4: "R0..R5").
// Which slots are populated, and with what, depends on the MessageType's
// Kind -- see the peer package's dispatch routing for the exact layout per
// kind. Keeping the registers as `any` here (rather than a stronger type
// per kind) avoids an import cycle back to the peer package, which owns the
// concrete peer/bound-object/component types that end up in the slots.
type Registers [6]any

// Trampoline invokes a registered function or property-stream handler with
// a filled Registers. It returns an error only for truly unexpected
// conditions; malformed input is rejected by the dispatcher before the
// trampoline is ever called (spec §4.3 edge cases).
type Trampoline func(Registers) error

// MessageType is an immutable, once-registered wire schema: direction
// flags, argument list, and a dispatch trampoline (spec §3 "MessageType").
type MessageType struct {
	ID Identifier

	// FunctionGUID stably fingerprints the reflected function or property
	// group this MessageType was generated from. It is how both peers agree
	// they mean the same message across a reconnect, even though the
	// Identifier itself is only stable within one session.
	FunctionGUID uuid.UUID

	Flags Flags

	// Arguments is the ordered argument list for a function MessageType.
	// Empty for property-stream types, whose payload shape is described by
	// Properties instead.
	Arguments []Argument

	// Trampoline dispatches a fully decoded call. Nil iff SendOnly is true
	// (spec invariant: "every registered MessageType has a non-null
	// dispatch trampoline OR is explicitly marked unhandled").
	Trampoline Trampoline

	// SendOnly marks a MessageType this peer only ever sends, never
	// receives -- e.g. a client-authored event the host never echoes back.
	SendOnly bool

	// TypeGUID is the owning reflected type's GUID, set only for
	// KindPropertyStream message types.
	TypeGUID uuid.UUID

	// Properties lists the propagated properties carried by a
	// KindPropertyStream message type, in local-index order (index 0 is bit
	// 0 of the property mask, spec §4.6).
	Properties []PropertyDescriptor

	// Values reads current property values for the outbound encode pass,
	// set only for KindPropertyStream types this peer originates sends for.
	// Nil on a peer that only ever receives this type (e.g. a client for a
	// host-to-client-only stream).
	Values ValueSource
}

// PropertyDescriptor names one propagated property within a property-stream
// MessageType.
type PropertyDescriptor struct {
	GUID     uuid.UUID
	Name     string
	Argument Argument
	// PropagateClientToClient mirrors Flags.PropagateClientToClient but is
	// tracked per property since a type can mix properties with different
	// relay policies.
	PropagateClientToClient bool
}

// FixedCompressedBits returns the fixed bit width of the type's payload
// excluding the MessageTypeIdentifier header, or -1 if any argument is
// dynamically sized. Every argument is sized with FixedBits(0); the scope
// parameter is not consulted.
func (mt *MessageType) FixedCompressedBits(scope func(Flags) int) int {
	if mt == nil {
		return -1
	}
	total := 0
	for _, arg := range mt.Arguments {
		bits := arg.FixedBits(0)
		if bits < 0 {
			return -1
		}
		total += bits
	}
	_ = scope
	return total
}

// IsDynamicSize reports whether any argument of mt requires
// DynamicBits to size, i.e. the payload length varies per call.
func (mt *MessageType) IsDynamicSize() bool {
	for _, arg := range mt.Arguments {
		if arg.FixedBits(0) < 0 {
			return true
		}
	}
	return false
}

// MaxPropertyCount is the largest number of properties a single
// property-stream MessageType may declare; it sizes propstream.PropertyMask.
const MaxPropertyCount = 256

// PropertyMaskBits returns the bit width of the property dirty-mask for a
// type declaring propertyCount properties: one bit per property, i.e. the
// bit width of (1<<propertyCount)-1. The result is capped at 64, so a type
// with more than 64 properties still gets a 64-bit mask.
func PropertyMaskBits(propertyCount int) int {
	if propertyCount <= 0 {
		return 1
	}
	maxMaskValue := uint64(1)<<uint(propertyCount) - 1
	bits := 0
	for v := maxMaskValue; v > 0; v >>= 1 {
		bits++
	}
	if bits == 0 {
		bits = 1
	}
	return bits
}
