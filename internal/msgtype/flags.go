package msgtype

// Direction controls which side of a connection may originate a message of
// a given type (spec §3 MessageType, §8 property 2 "Direction enforcement").
type Direction uint8

const (
	// FromHost means the host is allowed to originate this message type.
	FromHost Direction = 1 << iota
	// FromClient means a client is allowed to originate this message type.
	FromClient

	// HostToClient is shorthand for "only the host sends this".
	HostToClient = FromHost
	// ClientToHost is shorthand for "only a client sends this".
	ClientToHost = FromClient
	// Bidirectional allows either side to originate.
	Bidirectional = FromHost | FromClient
)

// Kind distinguishes the five message shapes the dispatcher routes
// differently (spec §4.3 step 4).
type Kind uint8

const (
	// KindPlain is a peer-level message with no bound-object target.
	KindPlain Kind = iota
	// KindObjectFunction targets an opaque bound-object owner.
	KindObjectFunction
	// KindComponentFunction targets a resolved hierarchy component.
	KindComponentFunction
	// KindDataComponentFunction targets a resolved data-component.
	KindDataComponentFunction
	// KindPropertyStream is a batched property-stream message type.
	KindPropertyStream
)

// Flags is the full flag set a registered MessageType carries: direction
// mask, kind, and the two standalone bits the spec calls out by name.
type Flags struct {
	Direction Direction
	Kind      Kind

	// DynamicSize marks that the compressed payload size depends on the
	// argument values, not just their types (spec §3).
	DynamicSize bool

	// AllowClientToHostWithoutAuthority lets a client send this message for
	// a bound object it does not hold authority over (spec §4.4).
	AllowClientToHostWithoutAuthority bool

	// PropagateClientToClient marks a propagated property that the host
	// must relay to every other connected client after applying it
	// (spec §4.6 receive pass).
	PropagateClientToClient bool
}

// IsObjectFunction reports whether dispatch must resolve a bound object
// before building the argument register file (spec §4.3 step 3).
func (f Flags) IsObjectFunction() bool {
	return f.Kind == KindObjectFunction || f.Kind == KindComponentFunction || f.Kind == KindDataComponentFunction
}
