// Package netid holds the two generational identifier kinds that are shared
// across package boundaries -- ClientIdentifier and BoundObjectIdentifier --
// so that internal/boundobj, internal/propstream, and internal/peer can all
// refer to the same concrete types without creating import cycles between
// them (spec §3 "Identifiers").
package netid

import "github.com/nginetechnologies/sceneri-core-sub009/internal/ident"

// ClientIdentifier is a session-unique client number, host-assigned at
// connect (spec §3).
type ClientIdentifier ident.ID

// InvalidClient is the identifier value meaning "no client" / "the host
// itself".
const InvalidClient ClientIdentifier = ClientIdentifier(ident.Invalid)

// Valid reports whether id names a real client.
func (id ClientIdentifier) Valid() bool { return id != InvalidClient }

// Index and Generation expose the packed (index, generation) pair, e.g. for
// logging or for re-deriving the underlying ident.ID.
func (id ClientIdentifier) Index() uint32      { return ident.ID(id).Index() }
func (id ClientIdentifier) Generation() uint32 { return ident.ID(id).Generation() }

// BoundObjectIdentifier is a session-unique id for any networked object
// (spec §3).
type BoundObjectIdentifier ident.ID

// InvalidBoundObject is the identifier value meaning "no object".
const InvalidBoundObject BoundObjectIdentifier = BoundObjectIdentifier(ident.Invalid)

// Valid reports whether id names a real bound object.
func (id BoundObjectIdentifier) Valid() bool { return id != InvalidBoundObject }

func (id BoundObjectIdentifier) Index() uint32      { return ident.ID(id).Index() }
func (id BoundObjectIdentifier) Generation() uint32 { return ident.ID(id).Generation() }

// BitsForClientIdentifier and BitsForBoundObjectIdentifier are the fixed
// compressed bit widths used on the wire for each identifier kind
// (spec §4.1: "BoundObjectIdentifier may be 20 bits"). 32 bits is generous
// headroom over the packed (index, generation) representation; a real
// deployment would tune these down once the target session scale is known.
const (
	BitsForClientIdentifier      = 32
	BitsForBoundObjectIdentifier = 32
)
