// Package msgtype implements the message-type registry: the mapping from a
// session-scoped MessageTypeIdentifier to the {function GUID, flags,
// argument descriptors, fixed/dynamic size} tuple describing one registered
// remotely invokable function or property-stream type (spec §3, §4.5).
package msgtype

import "github.com/nginetechnologies/sceneri-core-sub009/internal/ident"

// Identifier is a session-unique id for a registered message type. Values
// 0..DefaultCount-1 are protocol-reserved (spec §6); everything above that
// is assigned by Registry.Register.
type Identifier ident.ID

// Invalid is the identifier value meaning "no message type".
const Invalid Identifier = Identifier(ident.Invalid)

// Valid reports whether id is non-zero.
func (id Identifier) Valid() bool { return id != Invalid }

// DefaultMessageType enumerates the protocol-reserved MessageTypeIdentifier
// values (spec §6: "Reserved MessageTypeIdentifier values").
type DefaultMessageType uint32

const (
	LocalPeerConnected DefaultMessageType = iota
	RegisterNewMessageType
	RegisterPropertyStreamMessage
	BatchMessages
	ObjectBound
	ConfirmPropagatedPropertyReceipt
	BoundObjectAuthorityGivenToLocalClient
	BoundObjectAuthorityRevokedFromLocalClient
	RequestForwardMessageToOtherClients
	RequestForwardMessageToAllRemotes
	ReceivedForwardedMessage
	RequestTimeSync
	ReceivedTimeSyncResponse

	// DefaultCount is the number of protocol-reserved message types.
	DefaultCount
)

// Identifier returns the reserved Identifier for a DefaultMessageType. These
// occupy slots 0..DefaultCount-1 directly, bypassing the generational pool:
// they are fixed for the lifetime of the process, never released, and must
// be identical across every peer without negotiation.
func (d DefaultMessageType) Identifier() Identifier { return Identifier(d) }

// String returns the protocol message's name, for logging.
func (d DefaultMessageType) String() string {
	switch d {
	case LocalPeerConnected:
		return "LocalPeerConnected"
	case RegisterNewMessageType:
		return "RegisterNewMessageType"
	case RegisterPropertyStreamMessage:
		return "RegisterPropertyStreamMessage"
	case BatchMessages:
		return "BatchMessages"
	case ObjectBound:
		return "ObjectBound"
	case ConfirmPropagatedPropertyReceipt:
		return "ConfirmPropagatedPropertyReceipt"
	case BoundObjectAuthorityGivenToLocalClient:
		return "BoundObjectAuthorityGivenToLocalClient"
	case BoundObjectAuthorityRevokedFromLocalClient:
		return "BoundObjectAuthorityRevokedFromLocalClient"
	case RequestForwardMessageToOtherClients:
		return "RequestForwardMessageToOtherClients"
	case RequestForwardMessageToAllRemotes:
		return "RequestForwardMessageToAllRemotes"
	case ReceivedForwardedMessage:
		return "ReceivedForwardedMessage"
	case RequestTimeSync:
		return "RequestTimeSync"
	case ReceivedTimeSyncResponse:
		return "ReceivedTimeSyncResponse"
	default:
		return "Unknown"
	}
}

// IsProtocol reports whether id names a built-in protocol message rather
// than a user-registered function or property stream.
func IsProtocol(id Identifier) bool { return uint32(id) < uint32(DefaultCount) }

// BitsForIdentifier is the fixed compressed bit width of a MessageTypeIdentifier
// on the wire. 12 bits supports up to 4095 concurrently registered types,
// matching the scale the spec's example uses for this field (spec §2).
const BitsForIdentifier = 12
