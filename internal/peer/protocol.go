package peer

import (
	"github.com/google/uuid"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/msgtype"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/transport"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/wire"
)

// protocolDirection gives each DefaultMessageType its fixed Direction (spec
// §6 reserved MessageTypeIdentifier table).
var protocolDirection = map[msgtype.DefaultMessageType]msgtype.Direction{
	msgtype.LocalPeerConnected:                         msgtype.FromHost,
	msgtype.RegisterNewMessageType:                     msgtype.FromHost,
	msgtype.RegisterPropertyStreamMessage:               msgtype.FromHost,
	msgtype.BatchMessages:                              msgtype.Bidirectional,
	msgtype.ObjectBound:                                msgtype.FromHost,
	msgtype.ConfirmPropagatedPropertyReceipt:            msgtype.Bidirectional,
	msgtype.BoundObjectAuthorityGivenToLocalClient:      msgtype.FromHost,
	msgtype.BoundObjectAuthorityRevokedFromLocalClient:  msgtype.FromHost,
	msgtype.RequestForwardMessageToOtherClients:         msgtype.FromClient,
	msgtype.RequestForwardMessageToAllRemotes:           msgtype.FromClient,
	msgtype.ReceivedForwardedMessage:                    msgtype.FromHost,
	msgtype.RequestTimeSync:                             msgtype.FromClient,
	msgtype.ReceivedTimeSyncResponse:                    msgtype.FromHost,
}

// protocolHandlers is implemented by ClientPeer and HostPeer to receive
// built-in protocol dispatch callbacks. Methods irrelevant to one side (e.g.
// a HostPeer never receives LocalPeerConnected) are still implemented, as
// no-ops that log if ever invoked -- the direction table above should make
// them unreachable in practice.
type protocolHandlers interface {
	handleLocalPeerConnected(view *wire.BitView) error
	handleRegisterNewMessageType(view *wire.BitView) error
	handleRegisterPropertyStreamMessage(view *wire.BitView) error
	handleBatchMessages(remote transport.PeerHandle, channel transport.Channel, sender netid.ClientIdentifier, fromHost bool, view *wire.BitView) error
	handleObjectBound(view *wire.BitView) error
	handleConfirmPropagatedPropertyReceipt(sender netid.ClientIdentifier, view *wire.BitView) error
	handleBoundObjectAuthorityGivenToLocalClient(view *wire.BitView) error
	handleBoundObjectAuthorityRevokedFromLocalClient(view *wire.BitView) error
	handleRequestForwardMessageToOtherClients(sender netid.ClientIdentifier, remote transport.PeerHandle, channel transport.Channel, view *wire.BitView) error
	handleRequestForwardMessageToAllRemotes(sender netid.ClientIdentifier, remote transport.PeerHandle, channel transport.Channel, view *wire.BitView) error
	handleReceivedForwardedMessage(remote transport.PeerHandle, channel transport.Channel, view *wire.BitView) error
	handleRequestTimeSync(sender netid.ClientIdentifier, view *wire.BitView) error
	handleReceivedTimeSyncResponse(view *wire.BitView) error
}

// registerProtocolHandlers installs RegisterReserved entries for every
// DefaultMessageType, each trampoline unwrapping the common register-file
// layout and forwarding to handlers (spec §4.5, §6).
func registerProtocolHandlers(p *Peer, handlers protocolHandlers) {
	reserve := func(d msgtype.DefaultMessageType, tramp msgtype.Trampoline) {
		p.messageTypes.RegisterReserved(d.Identifier(), &msgtype.MessageType{
			Flags:      msgtype.Flags{Direction: protocolDirection[d], Kind: msgtype.KindPlain},
			Trampoline: tramp,
		})
	}

	regs := func(r msgtype.Registers) (remote transport.PeerHandle, channel transport.Channel, sender netid.ClientIdentifier, view *wire.BitView, fromHost bool) {
		remote, _ = r[1].(transport.PeerHandle)
		channel, _ = r[2].(transport.Channel)
		sender, _ = r[3].(netid.ClientIdentifier)
		view, _ = r[4].(*wire.BitView)
		fromHost, _ = r[5].(bool)
		return
	}

	reserve(msgtype.LocalPeerConnected, func(r msgtype.Registers) error {
		_, _, _, view, _ := regs(r)
		return handlers.handleLocalPeerConnected(view)
	})
	reserve(msgtype.RegisterNewMessageType, func(r msgtype.Registers) error {
		_, _, _, view, _ := regs(r)
		return handlers.handleRegisterNewMessageType(view)
	})
	reserve(msgtype.RegisterPropertyStreamMessage, func(r msgtype.Registers) error {
		_, _, _, view, _ := regs(r)
		return handlers.handleRegisterPropertyStreamMessage(view)
	})
	reserve(msgtype.BatchMessages, func(r msgtype.Registers) error {
		remote, channel, sender, view, fromHost := regs(r)
		return handlers.handleBatchMessages(remote, channel, sender, fromHost, view)
	})
	reserve(msgtype.ObjectBound, func(r msgtype.Registers) error {
		_, _, _, view, _ := regs(r)
		return handlers.handleObjectBound(view)
	})
	reserve(msgtype.ConfirmPropagatedPropertyReceipt, func(r msgtype.Registers) error {
		_, _, sender, view, _ := regs(r)
		return handlers.handleConfirmPropagatedPropertyReceipt(sender, view)
	})
	reserve(msgtype.BoundObjectAuthorityGivenToLocalClient, func(r msgtype.Registers) error {
		_, _, _, view, _ := regs(r)
		return handlers.handleBoundObjectAuthorityGivenToLocalClient(view)
	})
	reserve(msgtype.BoundObjectAuthorityRevokedFromLocalClient, func(r msgtype.Registers) error {
		_, _, _, view, _ := regs(r)
		return handlers.handleBoundObjectAuthorityRevokedFromLocalClient(view)
	})
	reserve(msgtype.RequestForwardMessageToOtherClients, func(r msgtype.Registers) error {
		remote, channel, sender, view, _ := regs(r)
		return handlers.handleRequestForwardMessageToOtherClients(sender, remote, channel, view)
	})
	reserve(msgtype.RequestForwardMessageToAllRemotes, func(r msgtype.Registers) error {
		remote, channel, sender, view, _ := regs(r)
		return handlers.handleRequestForwardMessageToAllRemotes(sender, remote, channel, view)
	})
	reserve(msgtype.ReceivedForwardedMessage, func(r msgtype.Registers) error {
		remote, channel, _, view, _ := regs(r)
		return handlers.handleReceivedForwardedMessage(remote, channel, view)
	})
	reserve(msgtype.RequestTimeSync, func(r msgtype.Registers) error {
		_, _, sender, view, _ := regs(r)
		return handlers.handleRequestTimeSync(sender, view)
	})
	reserve(msgtype.ReceivedTimeSyncResponse, func(r msgtype.Registers) error {
		_, _, _, view, _ := regs(r)
		return handlers.handleReceivedTimeSyncResponse(view)
	})
}

// --- Wire encodings for the reserved protocol messages (spec §6) -----------

func packHeader(view *wire.BitView, id msgtype.Identifier) bool {
	return view.PackAndSkip(uint64(id), msgtype.BitsForIdentifier)
}

// localPeerConnectedBits is the fixed payload size of LocalPeerConnected:
// {clientIdentifier, clientBoundObjectIdentifier, hostTimestamp:i64}.
const localPeerConnectedBits = netid.BitsForClientIdentifier + netid.BitsForBoundObjectIdentifier + wire.BitsUint64

func encodeLocalPeerConnected(clientID netid.ClientIdentifier, selfObj netid.BoundObjectIdentifier, hostTimestampNs int64) *wire.BitView {
	v := newMessageView(msgtype.BitsForIdentifier + localPeerConnectedBits)
	packHeader(v, msgtype.LocalPeerConnected.Identifier())
	v.PackAndSkip(uint64(clientID), netid.BitsForClientIdentifier)
	v.PackAndSkip(uint64(selfObj), netid.BitsForBoundObjectIdentifier)
	wire.PackInt64(v, hostTimestampNs)
	return v
}

func decodeLocalPeerConnected(view *wire.BitView) (clientID netid.ClientIdentifier, selfObj netid.BoundObjectIdentifier, hostTimestampNs int64, ok bool) {
	c, ok1 := view.UnpackAndSkip(netid.BitsForClientIdentifier)
	o, ok2 := view.UnpackAndSkip(netid.BitsForBoundObjectIdentifier)
	t, ok3 := wire.UnpackInt64(view)
	if !ok1 || !ok2 || !ok3 {
		return 0, 0, 0, false
	}
	return netid.ClientIdentifier(c), netid.BoundObjectIdentifier(o), t, true
}

// flagsBits is the wire width of a packed msgtype.Flags: 2 bits Direction, 3
// bits Kind, 1 bit AllowClientToHostWithoutAuthority, 1 bit
// PropagateClientToClient (spec §3 "MessageType" -- Direction and Kind must
// travel with the handshake's type registration, not just the Identifier and
// argument layout, or the receiving side's own direction/authority checks
// have nothing to check against).
const flagsBits = wire.BitsUint8

func packFlags(v *wire.BitView, f msgtype.Flags) bool {
	raw := uint64(f.Direction) & 0x3
	raw |= (uint64(f.Kind) & 0x7) << 2
	if f.AllowClientToHostWithoutAuthority {
		raw |= 1 << 5
	}
	if f.PropagateClientToClient {
		raw |= 1 << 6
	}
	return v.PackAndSkip(raw, flagsBits)
}

func unpackFlags(v *wire.BitView) (msgtype.Flags, bool) {
	raw, ok := v.UnpackAndSkip(flagsBits)
	if !ok {
		return msgtype.Flags{}, false
	}
	return msgtype.Flags{
		Direction:                         msgtype.Direction(raw & 0x3),
		Kind:                              msgtype.Kind((raw >> 2) & 0x7),
		AllowClientToHostWithoutAuthority: raw&(1<<5) != 0,
		PropagateClientToClient:           raw&(1<<6) != 0,
	}, true
}

// registerNewMessageTypeBits: {messageTypeIdentifier, functionGuid, flags, fixedCompressedDataSizeInBits:u16}.
const registerNewMessageTypeBits = msgtype.BitsForIdentifier + wire.BitsGUID + flagsBits + wire.BitsUint16

func encodeRegisterNewMessageType(id msgtype.Identifier, functionGUID uuid.UUID, flags msgtype.Flags, fixedBits int) *wire.BitView {
	v := newMessageView(msgtype.BitsForIdentifier + registerNewMessageTypeBits)
	packHeader(v, msgtype.RegisterNewMessageType.Identifier())
	v.PackAndSkip(uint64(id), msgtype.BitsForIdentifier)
	wire.PackGUID(v, functionGUID)
	packFlags(v, flags)
	size := fixedBits
	if size < 0 {
		size = 0xFFFF // sentinel: dynamically sized, no fixed width
	}
	wire.PackUint16(v, uint16(size))
	return v
}

func decodeRegisterNewMessageType(view *wire.BitView) (id msgtype.Identifier, functionGUID uuid.UUID, flags msgtype.Flags, fixedBits int, ok bool) {
	raw, ok1 := view.UnpackAndSkip(msgtype.BitsForIdentifier)
	g, ok2 := wire.UnpackGUID(view)
	f, ok3 := unpackFlags(view)
	sz, ok4 := wire.UnpackUint16(view)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, uuid.Nil, msgtype.Flags{}, 0, false
	}
	bits := int(sz)
	if sz == 0xFFFF {
		bits = -1
	}
	return msgtype.Identifier(raw), g, f, bits, true
}

// registerPropertyStreamHeaderBits: {messageTypeIdentifier, typeGuid, flags, propertyCount:u16}.
const registerPropertyStreamHeaderBits = msgtype.BitsForIdentifier + wire.BitsGUID + flagsBits + wire.BitsUint16

func encodeRegisterPropertyStreamMessage(id msgtype.Identifier, typeGUID uuid.UUID, flags msgtype.Flags, propertyGUIDs []uuid.UUID) *wire.BitView {
	bitLen := msgtype.BitsForIdentifier + registerPropertyStreamHeaderBits + len(propertyGUIDs)*wire.BitsGUID
	v := newMessageView(bitLen)
	packHeader(v, msgtype.RegisterPropertyStreamMessage.Identifier())
	v.PackAndSkip(uint64(id), msgtype.BitsForIdentifier)
	wire.PackGUID(v, typeGUID)
	packFlags(v, flags)
	wire.PackUint16(v, uint16(len(propertyGUIDs)))
	for _, g := range propertyGUIDs {
		wire.PackGUID(v, g)
	}
	return v
}

func decodeRegisterPropertyStreamMessage(view *wire.BitView) (id msgtype.Identifier, typeGUID uuid.UUID, flags msgtype.Flags, propertyGUIDs []uuid.UUID, ok bool) {
	raw, ok1 := view.UnpackAndSkip(msgtype.BitsForIdentifier)
	g, ok2 := wire.UnpackGUID(view)
	f, ok3 := unpackFlags(view)
	count, ok4 := wire.UnpackUint16(view)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, uuid.Nil, msgtype.Flags{}, nil, false
	}
	out := make([]uuid.UUID, count)
	for i := range out {
		pg, ok := wire.UnpackGUID(view)
		if !ok {
			return 0, uuid.Nil, msgtype.Flags{}, nil, false
		}
		out[i] = pg
	}
	return msgtype.Identifier(raw), g, f, out, true
}

// objectBoundBits: {boundObjectIdentifier, persistentObjectGuid}.
const objectBoundBits = netid.BitsForBoundObjectIdentifier + wire.BitsGUID

func encodeObjectBound(id netid.BoundObjectIdentifier, persistentGUID uuid.UUID) *wire.BitView {
	v := newMessageView(msgtype.BitsForIdentifier + objectBoundBits)
	packHeader(v, msgtype.ObjectBound.Identifier())
	v.PackAndSkip(uint64(id), netid.BitsForBoundObjectIdentifier)
	wire.PackGUID(v, persistentGUID)
	return v
}

func decodeObjectBound(view *wire.BitView) (id netid.BoundObjectIdentifier, persistentGUID uuid.UUID, ok bool) {
	raw, ok1 := view.UnpackAndSkip(netid.BitsForBoundObjectIdentifier)
	g, ok2 := wire.UnpackGUID(view)
	if !ok1 || !ok2 {
		return 0, uuid.Nil, false
	}
	return netid.BoundObjectIdentifier(raw), g, true
}

// confirmPropagatedPropertyReceiptBits: {sequenceNumber:u16, messageTypeIdentifier}.
const confirmPropagatedPropertyReceiptBits = wire.BitsSequenceNumber + msgtype.BitsForIdentifier

func encodeConfirmPropagatedPropertyReceipt(seq uint16, messageTypeID msgtype.Identifier) *wire.BitView {
	v := newMessageView(msgtype.BitsForIdentifier + confirmPropagatedPropertyReceiptBits)
	packHeader(v, msgtype.ConfirmPropagatedPropertyReceipt.Identifier())
	v.PackAndSkip(uint64(seq), wire.BitsSequenceNumber)
	v.PackAndSkip(uint64(messageTypeID), msgtype.BitsForIdentifier)
	return v
}

func decodeConfirmPropagatedPropertyReceipt(view *wire.BitView) (seq uint16, messageTypeID msgtype.Identifier, ok bool) {
	s, ok1 := view.UnpackAndSkip(wire.BitsSequenceNumber)
	m, ok2 := view.UnpackAndSkip(msgtype.BitsForIdentifier)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return uint16(s), msgtype.Identifier(m), true
}

// authorityMessageBits: {boundObjectIdentifier}, shared by both Given/Revoked.
const authorityMessageBits = netid.BitsForBoundObjectIdentifier

func encodeAuthorityMessage(d msgtype.DefaultMessageType, id netid.BoundObjectIdentifier) *wire.BitView {
	v := newMessageView(msgtype.BitsForIdentifier + authorityMessageBits)
	packHeader(v, d.Identifier())
	v.PackAndSkip(uint64(id), netid.BitsForBoundObjectIdentifier)
	return v
}

func decodeAuthorityMessage(view *wire.BitView) (id netid.BoundObjectIdentifier, ok bool) {
	raw, ok := view.UnpackAndSkip(netid.BitsForBoundObjectIdentifier)
	return netid.BoundObjectIdentifier(raw), ok
}

// requestTimeSyncBits: {hostTimestamp T1, clientReceivedTimestamp T2, clientSentTimestamp T3}.
const requestTimeSyncBits = wire.BitsUint64 * 3

func encodeRequestTimeSync(t1, t2, t3 int64) *wire.BitView {
	v := newMessageView(msgtype.BitsForIdentifier + requestTimeSyncBits)
	packHeader(v, msgtype.RequestTimeSync.Identifier())
	wire.PackInt64(v, t1)
	wire.PackInt64(v, t2)
	wire.PackInt64(v, t3)
	return v
}

func decodeRequestTimeSync(view *wire.BitView) (t1, t2, t3 int64, ok bool) {
	a, ok1 := wire.UnpackInt64(view)
	b, ok2 := wire.UnpackInt64(view)
	c, ok3 := wire.UnpackInt64(view)
	if !ok1 || !ok2 || !ok3 {
		return 0, 0, 0, false
	}
	return a, b, c, true
}

// receivedTimeSyncResponseBits: {timeOffsetInNanoseconds:i64}.
const receivedTimeSyncResponseBits = wire.BitsUint64

func encodeReceivedTimeSyncResponse(offsetNs int64) *wire.BitView {
	v := newMessageView(msgtype.BitsForIdentifier + receivedTimeSyncResponseBits)
	packHeader(v, msgtype.ReceivedTimeSyncResponse.Identifier())
	wire.PackInt64(v, offsetNs)
	return v
}

func decodeReceivedTimeSyncResponse(view *wire.BitView) (offsetNs int64, ok bool) {
	return wire.UnpackInt64(view)
}

// encodeBatch wraps the concatenation of already-encoded sub-messages'
// bits into one BatchMessages envelope (spec §4.5 "The batch header is a
// BatchMessage{messageCount}").
func encodeBatch(messages []*wire.BitView) *wire.BitView {
	totalBits := wire.BitsUint16
	for _, m := range messages {
		totalBits += m.BitPosition()
	}
	v := newMessageView(msgtype.BitsForIdentifier + totalBits)
	packHeader(v, msgtype.BatchMessages.Identifier())
	v.PackAndSkip(uint64(len(messages)), wire.BitsUint16)
	for _, m := range messages {
		copyBits(v, m)
	}
	return v
}

// copyBitRange appends bits [start, end) of src onto dst.
func copyBitRange(dst, src *wire.BitView, start, end int) {
	reader := wire.NewView(src.Bytes(), end)
	for i := 0; i < start; i++ {
		reader.UnpackAndSkip(1)
	}
	for i := start; i < end; i++ {
		bit, _ := reader.UnpackAndSkip(1)
		dst.PackAndSkip(bit, 1)
	}
}

// copyBits appends every bit written so far in src (from bit 0 to its
// current cursor) onto dst -- correct when src is a freshly encoded message
// whose cursor sits at its own end, e.g. encodeBatch's sub-messages.
func copyBits(dst, src *wire.BitView) {
	copyBitRange(dst, src, 0, src.BitPosition())
}

// copyRemainingBits appends the UNREAD remainder of src, from its current
// cursor to its end, onto dst. Used when src is a view HandleMessage has
// already partially consumed (the forwarding relay path): only the unread
// remainder is the wrapped message's actual payload, not the bits already
// spent on the envelope that carried it here.
func copyRemainingBits(dst, src *wire.BitView) {
	copyBitRange(dst, src, src.BitPosition(), src.BitLen())
}

// forwardedMessageBits has no fixed header beyond the wrapped message's own
// bits; wrapForward copies inner's unread remainder verbatim (spec §4.7 step
// 3 "wrap the original bits into a new ForwardedMessage packet"). Callers
// whose inner view is freshly encoded (cursor already at its own end, so
// nothing would be "remaining") must pass a view rewound to bit 0 first.
func wrapForward(d msgtype.DefaultMessageType, inner *wire.BitView) *wire.BitView {
	innerBits := inner.BitLen() - inner.BitPosition()
	v := newMessageView(msgtype.BitsForIdentifier + innerBits)
	packHeader(v, d.Identifier())
	copyRemainingBits(v, inner)
	return v
}
