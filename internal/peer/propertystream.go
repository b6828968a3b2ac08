package peer

import (
	"log/slog"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/msgtype"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/propstream"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/transport"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/wire"
)

// propertyStreamObjectCountBits bounds how many dirty bound objects one
// property-stream message carries (spec §4.6 step 2
// "PropertyStreamMessage{sequenceNumber, perObject[]}").
const propertyStreamObjectCountBits = 16

// maskValue packs the low count bits of mask into a uint64 suitable for
// PackAndSkip. count must be <= 64 -- the protocol-reserved mask width
// already assumes this for any type dense enough to hit the window-size
// concerns this package cares about; a type with more than 64 propagated
// properties needs a wider wire representation this exercise does not add.
func maskValue(mask propstream.PropertyMask, count int) uint64 {
	var v uint64
	for i := 0; i < count && i < 64; i++ {
		if mask.IsSet(i) {
			v |= 1 << uint(i)
		}
	}
	return v
}

// encodePropertyStream packs one due TypeInfo's snapshot into a standalone
// message: header, sequence number, object count, then per dirty object its
// identifier, dirty-property mask, and the current value of every set
// property read through values (spec §4.6 send pass).
func encodePropertyStream(id msgtype.Identifier, seq uint16, objects map[netid.BoundObjectIdentifier]propstream.PropertyMask, properties []msgtype.PropertyDescriptor, values msgtype.ValueSource, scope wire.FlagScope) (*wire.BitView, error) {
	maskBits := msgtype.PropertyMaskBits(len(properties))

	bitLen := msgtype.BitsForIdentifier + wire.BitsSequenceNumber + propertyStreamObjectCountBits
	for objID, mask := range objects {
		bitLen += netid.BitsForBoundObjectIdentifier + maskBits
		for i, prop := range properties {
			if !mask.IsSet(i) {
				continue
			}
			if b := prop.Argument.FixedBits(scope); b >= 0 {
				bitLen += b
			} else if values != nil {
				bitLen += prop.Argument.DynamicBits(values.PropertyValue(objID, i), scope)
			}
		}
	}

	v := newMessageView(bitLen)
	packHeader(v, id)
	v.PackAndSkip(uint64(seq), wire.BitsSequenceNumber)
	v.PackAndSkip(uint64(len(objects)), propertyStreamObjectCountBits)
	for objID, mask := range objects {
		v.PackAndSkip(uint64(objID), netid.BitsForBoundObjectIdentifier)
		v.PackAndSkip(maskValue(mask, len(properties)), maskBits)
		for i, prop := range properties {
			if !mask.IsSet(i) {
				continue
			}
			var val any
			if values != nil {
				val = values.PropertyValue(objID, i)
			}
			if !prop.Argument.Compress(v, val, scope) {
				return nil, ErrMalformed
			}
		}
	}
	return v, nil
}

// DecodedPropertyStream is one decoded property-stream message: its
// sequence number and, per dirty bound object, the decoded value of every
// property whose mask bit was set, keyed by local property index
// (spec §4.6 receive pass).
type DecodedPropertyStream struct {
	Sequence uint16
	Objects  map[netid.BoundObjectIdentifier]map[int]any
}

// DecodePropertyStream decodes a property-stream message's body. view's
// cursor must sit right after the MessageTypeIdentifier header, exactly
// where HandleMessage leaves it. HandleMessage itself calls this as part of
// the built-in receive pass (spec §4.6); it is exported so tests and a
// type's scripting binding can decode the same payload a registered
// trampoline receives already-decoded.
func DecodePropertyStream(view *wire.BitView, properties []msgtype.PropertyDescriptor, scope wire.FlagScope) (DecodedPropertyStream, bool) {
	maskBits := msgtype.PropertyMaskBits(len(properties))

	seqRaw, ok := view.UnpackAndSkip(wire.BitsSequenceNumber)
	if !ok {
		return DecodedPropertyStream{}, false
	}
	count, ok := view.UnpackAndSkip(propertyStreamObjectCountBits)
	if !ok {
		return DecodedPropertyStream{}, false
	}
	if count == 0 {
		// A property-stream message with no dirty objects is malformed --
		// the send pass never emits one (spec §4.6 send pass only fires when
		// changed or a keep-alive resend is due).
		return DecodedPropertyStream{}, false
	}

	out := DecodedPropertyStream{Sequence: uint16(seqRaw), Objects: make(map[netid.BoundObjectIdentifier]map[int]any, count)}
	for n := uint64(0); n < count; n++ {
		raw, ok := view.UnpackAndSkip(netid.BitsForBoundObjectIdentifier)
		if !ok {
			return DecodedPropertyStream{}, false
		}
		objID := netid.BoundObjectIdentifier(raw)

		maskRaw, ok := view.UnpackAndSkip(maskBits)
		if !ok {
			return DecodedPropertyStream{}, false
		}

		vals := make(map[int]any)
		for i, prop := range properties {
			if maskRaw&(1<<uint(i)) == 0 {
				continue
			}
			val, ok := prop.Argument.Decompress(view, scope)
			if !ok {
				return DecodedPropertyStream{}, false
			}
			vals[i] = val
		}
		out.Objects[objID] = vals
	}
	return out, true
}

// propertyStreamReceiver is implemented by ClientPeer and HostPeer to finish
// the receive pass once the core has decoded and accepted an inbound
// property-stream payload: send back a confirmation receipt, and -- host
// only -- relay any PropagateClientToClient properties into every other
// connected client's pending send state (spec §4.6 receive pass).
type propertyStreamReceiver interface {
	confirmPropertyReceipt(sender netid.ClientIdentifier, messageTypeID msgtype.Identifier, seq uint16) error
	relayPropertyStream(sender netid.ClientIdentifier, messageTypeID msgtype.Identifier, properties []msgtype.PropertyDescriptor, decoded DecodedPropertyStream)
}

// handlePropertyStream is the built-in receive pass for a KindPropertyStream
// message: decode, reject an empty payload, apply through the registered
// trampoline if one exists, then send a ConfirmPropagatedPropertyReceipt and
// -- host-side -- relay PropagateClientToClient properties onward. This
// replaces dispatch to a user-supplied trampoline as the sole receive path,
// since a stock peer never registers one (spec §4.6 "Receive pass").
func (p *Peer) handlePropertyStream(mt *msgtype.MessageType, id msgtype.Identifier, remote transport.PeerHandle, channel transport.Channel, sender netid.ClientIdentifier, fromHost bool, view *wire.BitView) error {
	scope := wire.ScopePropagateClientToHost
	if fromHost {
		scope = wire.ScopePropagateHostToClient
	}

	decoded, ok := DecodePropertyStream(view, mt.Properties, scope)
	if !ok {
		view.Abort()
		p.logger.Error("malformed or empty property stream", slog.Any("id", id))
		return ErrMalformed
	}

	if mt.Trampoline != nil {
		if err := mt.Trampoline(msgtype.Registers{p.self, id, remote, channel, sender, decoded}); err != nil {
			return err
		}
	}

	receiver, ok := p.self.(propertyStreamReceiver)
	if !ok {
		return nil
	}
	if err := receiver.confirmPropertyReceipt(sender, id, decoded.Sequence); err != nil {
		p.logger.Error("failed to send property receipt confirmation", slog.Any("id", id), "err", err)
	}
	receiver.relayPropertyStream(sender, id, mt.Properties, decoded)
	return nil
}
