package peer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/boundobj"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/ident"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/msgtype"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/propstream"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/transport"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/wire"
)

// HostPeer is the accepting side of a session: per-client identifier
// allocation, the batched connect handshake, broadcast fan-out, authority
// delegation, message forwarding, and time-sync estimation (spec §4.3,
// §4.4, §4.5, §4.7, §4.8, §2 component table "HostPeer").
type HostPeer struct {
	*Peer

	clientsMu   sync.Mutex
	clientPool  *ident.Pool
	byHandle    map[transport.PeerHandle]netid.ClientIdentifier
	byClient    map[netid.ClientIdentifier]transport.PeerHandle
	selfObjects map[netid.ClientIdentifier]netid.BoundObjectIdentifier

	timeOffsetMu sync.Mutex
	// timeOffsetNs[client] estimates clientClock - hostClock, computed by
	// handleRequestTimeSync (spec §4.8).
	timeOffsetNs map[netid.ClientIdentifier]int64

	onClientConnected    func(netid.ClientIdentifier, transport.PeerHandle, netid.BoundObjectIdentifier)
	onClientDisconnected func(netid.ClientIdentifier)
}

// NewHostPeer constructs a HostPeer listening over t.
func NewHostPeer(logger *slog.Logger, t transport.Transport, updatePeriod time.Duration) *HostPeer {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HostPeer{
		Peer:         newPeer(logger.With(slog.String("role", "host")), true, updatePeriod, t),
		clientPool:   ident.NewPool(),
		byHandle:     make(map[transport.PeerHandle]netid.ClientIdentifier),
		byClient:     make(map[netid.ClientIdentifier]transport.PeerHandle),
		selfObjects:  make(map[netid.ClientIdentifier]netid.BoundObjectIdentifier),
		timeOffsetNs: make(map[netid.ClientIdentifier]int64),
	}
	h.Peer.self = h
	registerProtocolHandlers(h.Peer, h)
	return h
}

// OnClientConnected registers a callback fired once a new client's batched
// handshake has been sent (spec §6 "OnClientConnected").
func (h *HostPeer) OnClientConnected(fn func(client netid.ClientIdentifier, remote transport.PeerHandle, selfObject netid.BoundObjectIdentifier)) {
	h.onClientConnected = fn
}

// OnClientDisconnected registers a callback fired once disconnect cleanup
// has completed (spec §6 "OnClientDisconnected").
func (h *HostPeer) OnClientDisconnected(fn func(client netid.ClientIdentifier)) {
	h.onClientDisconnected = fn
}

// Clients returns every currently connected client identifier.
func (h *HostPeer) Clients() []netid.ClientIdentifier {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	out := make([]netid.ClientIdentifier, 0, len(h.byClient))
	for id := range h.byClient {
		out = append(out, id)
	}
	return out
}

// ClientRemote returns the transport handle for client, if connected.
func (h *HostPeer) ClientRemote(client netid.ClientIdentifier) (transport.PeerHandle, bool) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	handle, ok := h.byClient[client]
	return handle, ok
}

// ClientRoundTripTime reads the transport's RTT estimate for client
// (spec §5 supplemented feature).
func (h *HostPeer) ClientRoundTripTime(client netid.ClientIdentifier) (time.Duration, error) {
	handle, ok := h.ClientRemote(client)
	if !ok {
		return 0, transport.ErrNotConnected
	}
	return h.transport.RTT(handle)
}

// ConvertClientTimestampToLocal converts client's clock reading to this
// host's local clock, using the offset estimated by the last time-sync
// round with that client (spec §4.8). Returns (0, false) if no estimate is
// available yet.
func (h *HostPeer) ConvertClientTimestampToLocal(client netid.ClientIdentifier, clientTimestampNs int64) (int64, bool) {
	h.timeOffsetMu.Lock()
	defer h.timeOffsetMu.Unlock()
	offset, ok := h.timeOffsetNs[client]
	if !ok {
		return 0, false
	}
	return clientTimestampNs - offset, true
}

// ForceDisconnectClient terminates client's connection immediately and
// runs the same cleanup as a transport-level disconnect event (spec §7
// "Client force-disconnected").
func (h *HostPeer) ForceDisconnectClient(client netid.ClientIdentifier) error {
	handle, ok := h.ClientRemote(client)
	if !ok {
		return transport.ErrNotConnected
	}
	if err := h.transport.ForceDisconnect(handle); err != nil {
		return err
	}
	h.cleanupClient(client, handle)
	return nil
}

// BindObject binds owner to a fresh BoundObjectIdentifier and broadcasts
// ObjectBound to every connected client (spec §6 "BindObject(persistentGuid,
// object) → boundObjectIdentifier").
func (h *HostPeer) BindObject(persistentGUID uuid.UUID, owner boundobj.OwnerHandle) (netid.BoundObjectIdentifier, error) {
	id, err := h.boundObjects.Bind(owner, persistentGUID)
	if err != nil {
		return netid.InvalidBoundObject, err
	}
	h.broadcast(transport.ChannelControl, transport.Reliable, func() *wire.BitView {
		return encodeObjectBound(id, persistentGUID)
	})
	return id, nil
}

// DelegateBoundObjectAuthority hands authority over id to client, revoking
// any current delegate first and sending Revoke-then-Give on the same
// channel so every observer applies them in order (spec §4.4).
func (h *HostPeer) DelegateBoundObjectAuthority(id netid.BoundObjectIdentifier, client netid.ClientIdentifier) error {
	if current, delegated := h.boundObjects.DelegateOf(id); delegated && current != client {
		if err := h.RevokeBoundObjectAuthority(id); err != nil {
			return err
		}
	}
	if err := h.boundObjects.DelegateBoundObjectAuthority(id, client, true); err != nil {
		return err
	}
	handle, ok := h.ClientRemote(client)
	if !ok {
		return transport.ErrNotConnected
	}
	v := encodeAuthorityMessage(msgtype.BoundObjectAuthorityGivenToLocalClient, id)
	return h.transport.Send(handle, transport.ChannelControl, transport.Reliable, v.Bytes())
}

// RevokeBoundObjectAuthority restores host authority over id, notifying
// whichever client previously held it (spec §4.4).
func (h *HostPeer) RevokeBoundObjectAuthority(id netid.BoundObjectIdentifier) error {
	prev, delegated := h.boundObjects.DelegateOf(id)
	if err := h.boundObjects.RevokeBoundObjectAuthority(id, true); err != nil {
		return err
	}
	if !delegated {
		return nil
	}
	handle, ok := h.ClientRemote(prev)
	if !ok {
		return nil
	}
	v := encodeAuthorityMessage(msgtype.BoundObjectAuthorityRevokedFromLocalClient, id)
	return h.transport.Send(handle, transport.ChannelControl, transport.Reliable, v.Bytes())
}

// SendMessageTo sends a registered function call from the host to one
// client (spec §6 "SendMessageToClient<Function>").
func (h *HostPeer) SendMessageTo(client netid.ClientIdentifier, functionGUID uuid.UUID, boundObj netid.BoundObjectIdentifier, channel transport.Channel, flags transport.MessageFlags, args []any) error {
	handle, ok := h.ClientRemote(client)
	if !ok {
		return transport.ErrNotConnected
	}
	v, err := h.encodeFunctionCall(functionGUID, boundObj, args)
	if err != nil {
		return err
	}
	return h.transport.Send(handle, channel, flags, v.Bytes())
}

// BroadcastMessageToAllClients sends a registered function call to every
// connected client (spec §6 "BroadcastMessageToAllClients<Function>").
func (h *HostPeer) BroadcastMessageToAllClients(functionGUID uuid.UUID, boundObj netid.BoundObjectIdentifier, channel transport.Channel, flags transport.MessageFlags, args []any) error {
	v, err := h.encodeFunctionCall(functionGUID, boundObj, args)
	if err != nil {
		return err
	}
	return h.broadcastExcept(channel, flags, netid.InvalidClient, v)
}

// BroadcastMessageToOtherClients is BroadcastMessageToAllClients excluding
// the client named by except -- used when relaying a client-originated
// event (spec §4.7, §6 "SendMessageToRemoteClients").
func (h *HostPeer) BroadcastMessageToOtherClients(except netid.ClientIdentifier, functionGUID uuid.UUID, boundObj netid.BoundObjectIdentifier, channel transport.Channel, flags transport.MessageFlags, args []any) error {
	v, err := h.encodeFunctionCall(functionGUID, boundObj, args)
	if err != nil {
		return err
	}
	return h.broadcastExcept(channel, flags, except, v)
}

func (h *HostPeer) broadcastExcept(channel transport.Channel, flags transport.MessageFlags, except netid.ClientIdentifier, v *wire.BitView) error {
	h.clientsMu.Lock()
	targets := make([]transport.PeerHandle, 0, len(h.byClient))
	for client, handle := range h.byClient {
		if client == except {
			continue
		}
		targets = append(targets, handle)
	}
	h.clientsMu.Unlock()

	var g errgroup.Group
	for _, handle := range targets {
		handle := handle
		g.Go(func() error {
			return h.transport.Send(handle, channel, flags, v.Bytes())
		})
	}
	return g.Wait()
}

// broadcast fans a freshly built message out to every connected client,
// calling build once per recipient since *wire.BitView carries its own
// cursor and must not be shared across concurrent sends.
func (h *HostPeer) broadcast(channel transport.Channel, flags transport.MessageFlags, build func() *wire.BitView) error {
	h.clientsMu.Lock()
	targets := make([]transport.PeerHandle, 0, len(h.byClient))
	for _, handle := range h.byClient {
		targets = append(targets, handle)
	}
	h.clientsMu.Unlock()

	var g errgroup.Group
	for _, handle := range targets {
		handle := handle
		g.Go(func() error {
			return h.transport.Send(handle, channel, flags, build().Bytes())
		})
	}
	return g.Wait()
}

// encodeFunctionCall builds a fully wire-encoded registered function-call
// message without sending it, mirroring ClientPeer's helper but checked
// against the host-to-client direction mask instead (spec §8 property 2).
func (h *HostPeer) encodeFunctionCall(functionGUID uuid.UUID, boundObj netid.BoundObjectIdentifier, args []any) (*wire.BitView, error) {
	id, ok := h.messageTypes.FindIdentifier(functionGUID)
	if !ok {
		return nil, msgtype.ErrUnknownIdentifier
	}
	mt, ok := h.messageTypes.Lookup(id)
	if !ok {
		return nil, msgtype.ErrUnknownIdentifier
	}
	if mt.Flags.Direction&msgtype.FromHost == 0 {
		return nil, ErrDirectionViolation
	}
	isObjFn := mt.Flags.IsObjectFunction()

	bitLen := msgtype.BitsForIdentifier
	if isObjFn {
		bitLen += netid.BitsForBoundObjectIdentifier
	}
	for i, a := range mt.Arguments {
		if b := a.FixedBits(wire.ScopeFunctionArguments); b >= 0 {
			bitLen += b
		} else {
			bitLen += a.DynamicBits(args[i], wire.ScopeFunctionArguments)
		}
	}

	v := newMessageView(bitLen)
	packHeader(v, id)
	if isObjFn {
		v.PackAndSkip(uint64(boundObj), netid.BitsForBoundObjectIdentifier)
	}
	if !encodeArguments(v, mt.Arguments, args, wire.ScopeFunctionArguments) {
		return nil, ErrMalformed
	}
	return v, nil
}

// InvalidatePropertiesToClient marks propertyMask dirty toward client for
// boundObj under messageTypeID (spec §4.6).
func (h *HostPeer) InvalidatePropertiesToClient(client netid.ClientIdentifier, messageTypeID msgtype.Identifier, boundObj netid.BoundObjectIdentifier, mask propstream.PropertyMask) {
	h.streamer.Invalidate(client, messageTypeID, boundObj, mask)
}

// InvalidatePropertiesToAllClients marks propertyMask dirty toward every
// connected client (spec §4.6 "propagate to every other connected client").
func (h *HostPeer) InvalidatePropertiesToAllClients(messageTypeID msgtype.Identifier, boundObj netid.BoundObjectIdentifier, mask propstream.PropertyMask) {
	for _, client := range h.Clients() {
		h.streamer.Invalidate(client, messageTypeID, boundObj, mask)
	}
}

// FlushPropertiesToClient bypasses client's next rate-limit window for
// messageTypeID.
func (h *HostPeer) FlushPropertiesToClient(client netid.ClientIdentifier, messageTypeID msgtype.Identifier) {
	h.streamer.FlushProperties(client, messageTypeID)
}

// Tick runs one iteration of the host's peer loop: outbound property
// streaming to every client, then inbound drain (spec §4.3 "OnExecute").
func (h *HostPeer) Tick(now time.Time) {
	h.updateMu.Lock()
	defer h.updateMu.Unlock()

	for _, due := range h.streamer.DuePending(now, h.updatePeriod) {
		if err := h.sendPropertyStreamTo(due, now); err != nil {
			h.logger.Error("property stream send failed", "client", due.Peer, "err", err)
		}
	}

	for {
		ev, err := h.transport.Service()
		if err != nil {
			h.logger.Error("transport service error", "err", err)
			return
		}
		if ev.Kind == transport.EventNone {
			return
		}
		h.handleEvent(ev)
	}
}

func (h *HostPeer) sendPropertyStreamTo(due propstream.PendingSend, now time.Time) error {
	handle, ok := h.ClientRemote(due.Peer)
	if !ok {
		return nil
	}
	mt, ok := h.messageTypes.Lookup(due.MessageType)
	if !ok {
		return msgtype.ErrUnknownIdentifier
	}
	var seq uint16
	var err error
	if due.Changed {
		seq, err = due.AllocateSequence()
		if err != nil {
			return err
		}
	} else {
		seq = due.LastSentSequence()
	}
	v, err := encodePropertyStream(due.MessageType, seq, due.Objects, mt.Properties, mt.Values, wire.ScopePropagateHostToClient)
	if err != nil {
		return err
	}
	due.MarkSent(now, seq)
	return h.transport.Send(handle, transport.ChannelPropertyStream, transport.UnreliableUnsequenced, v.Bytes())
}

func (h *HostPeer) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnect:
		h.onClientHandshake(ev.Peer)

	case transport.EventReceive:
		defer func() {
			if ev.Free != nil {
				ev.Free()
			}
		}()
		h.clientsMu.Lock()
		sender, known := h.byHandle[ev.Peer]
		h.clientsMu.Unlock()
		if !known {
			h.logger.Warn("message from an unrecognised peer handle, dropping", slog.Any("peer", ev.Peer))
			return
		}
		view := wire.NewView(ev.Data, len(ev.Data)*8)
		if err := h.HandleMessage(ev.Peer, ev.Channel, sender, false, view); err != nil {
			h.logger.Error("dispatch failed", "client", sender, "err", err)
		}

	case transport.EventDisconnect:
		h.clientsMu.Lock()
		client, known := h.byHandle[ev.Peer]
		h.clientsMu.Unlock()
		if known {
			h.cleanupClient(client, ev.Peer)
		}
	}
}

// onClientHandshake allocates identifiers for a newly connected client and
// sends the batched connect handshake (spec §4.5 "Connect handshake").
func (h *HostPeer) onClientHandshake(handle transport.PeerHandle) {
	h.clientsMu.Lock()
	if _, exists := h.byHandle[handle]; exists {
		h.clientsMu.Unlock()
		return
	}
	raw, err := h.clientPool.Allocate()
	if err != nil {
		h.clientsMu.Unlock()
		h.logger.Error("client identifier pool exhausted", "err", err)
		return
	}
	client := netid.ClientIdentifier(raw)
	h.byHandle[handle] = client
	h.byClient[client] = handle
	h.clientsMu.Unlock()

	h.streamer.AddPeer(client)

	selfObj, err := h.boundObjects.Bind(boundobj.OwnerHandle{Kind: boundobj.OwnerPlainObject, Value: client}, uuid.Nil)
	if err != nil {
		h.logger.Error("failed to bind connecting client's self object", "client", client, "err", err)
		return
	}
	h.clientsMu.Lock()
	h.selfObjects[client] = selfObj
	h.clientsMu.Unlock()

	if err := h.sendHandshake(handle, client, selfObj); err != nil {
		h.logger.Error("handshake send failed", "client", client, "err", err)
		return
	}

	if h.onClientConnected != nil {
		h.onClientConnected(client, handle, selfObj)
	}
}

// sendHandshake builds and sends the batched RegisterNewMessageType /
// RegisterPropertyStreamMessage / ObjectBound / LocalPeerConnected envelope
// a newly connected client needs before it can participate (spec §4.5 "The
// host enumerates every registered MessageType and currently bound object
// with a persistent identity, then sends one batch").
func (h *HostPeer) sendHandshake(handle transport.PeerHandle, client netid.ClientIdentifier, selfObj netid.BoundObjectIdentifier) error {
	var messages []*wire.BitView

	for _, mt := range h.messageTypes.All() {
		if msgtype.IsProtocol(mt.ID) {
			continue
		}
		switch mt.Flags.Kind {
		case msgtype.KindPropertyStream:
			guids := make([]uuid.UUID, len(mt.Properties))
			for i, p := range mt.Properties {
				guids[i] = p.GUID
			}
			messages = append(messages, encodeRegisterPropertyStreamMessage(mt.ID, mt.TypeGUID, mt.Flags, guids))
		default:
			fixedBits := mt.FixedCompressedBits(nil)
			messages = append(messages, encodeRegisterNewMessageType(mt.ID, mt.FunctionGUID, mt.Flags, fixedBits))
		}
	}

	for _, obj := range h.boundObjects.All() {
		messages = append(messages, encodeObjectBound(obj.ID, obj.GUID))
	}

	messages = append(messages, encodeLocalPeerConnected(client, selfObj, time.Now().UnixNano()))

	batch := encodeBatch(messages)
	if err := h.transport.Send(handle, transport.ChannelControl, transport.Reliable, batch.Bytes()); err != nil {
		return err
	}
	return h.transport.FlushPendingMessages()
}

// cleanupClient releases everything allocated to client on disconnect
// (spec §4.4 edge case "authoritative client disconnects without
// relinquishing authority", §5 "Cancellation").
func (h *HostPeer) cleanupClient(client netid.ClientIdentifier, handle transport.PeerHandle) {
	for _, id := range h.boundObjects.ClearClientAuthority(client) {
		h.logger.Info("authority reclaimed from disconnecting client", "client", client, "object", id)
	}

	h.clientsMu.Lock()
	delete(h.byHandle, handle)
	delete(h.byClient, client)
	selfObj, hadSelf := h.selfObjects[client]
	delete(h.selfObjects, client)
	h.clientsMu.Unlock()

	h.timeOffsetMu.Lock()
	delete(h.timeOffsetNs, client)
	h.timeOffsetMu.Unlock()

	h.streamer.RemovePeer(client)

	if hadSelf {
		if err := h.boundObjects.Unbind(selfObj); err != nil {
			h.logger.Warn("failed to unbind disconnecting client's self object", "client", client, "err", err)
		}
	}

	if h.onClientDisconnected != nil {
		h.onClientDisconnected(client)
	}
}

// --- protocolHandlers -------------------------------------------------------

func (h *HostPeer) handleLocalPeerConnected(*wire.BitView) error {
	h.logger.Warn("host received a host-to-client-only message type")
	return nil
}

func (h *HostPeer) handleRegisterNewMessageType(*wire.BitView) error {
	h.logger.Warn("host received a host-to-client-only message type")
	return nil
}

func (h *HostPeer) handleRegisterPropertyStreamMessage(*wire.BitView) error {
	h.logger.Warn("host received a host-to-client-only message type")
	return nil
}

func (h *HostPeer) handleBatchMessages(remote transport.PeerHandle, channel transport.Channel, sender netid.ClientIdentifier, fromHost bool, view *wire.BitView) error {
	count, ok := view.UnpackAndSkip(wire.BitsUint16)
	if !ok {
		view.Abort()
		return ErrMalformed
	}
	for i := uint64(0); i < count; i++ {
		if err := h.HandleMessage(remote, channel, sender, fromHost, view); err != nil {
			h.logger.Error("batched message failed", "index", i, "err", err)
			return err
		}
	}
	return nil
}

func (h *HostPeer) handleObjectBound(*wire.BitView) error {
	h.logger.Warn("host received a host-to-client-only message type")
	return nil
}

func (h *HostPeer) handleConfirmPropagatedPropertyReceipt(sender netid.ClientIdentifier, view *wire.BitView) error {
	seq, messageTypeID, ok := decodeConfirmPropagatedPropertyReceipt(view)
	if !ok {
		view.Abort()
		return ErrMalformed
	}
	h.streamer.OnConfirmationReceipt(sender, messageTypeID, seq)
	return nil
}

// confirmPropertyReceipt sends a ConfirmPropagatedPropertyReceipt back to
// sender for a property stream the core just accepted (spec §4.6 receive
// pass).
func (h *HostPeer) confirmPropertyReceipt(sender netid.ClientIdentifier, messageTypeID msgtype.Identifier, seq uint16) error {
	handle, ok := h.ClientRemote(sender)
	if !ok {
		return nil
	}
	v := encodeConfirmPropagatedPropertyReceipt(seq, messageTypeID)
	return h.transport.Send(handle, transport.ChannelControl, transport.UnreliableUnsequenced, v.Bytes())
}

// relayPropertyStream records every PropagateClientToClient property decoded
// from sender's update into every OTHER connected client's pending send
// state, so the host's own outbound pass carries it onward to them (spec
// §4.6 receive pass: "record the (object, property-index) into every OTHER
// client's PerPeerPropagatedPropertyData").
func (h *HostPeer) relayPropertyStream(sender netid.ClientIdentifier, messageTypeID msgtype.Identifier, properties []msgtype.PropertyDescriptor, decoded DecodedPropertyStream) {
	for objID, values := range decoded.Objects {
		var mask propstream.PropertyMask
		for i := range values {
			if i < len(properties) && properties[i].PropagateClientToClient {
				mask.Set(i)
			}
		}
		if mask.IsZero() {
			continue
		}
		for _, client := range h.Clients() {
			if client == sender {
				continue
			}
			h.streamer.Invalidate(client, messageTypeID, objID, mask)
		}
	}
}

func (h *HostPeer) handleBoundObjectAuthorityGivenToLocalClient(*wire.BitView) error {
	h.logger.Warn("host received a host-to-client-only message type")
	return nil
}

func (h *HostPeer) handleBoundObjectAuthorityRevokedFromLocalClient(*wire.BitView) error {
	h.logger.Warn("host received a host-to-client-only message type")
	return nil
}

// handleRequestForwardMessageToOtherClients re-validates the sender's
// authority over the wrapped message, then relays it verbatim to every
// other connected client without applying it on the host itself
// (spec §4.7 step 2-3).
func (h *HostPeer) handleRequestForwardMessageToOtherClients(sender netid.ClientIdentifier, remote transport.PeerHandle, channel transport.Channel, view *wire.BitView) error {
	if err := h.PreprocessMessage(sender, false, view); err != nil {
		view.Abort()
		h.logger.Warn("forward rejected", "client", sender, "err", err)
		return err
	}
	wrapped := wrapForward(msgtype.ReceivedForwardedMessage, view.Clone())
	return h.broadcastExcept(channel, transport.Reliable, sender, wrapped)
}

// handleRequestForwardMessageToAllRemotes is
// handleRequestForwardMessageToOtherClients plus local dispatch on the host
// (spec §4.7 "SendMessageToAllRemotes").
func (h *HostPeer) handleRequestForwardMessageToAllRemotes(sender netid.ClientIdentifier, remote transport.PeerHandle, channel transport.Channel, view *wire.BitView) error {
	if err := h.PreprocessMessage(sender, false, view); err != nil {
		view.Abort()
		h.logger.Warn("forward rejected", "client", sender, "err", err)
		return err
	}
	inner := view.Clone()
	wrapped := wrapForward(msgtype.ReceivedForwardedMessage, inner)
	if err := h.broadcastExcept(channel, transport.Reliable, sender, wrapped); err != nil {
		h.logger.Error("forward-to-all-remotes broadcast failed", "err", err)
	}
	local := inner.Clone()
	return h.HandleMessage(remote, channel, sender, false, local)
}

func (h *HostPeer) handleReceivedForwardedMessage(transport.PeerHandle, transport.Channel, *wire.BitView) error {
	h.logger.Warn("host received a host-to-client-only message type")
	return nil
}

// handleRequestTimeSync completes one NTP-style round trip and replies with
// the host's offset estimate (spec §4.8: "offset = ((T2-T1)+(T3-T4))/2").
func (h *HostPeer) handleRequestTimeSync(sender netid.ClientIdentifier, view *wire.BitView) error {
	t1, t2, t3, ok := decodeRequestTimeSync(view)
	if !ok {
		view.Abort()
		return ErrMalformed
	}
	t4 := time.Now().UnixNano()
	offset := ((t2 - t1) + (t3 - t4)) / 2

	h.timeOffsetMu.Lock()
	h.timeOffsetNs[sender] = offset
	h.timeOffsetMu.Unlock()

	handle, ok := h.ClientRemote(sender)
	if !ok {
		return transport.ErrNotConnected
	}
	reply := encodeReceivedTimeSyncResponse(offset)
	if err := h.transport.Send(handle, transport.ChannelControl, transport.Reliable, reply.Bytes()); err != nil {
		return err
	}
	return h.transport.FlushPendingMessages()
}

func (h *HostPeer) handleReceivedTimeSyncResponse(*wire.BitView) error {
	h.logger.Warn("host received a host-to-client-only message type")
	return nil
}
