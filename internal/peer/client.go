package peer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/boundcomponent"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/boundobj"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/msgtype"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/propstream"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/transport"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/wire"
)

// ErrNotConnected is returned by client send APIs before the host handshake
// has completed.
var ErrNotConnected = errors.New("peer: client not connected to a host")

// ClientPeer is the connecting side of a session: connect/disconnect
// lifecycle, host time-offset tracking, and the to-host property queue
// (spec §4.3, §4.8, §2 component table "ClientPeer").
type ClientPeer struct {
	*Peer

	mu              sync.Mutex
	hostHandle      transport.PeerHandle
	connected       bool
	selfClient      netid.ClientIdentifier
	selfBoundObject netid.BoundObjectIdentifier

	connecting    atomic.Bool
	disconnecting atomic.Bool

	pendingOwnersMu sync.Mutex
	pendingOwners   map[uuid.UUID]boundobj.OwnerHandle

	// hostTimeOffsetNs converts a host timestamp to local time:
	// local = hostTs + hostTimeOffsetNs (spec §4.8).
	hostTimeOffsetNs atomic.Int64

	onConnected    func(selfClient netid.ClientIdentifier, selfObject netid.BoundObjectIdentifier)
	onDisconnected func()
}

// NewClientPeer constructs an unconnected ClientPeer over t.
func NewClientPeer(logger *slog.Logger, t transport.Transport, updatePeriod time.Duration) *ClientPeer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ClientPeer{
		Peer:          newPeer(logger.With(slog.String("role", "client")), false, updatePeriod, t),
		pendingOwners: make(map[uuid.UUID]boundobj.OwnerHandle),
	}
	c.Peer.self = c
	registerProtocolHandlers(c.Peer, c)
	// A ClientPeer's Streamer tracks exactly one remote: the host, keyed by
	// netid.InvalidClient (spec §3 "a ClientPeer uses the single key
	// netid.InvalidClient to mean 'the host'").
	c.streamer.AddPeer(netid.InvalidClient)
	return c
}

// OnConnected registers a callback fired once the batched handshake
// completes and LocalPeerConnected has been processed (spec §6
// "OnClientConnected" analogue, client side).
func (c *ClientPeer) OnConnected(fn func(selfClient netid.ClientIdentifier, selfObject netid.BoundObjectIdentifier)) {
	c.onConnected = fn
}

// OnDisconnected registers a callback fired once disconnect processing
// completes.
func (c *ClientPeer) OnDisconnected(fn func()) {
	c.onDisconnected = fn
}

// Connect begins an outbound connection attempt (spec §6 "Connect(address,
// maxChannels, userData, updateMode) → remoteHost"). The actual EventConnect
// confirmation, and the subsequent batched handshake, are processed on
// later ticks -- connect is fire-and-forget over an unreliable transport.
func (c *ClientPeer) Connect(ctx context.Context, addr string) error {
	c.connecting.Store(true)
	handle, err := c.transport.Connect(ctx, addr)
	if err != nil {
		c.connecting.Store(false)
		return err
	}
	c.mu.Lock()
	c.hostHandle = handle
	c.mu.Unlock()
	return nil
}

// Disconnect performs a cooperative disconnect (spec §5 "Cancellation").
func (c *ClientPeer) Disconnect() error {
	c.disconnecting.Store(true)
	c.mu.Lock()
	handle := c.hostHandle
	c.mu.Unlock()
	return c.transport.Disconnect(handle)
}

// ForceDisconnect resets the connection immediately.
func (c *ClientPeer) ForceDisconnect() error {
	c.mu.Lock()
	handle := c.hostHandle
	c.connected = false
	c.mu.Unlock()
	return c.transport.ForceDisconnect(handle)
}

// IsConnected reports whether the handshake has completed.
func (c *ClientPeer) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ClientIdentifier returns this client's host-assigned identifier, valid
// only once IsConnected (spec §8 S1 "GetIdentifier() ... returns the salted
// id 1").
func (c *ClientPeer) ClientIdentifier() netid.ClientIdentifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfClient
}

// SelfBoundObject returns the client's own bound object id (spec §6
// "GetClientBoundObjectIdentifier").
func (c *ClientPeer) SelfBoundObject() netid.BoundObjectIdentifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfBoundObject
}

// RoundTripTime reads the transport's RTT estimate to the host (spec §5
// supplemented feature).
func (c *ClientPeer) RoundTripTime() (time.Duration, error) {
	c.mu.Lock()
	handle := c.hostHandle
	c.mu.Unlock()
	return c.transport.RTT(handle)
}

// ConvertHostTimestampToLocal converts a host-clock nanosecond timestamp to
// this client's local clock (spec §4.8).
func (c *ClientPeer) ConvertHostTimestampToLocal(hostTimestampNs int64) int64 {
	return hostTimestampNs + c.hostTimeOffsetNs.Load()
}

// BindObject records owner as the local representative of persistentGUID
// and stages cb to fire with the assigned BoundObjectIdentifier once the
// host's ObjectBound message names it -- immediately, if the host already
// has (spec §6 "BindObject(persistentGuid, object, callback)").
func (c *ClientPeer) BindObject(persistentGUID uuid.UUID, owner boundobj.OwnerHandle, cb func(netid.BoundObjectIdentifier)) {
	c.pendingOwnersMu.Lock()
	c.pendingOwners[persistentGUID] = owner
	c.pendingOwnersMu.Unlock()

	c.boundObjects.StageResolver(persistentGUID, func(id netid.BoundObjectIdentifier) {
		if cb != nil {
			cb(id)
		}
	})
}

// encodeFunctionCall builds a fully wire-encoded registered function-call
// message, validating direction and (for an object function) local
// authority, but does not send it (spec §6 "SendMessageToHost<Function>",
// "SendMessageToRemoteClients<Function>" -- both start from the same
// encoded payload, differing only in what wraps it).
func (c *ClientPeer) encodeFunctionCall(functionGUID uuid.UUID, boundObj netid.BoundObjectIdentifier, args []any) (*wire.BitView, error) {
	id, ok := c.messageTypes.FindIdentifier(functionGUID)
	if !ok {
		return nil, msgtype.ErrUnknownIdentifier
	}
	mt, ok := c.messageTypes.Lookup(id)
	if !ok {
		return nil, msgtype.ErrUnknownIdentifier
	}
	if mt.Flags.Direction&msgtype.FromClient == 0 {
		return nil, ErrDirectionViolation
	}
	isObjFn := mt.Flags.IsObjectFunction()
	if isObjFn && !mt.Flags.AllowClientToHostWithoutAuthority {
		if !c.boundObjects.HasLocalAuthority(boundObj) {
			return nil, ErrNoAuthority
		}
	}
	if !c.allowSend() {
		return nil, ErrRateLimited
	}

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

// SendMessageToHost sends a registered function call to the host (spec §6
// "SendMessageToHost<Function>"). Returns an error if the type isn't
// registered, the client lacks authority (and the type requires it), or
// direction flags disagree (spec §8 property 4).
func (c *ClientPeer) SendMessageToHost(functionGUID uuid.UUID, boundObj netid.BoundObjectIdentifier, channel transport.Channel, flags transport.MessageFlags, args []any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	v, err := c.encodeFunctionCall(functionGUID, boundObj, args)
	if err != nil {
		return err
	}
	c.mu.Lock()
	handle := c.hostHandle
	c.mu.Unlock()
	return c.transport.Send(handle, channel, flags, v.Bytes())
}

func (c *ClientPeer) sendForward(d msgtype.DefaultMessageType, channel transport.Channel, functionGUID uuid.UUID, boundObj netid.BoundObjectIdentifier, args []any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	inner, err := c.encodeFunctionCall(functionGUID, boundObj, args)
	if err != nil {
		return err
	}
	// inner's cursor sits at its own end right after encoding; wrapForward
	// wants the unread remainder, so rewind over the same bytes first.
	v := wrapForward(d, wire.NewView(inner.Bytes(), inner.BitLen()))
	c.mu.Lock()
	handle := c.hostHandle
	c.mu.Unlock()
	return c.transport.Send(handle, channel, transport.Reliable, v.Bytes())
}

// SendMessageToRemoteClients asks the host to relay a registered function
// call to every other connected client, without applying it locally on the
// host (spec §4.7, §6 "SendMessageToRemoteClients<Function>").
func (c *ClientPeer) SendMessageToRemoteClients(channel transport.Channel, functionGUID uuid.UUID, boundObj netid.BoundObjectIdentifier, args []any) error {
	return c.sendForward(msgtype.RequestForwardMessageToOtherClients, channel, functionGUID, boundObj, args)
}

// SendMessageToAllRemotes is SendMessageToRemoteClients plus dispatch on the
// host itself (spec §4.7, §6 "SendMessageToAllRemotes<Function>").
func (c *ClientPeer) SendMessageToAllRemotes(channel transport.Channel, functionGUID uuid.UUID, boundObj netid.BoundObjectIdentifier, args []any) error {
	return c.sendForward(msgtype.RequestForwardMessageToAllRemotes, channel, functionGUID, boundObj, args)
}

// InvalidateProperties marks propertyMask dirty toward the host for
// boundObj under messageTypeID (spec §4.6 "Invalidate", §6
// "InvalidateProperties<&Type::member, …>").
func (c *ClientPeer) InvalidateProperties(messageTypeID msgtype.Identifier, boundObj netid.BoundObjectIdentifier, mask propstream.PropertyMask) {
	c.streamer.Invalidate(netid.InvalidClient, messageTypeID, boundObj, mask)
}

// FlushProperties bypasses the next rate-limit window for messageTypeID
// (spec §6 "FlushProperties<…>()").
func (c *ClientPeer) FlushProperties(messageTypeID msgtype.Identifier) {
	c.streamer.FlushProperties(netid.InvalidClient, messageTypeID)
}

// SendQueued implements boundcomponent.Sender for a BoundComponent's
// deferred send-path queue (spec §4.8/§7 "Not yet bound objects").
func (c *ClientPeer) SendQueued(msg boundcomponent.QueuedMessage) error {
	switch msg.Kind {
	case boundcomponent.ClientToHost:
		c.mu.Lock()
		handle := c.hostHandle
		c.mu.Unlock()
		return c.transport.Send(handle, msg.Channel, msg.Flags, msg.Payload)
	default:
		c.logger.Warn("queued message kind not valid for a client sender", slog.Any("kind", msg.Kind))
		return nil
	}
}

// Tick runs one iteration of the peer loop: outbound property streaming,
// then inbound drain (spec §4.3 "OnExecute").
func (c *ClientPeer) Tick(now time.Time) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	c.sendOutboundProperties(now)

	for {
		ev, err := c.transport.Service()
		if err != nil {
			c.logger.Error("transport service error", "err", err)
			return
		}
		if ev.Kind == transport.EventNone {
			return
		}
		c.handleEvent(now, ev)
	}
}

func (c *ClientPeer) handleEvent(now time.Time, ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnect:
		c.connecting.Store(false)
		c.logger.Info("connected to host", slog.Any("handle", ev.Peer))

	case transport.EventReceive:
		defer func() {
			if ev.Free != nil {
				ev.Free()
			}
		}()
		view := wire.NewView(ev.Data, len(ev.Data)*8)
		if err := c.HandleMessage(ev.Peer, ev.Channel, netid.InvalidClient, true, view); err != nil {
			c.logger.Error("dispatch failed", "err", err)
		}

	case transport.EventDisconnect:
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.disconnecting.Store(false)
		c.boundObjects = boundobj.NewRegistry()
		c.streamer = propstream.NewStreamer()
		c.streamer.AddPeer(netid.InvalidClient)
		if c.onDisconnected != nil {
			c.onDisconnected()
		}
	}
}

func (c *ClientPeer) sendOutboundProperties(now time.Time) {
	for _, due := range c.streamer.DuePending(now, c.updatePeriod) {
		if err := c.sendPropertyStream(due, now); err != nil {
			c.logger.Error("property stream send failed", "err", err)
		}
	}
}

func (c *ClientPeer) sendPropertyStream(due propstream.PendingSend, now time.Time) error {
	mt, ok := c.messageTypes.Lookup(due.MessageType)
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

	v, encErr := encodePropertyStream(due.MessageType, seq, due.Objects, mt.Properties, mt.Values, wire.ScopePropagateClientToHost)
	if encErr != nil {
		return encErr
	}
	due.MarkSent(now, seq)

	c.mu.Lock()
	handle := c.hostHandle
	c.mu.Unlock()
	return c.transport.Send(handle, transport.ChannelPropertyStream, transport.UnreliableUnsequenced, v.Bytes())
}

// --- protocolHandlers -------------------------------------------------------

func (c *ClientPeer) handleLocalPeerConnected(view *wire.BitView) error {
	clientID, selfObj, hostTs, ok := decodeLocalPeerConnected(view)
	if !ok {
		view.Abort()
		return ErrMalformed
	}
	c.mu.Lock()
	c.selfClient = clientID
	c.selfBoundObject = selfObj
	c.connected = true
	c.mu.Unlock()

	t3 := now().UnixNano()
	reply := encodeRequestTimeSync(hostTs, now().UnixNano(), t3)
	c.mu.Lock()
	handle := c.hostHandle
	c.mu.Unlock()
	if err := c.transport.Send(handle, transport.ChannelControl, transport.Reliable, reply.Bytes()); err != nil {
		c.logger.Error("time sync request failed", "err", err)
	}
	_ = c.transport.FlushPendingMessages()

	if c.onConnected != nil {
		c.onConnected(clientID, selfObj)
	}
	return nil
}

// handleRegisterNewMessageType learns a host-assigned Identifier for a
// function. If this client already registered the same FunctionGUID locally
// (with its own trampoline, via RegisterFunction), that registration is
// re-keyed onto the host's id instead of being replaced by a bare
// placeholder, so a pre-registered client-side handler survives the
// handshake even when the host picked a different id for it.
func (c *ClientPeer) handleRegisterNewMessageType(view *wire.BitView) error {
	id, functionGUID, flags, fixedBits, ok := decodeRegisterNewMessageType(view)
	if !ok {
		view.Abort()
		return ErrMalformed
	}
	_ = fixedBits

	mt := &msgtype.MessageType{FunctionGUID: functionGUID, Flags: flags, SendOnly: true}
	if existing, existingID, found := c.localFunctionType(functionGUID); found {
		mt.Arguments = existing.Arguments
		mt.Trampoline = existing.Trampoline
		mt.SendOnly = existing.SendOnly
		if existingID != id {
			c.messageTypes.Unbind(existingID)
		}
	}
	return c.messageTypes.RegisterAt(id, mt)
}

// handleRegisterPropertyStreamMessage learns a host-assigned Identifier for a
// propagated-property type, preserving any locally pre-registered Values
// source and trampoline the same way handleRegisterNewMessageType does for
// functions.
func (c *ClientPeer) handleRegisterPropertyStreamMessage(view *wire.BitView) error {
	id, typeGUID, flags, propertyGUIDs, ok := decodeRegisterPropertyStreamMessage(view)
	if !ok {
		view.Abort()
		return ErrMalformed
	}
	props := make([]msgtype.PropertyDescriptor, len(propertyGUIDs))
	for i, g := range propertyGUIDs {
		props[i] = msgtype.PropertyDescriptor{GUID: g}
	}
	mt := &msgtype.MessageType{
		TypeGUID:   typeGUID,
		Properties: props,
		Flags:      flags,
	}
	if existing, existingID, found := c.localPropertyStreamType(typeGUID); found {
		mt.Trampoline = existing.Trampoline
		mt.Values = existing.Values
		if existingID != id {
			c.messageTypes.Unbind(existingID)
		}
	}
	return c.messageTypes.RegisterAt(id, mt)
}

// localFunctionType reports whether this client already has a locally
// registered MessageType for functionGUID (typically registered through
// RegisterFunction before connecting), returning its current id.
func (c *ClientPeer) localFunctionType(functionGUID uuid.UUID) (msgtype.MessageType, msgtype.Identifier, bool) {
	id, ok := c.messageTypes.FindIdentifier(functionGUID)
	if !ok {
		return msgtype.MessageType{}, 0, false
	}
	mt, ok := c.messageTypes.Lookup(id)
	if !ok {
		return msgtype.MessageType{}, 0, false
	}
	return *mt, id, true
}

// localPropertyStreamType reports whether this client already has a locally
// registered propagated-property MessageType for typeGUID.
func (c *ClientPeer) localPropertyStreamType(typeGUID uuid.UUID) (msgtype.MessageType, msgtype.Identifier, bool) {
	for _, mt := range c.messageTypes.All() {
		if mt.TypeGUID == typeGUID && mt.Flags.Kind == msgtype.KindPropertyStream {
			return *mt, mt.ID, true
		}
	}
	return msgtype.MessageType{}, 0, false
}

func (c *ClientPeer) handleBatchMessages(remote transport.PeerHandle, channel transport.Channel, sender netid.ClientIdentifier, fromHost bool, view *wire.BitView) error {
	count, ok := view.UnpackAndSkip(wire.BitsUint16)
	if !ok {
		view.Abort()
		return ErrMalformed
	}
	for i := uint64(0); i < count; i++ {
		if err := c.HandleMessage(remote, channel, sender, fromHost, view); err != nil {
			c.logger.Error("batched message failed", "index", i, "err", err)
			return err
		}
	}
	return nil
}

func (c *ClientPeer) handleObjectBound(view *wire.BitView) error {
	id, persistentGUID, ok := decodeObjectBound(view)
	if !ok {
		view.Abort()
		return ErrMalformed
	}
	c.pendingOwnersMu.Lock()
	owner, staged := c.pendingOwners[persistentGUID]
	delete(c.pendingOwners, persistentGUID)
	c.pendingOwnersMu.Unlock()
	if !staged {
		c.logger.Warn("ObjectBound for an object this client never staged", slog.Any("guid", persistentGUID))
	}
	c.boundObjects.BindAt(id, owner, persistentGUID)
	return nil
}

func (c *ClientPeer) handleConfirmPropagatedPropertyReceipt(sender netid.ClientIdentifier, view *wire.BitView) error {
	seq, messageTypeID, ok := decodeConfirmPropagatedPropertyReceipt(view)
	if !ok {
		view.Abort()
		return ErrMalformed
	}
	c.streamer.OnConfirmationReceipt(netid.InvalidClient, messageTypeID, seq)
	return nil
}

// confirmPropertyReceipt sends a ConfirmPropagatedPropertyReceipt back to
// the host for a property stream the core just accepted (spec §4.6 receive
// pass). sender is unused -- a client only ever receives property streams
// from the host.
func (c *ClientPeer) confirmPropertyReceipt(_ netid.ClientIdentifier, messageTypeID msgtype.Identifier, seq uint16) error {
	v := encodeConfirmPropagatedPropertyReceipt(seq, messageTypeID)
	c.mu.Lock()
	handle := c.hostHandle
	c.mu.Unlock()
	return c.transport.Send(handle, transport.ChannelControl, transport.UnreliableUnsequenced, v.Bytes())
}

// relayPropertyStream is a no-op on the client: there is no "other client"
// for a client to relay a host-originated property stream onward to.
func (c *ClientPeer) relayPropertyStream(netid.ClientIdentifier, msgtype.Identifier, []msgtype.PropertyDescriptor, DecodedPropertyStream) {
}

func (c *ClientPeer) handleBoundObjectAuthorityGivenToLocalClient(view *wire.BitView) error {
	id, ok := decodeAuthorityMessage(view)
	if !ok {
		view.Abort()
		return ErrMalformed
	}
	return c.boundObjects.GrantLocalAuthority(id)
}

func (c *ClientPeer) handleBoundObjectAuthorityRevokedFromLocalClient(view *wire.BitView) error {
	id, ok := decodeAuthorityMessage(view)
	if !ok {
		view.Abort()
		return ErrMalformed
	}
	return c.boundObjects.RevokeLocalAuthority(id)
}

func (c *ClientPeer) handleRequestForwardMessageToOtherClients(netid.ClientIdentifier, transport.PeerHandle, transport.Channel, *wire.BitView) error {
	c.logger.Warn("client received a client-to-host-only message type")
	return nil
}

func (c *ClientPeer) handleRequestForwardMessageToAllRemotes(netid.ClientIdentifier, transport.PeerHandle, transport.Channel, *wire.BitView) error {
	c.logger.Warn("client received a client-to-host-only message type")
	return nil
}

func (c *ClientPeer) handleReceivedForwardedMessage(remote transport.PeerHandle, channel transport.Channel, view *wire.BitView) error {
	return c.HandleMessage(remote, channel, netid.InvalidClient, true, view)
}

func (c *ClientPeer) handleRequestTimeSync(netid.ClientIdentifier, *wire.BitView) error {
	c.logger.Warn("client received a client-to-host-only message type")
	return nil
}

func (c *ClientPeer) handleReceivedTimeSyncResponse(view *wire.BitView) error {
	offsetNs, ok := decodeReceivedTimeSyncResponse(view)
	if !ok {
		view.Abort()
		return ErrMalformed
	}
	c.hostTimeOffsetNs.Store(offsetNs)
	return nil
}

// now is a package-level indirection so tests could substitute a clock if
// ever needed; production code always calls the real wall clock.
var now = time.Now
