// Package peer implements the tick loop, message dispatch, and type
// registration protocol shared by ClientPeer and HostPeer (spec §4.3), plus
// the role-specific behaviours in client.go and host.go: connect/disconnect
// lifecycle and host time-offset tracking for the client, per-client
// identifier allocation and broadcast fan-out for the host.
package peer

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/boundobj"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/msgtype"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/propstream"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/transport"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/wire"
)

// Mode controls how a Peer's tick is re-scheduled once a tick finishes
// (spec §4.3 "After draining, the Peer returns AwaitExternalFinish").
type Mode uint8

const (
	// Asynchronous re-schedules the peer at UpdatePeriod on its own timer.
	Asynchronous Mode = iota
	// EngineTick lets an external driver invoke Tick whenever it ticks.
	EngineTick
	// Disabled stops automatic re-scheduling entirely.
	Disabled
)

var (
	// ErrDirectionViolation means the sender's side is not permitted to
	// originate this message type (spec §8 property 2).
	ErrDirectionViolation = errors.New("peer: message rejected, direction not permitted")
	// ErrNoAuthority means the sender does not hold authority over the
	// targeted bound object and the message type requires it (spec §8
	// property 3).
	ErrNoAuthority = errors.New("peer: sender lacks authority over bound object")
	// ErrMalformed means the message could not be decoded (spec §7
	// "Malformed message").
	ErrMalformed = errors.New("peer: malformed message")
	// ErrObjectUnavailable means the targeted bound object does not exist
	// or its owner reports itself as destroying (spec §7 "Missing bound
	// object / destroying component").
	ErrObjectUnavailable = errors.New("peer: bound object unavailable")
	// ErrRateLimited means the peer-wide outbound limiter has no budget left
	// for this send this tick (spec §6 "Start(..., inBW, outBW, ...)").
	ErrRateLimited = errors.New("peer: outbound rate limit exceeded")
)

// DefaultUpdatePeriod is the property-stream send-pass rate limit (spec
// §4.3: "default 120 Hz").
const DefaultUpdatePeriod = time.Second / 120

// Peer holds everything ClientPeer and HostPeer share: the transport
// handle, the message-type and bound-object registries, the property
// streamer, direction masks, and the tick-scheduling state (spec §4.3
// "Each Peer owns...").
type Peer struct {
	logger *slog.Logger

	// self lets built-in protocol trampolines (registered against the
	// generic msgtype.Trampoline signature) recover the concrete
	// *ClientPeer or *HostPeer without an import cycle back into this
	// package from msgtype (spec §4.3 step 4 "pass the peer").
	self any

	// updateMu is m_updateMutex: guards transport Service/Flush so the tick
	// thread never overlaps itself across a mode change (spec §5 table).
	updateMu sync.Mutex

	transport    transport.Transport
	messageTypes *msgtype.Registry
	boundObjects *boundobj.Registry
	streamer     *propstream.Streamer

	receivable msgtype.Direction
	sendable   msgtype.Direction

	updatePeriod time.Duration
	limiter      *rate.Limiter

	modeMu sync.Mutex
	mode   Mode
}

func newPeer(logger *slog.Logger, isHost bool, updatePeriod time.Duration, t transport.Transport) *Peer {
	if updatePeriod <= 0 {
		updatePeriod = DefaultUpdatePeriod
	}
	receivable := msgtype.FromHost
	sendable := msgtype.FromClient
	if isHost {
		receivable = msgtype.FromClient
		sendable = msgtype.FromHost
	}
	return &Peer{
		logger:       logger,
		transport:    t,
		messageTypes: msgtype.NewRegistry(),
		boundObjects: boundobj.NewRegistry(),
		streamer:     propstream.NewStreamer(),
		receivable:   receivable,
		sendable:     sendable,
		updatePeriod: updatePeriod,
		limiter:      rate.NewLimiter(rate.Inf, 1),
		mode:         Asynchronous,
	}
}

// SetMode changes the tick scheduling mode (spec §4.3 "Mode transitions are
// applied immediately on a scheduler-modification barrier").
func (p *Peer) SetMode(m Mode) {
	p.modeMu.Lock()
	p.mode = m
	p.modeMu.Unlock()
}

// ModeValue returns the current scheduling mode.
func (p *Peer) ModeValue() Mode {
	p.modeMu.Lock()
	defer p.modeMu.Unlock()
	return p.mode
}

// SetSendRateLimit configures a peer-wide outbound bandwidth limiter (spec
// §6 "Start(..., inBW, outBW, ...)"); ratePerSecond <= 0 disables limiting.
func (p *Peer) SetSendRateLimit(ratePerSecond float64, burst int) {
	if ratePerSecond <= 0 {
		p.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	if burst <= 0 {
		burst = 1
	}
	p.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}

// allowSend reports whether the outbound rate limiter currently has budget
// for one more message. Handshake, authority, and time-sync control traffic
// bypass it; it only gates application-originated sends (function calls and
// property streams).
func (p *Peer) allowSend() bool {
	return p.limiter.Allow()
}

// RegisterFunction assigns the next free Identifier to a remotely invokable
// function (spec §4.5 "For each reflected function with a networked flag").
func (p *Peer) RegisterFunction(functionGUID uuid.UUID, flags msgtype.Flags, args []msgtype.Argument, trampoline msgtype.Trampoline) (msgtype.Identifier, error) {
	mt := &msgtype.MessageType{FunctionGUID: functionGUID, Flags: flags, Arguments: args, Trampoline: trampoline}
	if trampoline == nil {
		mt.SendOnly = true
	}
	return p.messageTypes.Register(mt)
}

// RegisterPropertyStreamType assigns the next free Identifier to a
// property-stream message type (spec §4.5 "For each reflected type with
// networked properties"). values supplies current property values for this
// peer's own outbound sends; pass nil for a type this peer only receives.
func (p *Peer) RegisterPropertyStreamType(typeGUID uuid.UUID, flags msgtype.Flags, properties []msgtype.PropertyDescriptor, values msgtype.ValueSource, trampoline msgtype.Trampoline) (msgtype.Identifier, error) {
	flags.Kind = msgtype.KindPropertyStream
	mt := &msgtype.MessageType{TypeGUID: typeGUID, Flags: flags, Properties: properties, Values: values, Trampoline: trampoline}
	return p.messageTypes.Register(mt)
}

// FindMessageIdentifier returns the locally assigned Identifier for
// functionGUID, if this peer has registered (or learned, via the handshake)
// one (spec §3 "FindMessageIdentifier<Function>() works locally").
func (p *Peer) FindMessageIdentifier(functionGUID uuid.UUID) (msgtype.Identifier, bool) {
	return p.messageTypes.FindIdentifier(functionGUID)
}

// MessageTypes exposes the registry for enumeration (the batched handshake,
// admin introspection).
func (p *Peer) MessageTypes() *msgtype.Registry { return p.messageTypes }

// BoundObjects exposes the bound-object registry.
func (p *Peer) BoundObjects() *boundobj.Registry { return p.boundObjects }

// Streamer exposes the property streamer.
func (p *Peer) Streamer() *propstream.Streamer { return p.streamer }

// Transport exposes the underlying transport.
func (p *Peer) Transport() transport.Transport { return p.transport }

// decodeArguments sequentially decompresses each argument type from view
// (spec §4.3 step 5 "Decoded argument blob is assembled by sequentially
// decompressing each argument type").
func decodeArguments(view *wire.BitView, args []msgtype.Argument, scope wire.FlagScope) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, ok := a.Decompress(view, scope)
		if !ok {
			return nil, ErrMalformed
		}
		out[i] = v
	}
	return out, nil
}

// encodeArguments packs each argument's value into view in order. Returns
// false on the first failure (e.g. view ran out of bits).
func encodeArguments(view *wire.BitView, args []msgtype.Argument, values []any, scope wire.FlagScope) bool {
	for i, a := range args {
		if !a.Compress(view, values[i], scope) {
			return false
		}
	}
	return true
}

// HandleMessage decodes and dispatches exactly one top-level message from
// view, whose cursor must sit at the message's MessageTypeIdentifier (spec
// §4.3 "Dispatch (HandleMessage / PreprocessMessage)").
//
// sender names the client that originated the message (netid.InvalidClient
// if fromHost is true). remote and channel identify the transport-level
// origin, passed through to plain/object-function trampolines.
//
// Register-file layout by Kind (spec §4.3 step 4 "R0..R5"):
//
//	Protocol / KindPlain:    {self, remote, channel, sender, payload, fromHost}
//	                         payload is *wire.BitView for protocol messages
//	                         (raw view) or []any for registered plain
//	                         functions (decoded argument blob).
//	KindObjectFunction,
//	KindComponentFunction,
//	KindDataComponentFunction: {owner.Value, self, remote, channel, sender, args}
//	                         Component/data-component resolution collapses to
//	                         the same owner-handle path here: the scene graph
//	                         that would normally distinguish them is an
//	                         external collaborator out of scope (spec §1),
//	                         so dispatch only has the OwnerHandle's Kind tag
//	                         to route on, not a real component tree.
//	KindPropertyStream:      {self, messageTypeID, remote, channel, sender, decoded}
//	                         decoded is a DecodedPropertyStream -- the core
//	                         already runs the full receive pass (decode,
//	                         empty rejection, confirmation receipt, host
//	                         relay) before a trampoline ever sees it (spec
//	                         §4.6), so a trampoline here only applies
//	                         already-concrete values.
func (p *Peer) HandleMessage(remote transport.PeerHandle, channel transport.Channel, sender netid.ClientIdentifier, fromHost bool, view *wire.BitView) error {
	idRaw, ok := view.UnpackAndSkip(msgtype.BitsForIdentifier)
	if !ok {
		view.Abort()
		p.logger.Error("malformed message: truncated identifier")
		return ErrMalformed
	}
	id := msgtype.Identifier(idRaw)

	mt, ok := p.messageTypes.Lookup(id)
	if !ok {
		view.Abort()
		p.logger.Error("unknown message type identifier", slog.Any("id", id))
		return msgtype.ErrUnknownIdentifier
	}

	wantDir := msgtype.FromClient
	if fromHost {
		wantDir = msgtype.FromHost
	}
	if mt.Flags.Direction&wantDir == 0 {
		view.Abort()
		p.logger.Warn("direction violation", slog.Any("id", id), slog.Bool("fromHost", fromHost))
		return ErrDirectionViolation
	}

	var owner boundobj.OwnerHandle
	var objID netid.BoundObjectIdentifier
	if mt.Flags.IsObjectFunction() {
		raw, ok := view.UnpackAndSkip(netid.BitsForBoundObjectIdentifier)
		if !ok {
			view.Abort()
			return ErrMalformed
		}
		objID = netid.BoundObjectIdentifier(raw)
		if !mt.Flags.AllowClientToHostWithoutAuthority {
			if !p.boundObjects.CanHandleBoundObjectMessage(objID, sender, fromHost) {
				view.Abort()
				p.logger.Warn("authority violation", slog.Any("object", objID), slog.Any("sender", sender))
				return ErrNoAuthority
			}
		}
		var err error
		owner, err = p.boundObjects.Lookup(objID)
		if err != nil {
			view.Abort()
			p.logger.Error("bound object unavailable", slog.Any("object", objID), "err", err)
			return ErrObjectUnavailable
		}
	}

	switch {
	case msgtype.IsProtocol(id):
		// Protocol messages receive the raw bit view (spec §4.3 step 4).
		return p.invoke(mt, msgtype.Registers{p.self, remote, channel, sender, view, fromHost})

	case mt.Flags.Kind == msgtype.KindPropertyStream:
		return p.handlePropertyStream(mt, id, remote, channel, sender, fromHost, view)

	default:
		args, err := decodeArguments(view, mt.Arguments, wire.ScopeFunctionArguments)
		if err != nil {
			view.Abort()
			p.logger.Error("argument decompression failed", slog.Any("id", id))
			return err
		}
		if mt.Flags.IsObjectFunction() {
			return p.invoke(mt, msgtype.Registers{owner.Value, p.self, remote, channel, sender, args})
		}
		return p.invoke(mt, msgtype.Registers{p.self, remote, channel, sender, args, fromHost})
	}
}

func (p *Peer) invoke(mt *msgtype.MessageType, regs msgtype.Registers) error {
	if mt.Trampoline == nil {
		return nil
	}
	return mt.Trampoline(regs)
}

// PreprocessMessage re-validates (without dispatching) that sender is
// allowed to originate the message sitting at view's cursor: known type,
// correct direction, and -- for object functions -- current authority over
// the target (spec §4.7 step 2 "re-validate the sender's authority").
// It never advances view; forwarding uses a cloned cursor so the original
// bits are still intact to wrap into the relayed packet.
func (p *Peer) PreprocessMessage(sender netid.ClientIdentifier, fromHost bool, view *wire.BitView) error {
	cursor := view.Clone()

	idRaw, ok := cursor.UnpackAndSkip(msgtype.BitsForIdentifier)
	if !ok {
		return ErrMalformed
	}
	id := msgtype.Identifier(idRaw)

	mt, ok := p.messageTypes.Lookup(id)
	if !ok {
		return msgtype.ErrUnknownIdentifier
	}

	wantDir := msgtype.FromClient
	if fromHost {
		wantDir = msgtype.FromHost
	}
	if mt.Flags.Direction&wantDir == 0 {
		return ErrDirectionViolation
	}

	if mt.Flags.IsObjectFunction() && !mt.Flags.AllowClientToHostWithoutAuthority {
		raw, ok := cursor.UnpackAndSkip(netid.BitsForBoundObjectIdentifier)
		if !ok {
			return ErrMalformed
		}
		objID := netid.BoundObjectIdentifier(raw)
		if !p.boundObjects.CanHandleBoundObjectMessage(objID, sender, fromHost) {
			return ErrNoAuthority
		}
	}
	return nil
}

// newMessageView allocates a zeroed, byte-rounded buffer sized to bitLen
// usable bits (spec §4.2 "MessageBuffer owns a zero-initialised byte array
// sized to the required bit count, rounded up").
func newMessageView(bitLen int) *wire.BitView {
	return wire.NewView(make([]byte, wire.RequiredBytes(bitLen)), bitLen)
}
