// Package transport defines the wire-level collaborator a Peer sends
// through and receives events from (spec §1, §6), plus a reference UDP
// implementation so the cmd/ binaries are runnable over real sockets
// (spec §4.7). The core networking packages (wire, msgtype, boundobj,
// propstream, peer) depend only on the Transport interface below; nothing
// there assumes UDP, ENet, or any other specific wire transport.
package transport

import (
	"context"
	"errors"
	"time"
)

// Channel identifies one of a peer connection's ordered channels. Channel 0
// is reserved for connection/registration/authority/time-sync protocol
// traffic; channel 1 is conventionally used for property streams; higher
// channels are application-chosen (spec §6 "Channels and reliability flags").
type Channel uint8

const (
	// ChannelControl carries connect/disconnect protocol, type
	// registration, object binding, authority, and time-sync messages,
	// all sent Reliable. Property-stream confirmation receipts also travel
	// on this channel, sent UnreliableUnsequenced.
	ChannelControl Channel = 0
	// ChannelPropertyStream carries propagated-property batches. Always
	// sent UnreliableUnsequenced.
	ChannelPropertyStream Channel = 1
)

// MessageFlags selects the reliability mode of one Send call (spec §6).
type MessageFlags uint8

const (
	// Reliable guarantees ordered, retransmitted delivery on the target
	// channel.
	Reliable MessageFlags = iota
	// UnreliableUnsequenced is fire-and-forget, latest-wins delivery with
	// no ordering guarantee -- the property-stream default.
	UnreliableUnsequenced
)

// PeerHandle identifies one remote endpoint at the transport layer. Its
// concrete representation is opaque to the rest of the networking core;
// peer.HostPeer and peer.ClientPeer key their own state off it.
type PeerHandle uint64

// ErrNotConnected indicates an operation was attempted against a
// PeerHandle the transport does not recognise as connected.
var ErrNotConnected = errors.New("transport: not connected")

// EventKind classifies one Service-returned Event.
type EventKind uint8

const (
	// EventNone means Service found nothing pending this call.
	EventNone EventKind = iota
	EventConnect
	EventReceive
	EventDisconnect
)

// Event is one transport-level occurrence surfaced to the tick loop's
// inbound drain (spec §4.3 "Inbound drain").
type Event struct {
	Kind    EventKind
	Peer    PeerHandle
	Channel Channel
	Data    []byte

	// Free must be called once Data has been fully consumed, releasing
	// the underlying buffer back to the transport's pool (spec §4.2
	// "ownership is released and a free-callback is registered").
	Free func()
}

// Transport is the collaborator a Peer sends through and polls for events.
// Implementers MUST NOT block in Service beyond a best-effort, effectively
// zero-timeout poll (spec §4.7: "poll for connect/receive/disconnect
// events, zero-timeout/non-blocking").
type Transport interface {
	// Connect begins an outbound connection attempt (client role).
	Connect(ctx context.Context, addr string) (PeerHandle, error)

	// Disconnect performs a cooperative, protocol-level disconnect:
	// the transport should still deliver a final EventDisconnect once
	// the remote end acknowledges.
	Disconnect(peer PeerHandle) error

	// ForceDisconnect resets the connection immediately, skipping any
	// disconnect handshake.
	ForceDisconnect(peer PeerHandle) error

	// Service polls for at most one pending event without blocking. It
	// returns an Event with Kind == EventNone when nothing is pending.
	Service() (Event, error)

	// Send transmits data to peer on channel under the given reliability
	// flags.
	Send(peer PeerHandle, channel Channel, flags MessageFlags, data []byte) error

	// FlushPendingMessages requests the transport send any internally
	// queued/batched output immediately rather than waiting for its next
	// natural flush point (spec §4.5: "FlushPendingMessages is called to
	// minimise connect latency").
	FlushPendingMessages() error

	// RTT returns the transport's own round-trip-time estimate for peer
	// (spec §5 supplemented feature: "RTT for a client is read from the
	// underlying peer library").
	RTT(peer PeerHandle) (time.Duration, error)

	// Close releases all transport resources, e.g. the underlying socket.
	Close() error
}
