package peer_test

import (
	"context"
	"sync"
	"time"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/transport"
)

// pipeTransport is a minimal in-memory transport.Transport, one of a linked
// pair, that delivers a Send on one side as an EventReceive on the other --
// unlike internal/adminapi's fakeTransport, which only ever observes one
// side of a connection, a linked pair lets a test drive a real HostPeer and
// ClientPeer through a full handshake and message exchange without sockets.
type pipeTransport struct {
	mu     sync.Mutex
	queue  []transport.Event
	self   transport.PeerHandle
	remote *pipeTransport
	rtt    time.Duration
	dialer bool
}

// newPipePair returns a linked (host-side, client-side) transport pair. Both
// sides use the fixed handle 1 for their single peer, since a test pair
// models exactly one connection.
func newPipePair() (hostSide, clientSide *pipeTransport) {
	hostSide = &pipeTransport{self: 1, rtt: 5 * time.Millisecond}
	clientSide = &pipeTransport{self: 1, rtt: 5 * time.Millisecond, dialer: true}
	hostSide.remote = clientSide
	clientSide.remote = hostSide
	return hostSide, clientSide
}

func (t *pipeTransport) push(ev transport.Event) {
	t.mu.Lock()
	t.queue = append(t.queue, ev)
	t.mu.Unlock()
}

// Connect is only valid on the dialing (client) side; it enqueues
// EventConnect on both ends of the pair, matching a real transport's accept
// notification arriving on the host the same tick the client's own connect
// confirmation does.
func (t *pipeTransport) Connect(context.Context, string) (transport.PeerHandle, error) {
	if !t.dialer {
		return 0, transport.ErrNotConnected
	}
	t.push(transport.Event{Kind: transport.EventConnect, Peer: t.self})
	t.remote.push(transport.Event{Kind: transport.EventConnect, Peer: t.remote.self})
	return t.self, nil
}

func (t *pipeTransport) Disconnect(peer transport.PeerHandle) error {
	t.push(transport.Event{Kind: transport.EventDisconnect, Peer: peer})
	t.remote.push(transport.Event{Kind: transport.EventDisconnect, Peer: t.remote.self})
	return nil
}

func (t *pipeTransport) ForceDisconnect(peer transport.PeerHandle) error {
	return t.Disconnect(peer)
}

func (t *pipeTransport) Service() (transport.Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return transport.Event{Kind: transport.EventNone}, nil
	}
	ev := t.queue[0]
	t.queue = t.queue[1:]
	return ev, nil
}

// Send copies data (the sender's view is reused/mutated after Send returns)
// and delivers it as an EventReceive on the other end of the pair.
func (t *pipeTransport) Send(_ transport.PeerHandle, channel transport.Channel, _ transport.MessageFlags, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	t.remote.push(transport.Event{Kind: transport.EventReceive, Peer: t.remote.self, Channel: channel, Data: cp})
	return nil
}

func (t *pipeTransport) FlushPendingMessages() error { return nil }

func (t *pipeTransport) RTT(transport.PeerHandle) (time.Duration, error) {
	return t.rtt, nil
}

func (t *pipeTransport) Close() error { return nil }

var _ transport.Transport = (*pipeTransport)(nil)

// settle drives alternating ticks until both sides' queues have quiesced,
// enough rounds for a connect handshake, its time-sync round trip, and one
// follow-on message exchange to fully drain.
func settle(now time.Time, first, second interface{ Tick(time.Time) }) {
	for i := 0; i < 8; i++ {
		first.Tick(now)
		second.Tick(now)
	}
}

// hub is a minimal multi-client in-memory transport.Transport modelling one
// host serving several independently connected clients -- a linked
// pipeTransport pair always models exactly one connection, which can never
// observe a forwarding relay landing on anyone but the sender.
type hub struct {
	mu      sync.Mutex
	queue   []transport.Event
	clients map[transport.PeerHandle]*hubLeaf
	next    transport.PeerHandle
}

func newHub() *hub {
	return &hub{clients: make(map[transport.PeerHandle]*hubLeaf), next: 1}
}

func (h *hub) push(ev transport.Event) {
	h.mu.Lock()
	h.queue = append(h.queue, ev)
	h.mu.Unlock()
}

// connectClient returns a new client-side leaf for this hub; it does not
// connect it yet -- call Connect on the returned leaf.
func (h *hub) connectClient() *hubLeaf {
	h.mu.Lock()
	handle := h.next
	h.next++
	leaf := &hubLeaf{hub: h, self: handle}
	h.clients[handle] = leaf
	h.mu.Unlock()
	return leaf
}

func (h *hub) Connect(context.Context, string) (transport.PeerHandle, error) {
	return 0, transport.ErrNotConnected
}

func (h *hub) Disconnect(peer transport.PeerHandle) error {
	h.mu.Lock()
	leaf, ok := h.clients[peer]
	delete(h.clients, peer)
	h.mu.Unlock()
	if ok {
		leaf.push(transport.Event{Kind: transport.EventDisconnect, Peer: leaf.self})
	}
	return nil
}

func (h *hub) ForceDisconnect(peer transport.PeerHandle) error { return h.Disconnect(peer) }

func (h *hub) Service() (transport.Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return transport.Event{Kind: transport.EventNone}, nil
	}
	ev := h.queue[0]
	h.queue = h.queue[1:]
	return ev, nil
}

func (h *hub) Send(peer transport.PeerHandle, channel transport.Channel, _ transport.MessageFlags, data []byte) error {
	h.mu.Lock()
	leaf, ok := h.clients[peer]
	h.mu.Unlock()
	if !ok {
		return transport.ErrNotConnected
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	leaf.push(transport.Event{Kind: transport.EventReceive, Peer: leaf.self, Channel: channel, Data: cp})
	return nil
}

func (h *hub) FlushPendingMessages() error { return nil }

func (h *hub) RTT(transport.PeerHandle) (time.Duration, error) { return 5 * time.Millisecond, nil }

func (h *hub) Close() error { return nil }

var _ transport.Transport = (*hub)(nil)

// hubLeaf is one connected client's side of a hub.
type hubLeaf struct {
	mu    sync.Mutex
	queue []transport.Event
	hub   *hub
	self  transport.PeerHandle
}

func (l *hubLeaf) push(ev transport.Event) {
	l.mu.Lock()
	l.queue = append(l.queue, ev)
	l.mu.Unlock()
}

func (l *hubLeaf) Connect(context.Context, string) (transport.PeerHandle, error) {
	l.push(transport.Event{Kind: transport.EventConnect, Peer: l.self})
	l.hub.push(transport.Event{Kind: transport.EventConnect, Peer: l.self})
	return l.self, nil
}

func (l *hubLeaf) Disconnect(peer transport.PeerHandle) error {
	l.push(transport.Event{Kind: transport.EventDisconnect, Peer: peer})
	l.hub.push(transport.Event{Kind: transport.EventDisconnect, Peer: l.self})
	return nil
}

func (l *hubLeaf) ForceDisconnect(peer transport.PeerHandle) error { return l.Disconnect(peer) }

func (l *hubLeaf) Service() (transport.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return transport.Event{Kind: transport.EventNone}, nil
	}
	ev := l.queue[0]
	l.queue = l.queue[1:]
	return ev, nil
}

func (l *hubLeaf) Send(_ transport.PeerHandle, channel transport.Channel, _ transport.MessageFlags, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	l.hub.push(transport.Event{Kind: transport.EventReceive, Peer: l.self, Channel: channel, Data: cp})
	return nil
}

func (l *hubLeaf) FlushPendingMessages() error { return nil }

func (l *hubLeaf) RTT(transport.PeerHandle) (time.Duration, error) { return 5 * time.Millisecond, nil }

func (l *hubLeaf) Close() error { return nil }

var _ transport.Transport = (*hubLeaf)(nil)

// settleAll drives alternating ticks across every connected client and the
// host until their queues quiesce.
func settleAll(now time.Time, host interface{ Tick(time.Time) }, clients ...interface{ Tick(time.Time) }) {
	for i := 0; i < 8; i++ {
		for _, c := range clients {
			c.Tick(now)
		}
		host.Tick(now)
	}
}
