// Package boundcomponent implements the session-side hook a networked
// scene object attaches: the BoundObjectIdentifier it is eventually
// assigned, and the one persistent queue in the send path for messages
// addressed to it before that assignment arrives (spec §4.3 edge cases,
// §7 "Not yet bound objects", §9; modeled on
// original_source/.../BoundComponent.h).
package boundcomponent

import (
	"sync"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/msgtype"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/transport"
)

// QueueKind mirrors the source's QueuedMessage::Type: which send path a
// queued message was destined for, so draining replays it correctly.
type QueueKind uint8

const (
	HostToAllClients QueueKind = iota
	HostToRemoteClients
	HostToClient
	HostToOtherClients
	ClientToHost
)

// QueuedMessage is one send deferred because its BoundComponent was not yet
// bound (original source: "QueuedMessage").
type QueuedMessage struct {
	Kind        QueueKind
	MessageType msgtype.Identifier
	Channel     transport.Channel
	Flags       transport.MessageFlags
	Payload     []byte
	// Target is only meaningful for HostToClient and HostToOtherClients.
	Target netid.ClientIdentifier
}

// Sender is the narrow send surface BoundComponent needs to drain its
// queue -- implemented by peer.HostPeer / peer.ClientPeer. Kept minimal and
// defined here (rather than importing package peer) so boundcomponent has
// no dependency on the peer package, avoiding an import cycle back from
// peer to boundcomponent.
type Sender interface {
	SendQueued(msg QueuedMessage) error
}

// BoundComponent is the Go analogue of the source's BoundComponent: it
// knows its own BoundObjectIdentifier once assigned and buffers outbound
// messages addressed to itself until then.
type BoundComponent struct {
	mu sync.RWMutex
	id netid.BoundObjectIdentifier

	queueMu sync.Mutex
	queued  []QueuedMessage
}

// New returns an unbound BoundComponent.
func New() *BoundComponent {
	return &BoundComponent{id: netid.InvalidBoundObject}
}

// IsBound reports whether an identifier has been assigned yet.
func (c *BoundComponent) IsBound() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id.Valid()
}

// Identifier returns the assigned BoundObjectIdentifier, or
// netid.InvalidBoundObject if not yet bound.
func (c *BoundComponent) Identifier() netid.BoundObjectIdentifier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// SendOrQueue sends msg immediately through sender if this component is
// already bound, otherwise appends it to the queue for later draining
// (original source: "if (m_boundObjectIdentifier.IsValid()) { ... } else {
// ... m_queuedMessages.EmplaceBack(...) }").
func (c *BoundComponent) SendOrQueue(sender Sender, msg QueuedMessage) error {
	if c.IsBound() {
		return sender.SendQueued(msg)
	}
	c.queueMu.Lock()
	c.queued = append(c.queued, msg)
	c.queueMu.Unlock()
	return nil
}

// OnAssignedBoundObjectIdentifier records id and drains every queued
// message through sender, in FIFO order, clearing the queue
// (spec §7: "Not yet bound objects ... queued, sent once bound"). Returns
// the first send error encountered, if any; draining continues regardless
// so a single bad send does not strand the rest of the queue.
func (c *BoundComponent) OnAssignedBoundObjectIdentifier(id netid.BoundObjectIdentifier, sender Sender) error {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()

	c.queueMu.Lock()
	pending := c.queued
	c.queued = nil
	c.queueMu.Unlock()

	var firstErr error
	for _, msg := range pending {
		if err := sender.SendQueued(msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// QueueLen returns the number of messages currently queued, for tests and
// introspection.
func (c *BoundComponent) QueueLen() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queued)
}
