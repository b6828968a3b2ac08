package boundcomponent_test

import (
	"errors"
	"testing"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/boundcomponent"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/msgtype"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/transport"
)

type fakeSender struct {
	sent []boundcomponent.QueuedMessage
	err  error
}

func (f *fakeSender) SendQueued(msg boundcomponent.QueuedMessage) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func TestNewComponentStartsUnbound(t *testing.T) {
	c := boundcomponent.New()
	if c.IsBound() {
		t.Fatal("expected new component to be unbound")
	}
	if c.Identifier() != netid.InvalidBoundObject {
		t.Fatalf("identifier = %v, want InvalidBoundObject", c.Identifier())
	}
}

func TestSendOrQueueSendsImmediatelyWhenBound(t *testing.T) {
	c := boundcomponent.New()
	sender := &fakeSender{}
	if err := c.OnAssignedBoundObjectIdentifier(netid.BoundObjectIdentifier(7), sender); err != nil {
		t.Fatal(err)
	}

	msg := boundcomponent.QueuedMessage{Kind: boundcomponent.HostToAllClients, MessageType: msgtype.Identifier(42)}
	if err := c.SendOrQueue(sender, msg); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.sent))
	}
	if c.QueueLen() != 0 {
		t.Fatal("expected nothing queued once bound")
	}
}

func TestSendOrQueueBuffersUntilBound(t *testing.T) {
	c := boundcomponent.New()
	sender := &fakeSender{}

	first := boundcomponent.QueuedMessage{Kind: boundcomponent.ClientToHost, MessageType: msgtype.Identifier(1)}
	second := boundcomponent.QueuedMessage{Kind: boundcomponent.ClientToHost, MessageType: msgtype.Identifier(2)}
	if err := c.SendOrQueue(sender, first); err != nil {
		t.Fatal(err)
	}
	if err := c.SendOrQueue(sender, second); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no immediate sends while unbound, got %d", len(sender.sent))
	}
	if c.QueueLen() != 2 {
		t.Fatalf("queue len = %d, want 2", c.QueueLen())
	}

	if err := c.OnAssignedBoundObjectIdentifier(netid.BoundObjectIdentifier(3), sender); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 drained sends, got %d", len(sender.sent))
	}
	if sender.sent[0].MessageType != msgtype.Identifier(1) || sender.sent[1].MessageType != msgtype.Identifier(2) {
		t.Fatal("expected queued messages drained in FIFO order")
	}
	if c.QueueLen() != 0 {
		t.Fatal("expected queue cleared after draining")
	}
	if !c.IsBound() || c.Identifier() != netid.BoundObjectIdentifier(3) {
		t.Fatal("expected component bound to identifier 3")
	}
}

func TestOnAssignedBoundObjectIdentifierContinuesDrainingAfterSendError(t *testing.T) {
	c := boundcomponent.New()
	sender := &fakeSender{err: errors.New("send failed")}

	c.SendOrQueue(sender, boundcomponent.QueuedMessage{MessageType: msgtype.Identifier(1)})
	c.SendOrQueue(sender, boundcomponent.QueuedMessage{MessageType: msgtype.Identifier(2)})

	err := c.OnAssignedBoundObjectIdentifier(netid.BoundObjectIdentifier(5), sender)
	if err == nil {
		t.Fatal("expected first send error to be returned")
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected both queued messages attempted despite error, got %d", len(sender.sent))
	}
}

func TestQueuedMessageCarriesChannelAndTarget(t *testing.T) {
	c := boundcomponent.New()
	sender := &fakeSender{}
	target := netid.ClientIdentifier(9)
	msg := boundcomponent.QueuedMessage{
		Kind:        boundcomponent.HostToClient,
		MessageType: msgtype.Identifier(11),
		Channel:     transport.ChannelPropertyStream,
		Flags:       transport.UnreliableUnsequenced,
		Payload:     []byte{1, 2, 3},
		Target:      target,
	}
	c.SendOrQueue(sender, msg)
	c.OnAssignedBoundObjectIdentifier(netid.BoundObjectIdentifier(1), sender)

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 drained send, got %d", len(sender.sent))
	}
	got := sender.sent[0]
	if got.Target != target || got.Channel != transport.ChannelPropertyStream {
		t.Fatal("expected queued message fields preserved through drain")
	}
}
