package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/transport"
)

func waitForEvent(t *testing.T, tr *transport.UDPTransport, kind transport.EventKind) transport.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev, err := tr.Service()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Kind == kind {
			return ev
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for event kind %v", kind)
	return transport.Event{}
}

func TestConnectHandshakeBothSidesSeeEventConnect(t *testing.T) {
	host, err := transport.NewUDPTransport("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer host.Close()
	client, err := transport.NewUDPTransport("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	hostAddr := host.LocalAddr()
	if _, err := client.Connect(context.Background(), hostAddr); err != nil {
		t.Fatal(err)
	}

	waitForEvent(t, host, transport.EventConnect)
	waitForEvent(t, client, transport.EventConnect)
}

func TestReliableSendIsDeliveredAndAcked(t *testing.T) {
	host, err := transport.NewUDPTransport("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer host.Close()
	client, err := transport.NewUDPTransport("127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	peer, err := client.Connect(context.Background(), host.LocalAddr())
	if err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, client, transport.EventConnect)
	hostEv := waitForEvent(t, host, transport.EventConnect)

	payload := []byte("hello")
	if err := client.Send(peer, transport.ChannelControl, transport.Reliable, payload); err != nil {
		t.Fatal(err)
	}

	recv := waitForEvent(t, host, transport.EventReceive)
	if string(recv.Data) != "hello" {
		t.Fatalf("received %q, want %q", recv.Data, "hello")
	}
	if recv.Peer != hostEv.Peer {
		t.Fatalf("received from peer %v, want %v", recv.Peer, hostEv.Peer)
	}
	recv.Free()
}
