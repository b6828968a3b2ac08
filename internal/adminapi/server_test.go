package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/peer"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/transport"
)

// fakeTransport is a minimal in-memory transport.Transport for exercising
// HostPeer without real sockets.
type fakeTransport struct {
	mu      sync.Mutex
	events  []transport.Event
	nextPH  transport.PeerHandle
	rtt     time.Duration
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{nextPH: 1, rtt: 20 * time.Millisecond}
}

func (f *fakeTransport) connectClient() transport.PeerHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.nextPH
	f.nextPH++
	f.events = append(f.events, transport.Event{Kind: transport.EventConnect, Peer: h})
	return h
}

func (f *fakeTransport) Connect(context.Context, string) (transport.PeerHandle, error) {
	return 0, transport.ErrNotConnected
}
func (f *fakeTransport) Disconnect(transport.PeerHandle) error      { return nil }
func (f *fakeTransport) ForceDisconnect(transport.PeerHandle) error { return nil }

func (f *fakeTransport) Service() (transport.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return transport.Event{Kind: transport.EventNone}, nil
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeTransport) Send(transport.PeerHandle, transport.Channel, transport.MessageFlags, []byte) error {
	return nil
}
func (f *fakeTransport) FlushPendingMessages() error { return nil }
func (f *fakeTransport) RTT(transport.PeerHandle) (time.Duration, error) {
	return f.rtt, nil
}
func (f *fakeTransport) Close() error { return nil }

var _ transport.Transport = (*fakeTransport)(nil)

func newTestHost(t *testing.T) (*peer.HostPeer, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	host := peer.NewHostPeer(nil, ft, time.Second/120)
	return host, ft
}

func TestHealthAndListClients(t *testing.T) {
	host, ft := newTestHost(t)

	ft.connectClient()
	host.Tick(time.Now())

	api := New(host, nil)
	ts := httptest.NewServer(api.Echo())
	defer ts.Close()

	healthResp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer healthResp.Body.Close()
	if healthResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", healthResp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(healthResp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Clients != 1 {
		t.Fatalf("expected 1 connected client, got %d", health.Clients)
	}

	clientsResp, err := http.Get(ts.URL + "/api/clients")
	if err != nil {
		t.Fatalf("GET /api/clients: %v", err)
	}
	defer clientsResp.Body.Close()
	var clients []clientInfo
	if err := json.NewDecoder(clientsResp.Body).Decode(&clients); err != nil {
		t.Fatalf("decode clients: %v", err)
	}
	if len(clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(clients))
	}
	if clients[0].RTTUnknown {
		t.Fatalf("expected a known RTT from the fake transport")
	}
}

func TestListMessageTypes(t *testing.T) {
	host, _ := newTestHost(t)

	api := New(host, nil)
	ts := httptest.NewServer(api.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/messagetypes")
	if err != nil {
		t.Fatalf("GET /api/messagetypes: %v", err)
	}
	defer resp.Body.Close()

	var types []messageTypeInfo
	if err := json.NewDecoder(resp.Body).Decode(&types); err != nil {
		t.Fatalf("decode message types: %v", err)
	}
	if len(types) == 0 {
		t.Fatal("expected at least the protocol-reserved message types")
	}
}

func TestDisconnectUnknownClient(t *testing.T) {
	host, _ := newTestHost(t)

	api := New(host, nil)
	ts := httptest.NewServer(api.Echo())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/clients/99/disconnect", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST disconnect: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown client, got %d", resp.StatusCode)
	}
}
