package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// frameKind tags the first byte of every UDP datagram this adapter sends.
type frameKind uint8

const (
	frameData frameKind = iota
	frameAck
	frameConnect
	frameConnectAck
	frameDisconnect
)

// Frame layout: [kind:1][channel:1][flags:1][seq:2 big-endian][payload...].
// seq is meaningful only for Reliable data frames and for the ack that
// answers one; unreliable sends carry seq 0 and are never retransmitted.
const frameHeaderLen = 5

const (
	maxDatagramSize = 1400
	resendInterval  = 150 * time.Millisecond
	resendAttempts  = 20
)

// pendingReliable tracks one not-yet-acknowledged reliable send awaiting
// retransmission (spec §4.7 "ack-resend on channel 0").
type pendingReliable struct {
	raw      []byte
	attempts int
	lastSent time.Time
}

type peerState struct {
	addr *net.UDPAddr

	mu            sync.Mutex
	nextSeq       uint16
	pending       map[uint16]*pendingReliable
	lastRecvSeq   map[Channel]uint16
	connectedOnce bool
}

// UDPTransport is the reference Transport implementation over
// net.PacketConn (spec §4.7 "internal/transport/udpconn.go"). It provides
// just enough reliability -- ack-resend on channel 0, fire-and-forget
// elsewhere -- for the cmd/ binaries to exchange the protocol defined in
// package peer over real UDP sockets; it is explicitly not a
// feature-complete ENet replacement.
type UDPTransport struct {
	conn   *net.UDPConn
	logger *slog.Logger

	mu       sync.Mutex
	peers    map[PeerHandle]*peerState
	byAddr   map[string]PeerHandle
	nextPeer PeerHandle

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// UDPOption configures an optional UDPTransport parameter.
type UDPOption func(*UDPTransport)

// NewUDPTransport binds a UDP socket at localAddr and starts its
// background read loop. logger defaults to slog.Default() if nil.
func NewUDPTransport(localAddr string, logger *slog.Logger, opts ...UDPOption) (*UDPTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", localAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", localAddr, err)
	}

	t := &UDPTransport{
		conn:     conn,
		logger:   logger.With(slog.String("component", "transport.udp"), slog.String("local", conn.LocalAddr().String())),
		peers:    make(map[PeerHandle]*peerState),
		byAddr:   make(map[string]PeerHandle),
		nextPeer: 1,
		events:   make(chan Event, 256),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	tuneSocketBuffers(conn, t.logger)

	t.wg.Add(2)
	go t.readLoop()
	go t.resendLoop()
	return t, nil
}

// tuneSocketBuffers widens the kernel send/receive buffers so a burst of
// property-stream datagrams does not drop under load. Grounded on the
// teacher's netio package using golang.org/x/sys/unix for Linux socket
// option tuning rather than net.UDPConn's narrower SetReadBuffer API, which
// cannot express SO_REUSEADDR.
func tuneSocketBuffers(conn *net.UDPConn, logger *slog.Logger) {
	raw, err := conn.SyscallConn()
	if err != nil {
		logger.Warn("socket tuning unavailable", slog.Any("error", err))
		return
	}
	const bufBytes = 1 << 20
	ctrlErr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			logger.Warn("SO_REUSEADDR failed", slog.Any("error", err))
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bufBytes); err != nil {
			logger.Warn("SO_RCVBUF failed", slog.Any("error", err))
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, bufBytes); err != nil {
			logger.Warn("SO_SNDBUF failed", slog.Any("error", err))
		}
	})
	if ctrlErr != nil {
		logger.Warn("socket control failed", slog.Any("error", ctrlErr))
	}
}

// Connect sends a connect handshake frame to addr and returns a PeerHandle
// immediately; the corresponding EventConnect arrives via Service once the
// remote end's frameConnectAck is received.
func (t *UDPTransport) Connect(ctx context.Context, addr string) (PeerHandle, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", addr, err)
	}
	handle := t.peerFor(udpAddr)
	frame := []byte{byte(frameConnect), byte(ChannelControl), byte(Reliable), 0, 0}
	if _, err := t.conn.WriteToUDP(frame, udpAddr); err != nil {
		return 0, fmt.Errorf("send connect to %s: %w", addr, err)
	}
	return handle, nil
}

func (t *UDPTransport) peerFor(addr *net.UDPAddr) PeerHandle {
	key := addr.String()
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.byAddr[key]; ok {
		return h
	}
	h := t.nextPeer
	t.nextPeer++
	t.peers[h] = &peerState{addr: addr, pending: make(map[uint16]*pendingReliable), lastRecvSeq: make(map[Channel]uint16)}
	t.byAddr[key] = h
	return h
}

func (t *UDPTransport) peer(handle PeerHandle) (*peerState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[handle]
	return p, ok
}

// Disconnect sends a cooperative disconnect frame; the peer state is
// removed once the final EventDisconnect is synthesized.
func (t *UDPTransport) Disconnect(peer PeerHandle) error {
	p, ok := t.peer(peer)
	if !ok {
		return ErrNotConnected
	}
	frame := []byte{byte(frameDisconnect), byte(ChannelControl), byte(Reliable), 0, 0}
	_, err := t.conn.WriteToUDP(frame, p.addr)
	return err
}

// ForceDisconnect drops peer state immediately without a handshake.
func (t *UDPTransport) ForceDisconnect(peer PeerHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[peer]
	if !ok {
		return ErrNotConnected
	}
	delete(t.peers, peer)
	delete(t.byAddr, p.addr.String())
	return nil
}

// LocalAddr returns the address this transport is bound to, suitable for
// passing to a peer's Connect call.
func (t *UDPTransport) LocalAddr() string {
	return t.conn.LocalAddr().String()
}

// Service returns the next pending event, or EventNone if none is ready.
func (t *UDPTransport) Service() (Event, error) {
	select {
	case ev := <-t.events:
		return ev, nil
	default:
		return Event{Kind: EventNone}, nil
	}
}

// Send transmits data to peer on channel. Reliable sends are retried by the
// background resend loop until acknowledged or resendAttempts is exceeded.
func (t *UDPTransport) Send(peer PeerHandle, channel Channel, flags MessageFlags, data []byte) error {
	p, ok := t.peer(peer)
	if !ok {
		return ErrNotConnected
	}
	if len(data) > maxDatagramSize-frameHeaderLen {
		return fmt.Errorf("transport: payload %d bytes exceeds %d byte limit", len(data), maxDatagramSize-frameHeaderLen)
	}

	var seq uint16
	if flags == Reliable {
		p.mu.Lock()
		seq = p.nextSeq
		p.nextSeq++
		p.mu.Unlock()
	}

	frame := make([]byte, frameHeaderLen+len(data))
	frame[0] = byte(frameData)
	frame[1] = byte(channel)
	frame[2] = byte(flags)
	binary.BigEndian.PutUint16(frame[3:5], seq)
	copy(frame[frameHeaderLen:], data)

	if flags == Reliable {
		p.mu.Lock()
		p.pending[seq] = &pendingReliable{raw: frame, lastSent: time.Now()}
		p.mu.Unlock()
	}

	_, err := t.conn.WriteToUDP(frame, p.addr)
	return err
}

// FlushPendingMessages is a no-op for this adapter: every Send already
// writes its datagram immediately, there is no internal send queue to
// flush (spec §4.5 "minimise connect latency").
func (t *UDPTransport) FlushPendingMessages() error { return nil }

// RTT is not tracked by this minimal adapter; it returns zero.
//
// A real deployment would sample it from ack round-trip timing the same
// way pendingReliable.lastSent already records send time -- left as a TODO
// since no caller in this exercise depends on a non-zero value.
func (t *UDPTransport) RTT(peer PeerHandle) (time.Duration, error) {
	if _, ok := t.peer(peer); !ok {
		return 0, ErrNotConnected
	}
	return 0, nil
}

// Close stops the background loops and closes the socket.
func (t *UDPTransport) Close() error {
	close(t.done)
	err := t.conn.Close()
	t.wg.Wait()
	return err
}

func (t *UDPTransport) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-t.done:
			return
		default:
		}

		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				t.logger.Warn("udp read failed", slog.Any("error", err))
				continue
			}
		}
		if n < frameHeaderLen {
			continue
		}
		t.handleDatagram(addr, append([]byte(nil), buf[:n]...))
	}
}

func (t *UDPTransport) handleDatagram(addr *net.UDPAddr, raw []byte) {
	kind := frameKind(raw[0])
	channel := Channel(raw[1])
	flags := MessageFlags(raw[2])
	seq := binary.BigEndian.Uint16(raw[3:5])
	payload := raw[frameHeaderLen:]

	handle := t.peerFor(addr)
	p, _ := t.peer(handle)

	switch kind {
	case frameConnect:
		ack := []byte{byte(frameConnectAck), byte(ChannelControl), byte(Reliable), 0, 0}
		_, _ = t.conn.WriteToUDP(ack, addr)
		p.mu.Lock()
		already := p.connectedOnce
		p.connectedOnce = true
		p.mu.Unlock()
		if !already {
			t.emit(Event{Kind: EventConnect, Peer: handle})
		}
	case frameConnectAck:
		p.mu.Lock()
		already := p.connectedOnce
		p.connectedOnce = true
		p.mu.Unlock()
		if !already {
			t.emit(Event{Kind: EventConnect, Peer: handle})
		}
	case frameDisconnect:
		t.mu.Lock()
		delete(t.peers, handle)
		delete(t.byAddr, addr.String())
		t.mu.Unlock()
		t.emit(Event{Kind: EventDisconnect, Peer: handle})
	case frameAck:
		p.mu.Lock()
		delete(p.pending, seq)
		p.mu.Unlock()
	case frameData:
		if flags == Reliable {
			ackFrame := []byte{byte(frameAck), byte(channel), byte(Reliable), 0, 0}
			binary.BigEndian.PutUint16(ackFrame[3:5], seq)
			_, _ = t.conn.WriteToUDP(ackFrame, addr)

			p.mu.Lock()
			last, seen := p.lastRecvSeq[channel]
			duplicate := seen && seq <= last
			p.lastRecvSeq[channel] = seq
			p.mu.Unlock()
			if duplicate {
				return
			}
		}
		body := append([]byte(nil), payload...)
		t.emit(Event{Kind: EventReceive, Peer: handle, Channel: channel, Data: body, Free: func() {}})
	}
}

func (t *UDPTransport) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

func (t *UDPTransport) resendLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(resendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.resendDue()
		}
	}
}

func (t *UDPTransport) resendDue() {
	t.mu.Lock()
	peers := make([]*peerState, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.mu.Unlock()

	now := time.Now()
	for _, p := range peers {
		p.mu.Lock()
		for seq, pend := range p.pending {
			if now.Sub(pend.lastSent) < resendInterval {
				continue
			}
			if pend.attempts >= resendAttempts {
				delete(p.pending, seq)
				continue
			}
			pend.attempts++
			pend.lastSent = now
			_, _ = t.conn.WriteToUDP(pend.raw, p.addr)
		}
		p.mu.Unlock()
	}
}

var _ Transport = (*UDPTransport)(nil)
