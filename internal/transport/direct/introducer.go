package direct

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/flipboard/internal/protocol"
	"github.com/BioHazard786/flipboard/internal/signaling"
	"github.com/BioHazard786/flipboard/internal/transport"
)

// Session is a claimed peer id on an introducer.
type Session interface {
	ID() string
	Send(ctx context.Context, sig protocol.Signal) error
	// Signals is closed when the session ends.
	Signals() <-chan protocol.Signal
	Close()
}

// Introducer hands out peer ids and routes signals between them. An
// empty id asks the introducer to assign one.
type Introducer interface {
	Register(ctx context.Context, id string) (Session, error)
}

// Compile-time interface checks.
var (
	_ Introducer = (*WebSocketIntroducer)(nil)
	_ Introducer = (*MemoryIntroducer)(nil)
	_ Session    = (*signaling.Client)(nil)
)

// WebSocketIntroducer talks to the introducer service over a websocket.
type WebSocketIntroducer struct {
	URL    string
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

func (w *WebSocketIntroducer) Register(ctx context.Context, id string) (Session, error) {
	return signaling.Dial(ctx, w.URL, id, w.Dialer, w.Logger)
}

// MemoryIntroducer is an in-process Introducer. Peers registered on the
// same MemoryIntroducer can reach each other without any network
// signaling.
type MemoryIntroducer struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
}

func NewMemoryIntroducer() *MemoryIntroducer {
	return &MemoryIntroducer{sessions: make(map[string]*memorySession)}
}

func (m *MemoryIntroducer) Register(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = "peer-" + transport.NewRoomID()
	}
	if _, taken := m.sessions[id]; taken {
		return nil, transport.WrapError("claim id", transport.ErrIDTaken, id)
	}

	s := &memorySession{
		introducer: m,
		id:         id,
		signals:    make(chan protocol.Signal, 32),
	}
	m.sessions[id] = s
	return s, nil
}

func (m *MemoryIntroducer) route(from *memorySession, sig protocol.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.sessions[sig.Dst]
	if !ok {
		if sig.Type == protocol.SignalOffer {
			from.push(protocol.Signal{
				Type:         protocol.SignalUnavailable,
				ID:           sig.Dst,
				ConnectionID: sig.ConnectionID,
			})
		}
		return
	}
	sig.Src = from.id
	target.push(sig)
}

func (m *MemoryIntroducer) release(s *memorySession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions[s.id] == s {
		delete(m.sessions, s.id)
	}
	if !s.closed {
		s.closed = true
		close(s.signals)
	}
}

// memorySession fields other than id are guarded by introducer.mu.
type memorySession struct {
	introducer *MemoryIntroducer
	id         string
	signals    chan protocol.Signal
	closed     bool
}

func (s *memorySession) ID() string {
	return s.id
}

func (s *memorySession) Send(_ context.Context, sig protocol.Signal) error {
	s.introducer.mu.Lock()
	closed := s.closed
	s.introducer.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	s.introducer.route(s, sig)
	return nil
}

func (s *memorySession) Signals() <-chan protocol.Signal {
	return s.signals
}

func (s *memorySession) Close() {
	s.introducer.release(s)
}

func (s *memorySession) push(sig protocol.Signal) {
	if s.closed {
		return
	}
	select {
	case s.signals <- sig:
	default:
	}
}
