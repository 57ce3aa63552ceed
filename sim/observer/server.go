// Package observer serves simulation snapshots over HTTP and websocket and
// accepts commands from websocket clients.
package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dronesim/dronesim/sim"
)

// Simulation is the part of the simulator the observer needs. Both methods
// must be safe to call from any goroutine.
type Simulation interface {
	Snapshot() *sim.Snapshot
	Submit(cmd sim.Command)
}

const (
	defaultStride = 1
	clientBuffer  = 8
)

type client struct {
	id     string
	out    chan []byte
	stride int64
	last   int64
}

// Server streams snapshots to websocket subscribers. Register Publish as a
// simulator snapshot hook.
type Server struct {
	sim Simulation
	// AllowRemote accepts non-loopback clients. Off by default.
	AllowRemote bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.Mutex
	clients map[string]*client
}

// NewServer creates a server for s.
func NewServer(s Simulation) *Server {
	return &Server{
		sim: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Handler returns the HTTP routes: GET /snapshot and GET /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", s.SnapshotHandler())
	mux.HandleFunc("/ws", s.WSHandler())
	return mux
}

// ListenAndServe serves Handler on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logrus.Infof("observer listening on %s", addr)
	select {
	case err := <-errc:
		return fmt.Errorf("observer: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("observer shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("observer: %w", err)
	}
	return nil
}

// Subscribers returns the number of connected websocket clients.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Publish fans snap out to every subscriber whose stride divides its tick.
// Slow subscribers drop snapshots rather than stall the caller.
func (s *Server) Publish(snap *sim.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var payload []byte
	for _, c := range s.clients {
		if snap.Tick == c.last || snap.Tick%c.stride != 0 {
			continue
		}
		if payload == nil {
			b, err := json.Marshal(snapshotMessage{Type: "snapshot", Snapshot: snap})
			if err != nil {
				logrus.Warnf("observer: encoding snapshot: %v", err)
				return
			}
			payload = b
		}
		c.last = snap.Tick
		select {
		case c.out <- payload:
		default:
		}
	}
}

func (s *Server) join(stride int64) *client {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &client{
		id:     fmt.Sprintf("O%d", s.nextID.Add(1)),
		out:    make(chan []byte, clientBuffer),
		stride: normalizeStride(stride),
		last:   -1,
	}
	s.clients[c.id] = c
	return c
}

func (s *Server) leave(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; !ok {
		return
	}
	delete(s.clients, c.id)
	close(c.out)
}

func (s *Server) setStride(c *client, stride int64) {
	s.mu.Lock()
	c.stride = normalizeStride(stride)
	s.mu.Unlock()
}

func normalizeStride(stride int64) int64 {
	if stride <= 0 {
		return defaultStride
	}
	return stride
}

// SnapshotHandler serves the latest snapshot as JSON.
func (s *Server) SnapshotHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		snap := s.sim.Snapshot()
		if snap == nil {
			http.Error(rw, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(snap)
	}
}

// WSHandler upgrades to a websocket. The client must send a subscribe message
// first; it then receives the current snapshot and every stride-th one after
// that, and may send further subscribe or command messages.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send subscribe first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := decodeClientMessage(raw)
		if err != nil || msg.Type != "subscribe" {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected subscribe"), time.Now().Add(time.Second))
			return
		}

		c := s.join(msg.Stride)
		defer s.leave(c)
		logrus.Debugf("observer: %s subscribed from %s (stride %d)", c.id, r.RemoteAddr, c.stride)
		if snap := s.sim.Snapshot(); snap != nil {
			s.reply(c, snapshotMessage{Type: "snapshot", Snapshot: snap})
		}

		// Writer goroutine: the only goroutine writing to conn.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for b := range c.out {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					_ = conn.Close()
					return
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, raw, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.reply(c, s.handle(c, raw))
		}

		s.leave(c)
		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// handle applies one post-handshake client message and returns the reply.
func (s *Server) handle(c *client, raw []byte) any {
	msg, err := decodeClientMessage(raw)
	if err != nil {
		return errorMessage{Type: "error", Message: err.Error()}
	}
	switch msg.Type {
	case "subscribe":
		s.setStride(c, msg.Stride)
		return nil
	case "command":
		cmd := msg.toCommand()
		s.sim.Submit(cmd)
		logrus.Debugf("observer: %s queued %v", c.id, cmd)
		return ackMessage{Type: "ack", Command: cmd.Kind}
	}
	return errorMessage{Type: "error", Message: fmt.Sprintf("unexpected message type %q", msg.Type)}
}

// reply queues v for c without blocking. nil is a no-op.
func (s *Server) reply(c *client, v any) {
	if v == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.out <- b:
	default:
	}
}

func decodeClientMessage(raw []byte) (clientMessage, error) {
	var msg clientMessage
	if err := validateClientMessage(raw); err != nil {
		return msg, err
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, err
	}
	if msg.Type == "subscribe" && msg.Stride == 0 {
		msg.Stride = defaultStride
	}
	return msg, nil
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
