// Package stream implements C6, the streaming server: a newline-delimited
// JSON push protocol over a Unix domain socket. Each accepted client is
// sent the current ring buffer window as one initial_state message, then
// every subsequent sample broadcast until it disconnects or falls behind.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/hluisi/roguehunter/model"
)

// Server accepts viewer connections on a Unix socket and broadcasts sample
// batches to all of them. Broadcast is fire-and-forget: a client whose
// write would stall past writeDeadline is dropped, never the main loop.
type Server struct {
	path     string
	listener net.Listener
	windowFn func() []model.SampleBatch
	onLog    func(model.LogMessage)

	mu      sync.Mutex
	clients map[int64]net.Conn
	nextID  int64
	closed  bool
}

// Listen binds the socket at path, removing a stale socket file left by a
// prior unclean shutdown, and opens it to the invoking user's group.
// windowFn supplies the ring buffer's current frozen window for each new
// client's initial_state message; onLog, if non-nil, receives
// client-to-server log messages.
func Listen(path string, windowFn func() []model.SampleBatch, onLog func(model.LogMessage)) (*Server, error) {
	if err := unix.Unlink(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stream: remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("stream: listen on %s: %w", path, err)
	}
	if err := chmodSocket(path); err != nil {
		ln.Close()
		return nil, fmt.Errorf("stream: chmod socket: %w", err)
	}
	return &Server{
		path:     path,
		listener: ln,
		windowFn: windowFn,
		onLog:    onLog,
		clients:  make(map[int64]net.Conn),
	}, nil
}

// Serve runs the accept loop until ctx is cancelled or Close is called.
// Run it in its own goroutine; the accept loop, each client's initial_state
// write and its log-message reads run off the daemon's tick loop. Broadcast
// writes on the caller's goroutine, each write bounded by writeDeadline.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("stream: accept: %w", err)
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	id := s.register(conn)
	defer s.unregister(id, conn)

	initial := model.NewInitialStateMessage(s.windowFn())
	if err := writeJSONLine(conn, initial); err != nil {
		return
	}

	// Clients may send log messages at will; they are merged into the
	// daemon's structured log. Unknown fields are rejected loudly rather
	// than silently dropped.
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		dec := json.NewDecoder(bytes.NewReader(scanner.Bytes()))
		dec.DisallowUnknownFields()
		var msg model.LogMessage
		if err := dec.Decode(&msg); err != nil {
			log.Printf("roguehunterd: rejecting malformed client message from client %d: %v", id, err)
			continue
		}
		if msg.Type != model.MessageLog {
			log.Printf("roguehunterd: rejecting unexpected %q message from client %d", msg.Type, id)
			continue
		}
		if s.onLog != nil {
			s.onLog(msg)
		}
	}
}

// Broadcast sends one sample message to every connected client, dropping
// (closing) any client whose write does not complete within writeDeadline.
func (s *Server) Broadcast(batch model.SampleBatch) {
	msg := model.NewSampleMessage(batch)

	s.mu.Lock()
	conns := make(map[int64]net.Conn, len(s.clients))
	for id, c := range s.clients {
		conns[id] = c
	}
	s.mu.Unlock()

	for id, conn := range conns {
		if err := writeJSONLine(conn, msg); err != nil {
			log.Printf("roguehunterd: dropping slow stream client %d: %v", id, err)
			s.unregister(id, conn)
		}
	}
}

// Close shuts down the listener, closes every connected client, and
// unlinks the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]net.Conn, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c)
	}
	s.clients = make(map[int64]net.Conn)
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	err := s.listener.Close()
	if rmErr := unix.Unlink(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		log.Printf("roguehunterd: remove socket %s: %v", s.path, rmErr)
	}
	return err
}

func (s *Server) register(conn net.Conn) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.clients[id] = conn
	return id
}

func (s *Server) unregister(id int64, conn net.Conn) {
	s.mu.Lock()
	_, ok := s.clients[id]
	delete(s.clients, id)
	s.mu.Unlock()
	if ok {
		conn.Close()
	}
}

// ClientCount reports the number of currently connected viewer clients,
// for the telemetry package's connected-clients gauge.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
