package rpc

import (
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Server accepts TCP connections and serves newline-delimited JSON-RPC
// requests against a Dispatcher, one goroutine per connection — the same
// accept-loop shape as the teacher's stratum server, simplified since the
// relay core has no notion of a persistent per-miner session to track.
type Server struct {
	dispatcher *Dispatcher
	log        *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
	sessions int64

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

// NewServer builds a Server over the given dispatcher.
func NewServer(d *Dispatcher, log *zap.Logger) *Server {
	return &Server{dispatcher: d, log: log, conns: make(map[net.Conn]struct{})}
}

// Start begins listening on addr and accepting connections in the
// background. Returns once the listener is bound.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
	}()

	atomic.AddInt64(&s.sessions, 1)
	defer atomic.AddInt64(&s.sessions, -1)

	codec := NewCodec(conn)
	for {
		req, err := codec.ReadRequest()
		if err != nil {
			return
		}
		resp := s.dispatcher.Dispatch(req)
		if err := codec.SendResponse(resp); err != nil {
			s.log.Debug("rpc write failed", zap.Error(err))
			return
		}
	}
}

// SessionCount returns the number of currently open connections.
func (s *Server) SessionCount() int {
	return int(atomic.LoadInt64(&s.sessions))
}

// Stop closes the listener, closes any open connections, and waits for
// their handler goroutines to finish.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()

	s.connsMu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return err
}
