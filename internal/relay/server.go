package relay

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/linechat/linechat-server/internal/auth"
)

// Server owns the native line-protocol TCP listener and spawns one session
// per accepted connection.
type Server struct {
	addr         string
	registry     *Registry
	dispatcher   *Dispatcher
	auth         *auth.Service
	msgRateLimit int
	log          *zerolog.Logger

	listener net.Listener
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewServer builds the native TCP server.
func NewServer(addr string, registry *Registry, dispatcher *Dispatcher, authService *auth.Service, msgRateLimit int, logger *zerolog.Logger) *Server {
	return &Server{
		addr:         addr,
		registry:     registry,
		dispatcher:   dispatcher,
		auth:         authService,
		msgRateLimit: msgRateLimit,
		log:          logger,
		shutdown:     make(chan struct{}),
	}
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.log.Info().Str("addr", listener.Addr().String()).Msg("tcp relay listening")

	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

// Addr returns the bound listener address. Valid after Start.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop closes the listener and waits for in-flight sessions to finish
// unwinding. Safe to call once after Start.
func (s *Server) Stop() {
	close(s.shutdown)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				s.log.Warn().Err(err).Msg("accept error")
				continue
			}
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}

		sess := newSession(conn, s.registry, s.dispatcher, s.auth, s.msgRateLimit, s.log)
		s.log.Debug().Str("endpoint", sess.endpoint).Msg("accepted connection")

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.run(ctx)
		}()
	}
}
