package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/linechat/linechat-server/internal/auth"
	"github.com/linechat/linechat-server/internal/store"
)

const loginPrompt = "Please enter 'register' or 'login':\nregister username password:"

// errHandshakeFailed marks a handshake that was already reported to the
// client; the session just closes.
var errHandshakeFailed = errors.New("handshake failed")

// Session is one live client connection. It moves through three states:
// authenticating, active, terminated. The active state is a single event
// loop selecting over the socket reader and the inbound channel, so writes
// to the socket never interleave.
type Session struct {
	id       string
	endpoint string
	name     string
	color    Color

	conn    net.Conn
	reader  *bufio.Reader
	inbound chan string
	kick    chan string

	registry   *Registry
	dispatcher *Dispatcher
	auth       *auth.Service
	limiter    *rateLimiter

	log zerolog.Logger
}

func newSession(conn net.Conn, registry *Registry, dispatcher *Dispatcher, authService *auth.Service, msgRateLimit int, logger *zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:         id,
		endpoint:   conn.RemoteAddr().String(),
		color:      DefaultColor,
		conn:       conn,
		reader:     bufio.NewReader(conn),
		registry:   registry,
		dispatcher: dispatcher,
		auth:       authService,
		limiter:    newRateLimiter(msgRateLimit),
		log:        logger.With().Str("conn", id).Str("endpoint", conn.RemoteAddr().String()).Logger(),
	}
}

// run drives the session from handshake to teardown. It returns when the
// transport fails, the peer disconnects, the ban sentinel arrives, or ctx
// is cancelled.
func (s *Session) run(ctx context.Context) {
	defer s.conn.Close()

	name, err := s.handshake(ctx)
	if err != nil {
		if !errors.Is(err, errHandshakeFailed) {
			s.log.Debug().Err(err).Msg("handshake aborted")
		}
		return
	}
	s.name = name
	s.log = s.log.With().Str("user", name).Logger()

	inbound, kick, err := s.registry.Register(s.endpoint, s.name)
	if err != nil {
		s.writeLine(fmt.Sprintf("AlreadyConnected: user %s is already logged in.", s.name))
		return
	}
	s.inbound = inbound
	s.kick = kick

	defer func() {
		s.registry.Deregister(s.endpoint)
		s.registry.Broadcast(s.endpoint, "<- User left: "+Color("red").Paint(s.name))
		s.log.Info().Msg("left the chat")
	}()

	if err := s.writeLine(Color("green").Paint("Welcome to the chat!")); err != nil {
		return
	}
	s.registry.Broadcast(s.endpoint, "-> User joined: "+Color("blue").Paint(s.name))
	s.log.Info().Msg("joined the chat")

	s.eventLoop(ctx)
}

// handshake reads exactly one credential line. Any malformed or rejected
// attempt is reported to the client and the connection closes; there is no
// retry loop.
func (s *Session) handshake(ctx context.Context) (string, error) {
	if err := s.writeLine(loginPrompt); err != nil {
		return "", err
	}

	line, err := s.readLine()
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}

	parts := strings.Fields(line)
	if len(parts) != 3 {
		s.writeLine("Invalid input format. Use 'register <username> <password>' or 'login <username> <password>'.")
		return "", errHandshakeFailed
	}
	verb, username, password := parts[0], parts[1], parts[2]

	switch verb {
	case "register":
		user, err := s.auth.Register(ctx, username, password)
		if err != nil {
			s.writeLine("Registration failed: " + registerFailureReason(err))
			return "", errHandshakeFailed
		}
		if err := s.writeLine(fmt.Sprintf("Registration successful, welcome %s!", Color("green").Paint(user.Username))); err != nil {
			return "", err
		}
		return user.Username, nil

	case "login":
		user, err := s.auth.Authenticate(ctx, username, password)
		if err != nil {
			s.writeLine("Authentication failed, please try again.")
			return "", errHandshakeFailed
		}
		if user.Role == store.RoleBanned {
			s.writeLine("You are banned from this server.")
			return "", errHandshakeFailed
		}
		return user.Username, nil

	default:
		s.writeLine("Invalid command, use 'register' or 'login' followed by username and password.")
		return "", errHandshakeFailed
	}
}

// eventLoop is the active state. A reader goroutine feeds socket lines into
// a channel so the loop can wait on the socket and the inbound channel in
// one select. One event is handled to completion per iteration.
func (s *Session) eventLoop(ctx context.Context) {
	lines := make(chan string)
	readErrs := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			line, err := s.readLine()
			if err != nil {
				select {
				case readErrs <- err:
				case <-done:
				}
				return
			}
			select {
			case lines <- line:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case msg := <-s.inbound:
			if err := s.writeLine(msg); err != nil {
				return
			}

		case msg := <-s.kick:
			s.writeLine(msg)
			s.log.Info().Msg("session terminated by ban")
			return

		case line := <-lines:
			if reply := s.dispatcher.Dispatch(ctx, s, line); reply != "" {
				if err := s.writeLine(reply); err != nil {
					return
				}
			}

		case err := <-readErrs:
			if errors.Is(err, io.EOF) {
				s.log.Debug().Msg("client disconnected")
			} else {
				s.log.Warn().Err(err).Msg("read error")
			}
			return

		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) readLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *Session) writeLine(text string) error {
	_, err := s.conn.Write([]byte(text + "\n"))
	return err
}

func registerFailureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		return "username already taken."
	case errors.Is(err, auth.ErrInvalidUsername):
		return "invalid username."
	case errors.Is(err, auth.ErrInvalidPassword):
		return "password too short."
	default:
		return "server error, please try again."
	}
}
