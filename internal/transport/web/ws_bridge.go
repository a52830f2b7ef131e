package web

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Bridge terminates WebSocket connections and proxies their text frames
// into a fresh TCP connection to the native relay listener. One frame maps
// to one line and vice versa; the bridge does no authentication or protocol
// inspection, so a bridged client is indistinguishable from a native one.
type Bridge struct {
	dialAddr string
	log      *zerolog.Logger
}

// NewBridge builds a bridge that dials the relay at dialAddr.
func NewBridge(dialAddr string, logger *zerolog.Logger) *Bridge {
	return &Bridge{dialAddr: dialAddr, log: logger}
}

// Handle upgrades the request and runs both forwarding directions until one
// of them fails. Both directions share one context, so a failed direction
// drags its sibling down instead of leaking it.
func (b *Bridge) Handle(c *gin.Context) {
	ws, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		b.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer ws.Close(websocket.StatusInternalError, "internal error")

	tcp, err := net.Dial("tcp", b.dialAddr)
	if err != nil {
		b.log.Error().Err(err).Str("addr", b.dialAddr).Msg("relay dial failed")
		ws.Close(websocket.StatusInternalError, "relay unavailable")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- b.wsToTCP(ctx, ws, tcp)
	}()
	go func() {
		errCh <- b.tcpToWS(ctx, ws, tcp)
	}()

	err = <-errCh
	cancel()
	tcp.Close() // unblocks the sibling's pending TCP read
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			b.log.Warn().Err(err).Msg("bridge connection closed with error")
		}
	}

	ws.Close(status, reason)
}

// wsToTCP copies one text frame per native line. A frame without a trailing
// newline gets one, so each frame is a complete line to the relay.
func (b *Bridge) wsToTCP(ctx context.Context, ws *websocket.Conn, tcp net.Conn) error {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		if len(data) == 0 || data[len(data)-1] != '\n' {
			data = append(data, '\n')
		}
		if _, err := tcp.Write(data); err != nil {
			return err
		}
	}
}

// tcpToWS wraps each native line as one text frame, without the trailing
// newline.
func (b *Bridge) tcpToWS(ctx context.Context, ws *websocket.Conn, tcp net.Conn) error {
	reader := bufio.NewReader(tcp)
	for {
		line, err := reader.ReadString('\n')
		if payload := strings.TrimRight(line, "\r\n"); err == nil || payload != "" {
			if werr := ws.Write(ctx, websocket.MessageText, []byte(payload)); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
	}
}
