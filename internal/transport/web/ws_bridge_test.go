package web

import (
	"bufio"
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linechat/linechat-server/internal/auth"
	"github.com/linechat/linechat-server/internal/log"
	"github.com/linechat/linechat-server/internal/relay"
	"github.com/linechat/linechat-server/internal/store/sqlite"
)

// startBridge serves the bridge over httptest and returns a ws URL.
func startBridge(t *testing.T, dialAddr string) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", NewBridge(dialAddr, log.Nop()).Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// expectFrame reads text frames until one contains substr.
func expectFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, substr string) string {
	t.Helper()
	for i := 0; i < 10; i++ {
		typ, data, err := conn.Read(ctx)
		require.NoError(t, err, "expected a frame containing %q", substr)
		require.Equal(t, websocket.MessageText, typ)
		if strings.Contains(string(data), substr) {
			return string(data)
		}
	}
	t.Fatalf("frame containing %q never arrived", substr)
	return ""
}

func TestBridgeRoundTrip(t *testing.T) {
	// Fake native relay: greets, then echoes every line.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	received := make(chan string, 8)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("welcome\n"))
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			received <- line
			conn.Write([]byte("echo: " + line + "\n"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, startBridge(t, ln.Addr().String()), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Relay-to-client: one line, one frame, no trailing newline.
	frame := expectFrame(t, ctx, conn, "welcome")
	assert.Equal(t, "welcome", frame)

	// Client-to-relay: the frame payload arrives as exactly one line.
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("hello")))
	select {
	case line := <-received:
		assert.Equal(t, "hello", line)
	case <-time.After(2 * time.Second):
		t.Fatal("frame never reached the native side")
	}

	assert.Equal(t, "echo: hello", expectFrame(t, ctx, conn, "echo"))
}

func TestBridgeRelayUnavailable(t *testing.T) {
	// Grab a port and close it so the dial fails.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, startBridge(t, addr), nil)
	if err != nil {
		return // upgrade itself may fail, also fine
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	_, _, err = conn.Read(ctx)
	assert.Error(t, err, "bridge must close the socket when the relay is unreachable")
}

// TestBridgedClientJoinsNativeRoom runs the full fabric: a browser-style
// WebSocket client and a raw TCP client end up in the same room.
func TestBridgedClientJoinsNativeRoom(t *testing.T) {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry := relay.NewRegistry()
	authService := auth.NewService(st)
	dispatcher := relay.NewDispatcher(registry, st, authService, "", 50, log.Nop())
	server := relay.NewServer("127.0.0.1:0", registry, dispatcher, authService, 0, log.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, server.Start(ctx))
	t.Cleanup(server.Stop)

	wsConn, _, err := websocket.Dial(ctx, startBridge(t, server.Addr().String()), nil)
	require.NoError(t, err)
	defer wsConn.Close(websocket.StatusNormalClosure, "done")

	// Handshake through the bridge.
	expectFrame(t, ctx, wsConn, "register")
	require.NoError(t, wsConn.Write(ctx, websocket.MessageText, []byte("register webalice secret")))
	expectFrame(t, ctx, wsConn, "Welcome to the chat!")

	// Native TCP client joins the same room.
	tcpConn, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	defer tcpConn.Close()
	tcpConn.SetDeadline(time.Now().Add(5 * time.Second))
	tcpReader := bufio.NewReader(tcpConn)

	_, err = tcpConn.Write([]byte("register tcpbob secret\n"))
	require.NoError(t, err)

	// The bridged client sees the native client join.
	expectFrame(t, ctx, wsConn, "tcpbob")

	// Native chat reaches the bridged client.
	_, err = tcpConn.Write([]byte("hi from tcp\n"))
	require.NoError(t, err)
	assert.Contains(t, expectFrame(t, ctx, wsConn, "hi from tcp"), "tcpbob")

	// Bridged chat reaches the native client.
	require.NoError(t, wsConn.Write(ctx, websocket.MessageText, []byte("hi from ws")))
	for i := 0; i < 10; i++ {
		line, err := tcpReader.ReadString('\n')
		require.NoError(t, err)
		if strings.Contains(line, "hi from ws") {
			assert.Contains(t, line, "webalice")
			return
		}
	}
	t.Fatal("bridged message never reached the native client")
}
