package relay

import (
	"errors"
	"fmt"
	"testing"
)

func TestRegistryMapsStayInLockStep(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 5; i++ {
		endpoint := fmt.Sprintf("127.0.0.1:%d", 40000+i)
		if _, _, err := r.Register(endpoint, fmt.Sprintf("user%d", i)); err != nil {
			t.Fatalf("register %s: %v", endpoint, err)
		}
	}

	r.Deregister("127.0.0.1:40002")
	r.Deregister("127.0.0.1:40002") // idempotent
	r.Deregister("10.0.0.1:9999")   // never registered

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.peers) != len(r.names) || len(r.kicks) != len(r.names) {
		t.Fatalf("maps out of step: %d peers, %d kicks, %d names", len(r.peers), len(r.kicks), len(r.names))
	}
	for endpoint := range r.peers {
		if _, ok := r.names[endpoint]; !ok {
			t.Fatalf("endpoint %s in peers but not names", endpoint)
		}
		if _, ok := r.kicks[endpoint]; !ok {
			t.Fatalf("endpoint %s in peers but not kicks", endpoint)
		}
	}
	if len(r.peers) != 4 {
		t.Fatalf("expected 4 sessions, got %d", len(r.peers))
	}
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()

	if _, _, err := r.Register("127.0.0.1:40000", "alice"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, _, err := r.Register("127.0.0.1:40001", "alice")
	if !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}

	// The failed register must not have mutated anything.
	if r.Len() != 1 {
		t.Fatalf("expected 1 session after rejected register, got %d", r.Len())
	}
	if endpoint, _ := r.LookupEndpoint("alice"); endpoint != "127.0.0.1:40000" {
		t.Fatalf("alice bound to wrong endpoint: %s", endpoint)
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := NewRegistry()

	aliceCh, _, _ := r.Register("ep-a", "alice")
	bobCh, _, _ := r.Register("ep-b", "bob")
	carolCh, _, _ := r.Register("ep-c", "carol")

	r.Broadcast("ep-a", "hello")

	if got := len(aliceCh); got != 0 {
		t.Fatalf("sender received its own broadcast (%d messages)", got)
	}
	for name, ch := range map[string]chan string{"bob": bobCh, "carol": carolCh} {
		select {
		case msg := <-ch:
			if msg != "hello" {
				t.Fatalf("%s received %q, want %q", name, msg, "hello")
			}
		default:
			t.Fatalf("%s received nothing", name)
		}
		if got := len(ch); got != 0 {
			t.Fatalf("%s received %d extra messages", name, got+1)
		}
	}
}

func TestBroadcastSkipsFullChannel(t *testing.T) {
	r := NewRegistry()

	_, _, _ = r.Register("ep-a", "alice")
	bobCh, _, _ := r.Register("ep-b", "bob")

	for i := 0; i < inboundBuffer; i++ {
		bobCh <- "fill"
	}

	// Must not block even though bob's channel is full.
	r.Broadcast("ep-a", "dropped")

	if got := len(bobCh); got != inboundBuffer {
		t.Fatalf("expected full channel to stay at %d, got %d", inboundBuffer, got)
	}
}

func TestKickSurvivesFullInboundChannel(t *testing.T) {
	r := NewRegistry()

	_, _, _ = r.Register("ep-a", "alice")
	bobCh, bobKick, _ := r.Register("ep-b", "bob")

	for i := 0; i < inboundBuffer; i++ {
		r.Broadcast("ep-a", "fill")
	}
	if len(bobCh) != inboundBuffer {
		t.Fatalf("expected inbound channel full, got %d", len(bobCh))
	}

	if !r.Kick("bob", "kicked") {
		t.Fatal("kick of online user failed")
	}
	select {
	case msg := <-bobKick:
		if msg != "kicked" {
			t.Fatalf("kick channel held %q", msg)
		}
	default:
		t.Fatal("kick was dropped despite inbound backpressure")
	}

	if r.Kick("carol", "kicked") {
		t.Fatal("kick of offline user succeeded")
	}
}

func TestSendTargetsExactlyOneSession(t *testing.T) {
	r := NewRegistry()

	aliceCh, _, _ := r.Register("ep-a", "alice")
	bobCh, _, _ := r.Register("ep-b", "bob")

	if !r.Send("bob", "psst") {
		t.Fatal("send to online user failed")
	}
	if r.Send("carol", "psst") {
		t.Fatal("send to offline user succeeded")
	}

	select {
	case msg := <-bobCh:
		if msg != "psst" {
			t.Fatalf("bob received %q", msg)
		}
	default:
		t.Fatal("bob received nothing")
	}
	if len(aliceCh) != 0 {
		t.Fatal("whisper leaked to another session")
	}
}

func TestIsOnlineAndOnlineUsers(t *testing.T) {
	r := NewRegistry()

	_, _, _ = r.Register("ep-b", "bob")
	_, _, _ = r.Register("ep-a", "alice")

	if !r.IsOnline("alice") || !r.IsOnline("bob") {
		t.Fatal("registered users reported offline")
	}
	if r.IsOnline("carol") {
		t.Fatal("unknown user reported online")
	}

	users := r.OnlineUsers()
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Fatalf("unexpected online users: %v", users)
	}

	r.Deregister("ep-a")
	if r.IsOnline("alice") {
		t.Fatal("deregistered user reported online")
	}
}
