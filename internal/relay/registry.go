package relay

import (
	"errors"
	"sort"
	"sync"
)

// ErrAlreadyConnected is returned when a display name is already bound to a
// live session.
var ErrAlreadyConnected = errors.New("user already connected")

// inboundBuffer sizes each session's inbound channel. Broadcast delivery is
// best-effort: a session that stops draining its channel loses messages
// instead of blocking the sender.
const inboundBuffer = 64

// Registry is the shared directory of all currently connected sessions.
// It maps a transport endpoint to the session's inbound channel, its kick
// channel and its display name. All access is serialized through one mutex,
// held only for map operations and never across I/O.
type Registry struct {
	mu    sync.Mutex
	peers map[string]chan string
	kicks map[string]chan string
	names map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[string]chan string),
		kicks: make(map[string]chan string),
		names: make(map[string]string),
	}
}

// Register binds endpoint to name and returns the session's inbound and
// kick channels. The duplicate-name check and the insertion happen under one
// lock, so two concurrent logins with the same name cannot both succeed.
func (r *Registry) Register(endpoint, name string) (chan string, chan string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ep, n := range r.names {
		if n == name && ep != endpoint {
			return nil, nil, ErrAlreadyConnected
		}
	}

	inbound := make(chan string, inboundBuffer)
	kick := make(chan string, 1)
	r.peers[endpoint] = inbound
	r.kicks[endpoint] = kick
	r.names[endpoint] = name
	return inbound, kick, nil
}

// Deregister removes all mappings for endpoint. No-op if absent.
// The channels are never closed; once unmapped nothing can send on them
// and they are reclaimed with the session.
func (r *Registry) Deregister(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.peers, endpoint)
	delete(r.kicks, endpoint)
	delete(r.names, endpoint)
}

// Broadcast delivers text to every registered session except exclude.
// Delivery is non-blocking; a full or abandoned channel is skipped.
func (r *Registry) Broadcast(exclude, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for endpoint, ch := range r.peers {
		if endpoint == exclude {
			continue
		}
		select {
		case ch <- text:
		default:
			// Slow consumer, likely mid-teardown.
		}
	}
}

// Send delivers text to the session holding name. Returns false if the name
// is not online. Delivery is best-effort like Broadcast.
func (r *Registry) Send(name, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for endpoint, n := range r.names {
		if n != name {
			continue
		}
		ch, ok := r.peers[endpoint]
		if !ok {
			return false
		}
		select {
		case ch <- text:
		default:
		}
		return true
	}
	return false
}

// Kick delivers text on the session's kick channel. The kick channel is
// separate from the inbound channel so a full inbound buffer cannot swallow
// a forced disconnect; it holds one pending kick, and since the first one
// already terminates the session a second is redundant. Returns false if
// name is not online.
func (r *Registry) Kick(name, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for endpoint, n := range r.names {
		if n != name {
			continue
		}
		ch, ok := r.kicks[endpoint]
		if !ok {
			return false
		}
		select {
		case ch <- text:
		default:
		}
		return true
	}
	return false
}

// LookupEndpoint returns the endpoint bound to name, if online.
// Linear scan; the registry holds at most a few hundred sessions.
func (r *Registry) LookupEndpoint(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for endpoint, n := range r.names {
		if n == name {
			return endpoint, true
		}
	}
	return "", false
}

// IsOnline reports whether name is bound to a live session.
func (r *Registry) IsOnline(name string) bool {
	_, ok := r.LookupEndpoint(name)
	return ok
}

// OnlineUsers returns the display names of all connected sessions, sorted.
func (r *Registry) OnlineUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.names))
	for _, n := range r.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of connected sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
