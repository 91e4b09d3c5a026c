package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"trip-dispatch/internal/general/contracts"
	"trip-dispatch/internal/general/logger"
	"trip-dispatch/internal/observability"
	"trip-dispatch/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
)

// actorKey addresses one actor in the registry. The same uuid may appear as
// both a driver and a client without clashing.
type actorKey struct {
	kind contracts.ActorKind
	id   string
}

// Conn is one identified realtime connection. All writes go through the
// per-connection mutex so the ping loop and business pushes never interleave
// frames.
type Conn struct {
	ID      string
	Kind    contracts.ActorKind
	ActorID string

	ws      *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	lastPos   *contracts.Position
	following *actorKey // set on client connections only
}

// writeJSON marshals v and writes a single TextMessage under the write lock.
func (c *Conn) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// ping sends a ping control frame under the write lock.
func (c *Conn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(ctrlTimeout))
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
}

// writeClose sends a close control frame with the given code and reason.
func (c *Conn) writeClose(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
}

// setLastPosition records the most recent position report on the connection.
func (c *Conn) setLastPosition(pos contracts.Position) {
	c.mu.Lock()
	c.lastPos = &pos
	c.mu.Unlock()
}

// lastPosition returns the most recent position report, if any.
func (c *Conn) lastPosition() (contracts.Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastPos == nil {
		return contracts.Position{}, false
	}
	return *c.lastPos, true
}

// Registry maps identified actors to their single live connection and tracks
// which clients follow which worker. One connection per (kind, actor id); a
// newer identify for the same actor supersedes the older connection.
type Registry struct {
	logger *logger.Logger

	mu        sync.RWMutex
	conns     map[actorKey]*Conn
	followers map[actorKey]map[string]*Conn // worker -> conn id -> client conn
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger *logger.Logger) *Registry {
	return &Registry{
		logger:    logger,
		conns:     make(map[actorKey]*Conn),
		followers: make(map[actorKey]map[string]*Conn),
	}
}

// registry satisfies the notifier port used by the dispatch service.
var _ ports.Notifier = (*Registry)(nil)

// register installs conn as the live connection for its actor. If another
// connection already holds the slot it is returned so the caller can close
// it; the older socket is superseded, not the newer one.
func (reg *Registry) register(conn *Conn) (superseded *Conn) {
	key := actorKey{kind: conn.Kind, id: conn.ActorID}

	reg.mu.Lock()
	old := reg.conns[key]
	reg.conns[key] = conn
	reg.mu.Unlock()

	if old == nil {
		observability.ConnectedActors.WithLabelValues(conn.Kind.String()).Inc()
	}

	reg.logger.Info(context.Background(), "actor_registered", "Realtime connection registered", map[string]any{
		"kind":          conn.Kind.String(),
		"actor_id":      conn.ActorID,
		"connection_id": conn.ID,
		"superseded":    old != nil,
	})
	return old
}

// unregister removes conn from the registry, but only if it still owns the
// slot. A connection superseded by a newer identify must not evict its
// replacement on teardown.
func (reg *Registry) unregister(conn *Conn) {
	key := actorKey{kind: conn.Kind, id: conn.ActorID}

	reg.mu.Lock()
	removed := false
	if current, ok := reg.conns[key]; ok && current == conn {
		delete(reg.conns, key)
		removed = true
	}
	reg.dropFollowerLocked(conn)
	reg.mu.Unlock()

	if removed {
		observability.ConnectedActors.WithLabelValues(conn.Kind.String()).Dec()
		reg.logger.Info(context.Background(), "actor_unregistered", "Realtime connection removed", map[string]any{
			"kind":          conn.Kind.String(),
			"actor_id":      conn.ActorID,
			"connection_id": conn.ID,
		})
	}
}

// lookup returns the live connection for an actor.
func (reg *Registry) lookup(kind contracts.ActorKind, actorID string) (*Conn, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	c, ok := reg.conns[actorKey{kind: kind, id: actorID}]
	return c, ok
}

// Send pushes a frame to one actor. Unreachable actors and write failures are
// soft: the frame is dropped, the dead connection is evicted, and false is
// returned so the caller can account for the miss without aborting.
func (reg *Registry) Send(kind contracts.ActorKind, actorID string, frame contracts.OutFrame) bool {
	conn, ok := reg.lookup(kind, actorID)
	if !ok {
		return false
	}

	if err := conn.writeJSON(frame); err != nil {
		reg.logger.Error(context.Background(), "ws_push_failed", "Failed to push frame; evicting connection", err, map[string]any{
			"kind":     kind.String(),
			"actor_id": actorID,
			"type":     frame.Type,
		})
		reg.unregister(conn)
		_ = conn.ws.Close()
		return false
	}
	return true
}

// IsConnected reports whether the actor has a live connection.
func (reg *Registry) IsConnected(kind contracts.ActorKind, actorID string) bool {
	_, ok := reg.lookup(kind, actorID)
	return ok
}

// follow subscribes a client connection to a worker's position stream. A
// client follows at most one worker; a new follow replaces the previous one.
func (reg *Registry) follow(client *Conn, workerKind contracts.ActorKind, workerID string) {
	target := actorKey{kind: workerKind, id: workerID}

	reg.mu.Lock()
	reg.dropFollowerLocked(client)
	if reg.followers[target] == nil {
		reg.followers[target] = make(map[string]*Conn)
	}
	reg.followers[target][client.ID] = client
	reg.mu.Unlock()

	client.mu.Lock()
	client.following = &target
	client.mu.Unlock()
}

// unfollow removes the client's follow subscription, if any.
func (reg *Registry) unfollow(client *Conn) {
	reg.mu.Lock()
	reg.dropFollowerLocked(client)
	reg.mu.Unlock()
}

// dropFollowerLocked removes the client from its current follow set.
// Caller holds reg.mu.
func (reg *Registry) dropFollowerLocked(client *Conn) {
	client.mu.Lock()
	target := client.following
	client.following = nil
	client.mu.Unlock()

	if target == nil {
		return
	}
	if set, ok := reg.followers[*target]; ok {
		delete(set, client.ID)
		if len(set) == 0 {
			delete(reg.followers, *target)
		}
	}
}

// followersOf snapshots the clients currently following a worker.
func (reg *Registry) followersOf(workerKind contracts.ActorKind, workerID string) []*Conn {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	set, ok := reg.followers[actorKey{kind: workerKind, id: workerID}]
	if !ok {
		return nil
	}
	out := make([]*Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// LastKnownPosition returns the worker's most recent in-memory position.
func (reg *Registry) LastKnownPosition(kind contracts.ActorKind, workerID string) (contracts.Position, bool) {
	conn, ok := reg.lookup(kind, workerID)
	if !ok {
		return contracts.Position{}, false
	}
	return conn.lastPosition()
}
