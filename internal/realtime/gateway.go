package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"trip-dispatch/internal/domain/user"
	"trip-dispatch/internal/general/contracts"
	"trip-dispatch/internal/general/jwt"
	"trip-dispatch/internal/general/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const identifyWindow = 10 * time.Second

var (
	errEmptyActorID  = errors.New("actor_id is required")
	errActorMismatch = errors.New("token subject does not match actor_id")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Gateway owns the single realtime endpoint. Every actor population (drivers,
// delivery agents, clients) connects here and declares itself with an
// identify frame before anything else flows.
type Gateway struct {
	logger   *logger.Logger
	jwtMgr   *jwt.Manager
	registry *Registry
	relay    *Relay
}

// NewGateway constructs a Gateway bound to the registry and relay.
func NewGateway(logger *logger.Logger, jwtMgr *jwt.Manager, registry *Registry, relay *Relay) *Gateway {
	return &Gateway{
		logger:   logger,
		jwtMgr:   jwtMgr,
		registry: registry,
		relay:    relay,
	}
}

// Connect handles GET /ws: upgrade, greet, identify, then route frames until
// the connection dies.
func (g *Gateway) Connect(w http.ResponseWriter, r *http.Request) {
	// 1) Upgrade HTTP -> WS
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer ws.Close()

	conn := &Conn{ID: uuid.NewString(), ws: ws}
	ws.SetReadLimit(1 << 20) // 1 MiB

	// 2) Greet with the connection id so clients can correlate logs
	if err := conn.writeJSON(contracts.OutFrame{
		Type: contracts.MsgConnectionEstablished,
		Data: contracts.ConnectionEstablishedData{ConnectionID: conn.ID},
	}); err != nil {
		g.logger.Error(r.Context(), "ws_greet_failed", "Failed to send connection-established", err, nil)
		return
	}

	// 3) The identify frame must arrive within the window; pings are allowed
	//    while the client gets its act together.
	if err := ws.SetReadDeadline(time.Now().Add(identifyWindow)); err != nil {
		g.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set identify deadline", err, nil)
		return
	}

	identified := false
	for !identified {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			g.logger.Info(r.Context(), "ws_identify_timeout", "Connection closed before identify", map[string]any{
				"connection_id": conn.ID,
			})
			return
		}

		var frame contracts.Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			_ = conn.writeJSON(errFrame("bad json"))
			continue
		}

		switch frame.Type {
		case contracts.MsgPing:
			_ = conn.writeJSON(contracts.OutFrame{Type: contracts.MsgPong})

		case contracts.MsgIdentify:
			if err := g.identify(conn, frame.Data); err != nil {
				g.logger.Error(r.Context(), "ws_identify_failed", "Identify rejected", err, map[string]any{
					"connection_id": conn.ID,
				})
				_ = conn.writeJSON(errFrame("identify failed: " + err.Error()))
				conn.writeClose(websocket.ClosePolicyViolation, "identify failed")
				return
			}
			identified = true

		default:
			_ = conn.writeJSON(errFrame("identify first"))
		}
	}

	superseded := g.registry.register(conn)
	if superseded != nil {
		superseded.writeClose(websocket.CloseNormalClosure, "superseded by newer connection")
		_ = superseded.ws.Close()
	}
	defer g.registry.unregister(conn)

	_ = conn.writeJSON(contracts.OutFrame{
		Type: contracts.MsgIdentified,
		Data: contracts.IdentifiedData{
			Kind:         conn.Kind.String(),
			ActorID:      conn.ActorID,
			ConnectionID: conn.ID,
		},
	})

	g.logger.Info(r.Context(), "ws_connected", "Actor identified on realtime channel", map[string]any{
		"kind":          conn.Kind.String(),
		"actor_id":      conn.ActorID,
		"connection_id": conn.ID,
	})

	// 4) Normal deadlines: 60s read window refreshed by pongs and traffic
	_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	ws.SetPongHandler(func(_ string) error {
		return ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	// 5) Server-side ping loop every 30s; done releases it when the read
	//    loop returns, stopping the ticker alone would leave it blocked
	done := make(chan struct{})
	defer close(done)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					// close socket to unblock the reader; goroutine exits
					_ = ws.Close()
					return
				}
			}
		}
	}()

	// 6) Read loop: route frames by type
	for {
		_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.logger.Error(r.Context(), "ws_unexpected_close", "Connection closed unexpectedly", err, map[string]any{
					"kind":     conn.Kind.String(),
					"actor_id": conn.ActorID,
				})
			} else {
				g.logger.Info(r.Context(), "ws_connection_closed", "Connection closed normally", map[string]any{
					"kind":     conn.Kind.String(),
					"actor_id": conn.ActorID,
				})
				conn.writeClose(websocket.CloseNormalClosure, "bye")
			}
			return
		}

		var frame contracts.Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			_ = conn.writeJSON(errFrame("bad json"))
			continue
		}

		switch frame.Type {
		case contracts.MsgPing:
			_ = conn.writeJSON(contracts.OutFrame{Type: contracts.MsgPong})

		case contracts.MsgLocationUpdate:
			if !conn.Kind.Worker() {
				_ = conn.writeJSON(errFrame("only workers report locations"))
				continue
			}
			g.relay.OnLocationUpdate(r.Context(), conn, frame.Data)

		case contracts.MsgFollowStart:
			if conn.Kind != contracts.ActorClient {
				_ = conn.writeJSON(errFrame("only clients can follow"))
				continue
			}
			g.relay.FollowStart(r.Context(), conn, frame.Data)

		case contracts.MsgFollowStop:
			if conn.Kind != contracts.ActorClient {
				_ = conn.writeJSON(errFrame("only clients can follow"))
				continue
			}
			g.registry.unfollow(conn)

		case contracts.MsgIdentify:
			_ = conn.writeJSON(errFrame("already identified"))

		default:
			_ = conn.writeJSON(errFrame("unknown message type"))
		}
	}
}

// identify validates the identify payload and stamps kind/actor on the
// connection. The token's subject must be the declared actor and the token's
// role must match the declared kind.
func (g *Gateway) identify(conn *Conn, raw json.RawMessage) error {
	var data contracts.IdentifyData
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}

	kind, err := contracts.ParseActorKind(data.Kind)
	if err != nil {
		return err
	}

	actorID := strings.TrimSpace(data.ActorID)
	if actorID == "" {
		return errEmptyActorID
	}

	claims, err := jwt.ValidateIdentifyToken(data.Token, g.jwtMgr, roleFor(kind))
	if err != nil {
		return err
	}
	if claims.Subject != actorID {
		return errActorMismatch
	}

	conn.Kind = kind
	conn.ActorID = actorID
	return nil
}

// roleFor maps an actor kind onto the JWT role allowed to identify as it.
func roleFor(kind contracts.ActorKind) user.Role {
	switch kind {
	case contracts.ActorDriver:
		return user.RoleDriver
	case contracts.ActorDelivery:
		return user.RoleDelivery
	default:
		return user.RoleClient
	}
}

func errFrame(msg string) contracts.OutFrame {
	return contracts.OutFrame{Type: contracts.MsgError, Data: contracts.ErrorData{Error: msg}}
}
