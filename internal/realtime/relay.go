package realtime

import (
	"context"
	"encoding/json"
	"time"

	"trip-dispatch/internal/domain/geo"
	"trip-dispatch/internal/general/contracts"
	"trip-dispatch/internal/general/kafkafeed"
	"trip-dispatch/internal/general/logger"
	"trip-dispatch/internal/general/positions"
	"trip-dispatch/internal/observability"
)

// Relay moves worker position reports from the realtime channel to everyone
// interested: following clients get live frames, the Redis cache keeps the
// last known position, and the Kafka feed gets a copy for analytics. The
// cache and feed legs are best effort; only the in-memory state and fan-out
// are load-bearing.
type Relay struct {
	logger   *logger.Logger
	registry *Registry
	cache    *positions.Cache            // may be nil when Redis is not configured
	feed     *kafkafeed.LocationProducer // may be nil when Kafka is not configured
}

// NewRelay constructs a Relay. cache and feed are optional.
func NewRelay(logger *logger.Logger, registry *Registry, cache *positions.Cache, feed *kafkafeed.LocationProducer) *Relay {
	return &Relay{
		logger:   logger,
		registry: registry,
		cache:    cache,
		feed:     feed,
	}
}

// OnLocationUpdate ingests one position report from a worker connection.
func (rl *Relay) OnLocationUpdate(ctx context.Context, worker *Conn, raw json.RawMessage) {
	var data contracts.LocationUpdateData
	if err := json.Unmarshal(raw, &data); err != nil {
		_ = worker.writeJSON(errFrame("bad location-update payload"))
		return
	}

	pos := data.Position
	if !geo.ValidCoordinate(pos.Lat, pos.Lng) {
		_ = worker.writeJSON(errFrame("invalid coordinates"))
		return
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = time.Now().UTC()
	}

	observability.LocationUpdates.Inc()
	worker.setLastPosition(pos)

	// best-effort cache write
	if rl.cache != nil {
		if err := rl.cache.Upsert(ctx, worker.ActorID, worker.Kind.String(), pos); err != nil {
			rl.logger.Error(ctx, "position_cache_failed", "Failed to cache worker position", err, map[string]any{
				"worker_id": worker.ActorID,
			})
		}
	}

	// best-effort analytics feed
	if rl.feed != nil {
		if err := rl.feed.PublishLocation(kafkafeed.LocationRecord{
			WorkerID: worker.ActorID,
			Kind:     worker.Kind.String(),
			Position: pos,
		}); err != nil {
			rl.logger.Error(ctx, "position_feed_failed", "Failed to publish worker position", err, map[string]any{
				"worker_id": worker.ActorID,
			})
		}
	}

	// fan out to following clients
	out := contracts.OutFrame{
		Type: contracts.MsgLocationUpdate,
		Data: contracts.LocationUpdateData{
			Kind:     worker.Kind.String(),
			WorkerID: worker.ActorID,
			Position: pos,
		},
	}
	for _, client := range rl.registry.followersOf(worker.Kind, worker.ActorID) {
		if err := client.writeJSON(out); err != nil {
			rl.logger.Error(ctx, "location_relay_failed", "Failed to relay position; evicting client", err, map[string]any{
				"client_id": client.ActorID,
				"worker_id": worker.ActorID,
			})
			rl.registry.unregister(client)
			_ = client.ws.Close()
		}
	}
}

// FollowStart subscribes a client to a worker's position stream and replays
// the last known position so the map renders immediately.
func (rl *Relay) FollowStart(ctx context.Context, client *Conn, raw json.RawMessage) {
	var data contracts.FollowData
	if err := json.Unmarshal(raw, &data); err != nil {
		_ = client.writeJSON(errFrame("bad follow-start payload"))
		return
	}

	kind, err := contracts.ParseActorKind(data.TargetKind)
	if err != nil || !kind.Worker() {
		_ = client.writeJSON(errFrame("target_kind must be driver or delivery"))
		return
	}
	if data.WorkerID == "" {
		_ = client.writeJSON(errFrame("worker_id is required"))
		return
	}

	rl.registry.follow(client, kind, data.WorkerID)

	// replay: in-memory first, then the cache for workers on other nodes or
	// workers that reconnected since their last report
	pos, ok := rl.registry.LastKnownPosition(kind, data.WorkerID)
	if !ok && rl.cache != nil {
		pos, ok = rl.cache.Get(ctx, data.WorkerID)
	}
	if ok {
		_ = client.writeJSON(contracts.OutFrame{
			Type: contracts.MsgLocationUpdate,
			Data: contracts.LocationUpdateData{
				Kind:     kind.String(),
				WorkerID: data.WorkerID,
				Position: pos,
			},
		})
	}
}
