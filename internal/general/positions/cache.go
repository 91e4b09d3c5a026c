package positions

import (
	"context"
	"strconv"
	"time"

	"trip-dispatch/internal/general/contracts"

	"github.com/redis/go-redis/v9"
)

// Cache keeps each worker's last reported position in Redis: coordinates go
// into a GEO set for proximity queries, the rest of the report into a per
// worker hash. Reads tolerate partial data since position reports are lossy
// by nature.
type Cache struct {
	client *redis.Client
	geoKey string
}

// New builds a Cache against the given Redis address.
func New(addr, password, geoKey string) *Cache {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &Cache{client: c, geoKey: geoKey}
}

// Ping verifies connectivity; used by readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Upsert records the worker's latest position.
func (c *Cache) Upsert(ctx context.Context, workerID, kind string, pos contracts.Position) error {
	if _, err := c.client.GeoAdd(ctx, c.geoKey, &redis.GeoLocation{
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
		Name:      workerID,
	}).Result(); err != nil {
		return err
	}

	return c.client.HSet(ctx, metaKey(workerID), map[string]interface{}{
		"kind":            kind,
		"lat":             strconv.FormatFloat(pos.Lat, 'f', -1, 64),
		"lng":             strconv.FormatFloat(pos.Lng, 'f', -1, 64),
		"speed_kmh":       strconv.FormatFloat(pos.SpeedKMH, 'f', -1, 64),
		"heading_degrees": strconv.FormatFloat(pos.HeadingDegrees, 'f', -1, 64),
		"updated":         pos.Timestamp.UTC().Format(time.RFC3339),
	}).Err()
}

// Get returns the last known position for a worker, or found=false when the
// worker has never reported (or Redis lost the keys).
func (c *Cache) Get(ctx context.Context, workerID string) (contracts.Position, bool) {
	m, err := c.client.HGetAll(ctx, metaKey(workerID)).Result()
	if err != nil || len(m) == 0 {
		return contracts.Position{}, false
	}

	var pos contracts.Position
	if v, ok := m["lat"]; ok {
		pos.Lat, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["lng"]; ok {
		pos.Lng, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["speed_kmh"]; ok {
		pos.SpeedKMH, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["heading_degrees"]; ok {
		pos.HeadingDegrees, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["updated"]; ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			pos.Timestamp = ts
		}
	}
	return pos, true
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func metaKey(id string) string { return "worker:pos:" + id }
