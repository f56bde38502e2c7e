package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per driver plus one set of driver ids per cell,
// so a candidate query is a handful of SMEMBERS + HGETALL calls regardless
// of fleet size.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr, password string, ttl time.Duration) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisStore{client: c, ttl: ttl}
}

// NewRedisStoreFromClient wraps an existing client (shared by the consumer).
func NewRedisStoreFromClient(c *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: c, ttl: ttl}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Upsert(ctx context.Context, loc DriverLocation) error {
	prevCell, err := r.client.HGet(ctx, locKey(loc.DriverID), "cell").Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("presence: read previous cell: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, locKey(loc.DriverID), locFields(loc))
	if prevCell != "" && prevCell != loc.Cell {
		pipe.SRem(ctx, cellKey(prevCell), loc.DriverID)
	}
	pipe.SAdd(ctx, cellKey(loc.Cell), loc.DriverID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: upsert driver %s: %w", loc.DriverID, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, driverID string) (DriverLocation, error) {
	m, err := r.client.HGetAll(ctx, locKey(driverID)).Result()
	if err != nil {
		return DriverLocation{}, fmt.Errorf("presence: get driver %s: %w", driverID, err)
	}
	if len(m) == 0 {
		return DriverLocation{}, ErrDriverNotFound
	}
	return locFromFields(driverID, m), nil
}

func (r *RedisStore) InCells(ctx context.Context, cells []string) ([]DriverLocation, error) {
	cutoff := time.Time{}
	if r.ttl > 0 {
		cutoff = time.Now().Add(-r.ttl)
	}
	var out []DriverLocation
	for _, cell := range cells {
		ids, err := r.client.SMembers(ctx, cellKey(cell)).Result()
		if err != nil {
			return nil, fmt.Errorf("presence: members of cell %s: %w", cell, err)
		}
		for _, id := range ids {
			loc, err := r.Get(ctx, id)
			if err == ErrDriverNotFound {
				// hash expired or deleted; drop the stale set member
				_ = r.client.SRem(ctx, cellKey(cell), id).Err()
				continue
			}
			if err != nil {
				return nil, err
			}
			if !loc.Dispatchable() {
				continue
			}
			if !cutoff.IsZero() && loc.Updated.Before(cutoff) {
				continue
			}
			out = append(out, loc)
		}
	}
	return out, nil
}

func (r *RedisStore) SetOnline(ctx context.Context, driverID string, online bool) error {
	exists, err := r.client.Exists(ctx, locKey(driverID)).Result()
	if err != nil {
		return fmt.Errorf("presence: set online %s: %w", driverID, err)
	}
	if exists == 0 {
		return ErrDriverNotFound
	}
	return r.client.HSet(ctx, locKey(driverID), map[string]interface{}{
		"online":  strconv.FormatBool(online),
		"updated": time.Now().Format(time.RFC3339Nano),
	}).Err()
}

func locKey(id string) string    { return "driver:loc:" + id }
func cellKey(cell string) string { return "cell:drivers:" + cell }

func locFields(loc DriverLocation) map[string]interface{} {
	return map[string]interface{}{
		"lat":      strconv.FormatFloat(loc.Lat, 'f', -1, 64),
		"lng":      strconv.FormatFloat(loc.Lng, 'f', -1, 64),
		"cell":     loc.Cell,
		"online":   strconv.FormatBool(loc.Online),
		"active":   strconv.FormatBool(loc.Active),
		"verified": strconv.FormatBool(loc.Verified),
		"updated":  loc.Updated.Format(time.RFC3339Nano),
	}
}

func locFromFields(id string, m map[string]string) DriverLocation {
	loc := DriverLocation{DriverID: id, Cell: m["cell"]}
	loc.Lat, _ = strconv.ParseFloat(m["lat"], 64)
	loc.Lng, _ = strconv.ParseFloat(m["lng"], 64)
	loc.Online = m["online"] == "true"
	loc.Active = m["active"] == "true"
	loc.Verified = m["verified"] == "true"
	if t, err := time.Parse(time.RFC3339Nano, m["updated"]); err == nil {
		loc.Updated = t
	}
	return loc
}
