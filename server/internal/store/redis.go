package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jaipatel248/cric-alert/server/internal/monitor"
)

const (
	redisIndexKey = "monitors"
	redisTimeout  = 5 * time.Second
)

func redisRecordKey(id string) string { return "monitor:" + id }
func redisAlertsKey(id string) string { return "monitor:" + id + ":alerts" }

// Redis is a Store backed by a Redis server. Each record is a JSON string,
// each alert history a list appended with RPUSH, and the set of ids is kept
// in the "monitors" set.
type Redis struct {
	rdb *redis.Client
}

// OpenRedis connects to url (redis://...) and pings the server.
func OpenRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	opts.DialTimeout = redisTimeout
	opts.ReadTimeout = redisTimeout
	opts.WriteTimeout = redisTimeout

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("store: redis ping: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

// Put writes the record and indexes its id in one transaction.
func (s *Redis) Put(ctx context.Context, rec monitor.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record %s: %w", rec.ID, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisRecordKey(rec.ID), data, 0)
		pipe.SAdd(ctx, redisIndexKey, rec.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: redis put %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record for id.
func (s *Redis) Get(ctx context.Context, id string) (monitor.Record, bool, error) {
	data, err := s.rdb.Get(ctx, redisRecordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return monitor.Record{}, false, nil
	}
	if err != nil {
		return monitor.Record{}, false, fmt.Errorf("store: redis get %s: %w", id, err)
	}
	var rec monitor.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return monitor.Record{}, false, fmt.Errorf("store: decode record %s: %w", id, err)
	}
	return rec, true, nil
}

// GetAll reads every indexed record. Ids whose record vanished are skipped.
func (s *Redis) GetAll(ctx context.Context) (map[string]monitor.Record, error) {
	ids, err := s.rdb.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis list ids: %w", err)
	}
	out := make(map[string]monitor.Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisRecordKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis mget: %w", err)
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec monitor.Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("store: decode record %s: %w", ids[i], err)
		}
		out[ids[i]] = rec
	}
	return out, nil
}

// Delete removes the record, its alerts and its index entry.
func (s *Redis) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, redisRecordKey(id))
		pipe.Del(ctx, redisAlertsKey(id))
		pipe.SRem(ctx, redisIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: redis delete %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAlert pushes a onto the tail of id's alert list.
func (s *Redis) AppendAlert(ctx context.Context, id string, a monitor.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("store: encode alert: %w", err)
	}
	if err := s.rdb.RPush(ctx, redisAlertsKey(id), data).Err(); err != nil {
		return fmt.Errorf("store: redis append alert %s: %w", id, err)
	}
	return nil
}

// ListAlerts returns id's full alert list.
func (s *Redis) ListAlerts(ctx context.Context, id string) ([]monitor.Alert, error) {
	vals, err := s.rdb.LRange(ctx, redisAlertsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis list alerts %s: %w", id, err)
	}
	out := make([]monitor.Alert, 0, len(vals))
	for _, v := range vals {
		var a monitor.Alert
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, fmt.Errorf("store: decode alert %s: %w", id, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Close closes the client.
func (s *Redis) Close() error { return s.rdb.Close() }
