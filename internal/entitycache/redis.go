package entitycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps each list as a Redis list of JSON entries plus an id index
// hash, so a re-adopted entity can be found and moved to the front.
type Redis struct {
	rdb   redis.UniversalClient
	limit int
	ttl   time.Duration
}

func NewRedis(rdb redis.UniversalClient, limit int, ttl time.Duration) *Redis {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Redis{rdb: rdb, limit: limit, ttl: ttl}
}

func (r *Redis) Add(ctx context.Context, caller, kind string, e Entry) error {
	k := key(caller, kind)
	idx := k + ":idx"
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	prev, err := r.rdb.HGet(ctx, idx, e.ID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read index: %w", err)
	}

	evicted, err := r.evicted(ctx, k, prev, e.ID)
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if prev != "" {
			p.LRem(ctx, k, 0, prev)
		}
		p.LPush(ctx, k, body)
		p.LTrim(ctx, k, 0, int64(r.limit-1))
		p.HSet(ctx, idx, e.ID, body)
		if len(evicted) > 0 {
			p.HDel(ctx, idx, evicted...)
		}
		if r.ttl > 0 {
			p.Expire(ctx, k, r.ttl)
			p.Expire(ctx, idx, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add entry: %w", err)
	}
	return nil
}

// evicted returns the ids that fall off the end of the list once the entry
// with id is pushed in front and its previous copy is removed.
func (r *Redis) evicted(ctx context.Context, k, prev, id string) ([]string, error) {
	raw, err := r.rdb.LRange(ctx, k, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read list: %w", err)
	}
	kept := 1
	var out []string
	for _, s := range raw {
		if prev != "" && s == prev {
			continue
		}
		if kept < r.limit {
			kept++
			continue
		}
		var old Entry
		if err := json.Unmarshal([]byte(s), &old); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		if old.ID != id {
			out = append(out, old.ID)
		}
	}
	return out, nil
}

func (r *Redis) List(ctx context.Context, caller, kind string) ([]Entry, error) {
	raw, err := r.rdb.LRange(ctx, key(caller, kind), 0, int64(r.limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	out := make([]Entry, 0, len(raw))
	for _, s := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
