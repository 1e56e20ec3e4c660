// Package redis UserSnapshot 缓存操作
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"contacts-api/internal/shared/cache"
)

var cacheOps = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "contacts_api",
		Name:      "cache_operations_total",
		Help:      "Total user cache operations by result",
	},
	[]string{"op", "result"},
)

// requiredSnapshotKeys 快照 JSON 必须携带的字段，缺任何一个按损坏处理
var requiredSnapshotKeys = []string{"id", "username", "email", "confirmed", "role"}

func decodeSnapshot(data []byte) (*cache.UserSnapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for _, k := range requiredSnapshotKeys {
		if _, ok := raw[k]; !ok {
			return nil, fmt.Errorf("missing required field %q", k)
		}
	}

	var snap cache.UserSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetUser 读取用户快照
//
// 键不存在返回 (nil, nil)。传输故障同样按未命中返回，上层回源用户目录；
// 无法解码或缺字段的条目会被直接清除。
func (s *Store) GetUser(ctx context.Context, username string) (*cache.UserSnapshot, error) {
	key := cache.UserCacheKey(username)

	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		cacheOps.WithLabelValues("get", "miss").Inc()
		return nil, nil
	}
	if err != nil {
		log.Printf("[Redis/Cache] Get user %q failed, treating as miss: %v", username, err)
		cacheOps.WithLabelValues("get", "error").Inc()
		return nil, nil
	}

	snap, err := decodeSnapshot([]byte(data))
	if err != nil {
		log.Printf("[Redis/Cache] Dropping corrupt snapshot for %q: %v", username, err)
		if delErr := s.client.Del(ctx, key).Err(); delErr != nil {
			log.Printf("[Redis/Cache] Delete corrupt snapshot %q: %v", key, delErr)
		}
		cacheOps.WithLabelValues("get", "error").Inc()
		return nil, nil
	}

	cacheOps.WithLabelValues("get", "hit").Inc()
	// 旧条目可能带着敏感字段入的库，出缓存前再清一次
	return snap.Sanitize(), nil
}

// SetUser 写入用户快照
//
// 写入前无条件清空敏感字段。ttl <= 0 时使用默认 TTL。
func (s *Store) SetUser(ctx context.Context, username string, snap *cache.UserSnapshot, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.TTLUserSnapshot
	}

	data, err := json.Marshal(snap.Sanitize())
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, cache.UserCacheKey(username), data, ttl).Err(); err != nil {
		cacheOps.WithLabelValues("set", "error").Inc()
		return err
	}
	cacheOps.WithLabelValues("set", "ok").Inc()
	return nil
}

// DeleteUser 删除用户快照，键不存在不算错误
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, cache.UserCacheKey(username)).Err(); err != nil {
		cacheOps.WithLabelValues("delete", "error").Inc()
		return err
	}
	cacheOps.WithLabelValues("delete", "ok").Inc()
	return nil
}
