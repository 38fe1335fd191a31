package geocode

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"factmap/internal/logger"

	"github.com/redis/go-redis/v9"
)

// 文档注释：进程内 LRU（带 TTL）
// 背景：同一地名在短时间内被多个事实反复引用，进程内缓存避免重复计费调用。
// 约束：键由调用方归一化；过期条目在读取时惰性淘汰。
type LRU struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
	now  func() time.Time
}

type entry struct {
	k   string
	v   Lookup
	exp time.Time
}

func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU{cap: capacity, ttl: ttl, lst: list.New(), dict: make(map[string]*list.Element), now: time.Now}
}

func (c *LRU) Get(k string) (Lookup, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.dict[k]
	if !ok {
		return Lookup{}, false
	}
	it := e.Value.(entry)
	if c.now().Before(it.exp) {
		c.lst.MoveToFront(e)
		return it.v, true
	}
	c.lst.Remove(e)
	delete(c.dict, k)
	return Lookup{}, false
}

func (c *LRU) Set(k string, v Lookup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(c.ttl)
	if e, ok := c.dict[k]; ok {
		e.Value = entry{k: k, v: v, exp: exp}
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(entry{k: k, v: v, exp: exp})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(entry).k)
		c.lst.Remove(back)
	}
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

// 文档注释：Redis 二级缓存
// 背景：多实例部署时共享地理编码结果；值为 Lookup 的 JSON。
// 约束：读写失败只记日志并视为未命中，不影响主流程。
type RedisCache struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewRedisCache(rc *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{rc: rc, ttl: ttl}
}

func redisKey(k string) string { return "geocode:" + k }

func (c *RedisCache) Get(ctx context.Context, k string) (Lookup, bool) {
	s, err := c.rc.Get(ctx, redisKey(k)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.L().Warn("geocode_redis_get_error", "key", k, "err", err)
		}
		return Lookup{}, false
	}
	var out Lookup
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		logger.L().Warn("geocode_redis_decode_error", "key", k, "err", err)
		return Lookup{}, false
	}
	return out, true
}

func (c *RedisCache) Set(ctx context.Context, k string, v Lookup) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rc.Set(ctx, redisKey(k), string(b), c.ttl).Err(); err != nil {
		logger.L().Warn("geocode_redis_set_error", "key", k, "err", err)
	}
}
