// 包 middleware：入口级 HTTP 中间件
package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"factmap/internal/logger"
)

// 文档注释：令牌桶限流（每秒）
// 背景：渲染与兴趣点检索都会消耗地图服务配额；峰值时在入口丢弃多余请求。
// 约束：简化实现，每秒整体回填，不排队，超限直接返回 429。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	now      func() time.Time
	mu       sync.Mutex
}

func NewTokenBucket(perSecond int) *TokenBucket {
	return &TokenBucket{capacity: perSecond, tokens: perSecond, lastSec: time.Now().Unix(), now: time.Now}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wrap：rps<=0 时不限流
func Wrap(next http.Handler, rps int) http.Handler {
	if rps <= 0 {
		return next
	}
	tb := NewTokenBucket(rps)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.Allow() {
			logger.L().Debug("rate_limited", "path", r.URL.Path)
			w.Header().Set("content-type", "application/json; charset=utf-8")
			w.Header().Set("retry-after", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
