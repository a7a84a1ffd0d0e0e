package middleware

import (
	"sync"

	"engage-ledger/pkg/errutil"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const maxTrackedClients = 10000

// RateLimit throttles each client ip with its own token bucket. The bucket
// table is reset once it tracks maxTrackedClients addresses.
func RateLimit(r rate.Limit, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	get := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			if len(limiters) >= maxTrackedClients {
				limiters = make(map[string]*rate.Limiter)
			}
			l = rate.NewLimiter(r, burst)
			limiters[key] = l
		}
		return l
	}

	return func(c *gin.Context) {
		if !get(c.ClientIP()).Allow() {
			_ = c.Error(errutil.TooManyRequest("too many requests", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
