package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	bucketIdle  = 10 * time.Minute
	sweepEvery  = 5 * time.Minute
	retryHeader = "Retry-After"
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// buckets holds one token bucket per dashboard client. Idle buckets are
// swept on access, so no background goroutine outlives the router.
type buckets struct {
	mu        sync.Mutex
	r         rate.Limit
	b         int
	clients   map[string]*bucket
	lastSweep time.Time
}

func (bs *buckets) allow(client string, now time.Time) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if now.Sub(bs.lastSweep) > sweepEvery {
		for k, v := range bs.clients {
			if now.Sub(v.seen) > bucketIdle {
				delete(bs.clients, k)
			}
		}
		bs.lastSweep = now
	}
	bk, ok := bs.clients[client]
	if !ok {
		bk = &bucket{lim: rate.NewLimiter(bs.r, bs.b)}
		bs.clients[client] = bk
	}
	bk.seen = now
	return bk.lim.AllowN(now, 1)
}

// retryAfter is the whole number of seconds until one token refills.
func (bs *buckets) retryAfter() string {
	if bs.r <= 0 || bs.r == rate.Inf {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(1 / float64(bs.r))))
}

// RateLimit throttles dashboard clients by IP with a token bucket of rps
// and burst. Routes listed in exempt (gin route patterns such as "/health"
// or the long-lived "/ws" upgrade) are never counted.
func RateLimit(rps rate.Limit, burst int, exempt ...string) gin.HandlerFunc {
	bs := &buckets{r: rps, b: burst, clients: make(map[string]*bucket), lastSweep: time.Now()}
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skip[c.FullPath()]; ok {
			c.Next()
			return
		}
		if !bs.allow(c.ClientIP(), time.Now()) {
			c.Header(retryHeader, bs.retryAfter())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many dashboard requests, slow down"})
			return
		}
		c.Next()
	}
}
