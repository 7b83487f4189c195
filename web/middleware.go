package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"vermithor/logger"
)

const sessionKey = "vermithor.session"

// limiters idle longer than this are dropped on the next sweep
const limiterIdleTTL = 30 * time.Minute

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
		for _, err := range c.Errors {
			logger.Errorf("%s %s: %s", c.Request.Method, c.Request.URL.Path, err.Err)
		}
	}
}

// sessionMiddleware attaches the browser session id, issuing a new cookie when
// the request has none or carries a value that is not a uuid.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(s.opts.CookieName)
		if err == nil {
			_, err = uuid.Parse(id)
		}
		if err != nil {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(s.opts.CookieName, id, 0, "/", "", false, true)
			logger.Debugf("New session %s", id)
		}
		c.Set(sessionKey, id)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiters.allow(sessionID(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, please slow down."})
			return
		}
		c.Next()
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterRegistry keeps one token bucket per session
type limiterRegistry struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	entries   map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterRegistry(perSecond float64, burst int) *limiterRegistry {
	if burst < 1 {
		burst = 1
	}
	return &limiterRegistry{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

func (r *limiterRegistry) allow(id string) bool {
	if r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) > limiterIdleTTL {
		for key, entry := range r.entries {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(r.entries, key)
			}
		}
		r.lastSweep = now
	}

	entry, ok := r.entries[id]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.entries[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
