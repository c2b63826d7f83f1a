package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"quillroom/pkg/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// rateLimiterStore stores per-key (for example, per IP) rate limiters.
type rateLimiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	rate      rate.Limit
	burstSize int
}

func newRateLimiterStore(r rate.Limit, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		limiters:  make(map[string]*rate.Limiter),
		rate:      r,
		burstSize: burst,
	}
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(s.rate, s.burstSize)
		s.limiters[key] = limiter
	}
	return limiter
}

// clientIP extracts the IP part from the request's remote address.
func clientIP(r *http.Request) string {
	// Try X-Forwarded-For first (behind proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := net.ParseIP(xff)
		if parts != nil {
			return parts.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewHTTPRateLimitMiddleware returns Gin middleware that applies simple IP-based rate limiting.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	rps := cfg.RateLimiting.HTTP.RequestsPerSecond
	burst := cfg.RateLimiting.HTTP.Burst

	store := newRateLimiterStore(rate.Limit(rps), burst)

	var globalSem chan struct{}
	if cfg.RateLimiting.HTTP.MaxConcurrent > 0 {
		globalSem = make(chan struct{}, cfg.RateLimiting.HTTP.MaxConcurrent)
	}

	return func(c *gin.Context) {
		// Global concurrent requests throttling
		if globalSem != nil {
			select {
			case globalSem <- struct{}{}:
				defer func() { <-globalSem }()
			default:
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error": "too many concurrent requests",
				})
				return
			}
		}

		ip := clientIP(c.Request)
		limiter := store.getLimiter(ip)
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": int(time.Second),
			})
			return
		}
		c.Next()
	}
}

// WebSocketLimits bundles the rate limits applied to presence sockets:
// a per-IP connection budget and a per-connection message budget. Cursor
// moves arrive at input-device frequency, so the message limiter is what
// keeps one client from monopolizing a room's broadcast loop.
type WebSocketLimits struct {
	enabled        bool
	connections    *rateLimiterStore
	messageRate    rate.Limit
	messageBurst   int
	maxMessageSize int64
	connSem        chan struct{}
}

func NewWebSocketLimits(cfg *config.Config) *WebSocketLimits {
	ws := cfg.RateLimiting.WebSocket

	limits := &WebSocketLimits{
		enabled:        cfg.RateLimiting.Enabled,
		messageRate:    rate.Limit(ws.MessagesPerSecond),
		messageBurst:   ws.Burst,
		maxMessageSize: ws.MaxMessageSizeBytes,
	}

	if limits.enabled {
		perMinute := ws.ConnectionsPerMinute
		if perMinute <= 0 {
			perMinute = 60
		}
		limits.connections = newRateLimiterStore(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)

		if ws.MaxConcurrent > 0 {
			limits.connSem = make(chan struct{}, ws.MaxConcurrent)
		}
	}

	return limits
}

// AcquireConnection reserves a connection slot for the given client IP.
// The returned release func must be called when the socket closes; it is
// non-nil exactly when the acquire succeeded.
func (l *WebSocketLimits) AcquireConnection(ip string) (release func(), ok bool) {
	if !l.enabled {
		return func() {}, true
	}

	if !l.connections.getLimiter(ip).Allow() {
		return nil, false
	}

	if l.connSem != nil {
		select {
		case l.connSem <- struct{}{}:
		default:
			return nil, false
		}
		return func() { <-l.connSem }, true
	}

	return func() {}, true
}

// NewMessageLimiter returns the per-socket limiter for inbound messages,
// or nil when rate limiting is disabled.
func (l *WebSocketLimits) NewMessageLimiter() *rate.Limiter {
	if !l.enabled || l.messageRate <= 0 {
		return nil
	}
	return rate.NewLimiter(l.messageRate, l.messageBurst)
}

// MaxMessageSize returns the read limit for inbound frames, 0 for no limit.
func (l *WebSocketLimits) MaxMessageSize() int64 {
	if !l.enabled {
		return 0
	}
	return l.maxMessageSize
}


