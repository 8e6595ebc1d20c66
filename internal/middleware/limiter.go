package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"pizzeria-be/internal/auth"
	"pizzeria-be/internal/utils"

	"golang.org/x/time/rate"
)

// Rate Limit Tiers
const (
	// Login (Strict)
	limitStrict = rate.Limit(2)
	burstStrict = 5

	// Order intake and admin writes
	limitGeneral = rate.Limit(10)
	burstGeneral = 20

	// Kitchen/delivery dashboards polling reads
	limitFrontend = rate.Limit(20)
	burstFrontend = 40
)

const visitorTTL = 3 * time.Minute

type Tier struct {
	Name  string
	Limit rate.Limit
	Burst int
}

var (
	TierStrict   = Tier{Name: "strict", Limit: limitStrict, Burst: burstStrict}
	TierGeneral  = Tier{Name: "general", Limit: limitGeneral, Burst: burstGeneral}
	TierFrontend = Tier{Name: "frontend", Limit: limitFrontend, Burst: burstFrontend}
)

// visitor holds the rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per (identity, tier).
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewLimiter starts the background cleanup routine; call Stop to end it.
func NewLimiter() *Limiter {
	l := &Limiter{
		visitors: make(map[string]*visitor),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.cleanupLoop(time.Minute)
	return l
}

func (l *Limiter) Stop() {
	close(l.stop)
	<-l.done
}

// getVisitor retrieves or creates a rate limiter for the given key.
func (l *Limiter) getVisitor(key string, tier Tier) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, exists := l.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(tier.Limit, tier.Burst)
		l.visitors[key] = &visitor{limiter, l.now()}
		return limiter
	}

	v.lastSeen = l.now()
	return v.limiter
}

func (l *Limiter) cleanupLoop(every time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

// cleanup removes idle visitors to keep the map bounded.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if l.now().Sub(v.lastSeen) > visitorTTL {
			delete(l.visitors, key)
		}
	}
}

// Middleware limits requests per caller under the given tier.
func (l *Limiter) Middleware(tier Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := identity(r) + ":" + tier.Name

			if !l.getVisitor(key, tier).Allow() {
				utils.WriteJSONError(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func identity(r *http.Request) string {
	if claims, ok := auth.ClaimsFrom(r.Context()); ok {
		return "user:" + claims.Username
	}
	if deviceID := r.Header.Get("X-Device-ID"); deviceID != "" {
		return "device:" + deviceID
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}
