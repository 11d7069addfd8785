package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/recurpay/billing-gateway/internal/domain"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
	"github.com/recurpay/billing-gateway/internal/handlers/respond"
	"github.com/recurpay/billing-gateway/pkg/observability"
)

const (
	ipBurstMaxEntries      = 10000
	ipBurstCleanupInterval = 5 * time.Minute
)

type ipEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPBurst is an in-process per-IP burst limiter. It runs in front of the
// distributed quota as a cheap local gate: floods are dropped before they
// cost a Redis round trip, and surfaces that carry no principal (inbound
// webhooks, health probes) get per-IP limiting at all. Entries idle past
// the cleanup interval are evicted; at capacity the least recently seen
// IP is dropped.
type IPBurst struct {
	entries map[string]*ipEntry
	mu      sync.Mutex
	rate    rate.Limit
	burst   int
	logger  ports.Logger
	stopCh  chan struct{}
}

// NewIPBurst creates the limiter and starts its cleanup loop.
// perSecond is the sustained per-IP rate, burst the bucket depth.
func NewIPBurst(perSecond float64, burst int, logger ports.Logger) *IPBurst {
	b := &IPBurst{
		entries: make(map[string]*ipEntry),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	go b.cleanupLoop()
	return b
}

// Shutdown stops the cleanup goroutine
func (b *IPBurst) Shutdown() {
	close(b.stopCh)
}

// Middleware admits or rejects by client IP
func (b *IPBurst) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !b.allow(ip) {
			observability.RecordRateLimitDecision("burst_denied")
			respond.Error(w, b.logger, domain.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *IPBurst) allow(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[ip]
	if !ok {
		if len(b.entries) >= ipBurstMaxEntries {
			b.evictOldestLocked()
		}
		entry = &ipEntry{limiter: rate.NewLimiter(b.rate, b.burst)}
		b.entries[ip] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter.Allow()
}

func (b *IPBurst) evictOldestLocked() {
	var oldestIP string
	var oldestSeen time.Time
	for ip, entry := range b.entries {
		if oldestIP == "" || entry.lastAccess.Before(oldestSeen) {
			oldestIP = ip
			oldestSeen = entry.lastAccess
		}
	}
	if oldestIP != "" {
		delete(b.entries, oldestIP)
	}
}

func (b *IPBurst) cleanupLoop() {
	ticker := time.NewTicker(ipBurstCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.cleanup()
		}
	}
}

func (b *IPBurst) cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-ipBurstCleanupInterval)
	removed := 0
	for ip, entry := range b.entries {
		if entry.lastAccess.Before(cutoff) {
			delete(b.entries, ip)
			removed++
		}
	}
	if removed > 0 {
		b.logger.Debug("ip burst limiter cleanup",
			ports.Int("removed", removed),
			ports.Int("remaining", len(b.entries)))
	}
}
