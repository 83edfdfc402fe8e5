package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SecurityHeaders adds OWASP-recommended security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security",
				"max-age=31536000; includeSubDomains")
		}
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// RateLimitConfig holds configuration for the per-client rate limiter.
type RateLimitConfig struct {
	RequestsPerMin int      // maximum requests allowed per minute
	BurstSize      int      // maximum burst of requests allowed
	TrustedProxies []string // proxy IPs whose X-Forwarded-For headers are trusted
}

// RateLimit implements token bucket rate limiting per client IP.
// The context bounds the lifetime of the stale-entry cleanup goroutine.
func RateLimit(ctx context.Context, requestsPerMin, burstSize int) func(http.Handler) http.Handler {
	return RateLimitWithConfig(ctx, RateLimitConfig{
		RequestsPerMin: requestsPerMin,
		BurstSize:      burstSize,
	})
}

// RateLimitWithConfig implements token bucket rate limiting with trusted
// proxy support. With no trusted proxies configured, X-Forwarded-For is
// ignored and the direct connection IP is used, which prevents clients from
// spoofing their way past the limiter.
func RateLimitWithConfig(ctx context.Context, cfg RateLimitConfig) func(http.Handler) http.Handler {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	clients := make(map[string]*client)
	mu := &sync.Mutex{}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				mu.Lock()
				for ip, c := range clients {
					if time.Since(c.lastSeen) > 3*time.Minute {
						delete(clients, ip)
					}
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r, cfg.TrustedProxies)

			mu.Lock()
			if _, exists := clients[ip]; !exists {
				clients[ip] = &client{
					limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMin)/60.0, cfg.BurstSize),
				}
			}
			clients[ip].lastSeen = time.Now()
			limiter := clients[ip].limiter
			mu.Unlock()

			if !limiter.Allow() {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP. Proxy headers are honored only when
// the direct peer is a configured trusted proxy.
func getClientIP(r *http.Request, trustedProxies []string) string {
	directIP := r.RemoteAddr
	if idx := strings.LastIndex(directIP, ":"); idx > 0 {
		directIP = directIP[:idx]
	}

	trusted := false
	for _, proxyIP := range trustedProxies {
		if directIP == proxyIP {
			trusted = true
			break
		}
	}
	if !trusted {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return directIP
}
