// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter holds one token bucket per client address.
type clientLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	*rate.Limiter
	seen time.Time
}

// newClientLimiter allows perSecond requests per client. perSecond <= 0
// turns limiting off.
func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	l := &clientLimiter{limit: rate.Limit(perSecond), burst: max(burst, 1), buckets: make(map[string]*bucket)}
	if perSecond <= 0 {
		l.limit = rate.Inf
	}
	return l
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	b := l.buckets[client]
	if b == nil {
		b = &bucket{Limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[client] = b
	}
	b.seen = time.Now()
	l.mu.Unlock()
	return b.Allow()
}

// forget drops buckets idle for longer than idle and returns the count.
func (l *clientLimiter) forget(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for client, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, client)
			n++
		}
	}
	return n
}

func (l *clientLimiter) middleware(logger *slog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIP(r)
			if !l.allow(client) {
				logger.Warn("rate limited", slog.String("client", client), slog.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
