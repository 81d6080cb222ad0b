package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/quill/internal/cache"
)

// LoginThrottle caps login attempts per identifier and client IP across all
// instances using a shared cache counter.
type LoginThrottle struct {
	cache  cache.Cache
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewLoginThrottle creates a throttle allowing limit attempts per window. A
// non-positive limit disables throttling.
func NewLoginThrottle(c cache.Cache, limit int, window time.Duration, logger *slog.Logger) *LoginThrottle {
	return &LoginThrottle{
		cache:  c,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// Allow counts one attempt and reports whether it is within budget. Cache
// failures allow the attempt; per-account lockout still applies.
func (t *LoginThrottle) Allow(ctx context.Context, identifier, ipAddress string) bool {
	if t == nil || t.limit <= 0 {
		return true
	}

	count, err := t.cache.Increment(ctx, throttleKey(identifier, ipAddress), t.window)
	if err != nil {
		t.logger.Warn("login throttle unavailable", slog.Any("error", err))
		return true
	}

	if count > int64(t.limit) {
		t.logger.Warn("login throttled",
			slog.String("ip_address", ipAddress),
			slog.Int64("attempts", count))
		return false
	}
	return true
}

// throttleKey hashes the identifier so emails never appear in cache keys
func throttleKey(identifier, ipAddress string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(identifier) + "|" + ipAddress))
	return "login_throttle:" + hex.EncodeToString(sum[:16])
}
