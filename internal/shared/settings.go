package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// SettingsProvider supplies configuration values grouped by module.
type SettingsProvider interface {
	Get(ctx context.Context, group, key, def string) (string, error)
}

// Settings reads the settings table with a short-lived redis cache in front.
type Settings struct {
	pool   *pgxpool.Pool
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	flight singleflight.Group
}

// NewSettings constructs Settings. The cache client is optional.
func NewSettings(pool *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) *Settings {
	return &Settings{pool: pool, cache: cache, ttl: 30 * time.Second, logger: logger}
}

func settingsCacheKey(group, key string) string {
	return fmt.Sprintf("settings:%s:%s", group, key)
}

// Get returns the stored value for group/key, or def when no row exists.
func (s *Settings) Get(ctx context.Context, group, key, def string) (string, error) {
	if s == nil {
		return def, errors.New("settings provider not initialised")
	}
	if group == "" || key == "" {
		return def, errors.New("settings group and key required")
	}
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, settingsCacheKey(group, key)).Result(); err == nil {
			return cached, nil
		}
	}
	if s.pool == nil {
		return def, errors.New("settings provider not initialised")
	}
	// Concurrent misses on the same key share one database round trip.
	value, err, _ := s.flight.Do(settingsCacheKey(group, key), func() (any, error) {
		var stored string
		err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE "group"=$1 AND key=$2`, group, key).Scan(&stored)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return def, nil
			}
			return def, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, settingsCacheKey(group, key), stored, s.ttl).Err(); err != nil && s.logger != nil {
				s.logger.Warn("settings cache set failed", slog.Any("error", err))
			}
		}
		return stored, nil
	})
	if err != nil {
		return def, err
	}
	return value.(string), nil
}

// Set upserts a setting and drops the cached value.
func (s *Settings) Set(ctx context.Context, group, key, value string) error {
	if s == nil || s.pool == nil {
		return errors.New("settings provider not initialised")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO settings ("group", key, value, updated_at) VALUES ($1, $2, $3, NOW())
ON CONFLICT ("group", key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, group, key, value)
	if err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, settingsCacheKey(group, key)).Err()
	}
	return nil
}

// GetBool parses a boolean setting, falling back to def on parse failure.
func GetBool(ctx context.Context, p SettingsProvider, group, key string, def bool) bool {
	raw, err := p.Get(ctx, group, key, strconv.FormatBool(def))
	if err != nil {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// GetDecimal parses a decimal setting, falling back to def on parse failure.
func GetDecimal(ctx context.Context, p SettingsProvider, group, key string, def decimal.Decimal) decimal.Decimal {
	raw, err := p.Get(ctx, group, key, def.String())
	if err != nil {
		return def
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return def
	}
	return v
}
