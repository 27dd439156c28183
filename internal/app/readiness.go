package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Pinger is anything that can report its own liveness: a pgx pool or the
// Tika client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns the db, redis and tika checks. A dependency
// that is not configured yields a nil check, which /readyz skips.
func BuildReadinessChecks(pool Pinger, rdb goredis.UniversalClient, tika Pinger) (
	dbCheck func(ctx context.Context) error,
	redisCheck func(ctx context.Context) error,
	tikaCheck func(ctx context.Context) error,
) {
	if pool != nil {
		dbCheck = func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}
			return nil
		}
	}
	if rdb != nil {
		redisCheck = func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			return nil
		}
	}
	if tika != nil {
		tikaCheck = func(ctx context.Context) error {
			if err := tika.Ping(ctx); err != nil {
				return fmt.Errorf("tika ping: %w", err)
			}
			return nil
		}
	}
	return dbCheck, redisCheck, tikaCheck
}
