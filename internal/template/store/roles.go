package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"template-ingest/internal/common/errors"
	"template-ingest/internal/common/logger"
)

// RoleStore answers role membership from user_roles with a short Redis cache.
type RoleStore struct {
	db     *sql.DB
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewRoleStore(db *sql.DB, rdb *redis.Client, ttl time.Duration, log logger.Logger) *RoleStore {
	return &RoleStore{db: db, redis: rdb, ttl: ttl, logger: log}
}

func roleCacheKey(userID, role string) string {
	return "role:" + userID + ":" + role
}

func (s *RoleStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	cacheKey := roleCacheKey(userID, role)
	if s.redis != nil {
		if val, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			return val == "1", nil
		} else if err != redis.Nil {
			s.logger.Warn("Role cache read failed", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
		}
	}

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`
	if err := s.db.QueryRowContext(ctx, query, userID, role).Scan(&exists); err != nil {
		return false, errors.NewQueryExecutionFailedError("user_role", err)
	}

	if s.redis != nil {
		val := "0"
		if exists {
			val = "1"
		}
		if err := s.redis.Set(ctx, cacheKey, val, s.ttl).Err(); err != nil {
			s.logger.Warn("Role cache write failed", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
		}
	}
	return exists, nil
}
