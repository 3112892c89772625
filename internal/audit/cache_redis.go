package audit

import (
	"context"
	"fmt"
	"time"

	"kycflow/internal/domain"
	"kycflow/pkg/cache"
	kycerrors "kycflow/pkg/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisResultCache caches the latest KYCWorkflowResult per verification so the
// API can serve result reads without replaying the pipeline.
type RedisResultCache struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

func NewRedisResultCache(c *cache.RedisCache, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{cache: c, ttl: ttl}
}

func resultKey(verificationID uuid.UUID) string {
	return fmt.Sprintf("kyc:result:%s", verificationID)
}

func (c *RedisResultCache) SetResult(ctx context.Context, result *domain.KYCWorkflowResult) error {
	return c.cache.Set(ctx, resultKey(result.VerificationID), result, c.ttl)
}

func (c *RedisResultCache) GetResult(ctx context.Context, verificationID uuid.UUID) (*domain.KYCWorkflowResult, error) {
	var result domain.KYCWorkflowResult
	err := c.cache.Get(ctx, resultKey(verificationID), &result)
	if err == redis.Nil {
		return nil, kycerrors.ErrResultNotCached
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}
