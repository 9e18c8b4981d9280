package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-engagement/internal/domain"
	"tg-engagement/internal/infra/metrics"
)

const (
	profileKeyPrefix    = "profile:"
	generationKeyPrefix = "profile_gen:"
)

// RedisProfileCache реализует domain.ProfileCache через Redis. Записи живут без TTL.
type RedisProfileCache struct {
	client *redis.Client
}

// NewRedisProfileCache создаёт кэш профилей.
func NewRedisProfileCache(client *redis.Client) *RedisProfileCache {
	return &RedisProfileCache{client: client}
}

func profileKey(accountID int64) string {
	return profileKeyPrefix + strconv.FormatInt(accountID, 10)
}

func generationKey(accountID int64) string {
	return generationKeyPrefix + strconv.FormatInt(accountID, 10)
}

// GetProfile возвращает профиль. redis.Nil означает промах.
func (c *RedisProfileCache) GetProfile(ctx context.Context, accountID int64) (domain.ActivityProfile, bool, error) {
	start := time.Now()
	raw, err := c.client.Get(ctx, profileKey(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "get", "profile", start, nil)
		return domain.ActivityProfile{}, false, nil
	}
	metrics.ObserveNetworkRequest("redis", "get", "profile", start, err)
	if err != nil {
		return domain.ActivityProfile{}, false, fmt.Errorf("redis get profile: %w", err)
	}
	var profile domain.ActivityProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return domain.ActivityProfile{}, false, fmt.Errorf("decode profile: %w", err)
	}
	return profile, true, nil
}

// Generation возвращает поколение записи. Отсутствие ключа означает 0.
func (c *RedisProfileCache) Generation(ctx context.Context, accountID int64) (int64, error) {
	start := time.Now()
	gen, err := c.client.Get(ctx, generationKey(accountID)).Int64()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "get", "profile_gen", start, nil)
		return 0, nil
	}
	metrics.ObserveNetworkRequest("redis", "get", "profile_gen", start, err)
	if err != nil {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return gen, nil
}

// PutProfile записывает профиль в транзакции под WATCH ключа поколения.
// Если поколение изменилось до EXEC, запись пропускается.
func (c *RedisProfileCache) PutProfile(ctx context.Context, accountID int64, generation int64, profile domain.ActivityProfile) (bool, error) {
	payload, err := json.Marshal(profile)
	if err != nil {
		return false, fmt.Errorf("encode profile: %w", err)
	}
	genKey := generationKey(accountID)
	stored := false
	start := time.Now()
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, profileKey(accountID), payload, 0)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		metrics.ObserveNetworkRequest("redis", "set", "profile", start, nil)
		return false, nil
	}
	metrics.ObserveNetworkRequest("redis", "set", "profile", start, err)
	if err != nil {
		return false, fmt.Errorf("redis set profile: %w", err)
	}
	return stored, nil
}

// DeleteProfile удаляет профиль и увеличивает поколение одной транзакцией.
func (c *RedisProfileCache) DeleteProfile(ctx context.Context, accountID int64) error {
	start := time.Now()
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, profileKey(accountID))
		pipe.Incr(ctx, generationKey(accountID))
		return nil
	})
	metrics.ObserveNetworkRequest("redis", "del", "profile", start, err)
	if err != nil {
		return fmt.Errorf("redis del profile: %w", err)
	}
	return nil
}
