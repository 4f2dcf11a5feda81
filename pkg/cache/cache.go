package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLVersion 버전은 불변이므로 길게
const TTLVersion = 24 * time.Hour

// 캐시 키 접두사
const (
	PrefixVersion = "kb:version:"
)

// ErrMiss is returned by Get when the key is absent or redis is unavailable
var ErrMiss = errors.New("cache miss")

// Service Redis 캐시 서비스 인터페이스
type Service interface {
	// 기본 캐시 연산
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// 버전 캐시 (article version + translations)
	GetVersion(ctx context.Context, versionID uint64, dest interface{}) error
	SetVersion(ctx context.Context, versionID uint64, version interface{}) error

	// 유틸리티
	IsAvailable() bool
	Ping(ctx context.Context) error
}

// redisCache Redis 기반 캐시 구현
type redisCache struct {
	client *redis.Client
}

// NewService 새로운 캐시 서비스 생성 (client가 nil이면 no-op)
func NewService(client *redis.Client) Service {
	return &redisCache{client: client}
}

// IsAvailable Redis 연결 가능 여부
func (c *redisCache) IsAvailable() bool {
	return c.client != nil
}

// Ping Redis 연결 테스트
func (c *redisCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return c.client.Ping(ctx).Err()
}

// Get 캐시에서 값 조회
func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return ErrMiss
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// Set 캐시에 값 저장
func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return nil // Redis 없으면 무시
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

// ========================================
// 버전 캐시
// ========================================

func versionKey(versionID uint64) string {
	return PrefixVersion + strconv.FormatUint(versionID, 10)
}

// GetVersion 버전 조회
func (c *redisCache) GetVersion(ctx context.Context, versionID uint64, dest interface{}) error {
	return c.Get(ctx, versionKey(versionID), dest)
}

// SetVersion 버전 저장
func (c *redisCache) SetVersion(ctx context.Context, versionID uint64, version interface{}) error {
	return c.Set(ctx, versionKey(versionID), version, TTLVersion)
}
