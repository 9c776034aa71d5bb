package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "fold:"

// RedisStore keeps the latest checkpoint and the reward history of every run under fold: keys
type RedisStore struct {
	addr   string
	client *redis.Client
}

var _ Store = &RedisStore{}

func NewRedisStore(addr string) *RedisStore {
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	return &RedisStore{addr: addr}
}

func (s *RedisStore) Init(ctx context.Context) error {
	if s.client != nil {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:        s.addr,
		DialTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connecting to redis at %s: %w", s.addr, err)
	}
	s.client = client
	return nil
}

func checkpointKey(runID string) string {
	return redisKeyPrefix + "checkpoint:" + runID
}

func historyKey(runID string) string {
	return redisKeyPrefix + "rewards:" + runID
}

func (s *RedisStore) SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	if s.client == nil {
		return ErrNotInitialized
	}
	payload, err := EncodeCheckpoint(checkpoint)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, checkpointKey(checkpoint.RunID), payload, 0).Err()
}

func (s *RedisStore) LatestCheckpoint(ctx context.Context, runID string) (*Checkpoint, error) {
	if s.client == nil {
		return nil, ErrNotInitialized
	}
	payload, err := s.client.Get(ctx, checkpointKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	checkpoint, err := DecodeCheckpoint(payload)
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", runID, err)
	}
	return checkpoint, nil
}

func (s *RedisStore) SaveRewardHistory(ctx context.Context, runID string, history []float64) error {
	if s.client == nil {
		return ErrNotInitialized
	}
	payload, err := EncodeRewardHistory(history)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, historyKey(runID), payload, 0).Err()
}

func (s *RedisStore) GetRewardHistory(ctx context.Context, runID string) ([]float64, error) {
	if s.client == nil {
		return nil, ErrNotInitialized
	}
	payload, err := s.client.Get(ctx, historyKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	history, err := DecodeRewardHistory(payload)
	if err != nil {
		return nil, fmt.Errorf("decode reward history %s: %w", runID, err)
	}
	return history, nil
}

func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
