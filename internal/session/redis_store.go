package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"eventlog/api/internal/blockdoc"
)

// DefaultBaselineTTL bounds how long a sent document is kept as the
// reconciliation baseline.
const DefaultBaselineTTL = 30 * 24 * time.Hour

// Baseline is the document last sent for a record.
type Baseline struct {
	RecordID    string            `json:"record_id"`
	Document    blockdoc.Document `json:"document"`
	Fingerprint string            `json:"fingerprint"`
	Sequence    int64             `json:"sequence"`
	SentAt      int64             `json:"sent_at"`
}

// RedisStore keeps sync baselines and shared update sequences in Redis so
// several processes agree on them.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "eventlog:",
	}
}

func (s *RedisStore) baselineKey(recordID string) string {
	return s.prefix + "baseline:" + recordID
}

func (s *RedisStore) sequenceKey(recordID string) string {
	return s.prefix + "seq:" + recordID
}

// SaveBaseline stores b. A non-positive ttl uses DefaultBaselineTTL.
func (s *RedisStore) SaveBaseline(ctx context.Context, b Baseline, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultBaselineTTL
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	if err := s.client.Set(ctx, s.baselineKey(b.RecordID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	return nil
}

// LoadBaseline returns nil, nil when no baseline is stored.
func (s *RedisStore) LoadBaseline(ctx context.Context, recordID string) (*Baseline, error) {
	data, err := s.client.Get(ctx, s.baselineKey(recordID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal baseline: %w", err)
	}
	return &b, nil
}

func (s *RedisStore) DeleteBaseline(ctx context.Context, recordID string) error {
	if err := s.client.Del(ctx, s.baselineKey(recordID)).Err(); err != nil {
		return fmt.Errorf("delete baseline: %w", err)
	}
	return nil
}

// NextSequence satisfies Sequencer with an atomic INCR.
func (s *RedisStore) NextSequence(ctx context.Context, recordID string) (int64, error) {
	n, err := s.client.Incr(ctx, s.sequenceKey(recordID)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment sequence: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
