package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"leadtriage/internal/leads/models"
	"leadtriage/pkg/platform/sentinel"
)

const (
	redisLeadKeyPrefix = "lead:"
	redisOrderKey      = "leads:order"
	// redisMaxRetries bounds optimistic retries when a WATCHed key changes.
	redisMaxRetries = 3
)

// RedisStore keeps one JSON document per lead plus a list holding ids in
// insertion order. Updates use WATCH/MULTI optimistic transactions.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed lead store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func leadKey(id string) string {
	return redisLeadKeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, lead *models.Lead) error {
	data, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("marshal lead: %w", err)
	}
	key := leadKey(lead.ID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("lead %s: %w", lead.ID, sentinel.ErrConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.RPush(ctx, redisOrderKey, lead.ID)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("lead %s: %w", lead.ID, sentinel.ErrConflict)
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return err
		}
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Lead, error) {
	ids, err := s.client.LRange(ctx, redisOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list lead ids: %w", err)
	}
	out := make([]*models.Lead, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = leadKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load leads: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// id listed but document missing; skip rather than fail the listing
			continue
		}
		lead, err := decodeLead(raw)
		if err != nil {
			return nil, fmt.Errorf("lead %s: %w", ids[i], err)
		}
		out = append(out, lead)
	}
	return out, nil
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	raw, err := s.client.Get(ctx, leadKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find lead: %w", err)
	}
	return decodeLead(raw)
}

// Execute watches the lead key, validates and mutates the decoded record and
// writes it in a MULTI block. A concurrent write aborts the transaction and
// the whole sequence is retried.
func (s *RedisStore) Execute(ctx context.Context, id string, validate func(*models.Lead) error, mutate func(*models.Lead)) (*models.Lead, error) {
	key := leadKey(id)
	var result *models.Lead

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("load lead: %w", err)
		}
		current, err := decodeLead(raw)
		if err != nil {
			return err
		}

		working := current.Clone()
		if err := validate(working); err != nil {
			return err
		}
		mutate(working)
		protectImmutable(current, working)

		data, err := json.Marshal(working)
		if err != nil {
			return fmt.Errorf("marshal lead: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		result = working
		return nil
	}

	for range redisMaxRetries {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("lead %s changed concurrently: %w", id, sentinel.ErrConflict)
}

// Health pings Redis.
func (s *RedisStore) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func decodeLead(raw string) (*models.Lead, error) {
	var lead models.Lead
	if err := json.Unmarshal([]byte(raw), &lead); err != nil {
		return nil, fmt.Errorf("decode lead: %w", err)
	}
	return &lead, nil
}
