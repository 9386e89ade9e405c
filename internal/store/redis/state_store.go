package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/breakoutbot/internal/domain"
)

// StateStore implements domain.StateStore on a single Redis key holding the
// JSON-encoded position record.
type StateStore struct {
	rdb    *redis.Client
	symbol string
}

// NewStateStore creates a StateStore scoped to one symbol.
func NewStateStore(c *Client, symbol string) *StateStore {
	return &StateStore{rdb: c.Underlying(), symbol: symbol}
}

func (s *StateStore) key() string {
	return "breakout:state:" + s.symbol
}

// Load reads the stored position. An absent key means FLAT.
func (s *StateStore) Load(ctx context.Context) (domain.Position, error) {
	data, err := s.rdb.Get(ctx, s.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Position{}, nil
		}
		return domain.Position{}, fmt.Errorf("redis: load state: %w", err)
	}

	var pos domain.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return domain.Position{}, fmt.Errorf("redis: decode state: %w", err)
	}
	return pos, nil
}

// Save writes the position record. No TTL: the record must survive any
// process downtime.
func (s *StateStore) Save(ctx context.Context, pos domain.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("redis: encode state: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: save state: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.StateStore = (*StateStore)(nil)
