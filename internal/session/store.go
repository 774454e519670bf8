// Package session stores pending bind/unbind verifications in Redis so a
// verification survives process restarts and expires on its own.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uika/tsugu-go-bot/pkg/tsugudto"
)

// Pending is one outstanding verification waiting for the user's next
// message in the same channel.
type Pending struct {
	Server   tsugudto.ServerID `json:"server"`
	PlayerID int64             `json:"playerId,omitempty"`
	Unbind   bool              `json:"unbind"`
}

// Key identifies the conversation a verification belongs to.
type Key struct {
	Platform string
	Channel  string
	User     string
}

func (k Key) redisKey() string {
	return fmt.Sprintf("verify:%s:%s:%s", k.Platform, k.Channel, k.User)
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Put records a pending verification, replacing any previous one for the
// same conversation.
func (s *Store) Put(ctx context.Context, key Key, p Pending) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending verification: %w", err)
	}
	if err := s.rdb.Set(ctx, key.redisKey(), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store pending verification: %w", err)
	}
	return nil
}

// Take consumes the pending verification for a conversation. It returns
// (nil, nil) when none is outstanding; a returned verification is deleted
// before the caller sees it, so it is acted on at most once.
func (s *Store) Take(ctx context.Context, key Key) (*Pending, error) {
	raw, err := s.rdb.GetDel(ctx, key.redisKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pending verification: %w", err)
	}
	var p Pending
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode pending verification: %w", err)
	}
	return &p, nil
}
