package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store mirrors user online status to Redis so other instances can read it.
// Key: <prefix>:presence:<userID> -> {"status":...,"last_seen":...}
// A nil *Store is a no-op, so the server runs without Redis configured.
type Store struct {
	client *redis.Client
	prefix string
}

type status struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

func New(addr, prefix string) *Store {
	if addr == "" {
		return nil
	}
	return &Store{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

func (s *Store) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *Store) SetOnline(ctx context.Context, userID string) error {
	return s.set(ctx, userID, "online")
}

func (s *Store) SetOffline(ctx context.Context, userID string) error {
	return s.set(ctx, userID, "offline")
}

func (s *Store) set(ctx context.Context, userID, state string) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(status{Status: state, LastSeen: time.Now().Unix()})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(userID), b, 0).Err()
}

func (s *Store) IsOnline(ctx context.Context, userID string) (bool, error) {
	if s == nil {
		return false, nil
	}
	b, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var st status
	if err := json.Unmarshal(b, &st); err != nil {
		return false, err
	}
	return st.Status == "online", nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}
