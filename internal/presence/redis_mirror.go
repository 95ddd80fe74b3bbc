// Package presence mirrors session participants to Redis so other processes
// (and the REST API) can read who is in a document.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"naskahcollab/internal/document/model"

	"github.com/redis/go-redis/v9"
)

// RedisMirror stores one hash per document: presence:<docID> -> userID -> JSON.
type RedisMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisMirror connects to redisURL and pings it.
func NewRedisMirror(redisURL string, ttl time.Duration) (*RedisMirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisMirrorWithClient(client, ttl), nil
}

func NewRedisMirrorWithClient(client *redis.Client, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisMirror{client: client, prefix: "presence:", ttl: ttl}
}

func (m *RedisMirror) key(docID string) string {
	return m.prefix + docID
}

// Publish replaces the stored snapshot for docID. An empty list clears it.
func (m *RedisMirror) Publish(ctx context.Context, docID string, participants []model.Participant) error {
	if len(participants) == 0 {
		return m.Clear(ctx, docID)
	}

	fields := make(map[string]interface{}, len(participants))
	for _, p := range participants {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal participant %s: %w", p.ID, err)
		}
		fields[p.ID] = data
	}

	key := m.key(docID)
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, m.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish presence for %s: %w", docID, err)
	}
	return nil
}

// Snapshot returns the mirrored participants sorted by id.
func (m *RedisMirror) Snapshot(ctx context.Context, docID string) ([]model.Participant, error) {
	values, err := m.client.HGetAll(ctx, m.key(docID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence for %s: %w", docID, err)
	}

	participants := make([]model.Participant, 0, len(values))
	for userID, raw := range values {
		var p model.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("unmarshal participant %s: %w", userID, err)
		}
		participants = append(participants, p)
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].ID < participants[j].ID })
	return participants, nil
}

func (m *RedisMirror) Clear(ctx context.Context, docID string) error {
	if err := m.client.Del(ctx, m.key(docID)).Err(); err != nil {
		return fmt.Errorf("clear presence for %s: %w", docID, err)
	}
	return nil
}

func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}
