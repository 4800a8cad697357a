package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status values stored with a session
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// SessionRepository persists session state and cookie jars in Redis
type SessionRepository struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewSessionRepository creates a new session repository. Saved sessions
// and jars expire after ttl without activity.
func NewSessionRepository(redisClient *RedisClient, ttl time.Duration) *SessionRepository {
	return &SessionRepository{
		redis: redisClient,
		ttl:   ttl,
	}
}

// SaveSession persists state as a hash and marks it as the current session
func (r *SessionRepository) SaveSession(ctx context.Context, state *SessionState) error {
	if err := state.Validate(); err != nil {
		return err
	}

	k := key("session", state.SessionID)
	fields := map[string]interface{}{
		"session_id":    state.SessionID,
		"target_id":     state.TargetID,
		"url":           state.URL,
		"title":         state.Title,
		"domains":       strings.Join(state.Domains, ","),
		"created_at":    state.CreatedAt.Format(time.RFC3339),
		"last_activity": state.LastActivity.Format(time.RFC3339),
		"status":        state.Status,
	}

	pipe := r.redis.client.TxPipeline()
	pipe.HSet(ctx, k, fields)
	pipe.Expire(ctx, k, r.ttl)
	pipe.SAdd(ctx, key("sessions"), state.SessionID)
	pipe.Set(ctx, key("current"), state.SessionID, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	slog.Debug("session saved to Redis", "session_id", state.SessionID, "target_id", state.TargetID)
	return nil
}

// GetSession retrieves a session by id
func (r *SessionRepository) GetSession(ctx context.Context, sessionID string) (*SessionState, error) {
	data, err := r.redis.client.HGetAll(ctx, key("session", sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	// An empty hash means the key does not exist
	if len(data) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	state := &SessionState{
		SessionID: data["session_id"],
		TargetID:  data["target_id"],
		URL:       data["url"],
		Title:     data["title"],
		Status:    data["status"],
	}
	if d := data["domains"]; d != "" {
		state.Domains = strings.Split(d, ",")
	}
	if createdAt, err := time.Parse(time.RFC3339, data["created_at"]); err == nil {
		state.CreatedAt = createdAt
	}
	if lastActivity, err := time.Parse(time.RFC3339, data["last_activity"]); err == nil {
		state.LastActivity = lastActivity
	}

	return state, nil
}

// CurrentSession returns the most recently saved session
func (r *SessionRepository) CurrentSession(ctx context.Context) (*SessionState, error) {
	id, err := r.redis.client.Get(ctx, key("current")).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("current session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current session: %w", err)
	}
	return r.GetSession(ctx, id)
}

// ListSessions returns every saved session that has not expired
func (r *SessionRepository) ListSessions(ctx context.Context) ([]*SessionState, error) {
	ids, err := r.redis.client.SMembers(ctx, key("sessions")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*SessionState, 0, len(ids))
	for _, id := range ids {
		state, err := r.GetSession(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Hash expired, drop the stale index entry
			r.redis.client.SRem(ctx, key("sessions"), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, state)
	}
	return sessions, nil
}

// UpdateLastActivity bumps the activity timestamp and refreshes the TTL
func (r *SessionRepository) UpdateLastActivity(ctx context.Context, sessionID string) error {
	k := key("session", sessionID)

	pipe := r.redis.client.TxPipeline()
	pipe.HSet(ctx, k, "last_activity", time.Now().Format(time.RFC3339))
	pipe.Expire(ctx, k, r.ttl)
	pipe.Expire(ctx, key("current"), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update last activity: %w", err)
	}
	return nil
}

// SetStatus updates the stored status of a session
func (r *SessionRepository) SetStatus(ctx context.Context, sessionID, status string) error {
	n, err := r.redis.client.Exists(ctx, key("session", sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return r.redis.client.HSet(ctx, key("session", sessionID), "status", status).Err()
}

// DeleteSession removes a session and clears the current pointer if it
// referred to it
func (r *SessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.redis.client.Del(ctx, key("session", sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	r.redis.client.SRem(ctx, key("sessions"), sessionID)

	current, err := r.redis.client.Get(ctx, key("current")).Result()
	if err == nil && current == sessionID {
		r.redis.client.Del(ctx, key("current"))
	}

	slog.Debug("session deleted from Redis", "session_id", sessionID)
	return nil
}
