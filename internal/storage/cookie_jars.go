package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// SaveCookieJar stores cookies under name, replacing any previous jar.
// cookies must be a JSON array.
func (r *SessionRepository) SaveCookieJar(ctx context.Context, name string, cookies []byte) (*CookieJar, error) {
	if name == "" {
		return nil, fmt.Errorf("cookie jar name is required")
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(cookies, &entries); err != nil {
		return nil, fmt.Errorf("cookie jar %s is not a JSON array: %w", name, err)
	}

	jar := &CookieJar{
		Name:    name,
		Cookies: cookies,
		Count:   len(entries),
		SavedAt: time.Now().UTC().Truncate(time.Second),
	}

	data, err := json.Marshal(jar)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cookie jar: %w", err)
	}

	pipe := r.redis.client.TxPipeline()
	pipe.Set(ctx, key("jar", name), data, r.ttl)
	pipe.SAdd(ctx, key("jars"), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to save cookie jar: %w", err)
	}

	return jar, nil
}

// GetCookieJar loads a saved jar
func (r *SessionRepository) GetCookieJar(ctx context.Context, name string) (*CookieJar, error) {
	data, err := r.redis.client.Get(ctx, key("jar", name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("cookie jar %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cookie jar: %w", err)
	}

	var jar CookieJar
	if err := json.Unmarshal(data, &jar); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cookie jar: %w", err)
	}
	return &jar, nil
}

// ListCookieJars returns the names of the saved jars, sorted
func (r *SessionRepository) ListCookieJars(ctx context.Context) ([]string, error) {
	names, err := r.redis.client.SMembers(ctx, key("jars")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list cookie jars: %w", err)
	}

	live := names[:0]
	for _, name := range names {
		n, err := r.redis.client.Exists(ctx, key("jar", name)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list cookie jars: %w", err)
		}
		if n == 0 {
			r.redis.client.SRem(ctx, key("jars"), name)
			continue
		}
		live = append(live, name)
	}

	sort.Strings(live)
	return live, nil
}

// DeleteCookieJar removes a saved jar
func (r *SessionRepository) DeleteCookieJar(ctx context.Context, name string) error {
	n, err := r.redis.client.Del(ctx, key("jar", name)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete cookie jar: %w", err)
	}
	r.redis.client.SRem(ctx, key("jars"), name)
	if n == 0 {
		return fmt.Errorf("cookie jar %s: %w", name, ErrNotFound)
	}
	return nil
}
