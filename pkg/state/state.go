// Package state is the redis-backed runtime state shared between the
// replacer and the query path: runtime config overrides and the per-project
// replacement flags that decide FINAL queries. Without redis configured it
// degrades to an in-process map for single-node development.
package state

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	configHashKey          = "snuba-config"
	needsFinalKeyPrefix    = "project_needs_final_"
	excludeGroupsKeyPrefix = "project_exclude_groups_"

	// replacements older than this no longer influence queries
	replacementTTL = 5 * time.Minute
)

// Store reads and writes runtime state. A nil client means in-memory mode.
type Store struct {
	client redis.Cmdable

	mu  sync.Mutex
	mem map[string]memEntry
}

type memEntry struct {
	value     string
	values    map[string]struct{}
	expiresAt time.Time
}

func NewStore(client redis.Cmdable) *Store {
	return &Store{client: client, mem: make(map[string]memEntry)}
}

// Client exposes the underlying redis client for components that keep
// their own keys, nil in in-memory mode.
func (s *Store) Client() redis.Cmdable { return s.client }

// GetString returns the runtime config value for key, or fallback when it
// is unset.
func (s *Store) GetString(ctx context.Context, key, fallback string) (string, error) {
	if s.client == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if e, ok := s.mem[configHashKey+":"+key]; ok {
			return e.value, nil
		}
		return fallback, nil
	}
	value, err := s.client.HGet(ctx, configHashKey, key).Result()
	if err == redis.Nil {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	return value, nil
}

func (s *Store) GetInt(ctx context.Context, key string, fallback int64) (int64, error) {
	value, err := s.GetString(ctx, key, "")
	if err != nil || value == "" {
		return fallback, err
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback, nil
	}
	return parsed, nil
}

func (s *Store) GetBool(ctx context.Context, key string, fallback bool) (bool, error) {
	value, err := s.GetString(ctx, key, "")
	if err != nil || value == "" {
		return fallback, err
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, nil
	}
	return parsed, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	if s.client == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.mem[configHashKey+":"+key] = memEntry{value: value}
		return nil
	}
	return s.client.HSet(ctx, configHashKey, key, value).Err()
}

// SetProjectNeedsFinal flags project as needing FINAL queries until the
// replacement TTL passes.
func (s *Store) SetProjectNeedsFinal(ctx context.Context, projectID int64) error {
	key := needsFinalKeyPrefix + strconv.FormatInt(projectID, 10)
	if s.client == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.mem[key] = memEntry{value: "1", expiresAt: time.Now().Add(replacementTTL)}
		return nil
	}
	return s.client.Set(ctx, key, "1", replacementTTL).Err()
}

// AddExcludedGroups records groups of project as replaced, so queries
// exclude them until the TTL passes.
func (s *Store) AddExcludedGroups(ctx context.Context, projectID int64, groups []int64) error {
	if len(groups) == 0 {
		return nil
	}
	key := excludeGroupsKeyPrefix + strconv.FormatInt(projectID, 10)
	if s.client == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		e, ok := s.mem[key]
		if !ok || e.values == nil {
			e = memEntry{values: make(map[string]struct{})}
		}
		for _, g := range groups {
			e.values[strconv.FormatInt(g, 10)] = struct{}{}
		}
		e.expiresAt = time.Now().Add(replacementTTL)
		s.mem[key] = e
		return nil
	}

	members := make([]any, len(groups))
	for i, g := range groups {
		members[i] = strconv.FormatInt(g, 10)
	}
	if err := s.client.SAdd(ctx, key, members...).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, replacementTTL).Err()
}

// QueryFlags reports whether any of the projects needs FINAL and the union
// of their excluded group ids.
func (s *Store) QueryFlags(ctx context.Context, projectIDs []int64) (needsFinal bool, excluded []int64, err error) {
	for _, projectID := range projectIDs {
		id := strconv.FormatInt(projectID, 10)

		if s.client == nil {
			s.mu.Lock()
			if e, ok := s.mem[needsFinalKeyPrefix+id]; ok && time.Now().Before(e.expiresAt) {
				needsFinal = true
			}
			if e, ok := s.mem[excludeGroupsKeyPrefix+id]; ok && time.Now().Before(e.expiresAt) {
				for member := range e.values {
					if g, parseErr := strconv.ParseInt(member, 10, 64); parseErr == nil {
						excluded = append(excluded, g)
					}
				}
			}
			s.mu.Unlock()
			continue
		}

		exists, err := s.client.Exists(ctx, needsFinalKeyPrefix+id).Result()
		if err != nil {
			return false, nil, err
		}
		if exists > 0 {
			needsFinal = true
		}
		members, err := s.client.SMembers(ctx, excludeGroupsKeyPrefix+id).Result()
		if err != nil {
			return false, nil, err
		}
		for _, member := range members {
			if g, parseErr := strconv.ParseInt(member, 10, 64); parseErr == nil {
				excluded = append(excluded, g)
			}
		}
	}
	// set membership carries no order, the query text must be stable
	slices.Sort(excluded)
	return needsFinal, excluded, nil
}
