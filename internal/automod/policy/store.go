package policy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Source loads stored policy documents.
type Source interface {
	// GetAutomodPolicies returns the raw stored document of a guild. The
	// boolean is false when the guild has no stored document.
	GetAutomodPolicies(ctx context.Context, guildID snowflake.ID) ([]byte, bool, error)
}

// Store resolves guild policies, caching the result for a short time.
type Store struct {
	source Source
	cache  *expirable.LRU[snowflake.ID, Policies]
	group  singleflight.Group
	logger *zap.Logger
}

// NewStore creates a Store. A zero cacheTTL disables caching.
func NewStore(source Source, cacheSize int, cacheTTL time.Duration, logger *zap.Logger) *Store {
	s := &Store{
		source: source,
		logger: logger.Named("automod_policy"),
	}

	if cacheTTL > 0 {
		s.cache = expirable.NewLRU[snowflake.ID, Policies](cacheSize, nil, cacheTTL)
	}

	return s
}

// GetPolicies returns the resolved policies of a guild. A corrupt stored
// document is reported as an error wrapping ErrCorruptPolicies.
func (s *Store) GetPolicies(ctx context.Context, guildID snowflake.ID) (Policies, error) {
	if s.cache != nil {
		if policies, ok := s.cache.Get(guildID); ok {
			return policies, nil
		}
	}

	// Concurrent messages from one guild share a single load, which must
	// outlive the caller that happened to start it
	loadCtx := context.WithoutCancel(ctx)

	value, err, _ := s.group.Do(strconv.FormatUint(uint64(guildID), 10), func() (any, error) {
		stored, ok, err := s.source.GetAutomodPolicies(loadCtx, guildID)
		if err != nil {
			return nil, fmt.Errorf("failed to load automod policies: %w", err)
		}

		if !ok {
			stored = nil
		}

		policies, err := Resolve(stored)
		if err != nil {
			s.logger.Warn("Stored automod policies are corrupt",
				zap.Uint64("guildID", uint64(guildID)),
				zap.Error(err))

			return nil, err
		}

		if s.cache != nil {
			s.cache.Add(guildID, policies)
		}

		return policies, nil
	})
	if err != nil {
		return nil, err
	}

	return value.(Policies), nil
}

// Invalidate drops the cached policies of a guild so the next read sees
// freshly stored settings.
func (s *Store) Invalidate(guildID snowflake.ID) {
	if s.cache != nil {
		s.cache.Remove(guildID)
	}
}
