package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/database/types"
	"go.uber.org/zap"
)

// extendFailureDelay is how long a failed extension waits before it is tried again.
const extendFailureDelay = 15 * time.Minute

// PendingTimeoutStore lists and updates timeouts that still need extending.
type PendingTimeoutStore interface {
	GetTimeoutExtension(ctx context.Context, guildID, userID snowflake.ID) (*types.TimeoutExtension, error)
	GetDueTimeoutExtensions(ctx context.Context, now time.Time, limit int) ([]*types.TimeoutExtension, error)
	RescheduleTimeoutExtension(ctx context.Context, guildID, userID snowflake.ID, extendAt time.Time) error
	RemoveTimeoutExtension(ctx context.Context, guildID, userID snowflake.ID) error
}

// MemberUpdater edits guild members.
type MemberUpdater interface {
	UpdateMember(
		guildID, userID snowflake.ID, memberUpdate discord.MemberUpdate, opts ...rest.RequestOpt,
	) (*discord.Member, error)
}

// TimeoutSweeper keeps timeouts longer than Discord's cap in force by
// re-applying them before the applied part runs out.
type TimeoutSweeper struct {
	rest     MemberUpdater
	store    PendingTimeoutStore
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewTimeoutSweeper creates a TimeoutSweeper.
func NewTimeoutSweeper(
	restClient MemberUpdater, store PendingTimeoutStore, interval time.Duration, logger *zap.Logger,
) *TimeoutSweeper {
	return &TimeoutSweeper{
		rest:     restClient,
		store:    store,
		interval: interval,
		logger:   logger.Named("timeout_sweeper"),
		now:      time.Now,
	}
}

// Run sweeps on every interval until ctx is done.
func (s *TimeoutSweeper) Run(ctx context.Context) {
	runEvery(ctx, s.interval, s.logger, s.Sweep)
}

// Sweep extends every due timeout and returns how many were extended.
func (s *TimeoutSweeper) Sweep(ctx context.Context) (int, error) {
	due, err := s.store.GetDueTimeoutExtensions(ctx, s.now(), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	extended := 0

	for _, extension := range due {
		ok, err := s.extend(ctx, extension)
		if err != nil {
			return extended, err
		}

		if ok {
			extended++
		}
	}

	if extended > 0 {
		s.logger.Info("Extended long timeouts", zap.Int("count", extended))
	}

	return extended, nil
}

// Restore re-applies a pending long timeout to a member who rejoined.
func (s *TimeoutSweeper) Restore(ctx context.Context, guildID, userID snowflake.ID) error {
	extension, err := s.store.GetTimeoutExtension(ctx, guildID, userID)
	if err != nil || extension == nil {
		return err
	}

	_, err = s.extend(ctx, extension)

	return err
}

// extend applies the next part of a long timeout and reports whether
// Discord accepted it.
func (s *TimeoutSweeper) extend(ctx context.Context, extension *types.TimeoutExtension) (bool, error) {
	now := s.now()

	if !extension.ExpiresAt.After(now) {
		return false, s.store.RemoveTimeoutExtension(ctx, extension.GuildID, extension.UserID)
	}

	until := capTimeout(now, extension.ExpiresAt)

	_, err := s.rest.UpdateMember(extension.GuildID, extension.UserID, discord.MemberUpdate{
		CommunicationDisabledUntil: json.NewNullablePtr(until),
	}, rest.WithCtx(ctx), rest.WithReason("Timeout extension"))

	switch {
	case isNotFound(err):
		// Member left, the timeout is restored when they rejoin
		return false, s.reschedule(ctx, extension, until.Add(-extendLead))
	case err != nil:
		s.logger.Warn("Failed to extend timeout",
			zap.Uint64("guildID", uint64(extension.GuildID)),
			zap.Uint64("userID", uint64(extension.UserID)),
			zap.Error(err))

		return false, s.reschedule(ctx, extension, now.Add(extendFailureDelay))
	}

	if !until.Before(extension.ExpiresAt) {
		return true, s.store.RemoveTimeoutExtension(ctx, extension.GuildID, extension.UserID)
	}

	return true, s.reschedule(ctx, extension, until.Add(-extendLead))
}

func (s *TimeoutSweeper) reschedule(ctx context.Context, extension *types.TimeoutExtension, extendAt time.Time) error {
	if err := s.store.RescheduleTimeoutExtension(ctx, extension.GuildID, extension.UserID, extendAt); err != nil {
		return fmt.Errorf("failed to reschedule timeout extension: %w", err)
	}

	return nil
}
