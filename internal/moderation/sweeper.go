package moderation

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/database/types"
	"go.uber.org/zap"
)

const (
	// sweepBatchSize is how many rows a sweeper handles per sweep.
	sweepBatchSize = 100
	// maxUnbanAttempts is how often an unban is retried before the tempban is dropped.
	maxUnbanAttempts = 10
	// maxRetryDelay caps the backoff between failed attempts.
	maxRetryDelay = 6 * time.Hour
)

// ExpiredTempbanStore lists and removes expired tempbans.
type ExpiredTempbanStore interface {
	GetExpiredTempbans(ctx context.Context, now time.Time, limit int) ([]*types.Tempban, error)
	DeferTempban(ctx context.Context, guildID, userID snowflake.ID, attempts int, nextAttemptAt time.Time) error
	RemoveTempban(ctx context.Context, guildID, userID snowflake.ID) error
}

// Unbanner lifts bans.
type Unbanner interface {
	DeleteBan(guildID, userID snowflake.ID, opts ...rest.RequestOpt) error
}

// TempbanSweeper periodically lifts expired temporary bans.
type TempbanSweeper struct {
	rest     Unbanner
	store    ExpiredTempbanStore
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewTempbanSweeper creates a TempbanSweeper.
func NewTempbanSweeper(
	restClient Unbanner, store ExpiredTempbanStore, interval time.Duration, logger *zap.Logger,
) *TempbanSweeper {
	return &TempbanSweeper{
		rest:     restClient,
		store:    store,
		interval: interval,
		logger:   logger.Named("tempban_sweeper"),
		now:      time.Now,
	}
}

// Run sweeps on every interval until ctx is done.
func (s *TempbanSweeper) Run(ctx context.Context) {
	runEvery(ctx, s.interval, s.logger, s.Sweep)
}

// Sweep lifts every due tempban and returns how many were lifted. Failed
// unbans are retried with backoff so they never hold up newer tempbans.
func (s *TempbanSweeper) Sweep(ctx context.Context) (int, error) {
	expired, err := s.store.GetExpiredTempbans(ctx, s.now(), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	lifted := 0

	for _, tempban := range expired {
		err := s.rest.DeleteBan(tempban.GuildID, tempban.UserID,
			rest.WithCtx(ctx), rest.WithReason("User unbanned: Tempban expired."))
		if err != nil && !isNotFound(err) {
			if err := s.deferUnban(ctx, tempban, err); err != nil {
				return lifted, err
			}

			continue
		}

		if err := s.store.RemoveTempban(ctx, tempban.GuildID, tempban.UserID); err != nil {
			return lifted, err
		}

		lifted++
	}

	if lifted > 0 {
		s.logger.Info("Lifted expired tempbans", zap.Int("count", lifted))
	}

	return lifted, nil
}

// deferUnban schedules the next attempt of a failed unban, or drops the
// tempban once it ran out of attempts.
func (s *TempbanSweeper) deferUnban(ctx context.Context, tempban *types.Tempban, cause error) error {
	attempts := tempban.Attempts + 1

	if attempts >= maxUnbanAttempts {
		s.logger.Error("Giving up on lifting tempban",
			zap.Uint64("guildID", uint64(tempban.GuildID)),
			zap.Uint64("userID", uint64(tempban.UserID)),
			zap.Int("attempts", attempts),
			zap.Error(cause))

		return s.store.RemoveTempban(ctx, tempban.GuildID, tempban.UserID)
	}

	delay := retryDelay(s.interval, attempts)

	s.logger.Warn("Failed to lift tempban",
		zap.Uint64("guildID", uint64(tempban.GuildID)),
		zap.Uint64("userID", uint64(tempban.UserID)),
		zap.Int("attempts", attempts),
		zap.Duration("retryIn", delay),
		zap.Error(cause))

	return s.store.DeferTempban(ctx, tempban.GuildID, tempban.UserID, attempts, s.now().Add(delay))
}

// retryDelay doubles the interval for every failed attempt up to maxRetryDelay.
func retryDelay(interval time.Duration, attempts int) time.Duration {
	delay := interval
	for range attempts - 1 {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}

	return min(delay, maxRetryDelay)
}

// runEvery sweeps right away and then on every interval until ctx is done.
func runEvery(
	ctx context.Context, interval time.Duration, logger *zap.Logger, sweep func(context.Context) (int, error),
) {
	logger.Info("Sweeper started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := sweep(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Failed to sweep", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// isNotFound reports whether Discord answered with 404. For an unban this
// means the ban was already lifted by hand, for a member edit that the
// member left.
func isNotFound(err error) bool {
	var restErr *rest.Error
	if !errors.As(err, &restErr) {
		return false
	}

	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
