package bot

import (
	"context"
	"errors"
	"time"

	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// MessageHandler processes guild messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *event.Message) error
}

// Dispatcher hands messages to a bounded pool of goroutines so that slow
// moderation calls never stall the gateway.
type Dispatcher struct {
	ctx     context.Context //nolint:containedctx // shared by every queued message
	handler MessageHandler
	pool    *pool.Pool
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher running at most workers handlers at once.
// Handlers run with ctx and should stop once it is canceled.
func NewDispatcher(ctx context.Context, handler MessageHandler, workers int, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		ctx:     ctx,
		handler: handler,
		pool:    pool.New().WithMaxGoroutines(max(workers, 1)),
		logger:  logger.Named("dispatcher"),
	}
}

// Dispatch queues a message. It blocks while every worker is busy.
func (d *Dispatcher) Dispatch(msg *event.Message) {
	d.pool.Go(func() {
		d.handle(msg)
	})
}

// Wait blocks until every queued message has been handled.
func (d *Dispatcher) Wait() {
	d.pool.Wait()
}

func (d *Dispatcher) handle(msg *event.Message) {
	start := time.Now()
	logger := d.logger.With(
		zap.Uint64("guildID", uint64(msg.GuildID)),
		zap.Uint64("messageID", uint64(msg.ID)),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in message handler", zap.Any("panic", r))
		}
	}()

	err := d.handler.HandleMessage(d.ctx, msg)

	switch {
	case err == nil:
		logger.Debug("Message handled", zap.Duration("duration", time.Since(start)))
	case errors.Is(err, context.Canceled):
		logger.Debug("Message handling canceled")
	case errors.Is(err, policy.ErrCorruptPolicies):
		logger.Warn("Skipped message of guild with corrupt automod policies", zap.Error(err))
	default:
		logger.Error("Failed to handle message", zap.Error(err))
	}
}
