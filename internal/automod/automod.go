// Package automod scans guild messages for policy violations and hands the
// first violation of each message to the punishment engine.
package automod

import (
	"context"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/automod/detector"
	"github.com/obviouslynottop1/snedbot/internal/automod/engine"
	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("automod")

// PolicySource resolves the policies of a guild.
type PolicySource interface {
	GetPolicies(ctx context.Context, guildID snowflake.ID) (policy.Policies, error)
}

// Service runs the auto-moderation pipeline.
type Service struct {
	policies PolicySource
	chain    *detector.Chain
	engine   *engine.Engine
	logger   *zap.Logger
}

// NewService creates a Service.
func NewService(policies PolicySource, chain *detector.Chain, engine *engine.Engine, logger *zap.Logger) *Service {
	return &Service{
		policies: policies,
		chain:    chain,
		engine:   engine,
		logger:   logger.Named("automod"),
	}
}

// HandleMessage scans a message and punishes its first violation. Messages
// outside guilds and messages by bots or non-members are ignored.
func (s *Service) HandleMessage(ctx context.Context, msg *event.Message) error {
	if msg.GuildID == 0 || msg.Author == nil || msg.Author.Bot {
		return nil
	}

	ctx, span := tracer.Start(ctx, "automod.handle_message", trace.WithAttributes(
		attribute.Int64("guild_id", int64(msg.GuildID)), //nolint:gosec // snowflakes fit in int64
		attribute.Bool("edited", msg.Edited),
	))
	defer span.End()

	err := s.handle(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func (s *Service) handle(ctx context.Context, msg *event.Message) error {
	policies, err := s.policies.GetPolicies(ctx, msg.GuildID)
	if err != nil {
		return fmt.Errorf("failed to resolve policies: %w", err)
	}

	match, err := s.chain.Scan(ctx, msg, policies)
	if err != nil {
		return err
	}

	if match == nil {
		return nil
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.String("category", match.Category.String()))

	return s.engine.Punish(ctx, engine.Violation{
		Message:  msg,
		Category: match.Category,
		Reason:   match.Reason,
	}, policies)
}
