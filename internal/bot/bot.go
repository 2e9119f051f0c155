// Package bot connects the auto-moderator to the Discord gateway.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/automod"
	"github.com/obviouslynottop1/snedbot/internal/automod/detector"
	"github.com/obviouslynottop1/snedbot/internal/automod/engine"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"github.com/obviouslynottop1/snedbot/internal/moderation"
	"github.com/obviouslynottop1/snedbot/internal/setup"
	"go.uber.org/zap"
)

// memberJoinTimeout bounds the work done for one member join.
const memberJoinTimeout = 30 * time.Second

// Bot receives guild messages from the gateway and feeds them to the
// auto-moderation pipeline. It also lifts expired tempbans and keeps long
// timeouts in force.
type Bot struct {
	client     bot.Client
	dispatcher *Dispatcher
	tempbans   *moderation.TempbanSweeper
	timeouts   *moderation.TimeoutSweeper
	policies   *policy.Store
	logger     *zap.Logger
	ctx        context.Context //nolint:containedctx // lifetime of background work
	cancel     context.CancelFunc
	background sync.WaitGroup
}

// New creates the Discord client and wires the auto-moderation pipeline
// on top of its REST client and caches.
func New(ctx context.Context, app *setup.App) (*Bot, error) {
	ctx, cancel := context.WithCancel(ctx)

	b := &Bot{
		policies: app.Policies,
		logger:   app.Logger.Named("bot"),
		ctx:      ctx,
		cancel:   cancel,
	}

	client, err := disgo.New(app.Config.Bot.Discord.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMembers,
				gateway.IntentGuildMessages,
				gateway.IntentMessageContent,
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagRoles, cache.FlagMembers),
		),
		bot.WithRestClientConfigOpts(
			rest.WithHTTPClient(&http.Client{Timeout: app.RequestTimeout}),
		),
		bot.WithEventListeners(&events.ListenerAdapter{
			OnReady:              b.handleReady,
			OnGuildMessageCreate: b.handleGuildMessageCreate,
			OnGuildMessageUpdate: b.handleGuildMessageUpdate,
			OnGuildMemberJoin:    b.handleGuildMemberJoin,
			OnGuildLeave:         b.handleGuildLeave,
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create Discord client: %w", err)
	}

	b.client = client

	repo := app.DB.Model()
	restClient := client.Rest()

	executor := moderation.NewExecutor(
		restClient,
		repo.ModConfig(),
		repo.GuildUser(),
		repo.Tempban(),
		repo.TimeoutExtension(),
		app.Logger,
	)
	punisher := engine.New(
		executor,
		moderation.NewResponder(restClient),
		NewStanding(client.Caches()),
		repo.AutomodAction(),
		app.Limiters,
		app.Logger,
	)
	service := automod.NewService(app.Policies, detector.New(app.Limiters, app.Classifier, app.Logger), punisher, app.Logger)

	b.dispatcher = NewDispatcher(ctx, service, app.Config.Bot.Discord.EventWorkers, app.Logger)
	b.tempbans = moderation.NewTempbanSweeper(
		restClient,
		repo.Tempban(),
		time.Duration(app.Config.Bot.Moderation.TempbanSweepInterval)*time.Second,
		app.Logger,
	)
	b.timeouts = moderation.NewTimeoutSweeper(
		restClient,
		repo.TimeoutExtension(),
		time.Duration(app.Config.Bot.Moderation.TimeoutSweepInterval)*time.Second,
		app.Logger,
	)

	return b, nil
}

// Start launches background work and opens the gateway connection.
func (b *Bot) Start(ctx context.Context) error {
	b.background.Add(2)

	go func() {
		defer b.background.Done()
		b.tempbans.Run(b.ctx)
	}()

	go func() {
		defer b.background.Done()
		b.timeouts.Run(b.ctx)
	}()

	b.logger.Info("Starting bot")

	if err := b.client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	return nil
}

// Close disconnects from the gateway, then waits for in-flight messages
// and background work to finish.
func (b *Bot) Close(ctx context.Context) {
	b.logger.Info("Closing bot")

	b.client.Close(ctx)
	b.cancel()
	b.dispatcher.Wait()
	b.background.Wait()
}

func (b *Bot) handleReady(e *events.Ready) {
	b.logger.Info("Connected to gateway",
		zap.String("username", e.User.Username),
		zap.Int("guilds", len(e.Guilds)))
}

func (b *Bot) handleGuildMessageCreate(e *events.GuildMessageCreate) {
	b.dispatchMessage(e.Message, e.GuildID, false)
}

func (b *Bot) handleGuildMessageUpdate(e *events.GuildMessageUpdate) {
	b.dispatchMessage(e.Message, e.GuildID, true)
}

// handleGuildMemberJoin puts a pending long timeout back on a rejoining member.
func (b *Bot) handleGuildMemberJoin(e *events.GuildMemberJoin) {
	if b.ctx.Err() != nil {
		return
	}

	b.background.Add(1)

	go func() {
		defer b.background.Done()

		ctx, cancel := context.WithTimeout(b.ctx, memberJoinTimeout)
		defer cancel()

		if err := b.timeouts.Restore(ctx, e.GuildID, e.Member.User.ID); err != nil {
			b.logger.Error("Failed to restore timeout of rejoined member",
				zap.Uint64("guildID", uint64(e.GuildID)),
				zap.Uint64("userID", uint64(e.Member.User.ID)),
				zap.Error(err))
		}
	}()
}

// handleGuildLeave forgets the cached policies of a guild the bot left.
func (b *Bot) handleGuildLeave(e *events.GuildLeave) {
	b.policies.Invalidate(e.GuildID)
	b.logger.Info("Left guild", zap.Uint64("guildID", uint64(e.GuildID)))
}

// dispatchMessage fills in what the gateway payload lacks from the cache
// and queues the message for scanning.
func (b *Bot) dispatchMessage(msg discord.Message, guildID snowflake.ID, edited bool) {
	caches := b.client.Caches()

	var guildName string
	if guild, ok := caches.Guild(guildID); ok {
		guildName = guild.Name
	}

	member := msg.Member
	if member == nil {
		if cached, ok := caches.Member(guildID, msg.Author.ID); ok {
			member = &cached
		}
	}

	b.dispatcher.Dispatch(ConvertMessage(msg, guildID, guildName, member, edited))
}
