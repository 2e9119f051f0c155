package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"github.com/obviouslynottop1/snedbot/internal/automod/ratelimit"
	"github.com/obviouslynottop1/snedbot/internal/moderation"
)

func (e *Engine) handleDisabled(context.Context, *Violation, policy.Policies, policy.CategoryPolicy) error {
	return nil
}

func (e *Engine) handleFlag(ctx context.Context, v *Violation, _ policy.Policies, _ policy.CategoryPolicy) error {
	return e.flag(ctx, v, policy.StateFlag, v.Reason)
}

func (e *Engine) handleNotice(ctx context.Context, v *Violation, _ policy.Policies, _ policy.CategoryPolicy) error {
	if err := e.notice(ctx, v); err != nil {
		return err
	}

	return e.flag(ctx, v, policy.StateNotice, v.Reason)
}

func (e *Engine) handleWarn(ctx context.Context, v *Violation, _ policy.Policies, _ policy.CategoryPolicy) error {
	return e.warn(ctx, v, v.Reason)
}

// handleEscalate notices a first offense, warns a second one and punishes a
// third with the escalate category's own state.
func (e *Engine) handleEscalate(ctx context.Context, v *Violation, policies policy.Policies, _ policy.CategoryPolicy) error {
	// The escalate category escalating to itself would never end
	if v.escalated() {
		e.logger.Debug("Escalate category is set to escalate, nothing to escalate to")
		return nil
	}

	key := ratelimit.MemberKey(v.Message.GuildID, v.Message.Author.ID)
	label := v.Category.Label()

	prewarned, err := e.limiters.EscalatePrewarn.Hit(ctx, key)
	if err != nil {
		return err
	}

	if !prewarned {
		if err := e.notice(ctx, v); err != nil {
			return err
		}

		return e.flag(ctx, v, policy.StateNotice, fmt.Sprintf("%s (%s)", v.Reason, label))
	}

	escalated, err := e.limiters.Escalate.Hit(ctx, key)
	if err != nil {
		return err
	}

	if !escalated {
		return e.warn(ctx, v, fmt.Sprintf("previous offenses (%s)", label))
	}

	return e.punish(ctx, &Violation{
		Message:          v.Message,
		Category:         policy.CategoryEscalate,
		Reason:           fmt.Sprintf("previous offenses (%s)", label),
		OriginalCategory: v.Category,
	}, policies)
}

func (e *Engine) handleTimeout(
	ctx context.Context, v *Violation, _ policy.Policies, settings policy.CategoryPolicy,
) error {
	reason := fmt.Sprintf("Timed out by auto-moderator for %s.", v.Reason)
	until := e.now().Add(time.Duration(settings.TempDur) * time.Minute)

	embed, err := e.executor.Timeout(ctx, target(v.Message), e.standing.Moderator(), until, reason)
	if err != nil {
		return fmt.Errorf("failed to time out member: %w", err)
	}

	return e.respond(ctx, v, policy.StateTimeout, reason, embed)
}

func (e *Engine) handleKick(ctx context.Context, v *Violation, _ policy.Policies, _ policy.CategoryPolicy) error {
	reason := fmt.Sprintf("Kicked by auto-moderator for %s.", v.Reason)

	embed, err := e.executor.Kick(ctx, target(v.Message), e.standing.Moderator(), reason)
	if err != nil {
		return fmt.Errorf("failed to kick member: %w", err)
	}

	return e.respond(ctx, v, policy.StateKick, reason, embed)
}

func (e *Engine) handleSoftban(ctx context.Context, v *Violation, _ policy.Policies, _ policy.CategoryPolicy) error {
	return e.ban(ctx, v, policy.StateSoftban, moderation.BanOptions{
		Soft:         true,
		DaysToDelete: 1,
		Reason:       fmt.Sprintf("Soft-banned by auto-moderator for %s.", v.Reason),
	})
}

func (e *Engine) handleTempban(
	ctx context.Context, v *Violation, _ policy.Policies, settings policy.CategoryPolicy,
) error {
	return e.ban(ctx, v, policy.StateTempban, moderation.BanOptions{
		Duration: time.Duration(settings.TempDur) * time.Minute,
		Reason:   fmt.Sprintf("Temp-banned by auto-moderator for %s.", v.Reason),
	})
}

func (e *Engine) handlePermaban(ctx context.Context, v *Violation, _ policy.Policies, _ policy.CategoryPolicy) error {
	return e.ban(ctx, v, policy.StatePermaban, moderation.BanOptions{
		Reason: fmt.Sprintf("Permanently banned by auto-moderator for %s.", v.Reason),
	})
}

func (e *Engine) ban(ctx context.Context, v *Violation, state policy.State, opts moderation.BanOptions) error {
	embed, err := e.executor.Ban(ctx, target(v.Message), e.standing.Moderator(), opts)
	if err != nil {
		return fmt.Errorf("failed to ban member: %w", err)
	}

	return e.respond(ctx, v, state, opts.Reason, embed)
}

func (e *Engine) warn(ctx context.Context, v *Violation, reason string) error {
	reason = fmt.Sprintf("Warned by auto-moderator for %s.", reason)

	embed, err := e.executor.Warn(ctx, target(v.Message), e.standing.Moderator(), reason)
	if err != nil {
		return fmt.Errorf("failed to warn member: %w", err)
	}

	return e.respond(ctx, v, policy.StateWarn, reason, embed)
}

func (e *Engine) flag(ctx context.Context, v *Violation, state policy.State, reason string) error {
	reason = fmt.Sprintf("Message flagged by auto-moderator for %s.", reason)

	if err := e.executor.FlagUser(ctx, target(v.Message), v.Message, reason); err != nil {
		return fmt.Errorf("failed to flag member: %w", err)
	}

	e.record(ctx, v, state, reason)

	return nil
}

// notice reminds the member of the rules in the channel.
func (e *Engine) notice(ctx context.Context, v *Violation) error {
	author := v.Message.Author
	mention := moderation.User{ID: author.ID, Name: author.Name()}

	if err := e.responder.Respond(ctx, v.Message.ChannelID, NoticeEmbed(author.Name(), v.Category), &mention); err != nil {
		return fmt.Errorf("failed to post notice: %w", err)
	}

	return nil
}

// respond posts the executor's response and records the action.
func (e *Engine) respond(
	ctx context.Context, v *Violation, state policy.State, reason string, embed discord.Embed,
) error {
	e.record(ctx, v, state, reason)

	if err := e.responder.Respond(ctx, v.Message.ChannelID, embed, nil); err != nil {
		return fmt.Errorf("failed to post response: %w", err)
	}

	return nil
}
