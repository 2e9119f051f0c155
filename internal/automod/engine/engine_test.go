package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/automod/engine"
	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"github.com/obviouslynottop1/snedbot/internal/automod/ratelimit"
	"github.com/obviouslynottop1/snedbot/internal/database/types"
	"github.com/obviouslynottop1/snedbot/internal/moderation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	guildID   = snowflake.ID(1)
	channelID = snowflake.ID(2)
	userID    = snowflake.ID(3)
	roleID    = snowflake.ID(4)
)

var errMissingAccess = errors.New("missing access")

// call is one executor or responder invocation.
type call struct {
	Action string
	Reason string
	Until  time.Time
	Ban    moderation.BanOptions
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeExecutor) add(c call) (discord.Embed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return discord.Embed{}, f.err
	}

	f.calls = append(f.calls, c)

	return discord.Embed{Title: c.Action}, nil
}

func (f *fakeExecutor) Warn(_ context.Context, _ moderation.Target, _ moderation.User, reason string) (discord.Embed, error) {
	return f.add(call{Action: "warn", Reason: reason})
}

func (f *fakeExecutor) Timeout(
	_ context.Context, _ moderation.Target, _ moderation.User, until time.Time, reason string,
) (discord.Embed, error) {
	return f.add(call{Action: "timeout", Reason: reason, Until: until})
}

func (f *fakeExecutor) Kick(_ context.Context, _ moderation.Target, _ moderation.User, reason string) (discord.Embed, error) {
	return f.add(call{Action: "kick", Reason: reason})
}

func (f *fakeExecutor) Ban(
	_ context.Context, _ moderation.Target, _ moderation.User, opts moderation.BanOptions,
) (discord.Embed, error) {
	return f.add(call{Action: "ban", Reason: opts.Reason, Ban: opts})
}

func (f *fakeExecutor) FlagUser(_ context.Context, _ moderation.Target, _ *event.Message, reason string) error {
	_, err := f.add(call{Action: "flag", Reason: reason})
	return err
}

func (f *fakeExecutor) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	actions := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		actions = append(actions, c.Action)
	}

	return actions
}

type fakeResponder struct {
	mu        sync.Mutex
	responses []discord.Embed
	mentions  []*moderation.User
	deleted   []snowflake.ID
}

func (f *fakeResponder) Respond(
	_ context.Context, _ snowflake.ID, embed discord.Embed, mention *moderation.User,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.responses = append(f.responses, embed)
	f.mentions = append(f.mentions, mention)

	return nil
}

func (f *fakeResponder) DeleteMessage(_ context.Context, _, messageID snowflake.ID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, messageID)

	return nil
}

type fakeStanding struct {
	allowed bool
}

func (f fakeStanding) CanModerate(snowflake.ID, *event.Member) bool {
	return f.allowed
}

func (f fakeStanding) Moderator() moderation.User {
	return moderation.User{ID: 99, Name: "snedbot"}
}

type fakeActionLog struct {
	mu      sync.Mutex
	entries []*types.AutomodAction
}

func (f *fakeActionLog) LogAction(_ context.Context, action *types.AutomodAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = append(f.entries, action)

	return nil
}

type harness struct {
	engine    *engine.Engine
	executor  *fakeExecutor
	responder *fakeResponder
	actions   *fakeActionLog
	now       time.Time
}

func newHarness(allowed bool) *harness {
	h := &harness{
		executor:  &fakeExecutor{},
		responder: &fakeResponder{},
		actions:   &fakeActionLog{},
		now:       time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	clock := func() time.Time { return h.now }
	limiters := ratelimit.NewLimiters(ratelimit.NewMemoryStore(ratelimit.Retention), ratelimit.WithClock(clock))

	h.engine = engine.New(h.executor, h.responder, fakeStanding{allowed: allowed}, h.actions, limiters,
		zap.NewNop(), engine.WithClock(clock))

	return h
}

func newMessage(id snowflake.ID) *event.Message {
	return &event.Message{
		ID:        id,
		GuildID:   guildID,
		ChannelID: channelID,
		Content:   "HELLO EVERYONE",
		Author: &event.Member{
			ID:       userID,
			GuildID:  guildID,
			Username: "offender",
			RoleIDs:  []snowflake.ID{roleID},
		},
	}
}

func policiesWith(t *testing.T, settings map[policy.Category]policy.CategoryPolicy) policy.Policies {
	t.Helper()

	policies, err := policy.Resolve(nil)
	require.NoError(t, err)

	for category, override := range settings {
		policies[category] = override
	}

	return policies
}

func violation(id snowflake.ID, category policy.Category, reason string) engine.Violation {
	return engine.Violation{Message: newMessage(id), Category: category, Reason: reason}
}

func TestEscalationChain(t *testing.T) {
	t.Parallel()

	h := newHarness(true)
	policies := policiesWith(t, map[policy.Category]policy.CategoryPolicy{
		policy.CategoryCaps:     {State: policy.StateEscalate, TempDur: 5, Delete: true},
		policy.CategoryEscalate: {State: policy.StateTimeout, TempDur: 60},
	})

	// First offense: public notice and a flag
	require.NoError(t, h.engine.Punish(t.Context(), violation(1, policy.CategoryCaps, "use of excessive caps"), policies))
	assert.Equal(t, []string{"flag"}, h.executor.actions())
	assert.Equal(t, "Message flagged by auto-moderator for use of excessive caps (CAPS).", h.executor.calls[0].Reason)
	require.Len(t, h.responder.responses, 1)
	assert.Equal(t, "💬 Auto-Moderation Notice", h.responder.responses[0].Title)
	assert.Equal(t, "**offender**, please refrain from using excessive caps!", h.responder.responses[0].Description)
	require.NotNil(t, h.responder.mentions[0])
	assert.Equal(t, userID, h.responder.mentions[0].ID)

	// Second offense: formal warning
	h.now = h.now.Add(5 * time.Second)
	require.NoError(t, h.engine.Punish(t.Context(), violation(2, policy.CategoryCaps, "use of excessive caps"), policies))
	assert.Equal(t, []string{"flag", "warn"}, h.executor.actions())
	assert.Equal(t, "Warned by auto-moderator for previous offenses (CAPS).", h.executor.calls[1].Reason)

	// Third offense: the escalate category's own state and duration
	h.now = h.now.Add(5 * time.Second)
	require.NoError(t, h.engine.Punish(t.Context(), violation(3, policy.CategoryCaps, "use of excessive caps"), policies))
	assert.Equal(t, []string{"flag", "warn", "timeout"}, h.executor.actions())
	assert.Equal(t, "Timed out by auto-moderator for previous offenses (CAPS).", h.executor.calls[2].Reason)
	assert.Equal(t, h.now.Add(60*time.Minute), h.executor.calls[2].Until)

	// Every offense deleted its own message, the follow-up did not delete again
	assert.Equal(t, []snowflake.ID{1, 2, 3}, h.responder.deleted)

	require.Len(t, h.actions.entries, 3)
	last := h.actions.entries[2]
	assert.Equal(t, "escalate", last.Category)
	assert.Equal(t, "caps", last.OriginalCategory)
	assert.Equal(t, "timeout", last.State)
}

func TestEscalateToEscalateStopsAtWarning(t *testing.T) {
	t.Parallel()

	h := newHarness(true)
	policies := policiesWith(t, map[policy.Category]policy.CategoryPolicy{
		policy.CategoryInvites:  {State: policy.StateEscalate},
		policy.CategoryEscalate: {State: policy.StateEscalate},
	})

	for i := range 4 {
		v := violation(snowflake.ID(i+1), policy.CategoryInvites, "posting Discord invites")
		require.NoError(t, h.engine.Punish(t.Context(), v, policies))
	}

	assert.Equal(t, []string{"flag", "warn"}, h.executor.actions())
}

func TestExclusions(t *testing.T) {
	t.Parallel()

	for _, category := range policy.Categories {
		t.Run(category.String(), func(t *testing.T) {
			t.Parallel()

			for _, settings := range []policy.CategoryPolicy{
				{State: policy.StatePermaban, Delete: true, ExcludedChannels: policy.IDs{channelID}},
				{State: policy.StatePermaban, Delete: true, ExcludedRoles: policy.IDs{roleID}},
			} {
				h := newHarness(true)
				policies := policiesWith(t, map[policy.Category]policy.CategoryPolicy{category: settings})

				require.NoError(t, h.engine.Punish(t.Context(), violation(1, category, "reason"), policies))
				assert.Empty(t, h.executor.actions())
				assert.Empty(t, h.responder.deleted)
			}
		})
	}
}

func TestStandingAborts(t *testing.T) {
	t.Parallel()

	h := newHarness(false)
	policies := policiesWith(t, map[policy.Category]policy.CategoryPolicy{
		policy.CategoryCaps: {State: policy.StateKick, Delete: true},
	})

	require.NoError(t, h.engine.Punish(t.Context(), violation(1, policy.CategoryCaps, "use of excessive caps"), policies))
	assert.Empty(t, h.executor.actions())
	assert.Empty(t, h.responder.deleted)
}

func TestSilencersHaveCooldown(t *testing.T) {
	t.Parallel()

	h := newHarness(true)
	policies := policiesWith(t, map[policy.Category]policy.CategoryPolicy{
		policy.CategoryCaps:     {State: policy.StateTimeout, TempDur: 10},
		policy.CategoryBadWords: {State: policy.StateKick},
	})

	require.NoError(t, h.engine.Punish(t.Context(), violation(1, policy.CategoryCaps, "use of excessive caps"), policies))
	require.NoError(t, h.engine.Punish(t.Context(), violation(2, policy.CategoryBadWords, "usage of bad words"), policies))
	assert.Equal(t, []string{"timeout"}, h.executor.actions())
	assert.Equal(t, h.now.Add(10*time.Minute), h.executor.calls[0].Until)

	h.now = h.now.Add(31 * time.Second)

	require.NoError(t, h.engine.Punish(t.Context(), violation(3, policy.CategoryBadWords, "usage of bad words"), policies))
	assert.Equal(t, []string{"timeout", "kick"}, h.executor.actions())
}

func TestNonSilencersHaveNoCooldown(t *testing.T) {
	t.Parallel()

	h := newHarness(true)
	policies := policiesWith(t, map[policy.Category]policy.CategoryPolicy{
		policy.CategoryCaps: {State: policy.StateWarn},
	})

	for i := range 3 {
		require.NoError(t, h.engine.Punish(t.Context(), violation(snowflake.ID(i+1), policy.CategoryCaps, "x"), policies))
	}

	assert.Equal(t, []string{"warn", "warn", "warn"}, h.executor.actions())
	assert.Len(t, h.responder.responses, 3)
}

func TestDeleteRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		category policy.Category
		delete   bool
		want     bool
	}{
		{name: "delete set", category: policy.CategoryCaps, delete: true, want: true},
		{name: "delete unset", category: policy.CategoryCaps, delete: false, want: false},
		{name: "spam is never deleted", category: policy.CategorySpam, delete: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(true)
			policies := policiesWith(t, map[policy.Category]policy.CategoryPolicy{
				tt.category: {State: policy.StateFlag, Delete: tt.delete},
			})

			require.NoError(t, h.engine.Punish(t.Context(), violation(7, tt.category, "reason"), policies))
			assert.Equal(t, tt.want, len(h.responder.deleted) == 1)
		})
	}
}

func TestStates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state     policy.State
		actions   []string
		reason    string
		responses int
	}{
		{state: policy.StateDisabled, actions: []string{}, responses: 0},
		{
			state:   policy.StateFlag,
			actions: []string{"flag"},
			reason:  "Message flagged by auto-moderator for spam.",
		},
		{
			state:     policy.StateNotice,
			actions:   []string{"flag"},
			reason:    "Message flagged by auto-moderator for spam.",
			responses: 1,
		},
		{state: policy.StateWarn, actions: []string{"warn"}, reason: "Warned by auto-moderator for spam.", responses: 1},
		{state: policy.StateKick, actions: []string{"kick"}, reason: "Kicked by auto-moderator for spam.", responses: 1},
		{
			state:     policy.StateSoftban,
			actions:   []string{"ban"},
			reason:    "Soft-banned by auto-moderator for spam.",
			responses: 1,
		},
		{
			state:     policy.StateTempban,
			actions:   []string{"ban"},
			reason:    "Temp-banned by auto-moderator for spam.",
			responses: 1,
		},
		{
			state:     policy.StatePermaban,
			actions:   []string{"ban"},
			reason:    "Permanently banned by auto-moderator for spam.",
			responses: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			t.Parallel()

			h := newHarness(true)
			policies := policiesWith(t, map[policy.Category]policy.CategoryPolicy{
				policy.CategorySpam: {State: tt.state, TempDur: 15},
			})

			require.NoError(t, h.engine.Punish(t.Context(), violation(1, policy.CategorySpam, "spam"), policies))
			assert.Equal(t, tt.actions, h.executor.actions())
			assert.Len(t, h.responder.responses, tt.responses)

			if len(tt.actions) > 0 {
				assert.Equal(t, tt.reason, h.executor.calls[0].Reason)
			}
		})
	}
}

func TestBanOptions(t *testing.T) {
	t.Parallel()

	h := newHarness(true)
	policies := policiesWith(t, map[policy.Category]policy.CategoryPolicy{
		policy.CategoryCaps:    {State: policy.StateSoftban},
		policy.CategoryInvites: {State: policy.StateTempban, TempDur: 30},
	})

	require.NoError(t, h.engine.Punish(t.Context(), violation(1, policy.CategoryCaps, "x"), policies))

	// Cooldown from the softban has to pass first
	h.now = h.now.Add(time.Minute)
	require.NoError(t, h.engine.Punish(t.Context(), violation(2, policy.CategoryInvites, "y"), policies))

	require.Len(t, h.executor.calls, 2)
	assert.True(t, h.executor.calls[0].Ban.Soft)
	assert.Equal(t, 1, h.executor.calls[0].Ban.DaysToDelete)
	assert.Equal(t, 30*time.Minute, h.executor.calls[1].Ban.Duration)
	assert.False(t, h.executor.calls[1].Ban.Soft)
}

func TestExecutorFailurePropagates(t *testing.T) {
	t.Parallel()

	h := newHarness(true)
	h.executor.err = errMissingAccess
	policies := policiesWith(t, map[policy.Category]policy.CategoryPolicy{
		policy.CategoryCaps: {State: policy.StateKick, Delete: true},
	})

	err := h.engine.Punish(t.Context(), violation(1, policy.CategoryCaps, "x"), policies)
	require.ErrorIs(t, err, errMissingAccess)

	// The message was already gone when the kick failed
	assert.Equal(t, []snowflake.ID{1}, h.responder.deleted)
	assert.Empty(t, h.actions.entries)
}
