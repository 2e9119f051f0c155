package moderation_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/database/types"
	"github.com/obviouslynottop1/snedbot/internal/moderation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	guildID       = snowflake.ID(10)
	userID        = snowflake.ID(20)
	dmChannelID   = snowflake.ID(30)
	flagChannelID = snowflake.ID(40)
)

var (
	timestampRegex = regexp.MustCompile(`<t:(\d+):f>`)
	errForbidden   = errors.New("missing access")
	moderator      = moderation.User{ID: 1, Name: "snedbot"}
	target         = moderation.Target{GuildID: guildID, GuildName: "Test Guild", User: moderation.User{ID: userID, Name: "offender"}}
)

// fakeREST records every call it receives.
type fakeREST struct {
	mu         sync.Mutex
	updates    []discord.MemberUpdate
	removed    int
	bans       []time.Duration
	unbans     []snowflake.ID
	unbanCalls int
	messages   map[snowflake.ID][]discord.MessageCreate
	dmErr      error
	banErr     error
	unbanErr   error
	removalErr error
	updateErr  error
}

func newFakeREST() *fakeREST {
	return &fakeREST{messages: make(map[snowflake.ID][]discord.MessageCreate)}
}

func (f *fakeREST) UpdateMember(
	_, _ snowflake.ID, update discord.MemberUpdate, _ ...rest.RequestOpt,
) (*discord.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return nil, f.updateErr
	}

	f.updates = append(f.updates, update)

	return &discord.Member{}, nil
}

func (f *fakeREST) RemoveMember(_, _ snowflake.ID, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removed++

	return f.removalErr
}

func (f *fakeREST) AddBan(_, _ snowflake.ID, deleteDuration time.Duration, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.banErr != nil {
		return f.banErr
	}

	f.bans = append(f.bans, deleteDuration)

	return nil
}

func (f *fakeREST) DeleteBan(_, user snowflake.ID, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.unbanCalls++

	if f.unbanErr != nil {
		return f.unbanErr
	}

	f.unbans = append(f.unbans, user)

	return nil
}

func (f *fakeREST) CreateDMChannel(_ snowflake.ID, _ ...rest.RequestOpt) (*discord.DMChannel, error) {
	if f.dmErr != nil {
		return nil, f.dmErr
	}

	var channel discord.DMChannel
	if err := json.Unmarshal([]byte(`{"id":"30","type":1}`), &channel); err != nil {
		return nil, err
	}

	return &channel, nil
}

func (f *fakeREST) CreateMessage(
	channelID snowflake.ID, create discord.MessageCreate, _ ...rest.RequestOpt,
) (*discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.messages[channelID] = append(f.messages[channelID], create)

	return &discord.Message{ChannelID: channelID}, nil
}

// fakeStore implements every store interface over maps.
type fakeStore struct {
	mu         sync.Mutex
	config     types.ModConfig
	warns      int
	notes      []string
	tempbans   map[snowflake.ID]*types.Tempban
	extensions map[snowflake.ID]*types.TimeoutExtension
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		config:     types.ModConfig{GuildID: guildID, DMUsersOnPunish: true},
		tempbans:   make(map[snowflake.ID]*types.Tempban),
		extensions: make(map[snowflake.ID]*types.TimeoutExtension),
	}
}

func (s *fakeStore) GetModConfig(_ context.Context, _ snowflake.ID) (*types.ModConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	config := s.config

	return &config, nil
}

func (s *fakeStore) IncrementWarns(_ context.Context, _, _ snowflake.ID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.warns++

	return s.warns, nil
}

func (s *fakeStore) AddNote(_ context.Context, _, _ snowflake.ID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes = append(s.notes, note)

	return nil
}

func (s *fakeStore) SaveTempban(_ context.Context, tempban *types.Tempban) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tempbans[tempban.UserID] = tempban

	return nil
}

func (s *fakeStore) GetExpiredTempbans(_ context.Context, now time.Time, limit int) ([]*types.Tempban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*types.Tempban

	for _, tempban := range s.tempbans {
		if !tempban.ExpiresAt.After(now) && !tempban.NextAttemptAt.After(now) {
			expired = append(expired, tempban)
		}
	}

	slices.SortFunc(expired, func(a, b *types.Tempban) int {
		return a.NextAttemptAt.Compare(b.NextAttemptAt)
	})

	return expired[:min(limit, len(expired))], nil
}

func (s *fakeStore) DeferTempban(
	_ context.Context, _, user snowflake.ID, attempts int, nextAttemptAt time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tempban, ok := s.tempbans[user]; ok {
		tempban.Attempts = attempts
		tempban.NextAttemptAt = nextAttemptAt
	}

	return nil
}

func (s *fakeStore) RemoveTempban(_ context.Context, _, user snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tempbans, user)

	return nil
}

func (s *fakeStore) SaveTimeoutExtension(_ context.Context, extension *types.TimeoutExtension) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.extensions[extension.UserID] = extension

	return nil
}

func (s *fakeStore) GetTimeoutExtension(_ context.Context, _, user snowflake.ID) (*types.TimeoutExtension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.extensions[user], nil
}

func (s *fakeStore) GetDueTimeoutExtensions(
	_ context.Context, now time.Time, limit int,
) ([]*types.TimeoutExtension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*types.TimeoutExtension

	for _, extension := range s.extensions {
		if !extension.ExtendAt.After(now) && len(due) < limit {
			due = append(due, extension)
		}
	}

	return due, nil
}

func (s *fakeStore) RescheduleTimeoutExtension(_ context.Context, _, user snowflake.ID, extendAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if extension, ok := s.extensions[user]; ok {
		extension.ExtendAt = extendAt
	}

	return nil
}

func (s *fakeStore) RemoveTimeoutExtension(_ context.Context, _, user snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.extensions, user)

	return nil
}

// appliedUntil decodes the timeout end sent in a member update.
func appliedUntil(t *testing.T, update discord.MemberUpdate) time.Time {
	t.Helper()

	require.NotNil(t, update.CommunicationDisabledUntil)

	data, err := json.Marshal(update.CommunicationDisabledUntil)
	require.NoError(t, err)

	var until time.Time
	require.NoError(t, json.Unmarshal(data, &until))

	return until
}

func newExecutor() (*moderation.Executor, *fakeREST, *fakeStore) {
	restClient := newFakeREST()
	store := newFakeStore()

	return moderation.NewExecutor(restClient, store, store, store, store, zap.NewNop()), restClient, store
}

func TestWarn(t *testing.T) {
	t.Parallel()

	executor, restClient, store := newExecutor()

	embed, err := executor.Warn(t.Context(), target, moderator, "Warned by auto-moderator for spam.")
	require.NoError(t, err)

	assert.Equal(t, "⚠️ Warning issued", embed.Title)
	assert.Contains(t, embed.Description, "**offender** has been warned by **snedbot**")
	assert.Nil(t, embed.Footer)
	assert.Equal(t, 1, store.warns)
	require.Len(t, store.notes, 1)
	assert.Contains(t, store.notes[0], "⚠️ **Warned by snedbot:** Warned by auto-moderator for spam.")

	// The member was told in DMs
	require.Len(t, restClient.messages[dmChannelID], 1)
	assert.Equal(t, "❗ You have been warned in **Test Guild**", restClient.messages[dmChannelID][0].Embeds[0].Title)
}

func TestFailedDMAddsFooter(t *testing.T) {
	t.Parallel()

	executor, restClient, _ := newExecutor()
	restClient.dmErr = errForbidden

	embed, err := executor.Kick(t.Context(), target, moderator, "Kicked by auto-moderator for spam.")
	require.NoError(t, err)
	require.NotNil(t, embed.Footer)
	assert.Equal(t, "Failed sending DM to user.", embed.Footer.Text)
	assert.Equal(t, 1, restClient.removed)
}

func TestDMsCanBeDisabled(t *testing.T) {
	t.Parallel()

	executor, restClient, store := newExecutor()
	store.config.DMUsersOnPunish = false

	_, err := executor.Warn(t.Context(), target, moderator, "reason")
	require.NoError(t, err)
	assert.Empty(t, restClient.messages)
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	t.Run("short timeout applies in full", func(t *testing.T) {
		t.Parallel()

		executor, restClient, store := newExecutor()
		store.extensions[userID] = &types.TimeoutExtension{GuildID: guildID, UserID: userID}

		until := time.Now().Add(time.Hour)
		_, err := executor.Timeout(t.Context(), target, moderator, until, "reason")
		require.NoError(t, err)

		require.Len(t, restClient.updates, 1)
		applied := appliedUntil(t, restClient.updates[0])
		assert.WithinDuration(t, until, applied, time.Second)
		assert.Empty(t, store.extensions, "a shorter timeout replaces a pending extension")
	})

	t.Run("long timeout is capped and scheduled for extension", func(t *testing.T) {
		t.Parallel()

		executor, restClient, store := newExecutor()

		start := time.Now()
		until := start.Add(60 * 24 * time.Hour)

		embed, err := executor.Timeout(t.Context(), target, moderator, until, "reason")
		require.NoError(t, err)

		require.Len(t, restClient.updates, 1)
		applied := appliedUntil(t, restClient.updates[0])
		assert.WithinDuration(t, start.Add(moderation.MaxTimeout), applied, time.Minute)

		// The response shows the requested end
		match := timestampRegex.FindStringSubmatch(embed.Description)
		require.Len(t, match, 2)

		unix, err := strconv.ParseInt(match[1], 10, 64)
		require.NoError(t, err)
		assert.Equal(t, until.Unix(), unix)

		require.Contains(t, store.extensions, userID)
		assert.True(t, until.Equal(store.extensions[userID].ExpiresAt))
		assert.True(t, store.extensions[userID].ExtendAt.Before(applied))
	})
}

func TestTimeoutSweeper(t *testing.T) {
	t.Parallel()

	t.Run("extends in steps until the requested end", func(t *testing.T) {
		t.Parallel()

		restClient := newFakeREST()
		store := newFakeStore()

		now := time.Now()
		expiresAt := now.Add(40 * 24 * time.Hour)
		store.extensions[userID] = &types.TimeoutExtension{
			GuildID: guildID, UserID: userID, ExpiresAt: expiresAt, ExtendAt: now.Add(-time.Minute),
		}
		store.extensions[21] = &types.TimeoutExtension{
			GuildID: guildID, UserID: 21, ExpiresAt: expiresAt, ExtendAt: now.Add(time.Hour),
		}

		sweeper := moderation.NewTimeoutSweeper(restClient, store, time.Minute, zap.NewNop())

		extended, err := sweeper.Sweep(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 1, extended)

		require.Len(t, restClient.updates, 1)
		applied := appliedUntil(t, restClient.updates[0])
		assert.WithinDuration(t, now.Add(moderation.MaxTimeout), applied, time.Minute)
		assert.True(t, store.extensions[userID].ExtendAt.After(now), "next extension is rescheduled")
	})

	t.Run("last step removes the extension", func(t *testing.T) {
		t.Parallel()

		restClient := newFakeREST()
		store := newFakeStore()

		expiresAt := time.Now().Add(12 * time.Hour)
		store.extensions[userID] = &types.TimeoutExtension{
			GuildID: guildID, UserID: userID, ExpiresAt: expiresAt, ExtendAt: time.Now().Add(-time.Minute),
		}

		sweeper := moderation.NewTimeoutSweeper(restClient, store, time.Minute, zap.NewNop())

		extended, err := sweeper.Sweep(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 1, extended)
		assert.Empty(t, store.extensions)

		require.Len(t, restClient.updates, 1)
		assert.WithinDuration(t, expiresAt, appliedUntil(t, restClient.updates[0]), time.Millisecond)
	})

	t.Run("departed member is restored on rejoin", func(t *testing.T) {
		t.Parallel()

		restClient := newFakeREST()
		restClient.updateErr = &rest.Error{Response: &http.Response{StatusCode: http.StatusNotFound}}

		store := newFakeStore()
		store.extensions[userID] = &types.TimeoutExtension{
			GuildID:   guildID,
			UserID:    userID,
			ExpiresAt: time.Now().Add(40 * 24 * time.Hour),
			ExtendAt:  time.Now().Add(-time.Minute),
		}

		sweeper := moderation.NewTimeoutSweeper(restClient, store, time.Minute, zap.NewNop())

		extended, err := sweeper.Sweep(t.Context())
		require.NoError(t, err)
		assert.Zero(t, extended)
		require.Contains(t, store.extensions, userID)

		restClient.updateErr = nil

		require.NoError(t, sweeper.Restore(t.Context(), guildID, userID))
		assert.Len(t, restClient.updates, 1)

		// Members without a pending timeout are left alone
		require.NoError(t, sweeper.Restore(t.Context(), guildID, 99))
		assert.Len(t, restClient.updates, 1)
	})
}

func TestBan(t *testing.T) {
	t.Parallel()

	t.Run("soft and temporary at once", func(t *testing.T) {
		t.Parallel()

		executor, restClient, _ := newExecutor()

		_, err := executor.Ban(t.Context(), target, moderator, moderation.BanOptions{
			Duration: time.Hour,
			Soft:     true,
		})
		require.ErrorIs(t, err, moderation.ErrSoftTempban)
		assert.Empty(t, restClient.bans)
	})

	t.Run("softban is lifted right away", func(t *testing.T) {
		t.Parallel()

		executor, restClient, store := newExecutor()

		embed, err := executor.Ban(t.Context(), target, moderator, moderation.BanOptions{
			Soft:         true,
			DaysToDelete: 1,
			Reason:       "Soft-banned by auto-moderator for spam.",
		})
		require.NoError(t, err)
		assert.Contains(t, embed.Description, "[SOFTBAN] Soft-banned by auto-moderator for spam.")
		assert.Equal(t, []time.Duration{24 * time.Hour}, restClient.bans)
		assert.Equal(t, []snowflake.ID{userID}, restClient.unbans)
		assert.Empty(t, store.tempbans)
	})

	t.Run("tempban is scheduled", func(t *testing.T) {
		t.Parallel()

		executor, restClient, store := newExecutor()

		embed, err := executor.Ban(t.Context(), target, moderator, moderation.BanOptions{
			Duration: 15 * time.Minute,
			Reason:   "Temp-banned by auto-moderator for spam.",
		})
		require.NoError(t, err)
		assert.Contains(t, embed.Description, "[TEMPBAN] Banned until:")
		assert.Empty(t, restClient.unbans)
		require.Contains(t, store.tempbans, userID)
		assert.WithinDuration(t, time.Now().Add(15*time.Minute), store.tempbans[userID].ExpiresAt, time.Minute)
	})

	t.Run("failure propagates", func(t *testing.T) {
		t.Parallel()

		executor, restClient, store := newExecutor()
		restClient.banErr = errForbidden

		_, err := executor.Ban(t.Context(), target, moderator, moderation.BanOptions{Duration: time.Hour})
		require.ErrorIs(t, err, errForbidden)
		assert.Empty(t, store.tempbans)
	})
}

func TestFlagUser(t *testing.T) {
	t.Parallel()

	msg := &event.Message{ID: 3, GuildID: guildID, ChannelID: 2, Content: "buy cheap nitro"}

	t.Run("without flags channel", func(t *testing.T) {
		t.Parallel()

		executor, restClient, _ := newExecutor()

		require.NoError(t, executor.FlagUser(t.Context(), target, msg, "Message flagged by auto-moderator for spam."))
		assert.Empty(t, restClient.messages)
	})

	t.Run("with flags channel", func(t *testing.T) {
		t.Parallel()

		executor, restClient, store := newExecutor()
		store.config.FlagsChannelID = flagChannelID

		require.NoError(t, executor.FlagUser(t.Context(), target, msg, "Message flagged by auto-moderator for spam."))
		require.Len(t, restClient.messages[flagChannelID], 1)

		embed := restClient.messages[flagChannelID][0].Embeds[0]
		assert.Equal(t, "❗🚩 Message flagged", embed.Title)
		assert.Contains(t, embed.Description, "buy cheap nitro")
		assert.Contains(t, embed.Description, "https://discord.com/channels/10/2/3")
	})
}

func TestFormatReason(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "No reason provided.", moderation.FormatReason("", nil, 512))
	assert.Equal(t, "snedbot (1): spam", moderation.FormatReason("spam", &moderator, 512))

	long := moderation.FormatReason(strings.Repeat("a", 600), nil, 512)
	assert.Len(t, long, 512)
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestCanHarm(t *testing.T) {
	t.Parallel()

	const ownerID = snowflake.ID(99)

	bot := moderation.Rank{UserID: 1, TopRolePosition: 5, Permissions: moderation.AutomodPermissions}

	tests := []struct {
		name   string
		self   moderation.Rank
		target moderation.Rank
		want   bool
	}{
		{name: "above target", self: bot, target: moderation.Rank{UserID: 2, TopRolePosition: 3}, want: true},
		{name: "same position", self: bot, target: moderation.Rank{UserID: 2, TopRolePosition: 5}, want: false},
		{name: "owner", self: bot, target: moderation.Rank{UserID: ownerID}, want: false},
		{
			name:   "missing permissions",
			self:   moderation.Rank{UserID: 1, TopRolePosition: 5, Permissions: discord.PermissionKickMembers},
			target: moderation.Rank{UserID: 2, TopRolePosition: 1},
			want:   false,
		},
		{
			name:   "administrator",
			self:   moderation.Rank{UserID: 1, TopRolePosition: 5, Permissions: discord.PermissionAdministrator},
			target: moderation.Rank{UserID: 2, TopRolePosition: 1},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, moderation.CanHarm(ownerID, tt.self, tt.target, moderation.AutomodPermissions))
		})
	}
}

func TestTempbanSweeper(t *testing.T) {
	t.Parallel()

	restClient := newFakeREST()
	store := newFakeStore()
	store.tempbans[userID] = &types.Tempban{GuildID: guildID, UserID: userID, ExpiresAt: time.Now().Add(-time.Minute)}
	store.tempbans[21] = &types.Tempban{GuildID: guildID, UserID: 21, ExpiresAt: time.Now().Add(time.Hour)}

	sweeper := moderation.NewTempbanSweeper(restClient, store, time.Minute, zap.NewNop())

	lifted, err := sweeper.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, lifted)
	assert.Equal(t, []snowflake.ID{userID}, restClient.unbans)
	assert.NotContains(t, store.tempbans, userID)
	assert.Contains(t, store.tempbans, snowflake.ID(21))
}

func TestTempbanSweeperHandlesMissingBans(t *testing.T) {
	t.Parallel()

	restClient := newFakeREST()
	restClient.unbanErr = &rest.Error{Response: &http.Response{StatusCode: http.StatusNotFound}}

	store := newFakeStore()
	store.tempbans[userID] = &types.Tempban{GuildID: guildID, UserID: userID, ExpiresAt: time.Now().Add(-time.Minute)}

	sweeper := moderation.NewTempbanSweeper(restClient, store, time.Minute, zap.NewNop())

	lifted, err := sweeper.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, lifted)
	assert.Empty(t, store.tempbans)

	// Other failures keep the row for the next sweep
	restClient.unbanErr = errForbidden
	store.tempbans[userID] = &types.Tempban{GuildID: guildID, UserID: userID, ExpiresAt: time.Now().Add(-time.Minute)}

	lifted, err = sweeper.Sweep(t.Context())
	require.NoError(t, err)
	assert.Zero(t, lifted)
	assert.Contains(t, store.tempbans, userID)
}

func TestTempbanSweeperBacksOffFailingUnbans(t *testing.T) {
	t.Parallel()

	restClient := newFakeREST()
	restClient.unbanErr = errForbidden

	store := newFakeStore()
	past := time.Now().Add(-time.Hour)

	// A full batch of unbans that keep failing
	for i := range 100 {
		id := snowflake.ID(1000 + i)
		store.tempbans[id] = &types.Tempban{GuildID: guildID, UserID: id, ExpiresAt: past, NextAttemptAt: past}
	}

	sweeper := moderation.NewTempbanSweeper(restClient, store, time.Minute, zap.NewNop())

	lifted, err := sweeper.Sweep(t.Context())
	require.NoError(t, err)
	assert.Zero(t, lifted)
	assert.Equal(t, 100, restClient.unbanCalls)

	for _, tempban := range store.tempbans {
		assert.Equal(t, 1, tempban.Attempts)
		assert.True(t, tempban.NextAttemptAt.After(time.Now()))
	}

	// A newer tempban is no longer stuck behind them
	restClient.unbanErr = nil
	newest := time.Now().Add(-time.Second)
	store.tempbans[userID] = &types.Tempban{GuildID: guildID, UserID: userID, ExpiresAt: newest, NextAttemptAt: newest}

	lifted, err = sweeper.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, lifted)
	assert.Equal(t, []snowflake.ID{userID}, restClient.unbans)
	assert.Len(t, store.tempbans, 100)
}

func TestTempbanSweeperGivesUp(t *testing.T) {
	t.Parallel()

	restClient := newFakeREST()
	restClient.unbanErr = errForbidden

	store := newFakeStore()
	past := time.Now().Add(-time.Hour)
	store.tempbans[userID] = &types.Tempban{GuildID: guildID, UserID: userID, ExpiresAt: past, NextAttemptAt: past}

	sweeper := moderation.NewTempbanSweeper(restClient, store, time.Minute, zap.NewNop())

	for attempt := 1; attempt < 10; attempt++ {
		_, err := sweeper.Sweep(t.Context())
		require.NoError(t, err)
		require.Contains(t, store.tempbans, userID)
		assert.Equal(t, attempt, store.tempbans[userID].Attempts)
		assert.True(t, store.tempbans[userID].NextAttemptAt.After(time.Now()))

		// Make the retry due
		store.tempbans[userID].NextAttemptAt = past
	}

	_, err := sweeper.Sweep(t.Context())
	require.NoError(t, err)
	assert.NotContains(t, store.tempbans, userID)
	assert.Equal(t, 10, restClient.unbanCalls)
}
