package policy_test

import (
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDefaults(t *testing.T) {
	t.Parallel()

	policies, err := policy.Resolve(nil)
	require.NoError(t, err)

	for _, category := range policy.Categories {
		p, ok := policies[category]
		require.True(t, ok, "category %s missing", category)
		assert.Equal(t, policy.StateDisabled, p.State)
		assert.Equal(t, 15, p.TempDur)
	}

	assert.Equal(t, 10, policies.Get(policy.CategoryMassMentions).Count)
	assert.Len(t, policies.Get(policy.CategoryPerspective).PerspBounds, 5)
	assert.NotEmpty(t, policies.Get(policy.CategoryBadWords).WordsList)
	assert.False(t, policies.Get(policy.CategorySpam).Delete)
	assert.True(t, policies.Get(policy.CategoryInvites).Delete)
}

func TestMergeCompletesDocuments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stored string
	}{
		{name: "empty document", stored: `{}`},
		{name: "partial category", stored: `{"caps": {"state": "warn"}}`},
		{name: "unknown category", stored: `{"legacy_rule": {"state": "flag"}, "spam": {}}`},
		{name: "unknown setting", stored: `{"invites": {"state": "kick", "colour": "red"}}`},
		{name: "complete category", stored: `{"escalate": {"state": "timeout", "temp_dur": 60,
			"excluded_channels": [], "excluded_roles": []}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stored, err := policy.ParseDocument([]byte(tt.stored))
			require.NoError(t, err)

			defaults := policy.Defaults()
			merged := policy.Merge(stored, defaults)

			assert.Len(t, merged, len(defaults), "no top-level key outside the defaults")

			for key, settings := range defaults {
				require.Contains(t, merged, key)

				for name := range settings {
					assert.Contains(t, merged[key], name, "%s.%s missing", key, name)
				}
			}
		})
	}
}

func TestMergeKeepsStoredValues(t *testing.T) {
	t.Parallel()

	stored, err := policy.ParseDocument([]byte(`{"caps": {"state": "warn", "temp_dur": 30, "delete": false}}`))
	require.NoError(t, err)

	before := len(stored["caps"])
	merged := policy.Merge(stored, policy.Defaults())

	policies, err := policy.Decode(merged)
	require.NoError(t, err)

	caps := policies.Get(policy.CategoryCaps)
	assert.Equal(t, policy.StateWarn, caps.State)
	assert.Equal(t, 30, caps.TempDur)
	assert.False(t, caps.Delete)
	assert.Empty(t, caps.ExcludedChannels)
	assert.Len(t, stored["caps"], before, "stored document is not modified")
}

func TestResolveCorruptDocuments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stored string
	}{
		{name: "not json", stored: `{"caps": `},
		{name: "null", stored: `null`},
		{name: "array", stored: `[1, 2]`},
		{name: "category not an object", stored: `{"caps": 5}`},
		{name: "unknown state", stored: `{"caps": {"state": "explode"}}`},
		{name: "invalid snowflake", stored: `{"caps": {"excluded_roles": [true]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := policy.Resolve([]byte(tt.stored))
			require.ErrorIs(t, err, policy.ErrCorruptPolicies)
		})
	}
}

func TestSnowflakesSurviveResolution(t *testing.T) {
	t.Parallel()

	policies, err := policy.Resolve([]byte(`{"invites": {
		"excluded_channels": [987654321098765432, "123456789012345678"],
		"excluded_roles": [555555555555555555]
	}}`))
	require.NoError(t, err)

	invites := policies.Get(policy.CategoryInvites)
	assert.Equal(t, policy.IDs{987654321098765432, 123456789012345678}, invites.ExcludedChannels)
	assert.True(t, invites.ExcludesChannel(snowflake.ID(123456789012345678)))
	assert.False(t, invites.ExcludesChannel(snowflake.ID(1)))
	assert.True(t, invites.ExcludesAnyRole([]snowflake.ID{1, 555555555555555555}))
	assert.False(t, invites.ExcludesAnyRole(nil))
}

func TestStateSilences(t *testing.T) {
	t.Parallel()

	silencers := map[policy.State]bool{
		policy.StateTimeout:  true,
		policy.StateKick:     true,
		policy.StateSoftban:  true,
		policy.StateTempban:  true,
		policy.StatePermaban: true,
	}

	for _, state := range policy.States {
		assert.Equal(t, silencers[state], state.Silences(), state.String())
	}
}

func TestCategoryLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "MASS_MENTIONS", policy.CategoryMassMentions.Label())
	assert.True(t, policy.CategoryPerspective.Valid())
	assert.False(t, policy.Category("nope").Valid())
}
