// Package policy resolves the per-guild auto-moderation policy document.
//
// A stored document only has to contain what a guild changed. It is merged
// over the built-in defaults so that every category and every setting the
// pipeline reads is always present.
package policy

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
)

// ErrCorruptPolicies is returned when a stored policy document cannot be decoded.
var ErrCorruptPolicies = errors.New("corrupt automod policy document")

//go:embed defaults.json
var defaultDocument []byte

// numberAPI keeps JSON numbers verbatim so that snowflakes survive the merge.
var numberAPI = sonic.Config{UseNumber: true}.Froze() //nolint:gochecknoglobals // -

// Document is the untyped form of a policy document: category key to
// setting key to value.
type Document map[string]map[string]any

// CategoryPolicy holds the settings of one category.
type CategoryPolicy struct {
	State State `json:"state"`
	// TempDur is the punishment duration in minutes for timeouts and tempbans.
	TempDur           int                `json:"temp_dur"`
	Delete            bool               `json:"delete"`
	ExcludedChannels  IDs                `json:"excluded_channels"`
	ExcludedRoles     IDs                `json:"excluded_roles"`
	Count             int                `json:"count,omitempty"`
	WordsList         []string           `json:"words_list,omitempty"`
	WordsListWildcard []string           `json:"words_list_wildcard,omitempty"`
	PerspBounds       map[string]float64 `json:"persp_bounds,omitempty"`
}

// ExcludesChannel reports whether violations in the channel are ignored.
func (p CategoryPolicy) ExcludesChannel(channelID snowflake.ID) bool {
	return slices.Contains(p.ExcludedChannels, channelID)
}

// ExcludesAnyRole reports whether a member holding any of the roles is exempt.
func (p CategoryPolicy) ExcludesAnyRole(roleIDs []snowflake.ID) bool {
	for _, roleID := range roleIDs {
		if slices.Contains(p.ExcludedRoles, roleID) {
			return true
		}
	}

	return false
}

// Policies is a fully resolved policy document.
type Policies map[Category]CategoryPolicy

// Get returns the settings of a category. Unknown categories are disabled.
func (p Policies) Get(category Category) CategoryPolicy {
	if policy, ok := p[category]; ok {
		return policy
	}

	return CategoryPolicy{State: StateDisabled}
}

// IDs is a list of snowflakes that decodes from JSON numbers or strings.
type IDs []snowflake.ID

// UnmarshalJSON implements json.Unmarshaler.
func (ids *IDs) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := numberAPI.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(IDs, 0, len(raw))

	for _, value := range raw {
		var text string

		switch v := value.(type) {
		case json.Number:
			text = v.String()
		case string:
			text = v
		default:
			return fmt.Errorf("invalid snowflake %v", value)
		}

		id, err := snowflake.Parse(text)
		if err != nil {
			return fmt.Errorf("invalid snowflake %q: %w", text, err)
		}

		out = append(out, id)
	}

	*ids = out

	return nil
}

// Defaults returns a fresh copy of the built-in policy document.
func Defaults() Document {
	doc, err := ParseDocument(defaultDocument)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in policy document: %v", err))
	}

	return doc
}

// ParseDocument decodes a raw policy document. Every top-level value must
// be an object.
func ParseDocument(data []byte) (Document, error) {
	var raw map[string]any
	if err := numberAPI.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptPolicies, err)
	}

	if raw == nil {
		return nil, fmt.Errorf("%w: document is not an object", ErrCorruptPolicies)
	}

	doc := make(Document, len(raw))

	for key, value := range raw {
		settings, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: category %q is not an object", ErrCorruptPolicies, key)
		}

		doc[key] = settings
	}

	return doc, nil
}

// Merge fills stored with everything it lacks from defaults: missing
// categories are copied whole, missing settings of existing categories are
// copied one by one, and categories unknown to defaults are dropped.
// Neither argument is modified.
func Merge(stored, defaults Document) Document {
	merged := make(Document, len(defaults))

	for key, defaultSettings := range defaults {
		storedSettings, ok := stored[key]
		if !ok {
			merged[key] = maps.Clone(defaultSettings)
			continue
		}

		settings := maps.Clone(storedSettings)
		for name, value := range defaultSettings {
			if _, exists := settings[name]; !exists {
				settings[name] = value
			}
		}

		merged[key] = settings
	}

	return merged
}

// Decode converts a merged document into typed policies.
func Decode(doc Document) (Policies, error) {
	data, err := numberAPI.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptPolicies, err)
	}

	var raw map[Category]CategoryPolicy
	if err := numberAPI.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptPolicies, err)
	}

	policies := make(Policies, len(raw))

	for category, policy := range raw {
		if !policy.State.Valid() {
			return nil, fmt.Errorf("%w: category %q has unknown state %q", ErrCorruptPolicies, category, policy.State)
		}

		policies[category] = policy
	}

	return policies, nil
}

// Resolve turns a stored document into typed policies. A nil document
// resolves to the defaults.
func Resolve(stored []byte) (Policies, error) {
	defaults := Defaults()

	if stored == nil {
		return Decode(defaults)
	}

	doc, err := ParseDocument(stored)
	if err != nil {
		return nil, err
	}

	return Decode(Merge(doc, defaults))
}
