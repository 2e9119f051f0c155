package policy

import "slices"

// State is the action taken when a category is violated.
type State string

const (
	StateDisabled State = "disabled"
	StateFlag     State = "flag"
	StateNotice   State = "notice"
	StateWarn     State = "warn"
	StateEscalate State = "escalate"
	StateTimeout  State = "timeout"
	StateKick     State = "kick"
	StateSoftban  State = "softban"
	StateTempban  State = "tempban"
	StatePermaban State = "permaban"
)

// States lists every state from least to most severe.
var States = []State{
	StateDisabled,
	StateFlag,
	StateNotice,
	StateWarn,
	StateEscalate,
	StateTimeout,
	StateKick,
	StateSoftban,
	StateTempban,
	StatePermaban,
}

// String returns the document value of the state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return slices.Contains(States, s)
}

// Silences reports whether the state removes the member's ability to
// participate, either temporarily or permanently.
func (s State) Silences() bool {
	switch s {
	case StateTimeout, StateKick, StateSoftban, StateTempban, StatePermaban:
		return true
	default:
		return false
	}
}
