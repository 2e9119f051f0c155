package detector

import (
	"context"
	"unicode"
	"unicode/utf8"

	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
)

const (
	// capsMinLength is the length a message has to exceed to be checked.
	capsMinLength = 15
	// capsRatio is the share of upper-case alphanumerics that counts as shouting.
	capsRatio = 0.6
)

// Caps matches messages written mostly in upper case.
type Caps struct{}

// NewCaps creates a Caps detector.
func NewCaps() *Caps {
	return &Caps{}
}

// Category implements Detector.
func (d *Caps) Category() policy.Category {
	return policy.CategoryCaps
}

// RequiresContent implements Detector.
func (d *Caps) RequiresContent() bool {
	return true
}

// Detect compares upper-case letters against all letters and digits.
func (d *Caps) Detect(_ context.Context, msg *event.Message, _ policy.CategoryPolicy) (Verdict, error) {
	if utf8.RuneCountInString(msg.Content) <= capsMinLength {
		return Verdict{}, nil
	}

	var alnum, upper int

	for _, r := range msg.Content {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			continue
		}

		alnum++

		if unicode.IsUpper(r) {
			upper++
		}
	}

	if alnum == 0 || float64(upper)/float64(alnum) <= capsRatio {
		return Verdict{}, nil
	}

	return match("use of excessive caps"), nil
}
