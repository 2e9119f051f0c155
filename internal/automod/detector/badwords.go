package detector

import (
	"context"
	"strings"

	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"golang.org/x/text/cases"
)

// BadWords matches messages containing words from the guild's lists.
type BadWords struct{}

// NewBadWords creates a BadWords detector.
func NewBadWords() *BadWords {
	return &BadWords{}
}

// Category implements Detector.
func (d *BadWords) Category() policy.Category {
	return policy.CategoryBadWords
}

// RequiresContent implements Detector.
func (d *BadWords) RequiresContent() bool {
	return true
}

// Detect checks whole words first, then multi-word expressions, then
// wildcard entries that match anywhere in the text.
func (d *BadWords) Detect(_ context.Context, msg *event.Message, settings policy.CategoryPolicy) (Verdict, error) {
	// Casers keep state between calls and cannot be shared
	fold := cases.Fold()
	content := fold.String(msg.Content)

	words := make(map[string]struct{}, len(settings.WordsList))
	for _, word := range settings.WordsList {
		words[fold.String(word)] = struct{}{}
	}

	for word := range strings.SplitSeq(content, " ") {
		if _, ok := words[word]; ok && word != "" {
			return match("usage of bad words"), nil
		}
	}

	for word := range words {
		if strings.Contains(word, " ") && strings.Contains(content, word) {
			return match("usage of bad words (expression)"), nil
		}
	}

	for _, word := range settings.WordsListWildcard {
		if word == "" {
			continue
		}

		if strings.Contains(content, fold.String(word)) {
			return match("usage of bad words (wildcard)"), nil
		}
	}

	return Verdict{}, nil
}
