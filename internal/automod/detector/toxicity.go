package detector

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"go.uber.org/zap"
)

// ToxicityAttributes are the classifier attributes requested for every
// message, in the order their scores are compared.
var ToxicityAttributes = []string{ //nolint:gochecknoglobals // -
	"TOXICITY",
	"SEVERE_TOXICITY",
	"PROFANITY",
	"INSULT",
	"THREAT",
}

// Classifier scores text for a set of attributes. Scores are in [0, 1].
type Classifier interface {
	Analyze(ctx context.Context, text string, attributes []string) (map[string]float64, error)
}

// Toxicity matches messages the classifier scores above the guild's bounds.
type Toxicity struct {
	classifier Classifier
	logger     *zap.Logger
}

// NewToxicity creates a Toxicity detector.
func NewToxicity(classifier Classifier, logger *zap.Logger) *Toxicity {
	return &Toxicity{
		classifier: classifier,
		logger:     logger.Named("toxicity"),
	}
}

// Category implements Detector.
func (d *Toxicity) Category() policy.Category {
	return policy.CategoryPerspective
}

// RequiresContent implements Detector.
func (d *Toxicity) RequiresContent() bool {
	return true
}

// Detect asks the classifier for scores. A classifier failure lets the
// message through.
func (d *Toxicity) Detect(ctx context.Context, msg *event.Message, settings policy.CategoryPolicy) (Verdict, error) {
	scores, err := d.classifier.Analyze(ctx, msg.Content, ToxicityAttributes)
	if err != nil {
		d.logger.Debug("Classifier unavailable, skipping toxicity check",
			zap.Uint64("messageID", uint64(msg.ID)),
			zap.Error(err))

		return Verdict{}, nil
	}

	for _, attribute := range ToxicityAttributes {
		score, ok := scores[attribute]
		if !ok {
			continue
		}

		bound, ok := settings.PerspBounds[attribute]
		if !ok || score <= bound {
			continue
		}

		return match(fmt.Sprintf("toxic content detected by Perspective (%s: %d%%)",
			strings.ToLower(strings.ReplaceAll(attribute, "_", " ")),
			int(math.RoundToEven(score*100)),
		)), nil
	}

	return Verdict{}, nil
}
