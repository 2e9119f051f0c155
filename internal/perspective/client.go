// Package perspective scores message text with the Perspective comment
// analyzer.
package perspective

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	commentanalyzer "google.golang.org/api/commentanalyzer/v1alpha1"
	"google.golang.org/api/option"
)

// ErrMissingAPIKey is returned when the client is created without an API key.
var ErrMissingAPIKey = errors.New("perspective API key is not configured")

// Config holds the client settings.
type Config struct {
	APIKey    string
	Languages []string
	Timeout   time.Duration
	// Endpoint overrides the API base URL.
	Endpoint string
}

// Client analyzes text through the Perspective API.
type Client struct {
	service   *commentanalyzer.Service
	languages []string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewClient creates a Perspective client.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	service, err := commentanalyzer.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create comment analyzer service: %w", err)
	}

	return &Client{
		service:   service,
		languages: cfg.Languages,
		timeout:   cfg.Timeout,
		logger:    logger.Named("perspective"),
	}, nil
}

// Analyze returns the summary score of every requested attribute. The text
// is not stored by the service.
func (c *Client) Analyze(ctx context.Context, text string, attributes []string) (map[string]float64, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)

		defer cancel()
	}

	requested := make(map[string]commentanalyzer.AttributeParameters, len(attributes))
	for _, attribute := range attributes {
		requested[attribute] = commentanalyzer.AttributeParameters{}
	}

	resp, err := c.service.Comments.Analyze(&commentanalyzer.AnalyzeCommentRequest{
		Comment:             &commentanalyzer.TextEntry{Text: text},
		RequestedAttributes: requested,
		Languages:           c.languages,
		DoNotStore:          true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to analyze comment: %w", err)
	}

	scores := make(map[string]float64, len(resp.AttributeScores))

	for name, score := range resp.AttributeScores {
		if score.SummaryScore == nil {
			continue
		}

		scores[name] = score.SummaryScore.Value
	}

	c.logger.Debug("Analyzed comment",
		zap.Int("length", len(text)),
		zap.Int("scores", len(scores)))

	return scores, nil
}
