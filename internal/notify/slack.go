package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rewired-gh/forecastkit/internal/forecast"
	"github.com/rewired-gh/forecastkit/internal/models"
	"github.com/slack-go/slack"
)

// Slack posts digests to a channel with a bot token.
type Slack struct {
	api       *slack.Client
	channelID string
}

// NewSlack creates a Slack notifier. Extra options are passed to slack.New.
func NewSlack(botToken, channelID string, opts ...slack.Option) *Slack {
	return &Slack{api: slack.New(botToken, opts...), channelID: channelID}
}

// Name implements Notifier.
func (s *Slack) Name() string { return "slack" }

// Send posts the digest as a header block plus one section per forecast.
func (s *Slack) Send(ctx context.Context, results []*models.ForecastResult) error {
	es := entries(results)
	_, _, err := s.api.PostMessageContext(ctx, s.channelID,
		slack.MsgOptionText(formatSlack(es), false),
		slack.MsgOptionBlocks(slackBlocks(es)...),
	)
	if err != nil {
		return fmt.Errorf("failed to post to %s: %w", s.channelID, err)
	}
	return nil
}

func slackLine(e entry) string {
	direction := "rising"
	if !e.rising() {
		direction = "falling"
	}
	line := fmt.Sprintf("*%s* %s: %s → %s (%s to %s), %s, %s, MAPE %s%%",
		e.Region, e.Target,
		forecast.FormatMetric(e.First), forecast.FormatMetric(e.Last),
		e.Start.Format("Jan 2"), e.End.Format("Jan 2"),
		direction, forecast.TierLabel(e.Tier), forecast.FormatMetric(e.MAPE))
	if e.Fallbacks > 0 {
		line += fmt.Sprintf(" _(%d tier%s fell through)_", e.Fallbacks, plural(e.Fallbacks))
	}
	return line
}

// formatSlack is the plain-text fallback shown in notifications.
func formatSlack(es []entry) string {
	lines := make([]string, 0, len(es)+1)
	lines = append(lines, "Forecast Digest")
	for _, e := range es {
		lines = append(lines, "• "+slackLine(e))
	}
	return strings.Join(lines, "\n")
}

func slackBlocks(es []entry) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Forecast Digest", false, false)),
	}
	for _, e := range es {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, slackLine(e), false, false),
			nil, nil,
		))
	}
	return blocks
}
