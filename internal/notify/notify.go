// Package notify delivers forecast digests to chat channels.
//
// A digest summarises one or more forecast results: the region and target, the
// tier that produced the forecast, the predicted range over the horizon and
// the in-sample MAPE. Telegram and Slack are supported; both retry transient
// delivery failures.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/forecastkit/internal/config"
	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/rewired-gh/forecastkit/internal/models"
)

// Notifier sends a digest of forecast results.
type Notifier interface {
	Name() string
	Send(ctx context.Context, results []*models.ForecastResult) error
}

// entry is the channel-independent content of one digest line.
type entry struct {
	Region    string
	Target    models.Target
	Tier      string
	Start     time.Time
	End       time.Time
	First     float64
	Last      float64
	MAPE      float64
	Fallbacks int
}

func (e entry) rising() bool { return e.Last >= e.First }

func entries(results []*models.ForecastResult) []entry {
	out := make([]entry, 0, len(results))
	for _, r := range results {
		if r == nil || len(r.Points) == 0 {
			continue
		}
		first, last := r.Points[0], r.Points[len(r.Points)-1]
		out = append(out, entry{
			Region:    r.Region,
			Target:    r.Target,
			Tier:      r.Tier,
			Start:     first.Date,
			End:       last.Date,
			First:     first.Predicted,
			Last:      last.Predicted,
			MAPE:      r.Metrics.MAPE,
			Fallbacks: len(r.Notes),
		})
	}
	return out
}

// FromConfig builds the enabled notifiers.
func FromConfig(cfg config.NotifyConfig) ([]Notifier, error) {
	var notifiers []Notifier
	if cfg.Telegram.Enabled {
		tg, err := NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, tg)
	}
	if cfg.Slack.Enabled {
		notifiers = append(notifiers, NewSlack(cfg.Slack.BotToken, cfg.Slack.ChannelID))
	}
	return notifiers, nil
}

// SendAll delivers the digest through every notifier. Failures are logged and
// joined; one channel failing does not stop the others.
func SendAll(ctx context.Context, notifiers []Notifier, results []*models.ForecastResult) error {
	if len(results) == 0 {
		return nil
	}
	var errs []error
	for _, n := range notifiers {
		if err := n.Send(ctx, results); err != nil {
			logger.Error("Failed to send %s digest: %v", n.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		logger.Info("Sent %s digest with %d forecasts", n.Name(), len(results))
	}
	return errors.Join(errs...)
}

// retry calls fn up to attempts times with a linearly growing delay.
func retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(base * time.Duration(i)):
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
