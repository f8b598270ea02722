package forecast

import (
	"strings"

	"github.com/rewired-gh/forecastkit/internal/config"
	"github.com/rewired-gh/forecastkit/internal/models"
)

// Horizon bounds and the fixed weekly period.
const (
	MinHorizonDays     = 7
	MaxHorizonDays     = 30
	SeasonalPeriodDays = 7
)

// Preparer turns user choices into a ForecastRequest. It is pure.
type Preparer struct {
	MinHorizon int
	MaxHorizon int
	Period     int
}

// NewPreparer returns a Preparer with the standard [7, 30] horizon bounds and weekly period.
func NewPreparer() *Preparer {
	return &Preparer{MinHorizon: MinHorizonDays, MaxHorizon: MaxHorizonDays, Period: SeasonalPeriodDays}
}

// PreparerFromConfig reads horizon bounds and period from configuration.
func PreparerFromConfig(cfg config.ForecastConfig) *Preparer {
	return &Preparer{MinHorizon: cfg.MinHorizon, MaxHorizon: cfg.MaxHorizon, Period: cfg.SeasonalPeriod}
}

// ClampHorizon limits days to [MinHorizon, MaxHorizon].
func (p *Preparer) ClampHorizon(days int) int {
	if days < p.MinHorizon {
		return p.MinHorizon
	}
	if days > p.MaxHorizon {
		return p.MaxHorizon
	}
	return days
}

// Prepare builds a request. Out-of-range horizons are clamped, never rejected.
func (p *Preparer) Prepare(region string, target models.Target, horizonDays int, seasonal, logTransform bool) models.ForecastRequest {
	return models.ForecastRequest{
		Region:             strings.TrimSpace(region),
		Target:             target,
		HorizonDays:        p.ClampHorizon(horizonDays),
		SeasonalPeriodDays: p.Period,
		Seasonal:           seasonal,
		LogTransform:       logTransform,
	}
}
