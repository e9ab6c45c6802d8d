// Package simulator generates the multi-day market history the game is
// played against: a seeded random walk of closing prices plus daily sales
// volumes for every registered product.
//
// Reproducibility contract. Each Generate call builds a fresh math/rand/v2
// PCG source seeded with (uint64(seed), Stream). Draws happen in this fixed
// order, for day 1..horizon:
//
//	temperature = 10 + IntN(26)
//	humidity    = 20 + IntN(71)
//	for each product in registry order:
//	    noise = -0.10 + 0.20*Float64()
//	    drift = -0.05 + 0.10*Float64()
//
// unitsSold = max(0, roundHalfEven(baseSales*(1+noise))) and
// priceEnd = round(priceStart*(1+drift), PriceScale). Any implementation
// reproducing this draw sequence reproduces the series exactly.
package simulator

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maejeom/market-game/internal/calendar"
	"github.com/maejeom/market-game/internal/gameerr"
	"github.com/maejeom/market-game/internal/model"
	"github.com/maejeom/market-game/internal/registry"
)

const (
	// Stream is the PCG stream constant paired with the caller's seed.
	Stream uint64 = 0x6d61656a656f6d

	// PriceScale is the number of decimal places kept on simulated prices.
	PriceScale int32 = 10

	MinTemperature = 10
	MaxTemperature = 35
	MinHumidity    = 20
	MaxHumidity    = 90

	SalesNoise = 0.10
	PriceDrift = 0.05

	DateLayout = "2006-01-02"
)

// minTick is the smallest positive price at PriceScale. A walk that rounds
// to zero is held here so every price stays positive.
var minTick = decimal.New(1, -PriceScale)

// Simulator generates series for a fixed registry, calendar and start date.
type Simulator struct {
	registry *registry.Registry
	calendar *calendar.Calendar
	start    time.Time
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithCalendar labels each simulated day with the calendar's event title.
func WithCalendar(c *calendar.Calendar) Option {
	return func(s *Simulator) { s.calendar = c }
}

// WithStartDate sets the calendar date of day 1.
func WithStartDate(t time.Time) Option {
	return func(s *Simulator) {
		s.start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// New creates a simulator. Without WithStartDate, day 1 is today (UTC),
// fixed at construction time.
func New(reg *registry.Registry, opts ...Option) *Simulator {
	now := time.Now().UTC()
	s := &Simulator{
		registry: reg,
		calendar: calendar.Empty(),
		start:    time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the product registry the simulator walks.
func (s *Simulator) Registry() *registry.Registry { return s.registry }

// Calendar returns the event calendar used for labels.
func (s *Simulator) Calendar() *calendar.Calendar { return s.calendar }

// Generate produces the series for seed over horizon days.
func (s *Simulator) Generate(seed int64, horizon int) (*Series, error) {
	if horizon <= 0 {
		return nil, gameerr.New(gameerr.CodeConfig, "horizon must be positive, got %d", horizon)
	}
	if s.registry == nil || s.registry.Len() == 0 {
		return nil, gameerr.New(gameerr.CodeConfig, "product registry is empty")
	}

	rng := rand.New(rand.NewPCG(uint64(seed), Stream))
	products := s.registry.Products()

	prices := make([]decimal.Decimal, len(products))
	for i, p := range products {
		prices[i] = p.BasePrice
	}

	records := make([]model.MarketRecord, 0, horizon*len(products))
	for day := 1; day <= horizon; day++ {
		temp := MinTemperature + rng.IntN(MaxTemperature-MinTemperature+1)
		humidity := MinHumidity + rng.IntN(MaxHumidity-MinHumidity+1)
		date := s.start.AddDate(0, 0, day-1).Format(DateLayout)
		label := s.calendar.Label(day)

		for i, p := range products {
			noise := -SalesNoise + 2*SalesNoise*rng.Float64()
			units := int64(math.RoundToEven(float64(p.BaseSalesVolume) * (1 + noise)))
			if units < 0 {
				units = 0
			}

			priceStart := prices[i]
			revenue := priceStart.Mul(decimal.NewFromInt(units))

			drift := -PriceDrift + 2*PriceDrift*rng.Float64()
			priceEnd := priceStart.Mul(decimal.NewFromFloat(1 + drift)).Round(PriceScale)
			if !priceEnd.IsPositive() {
				priceEnd = minTick
			}

			records = append(records, model.MarketRecord{
				Day:         day,
				Date:        date,
				EventLabel:  label,
				Temperature: temp,
				Humidity:    humidity,
				Product:     p.ID,
				PriceStart:  priceStart,
				PriceEnd:    priceEnd,
				UnitsSold:   units,
				Revenue:     revenue,
			})
			prices[i] = priceEnd
		}
	}

	series, err := NewSeries(seed, horizon, s.start.Format(DateLayout), records)
	if err != nil {
		return nil, gameerr.New(gameerr.CodeConfig, "generated series is invalid: %v", err)
	}
	if day, product, ok := series.Covers(s.registry.IDs()); !ok {
		return nil, gameerr.New(gameerr.CodeConfig, "generated series misses day %d %s", day, product)
	}
	return series, nil
}
