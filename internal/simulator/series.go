package simulator

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/maejeom/market-game/internal/model"
)

// Series is an immutable simulated market history, ordered by day then by
// registry product order. It is safe for concurrent readers.
type Series struct {
	seed      int64
	horizon   int
	startDate string
	records   []model.MarketRecord
	byKey     map[seriesKey]int
}

type seriesKey struct {
	day     int
	product string
}

// NewSeries indexes records that were generated or loaded from storage.
// It does not require full (day, product) coverage; use Covers for that.
func NewSeries(seed int64, horizon int, startDate string, records []model.MarketRecord) (*Series, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("series: horizon must be positive, got %d", horizon)
	}
	s := &Series{
		seed:      seed,
		horizon:   horizon,
		startDate: startDate,
		records:   make([]model.MarketRecord, len(records)),
		byKey:     make(map[seriesKey]int, len(records)),
	}
	copy(s.records, records)
	for i, r := range s.records {
		if r.Day < 1 || r.Day > horizon {
			return nil, fmt.Errorf("series: record %d has day %d outside [1,%d]", i, r.Day, horizon)
		}
		if !r.PriceStart.IsPositive() || !r.PriceEnd.IsPositive() {
			return nil, fmt.Errorf("series: day %d %s has a non-positive price", r.Day, r.Product)
		}
		k := seriesKey{r.Day, r.Product}
		if _, dup := s.byKey[k]; dup {
			return nil, fmt.Errorf("series: duplicate record for day %d %s", r.Day, r.Product)
		}
		s.byKey[k] = i
	}
	return s, nil
}

func (s *Series) Seed() int64       { return s.seed }
func (s *Series) Horizon() int      { return s.horizon }
func (s *Series) StartDate() string { return s.startDate }
func (s *Series) Len() int          { return len(s.records) }

// Records returns a copy of all rows in series order.
func (s *Series) Records() []model.MarketRecord {
	out := make([]model.MarketRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Day returns the rows for one day.
func (s *Series) Day(day int) []model.MarketRecord {
	var out []model.MarketRecord
	for _, r := range s.records {
		if r.Day == day {
			out = append(out, r)
		}
	}
	return out
}

// Record looks up the row for (day, product).
func (s *Series) Record(day int, product string) (model.MarketRecord, bool) {
	i, ok := s.byKey[seriesKey{day, product}]
	if !ok {
		return model.MarketRecord{}, false
	}
	return s.records[i], true
}

// Close returns the closing price (PriceEnd) of product on day.
func (s *Series) Close(day int, product string) (decimal.Decimal, bool) {
	r, ok := s.Record(day, product)
	if !ok {
		return decimal.Zero, false
	}
	return r.PriceEnd, true
}

// LastKnownClose returns the closing price of the latest row for product at
// or before day, or the latest row of any day when none precedes it.
func (s *Series) LastKnownClose(day int, product string) (decimal.Decimal, bool) {
	best, bestDay := -1, 0
	latest, latestDay := -1, 0
	for i, r := range s.records {
		if r.Product != product {
			continue
		}
		if r.Day <= day && r.Day > bestDay {
			best, bestDay = i, r.Day
		}
		if r.Day > latestDay {
			latest, latestDay = i, r.Day
		}
	}
	switch {
	case best >= 0:
		return s.records[best].PriceEnd, true
	case latest >= 0:
		return s.records[latest].PriceEnd, true
	}
	return decimal.Zero, false
}

// Covers reports the first (day, product) pair missing from the series.
func (s *Series) Covers(products []string) (missingDay int, missingProduct string, ok bool) {
	for day := 1; day <= s.horizon; day++ {
		for _, p := range products {
			if _, found := s.byKey[seriesKey{day, p}]; !found {
				return day, p, false
			}
		}
	}
	return 0, "", true
}

type seriesJSON struct {
	Seed      int64                `json:"seed"`
	Horizon   int                  `json:"horizon"`
	StartDate string               `json:"start_date"`
	Records   []model.MarketRecord `json:"records"`
}

func (s *Series) MarshalJSON() ([]byte, error) {
	return json.Marshal(seriesJSON{
		Seed:      s.seed,
		Horizon:   s.horizon,
		StartDate: s.startDate,
		Records:   s.records,
	})
}

func (s *Series) UnmarshalJSON(data []byte) error {
	var raw seriesJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	loaded, err := NewSeries(raw.Seed, raw.Horizon, raw.StartDate, raw.Records)
	if err != nil {
		return err
	}
	*s = *loaded
	return nil
}
