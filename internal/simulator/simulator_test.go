package simulator

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maejeom/market-game/internal/calendar"
	"github.com/maejeom/market-game/internal/gameerr"
	"github.com/maejeom/market-game/internal/model"
	"github.com/maejeom/market-game/internal/registry"
)

var start = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func newSim(t *testing.T) *Simulator {
	t.Helper()
	return New(registry.Default(), WithCalendar(calendar.Default()), WithStartDate(start))
}

func sameRecord(a, b model.MarketRecord) bool {
	return a.Day == b.Day &&
		a.Date == b.Date &&
		a.EventLabel == b.EventLabel &&
		a.Temperature == b.Temperature &&
		a.Humidity == b.Humidity &&
		a.Product == b.Product &&
		a.PriceStart.Equal(b.PriceStart) &&
		a.PriceEnd.Equal(b.PriceEnd) &&
		a.UnitsSold == b.UnitsSold &&
		a.Revenue.Equal(b.Revenue)
}

func TestGenerate_Deterministic(t *testing.T) {
	sim := newSim(t)
	a, err := sim.Generate(42, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := sim.Generate(42, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ra, rb := a.Records(), b.Records()
	if len(ra) != len(rb) {
		t.Fatalf("length mismatch: %d vs %d", len(ra), len(rb))
	}
	for i := range ra {
		if !sameRecord(ra[i], rb[i]) {
			t.Fatalf("record %d differs: %+v vs %+v", i, ra[i], rb[i])
		}
	}
}

func TestGenerate_DifferentSeedsDiffer(t *testing.T) {
	sim := newSim(t)
	a, _ := sim.Generate(1, 10)
	b, _ := sim.Generate(2, 10)
	ra, rb := a.Records(), b.Records()
	for i := range ra {
		if !sameRecord(ra[i], rb[i]) {
			return
		}
	}
	t.Error("different seeds produced identical series")
}

func TestGenerate_ShapeAndOrder(t *testing.T) {
	reg := registry.Default()
	sim := newSim(t)
	s, err := sim.Generate(7, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 30*reg.Len() {
		t.Fatalf("expected %d records, got %d", 30*reg.Len(), s.Len())
	}
	ids := reg.IDs()
	for i, r := range s.Records() {
		wantDay := i/len(ids) + 1
		wantProduct := ids[i%len(ids)]
		if r.Day != wantDay || r.Product != wantProduct {
			t.Fatalf("record %d: expected day %d %s, got day %d %s", i, wantDay, wantProduct, r.Day, r.Product)
		}
	}
	if _, _, ok := s.Covers(ids); !ok {
		t.Error("series should cover every (day, product)")
	}
}

func TestGenerate_Invariants(t *testing.T) {
	reg := registry.Default()
	s, err := newSim(t).Generate(99, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, p := range reg.Products() {
		first, ok := s.Record(1, p.ID)
		if !ok {
			t.Fatalf("missing day 1 for %s", p.ID)
		}
		if !first.PriceStart.Equal(p.BasePrice) {
			t.Errorf("%s: day 1 price_start %s, expected base %s", p.ID, first.PriceStart, p.BasePrice)
		}
		for day := 1; day < s.Horizon(); day++ {
			cur, _ := s.Record(day, p.ID)
			next, _ := s.Record(day+1, p.ID)
			if !next.PriceStart.Equal(cur.PriceEnd) {
				t.Errorf("%s: day %d price_start %s != day %d price_end %s",
					p.ID, day+1, next.PriceStart, day, cur.PriceEnd)
			}
		}
	}

	tol := decimal.New(1, -6)
	lo := decimal.NewFromFloat(0.95).Sub(tol)
	hi := decimal.NewFromFloat(1.05).Add(tol)
	for _, r := range s.Records() {
		if !r.PriceStart.IsPositive() || !r.PriceEnd.IsPositive() {
			t.Fatalf("non-positive price on day %d %s", r.Day, r.Product)
		}
		ratio := r.PriceEnd.Div(r.PriceStart)
		if ratio.LessThan(lo) || ratio.GreaterThan(hi) {
			t.Errorf("day %d %s: daily move %s outside ±5%%", r.Day, r.Product, ratio)
		}
		if r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
			t.Errorf("temperature %d out of range", r.Temperature)
		}
		if r.Humidity < MinHumidity || r.Humidity > MaxHumidity {
			t.Errorf("humidity %d out of range", r.Humidity)
		}
		if r.UnitsSold < 0 {
			t.Errorf("negative units sold on day %d %s", r.Day, r.Product)
		}
		if !r.Revenue.Equal(r.PriceStart.Mul(decimal.NewFromInt(r.UnitsSold))) {
			t.Errorf("revenue %s != units %d * price_start %s", r.Revenue, r.UnitsSold, r.PriceStart)
		}
	}
}

func TestGenerate_UnitsWithinNoiseBand(t *testing.T) {
	s, _ := newSim(t).Generate(5, 30)
	for _, r := range s.Records() {
		if r.Product != "ion-drink" {
			continue
		}
		// base 50, ±10% -> [45, 55]
		if r.UnitsSold < 45 || r.UnitsSold > 55 {
			t.Errorf("day %d: units %d outside [45,55]", r.Day, r.UnitsSold)
		}
	}
}

func TestGenerate_DatesAndLabels(t *testing.T) {
	s, _ := newSim(t).Generate(1, 5)
	r1, _ := s.Record(1, "jelly")
	r3, _ := s.Record(3, "jelly")
	if r1.Date != "2025-03-03" || r3.Date != "2025-03-05" {
		t.Errorf("unexpected dates: %s %s", r1.Date, r3.Date)
	}
	if r1.EventLabel != "ordinary day" || r3.EventLabel != "mock exam" {
		t.Errorf("unexpected labels: %q %q", r1.EventLabel, r3.EventLabel)
	}
	if s.StartDate() != "2025-03-03" {
		t.Errorf("unexpected start date %s", s.StartDate())
	}
}

func TestGenerate_ConfigErrors(t *testing.T) {
	sim := newSim(t)
	for _, h := range []int{0, -3} {
		if _, err := sim.Generate(1, h); !errors.Is(err, gameerr.ErrConfig) {
			t.Errorf("horizon %d: expected config error, got %v", h, err)
		}
	}
	if _, err := New(nil).Generate(1, 5); !errors.Is(err, gameerr.ErrConfig) {
		t.Errorf("nil registry: expected config error, got %v", err)
	}
}

func TestSeries_CloseAndFallback(t *testing.T) {
	recs := []model.MarketRecord{
		{Day: 1, Product: "x", PriceStart: decimal.NewFromInt(100), PriceEnd: decimal.NewFromInt(101)},
		{Day: 2, Product: "x", PriceStart: decimal.NewFromInt(101), PriceEnd: decimal.NewFromInt(99)},
	}
	s, err := NewSeries(1, 3, "2025-01-01", recs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p, ok := s.Close(2, "x"); !ok || !p.Equal(decimal.NewFromInt(99)) {
		t.Errorf("expected close 99, got %s %v", p, ok)
	}
	if _, ok := s.Close(3, "x"); ok {
		t.Error("day 3 should be missing")
	}
	if p, ok := s.LastKnownClose(3, "x"); !ok || !p.Equal(decimal.NewFromInt(99)) {
		t.Errorf("expected fallback 99, got %s %v", p, ok)
	}
	if _, ok := s.LastKnownClose(3, "y"); ok {
		t.Error("unknown product should have no fallback")
	}
	if day, p, ok := s.Covers([]string{"x"}); ok || day != 3 || p != "x" {
		t.Errorf("expected missing day 3 x, got %d %s %v", day, p, ok)
	}
}

func TestNewSeries_Rejects(t *testing.T) {
	good := model.MarketRecord{Day: 1, Product: "x", PriceStart: decimal.NewFromInt(1), PriceEnd: decimal.NewFromInt(1)}
	tests := map[string][]model.MarketRecord{
		"day out of range": {{Day: 4, Product: "x", PriceStart: decimal.NewFromInt(1), PriceEnd: decimal.NewFromInt(1)}},
		"zero price":       {{Day: 1, Product: "x", PriceStart: decimal.NewFromInt(1), PriceEnd: decimal.Zero}},
		"duplicate":        {good, good},
	}
	for name, recs := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewSeries(1, 3, "", recs); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := NewSeries(1, 0, "", nil); err == nil {
		t.Error("expected error for zero horizon")
	}
}

func TestSeries_JSONRoundTrip(t *testing.T) {
	s, _ := newSim(t).Generate(3, 4)
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Series
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Seed() != 3 || back.Horizon() != 4 || back.Len() != s.Len() {
		t.Fatalf("metadata lost: seed=%d horizon=%d len=%d", back.Seed(), back.Horizon(), back.Len())
	}
	p1, _ := s.Close(4, "jelly")
	p2, ok := back.Close(4, "jelly")
	if !ok || !p1.Equal(p2) {
		t.Errorf("close price lost: %s vs %s", p1, p2)
	}
}
