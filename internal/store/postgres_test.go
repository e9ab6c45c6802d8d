package store

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/maejeom/market-game/internal/model"
)

// fakeRows replays fixed rows through the pgxRows interface.
type fakeRows struct {
	rows [][]any
	i    int
}

func (f *fakeRows) Next() bool {
	f.i++
	return f.i <= len(f.rows)
}

func (f *fakeRows) Err() error { return nil }

func (f *fakeRows) Scan(dest ...interface{}) error {
	row := f.rows[f.i-1]
	if len(row) != len(dest) {
		return fmt.Errorf("scan: %d columns into %d targets", len(row), len(dest))
	}
	for i, v := range row {
		switch p := dest[i].(type) {
		case *int:
			*p = v.(int)
		case *int64:
			*p = v.(int64)
		case *string:
			*p = v.(string)
		default:
			return fmt.Errorf("scan: unsupported target %T", p)
		}
	}
	return nil
}

func TestScanTrades(t *testing.T) {
	rows := &fakeRows{rows: [][]any{
		{1, "jelly", "buy", int64(10), "80.0000000001", "800.000000001"},
		{2, "jelly", "sell", int64(4), "81.5", "326"},
	}}

	trades, err := scanTrades(rows)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Side != model.SideBuy || trades[1].Side != model.SideSell {
		t.Errorf("sides: %s %s", trades[0].Side, trades[1].Side)
	}
	if !trades[0].Price.Equal(decimal.RequireFromString("80.0000000001")) {
		t.Errorf("price lost precision: %s", trades[0].Price)
	}
}

func TestScanTrades_EmptyIsNotNil(t *testing.T) {
	trades, err := scanTrades(&fakeRows{})
	if err != nil || trades == nil || len(trades) != 0 {
		t.Errorf("expected empty non-nil slice, got %v %v", trades, err)
	}
}

func TestScanTrades_BadNumberIsAnError(t *testing.T) {
	rows := &fakeRows{rows: [][]any{
		{1, "jelly", "buy", int64(10), "eighty", "800"},
	}}
	if trades, err := scanTrades(rows); err == nil {
		t.Errorf("expected error for unparsable price, got %+v", trades)
	}
}

func TestScanRecords_BadNumberIsAnError(t *testing.T) {
	rows := &fakeRows{rows: [][]any{
		{1, "2025-03-03", "ordinary day", 20, 55, "ion-drink", "100", "103.25", int64(51), ""},
	}}
	if records, err := scanRecords(rows); err == nil {
		t.Errorf("expected error for empty revenue, got %+v", records)
	}
}

func TestScanRecords(t *testing.T) {
	rows := &fakeRows{rows: [][]any{
		{1, "2025-03-03", "ordinary day", 20, 55, "ion-drink", "100", "103.25", int64(51), "5100"},
	}}

	records, err := scanRecords(rows)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	r := records[0]
	if r.Day != 1 || r.Temperature != 20 || r.Humidity != 55 || r.UnitsSold != 51 {
		t.Errorf("unexpected record: %+v", r)
	}
	if !r.PriceEnd.Equal(decimal.RequireFromString("103.25")) || !r.Revenue.Equal(decimal.NewFromInt(5100)) {
		t.Errorf("decimals: end=%s revenue=%s", r.PriceEnd, r.Revenue)
	}
}
