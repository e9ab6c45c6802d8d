package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/maejeom/market-game/internal/model"
	"github.com/maejeom/market-game/internal/registry"
	"github.com/maejeom/market-game/internal/simulator"
	"github.com/maejeom/market-game/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testSeries(t *testing.T) *simulator.Series {
	t.Helper()
	sim := simulator.New(registry.Default())
	series, err := sim.Generate(7, 5)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return series
}

func testState() model.LedgerState {
	return model.LedgerState{
		Day:      2,
		Cash:     d(999_900),
		Holdings: map[string]int64{"ion-drink": 1, "jelly": 0},
		History: []model.Trade{
			{Day: 1, Product: "ion-drink", Side: model.SideBuy, Qty: 1, Price: d(100), Amount: d(100)},
		},
	}
}

func TestMemoryStore_StateRoundTrip(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()

	if _, err := ms.LoadState(ctx, "s1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	want := testState()
	if err := ms.SaveState(ctx, "s1", want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := ms.LoadState(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Day != want.Day || !got.Cash.Equal(want.Cash) {
		t.Errorf("got day=%d cash=%s, want day=%d cash=%s", got.Day, got.Cash, want.Day, want.Cash)
	}
	if got.Holdings["ion-drink"] != 1 || len(got.History) != 1 {
		t.Errorf("holdings/history not preserved: %+v", got)
	}
}

func TestMemoryStore_StateIsCopied(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()

	st := testState()
	ms.SaveState(ctx, "s1", st)

	// Mutating the caller's value after save must not leak into the store.
	st.Holdings["ion-drink"] = 99
	st.History[0].Qty = 99

	got, _ := ms.LoadState(ctx, "s1")
	if got.Holdings["ion-drink"] != 1 || got.History[0].Qty != 1 {
		t.Fatalf("store shares memory with caller: %+v", got)
	}

	// Nor must mutating a loaded value.
	got.Holdings["jelly"] = 5
	again, _ := ms.LoadState(ctx, "s1")
	if again.Holdings["jelly"] != 0 {
		t.Fatalf("loaded state shares memory with store")
	}
}

func TestMemoryStore_SeriesRoundTrip(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()

	if _, err := ms.LoadSeries(ctx, "s1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	series := testSeries(t)
	if err := ms.SaveSeries(ctx, "s1", series); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := ms.LoadSeries(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Seed() != 7 || got.Horizon() != 5 || got.Len() != series.Len() {
		t.Errorf("series mismatch: seed=%d horizon=%d len=%d", got.Seed(), got.Horizon(), got.Len())
	}
}

func TestMemoryStore_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()

	for _, id := range []string{"b", "a", "c"} {
		ms.SaveState(ctx, id, testState())
		ms.SaveSeries(ctx, id, testSeries(t))
	}

	ids, _ := ms.ListSessions(ctx)
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("expected sorted [a b c], got %v", ids)
	}

	if err := ms.DeleteSession(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := ms.LoadState(ctx, "b"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("state survived delete: %v", err)
	}
	if _, err := ms.LoadSeries(ctx, "b"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("series survived delete: %v", err)
	}
	ids, _ = ms.ListSessions(ctx)
	if len(ids) != 2 {
		t.Errorf("expected 2 sessions after delete, got %v", ids)
	}
}
