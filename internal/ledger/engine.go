// Package ledger implements the order engine for one game session: it owns
// the day pointer, cash, holdings and the append-only trade history, and
// validates every order against the day's closing prices.
//
// All monetary values use shopspring/decimal, never float64.
package ledger

import (
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/maejeom/market-game/internal/calendar"
	"github.com/maejeom/market-game/internal/gameerr"
	"github.com/maejeom/market-game/internal/model"
	"github.com/maejeom/market-game/internal/registry"
	"github.com/maejeom/market-game/internal/simulator"
	"github.com/maejeom/market-game/internal/valuation"
)

// DefaultEndowment is the starting cash of a fresh session.
var DefaultEndowment = decimal.NewFromInt(1_000_000)

// DefaultHorizon is the number of trading days in a session.
const DefaultHorizon = 30

// Config fixes the game rules for an engine.
type Config struct {
	Horizon   int
	Endowment decimal.Decimal
}

func (c Config) validate() error {
	if c.Horizon <= 0 {
		return gameerr.New(gameerr.CodeConfig, "horizon must be positive, got %d", c.Horizon)
	}
	if c.Endowment.IsNegative() {
		return gameerr.New(gameerr.CodeConfig, "endowment must not be negative, got %s", c.Endowment)
	}
	return nil
}

// Engine is the state machine of one session. Mutations take the write
// lock for the whole validate-then-apply step, so a failed order never
// leaves partial effects and readers never see a half-applied one.
type Engine struct {
	mu     sync.RWMutex
	sim    *simulator.Simulator
	cfg    Config
	series *simulator.Series
	state  model.LedgerState
}

// New starts a fresh session generated from seed.
func New(sim *simulator.Simulator, cfg Config, seed int64) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Engine{sim: sim, cfg: cfg}
	if err := e.Reset(seed); err != nil {
		return nil, err
	}
	return e, nil
}

// Load resumes a persisted session.
func Load(sim *simulator.Simulator, cfg Config, state model.LedgerState, series *simulator.Series) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Engine{sim: sim, cfg: cfg}
	if err := e.Restore(state, series); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) registry() *registry.Registry { return e.sim.Registry() }
func (e *Engine) calendar() *calendar.Calendar { return e.sim.Calendar() }

// Reset regenerates the series from seed and reinitialises the ledger to
// day 1 with the configured endowment and no holdings or history.
func (e *Engine) Reset(seed int64) error {
	series, err := e.sim.Generate(seed, e.cfg.Horizon)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.series = series
	e.state = e.freshState()
	return nil
}

func (e *Engine) freshState() model.LedgerState {
	holdings := make(map[string]int64, e.registry().Len())
	for _, id := range e.registry().IDs() {
		holdings[id] = 0
	}
	return model.LedgerState{
		Day:      1,
		Cash:     e.cfg.Endowment,
		Holdings: holdings,
		History:  []model.Trade{},
	}
}

// Restore replaces the session with a persisted state and series after
// checking the ledger invariants. The series horizon becomes the session's
// last day.
func (e *Engine) Restore(state model.LedgerState, series *simulator.Series) error {
	if series == nil {
		return gameerr.New(gameerr.CodeConfig, "restore: series is required")
	}
	if state.Day < 1 || state.Day > series.Horizon() {
		return gameerr.New(gameerr.CodeConfig, "restore: day %d outside [1,%d]", state.Day, series.Horizon())
	}
	if state.Cash.IsNegative() {
		return gameerr.New(gameerr.CodeConfig, "restore: negative cash %s", state.Cash)
	}
	restored := state.Clone()
	for p, qty := range restored.Holdings {
		if qty < 0 {
			return gameerr.New(gameerr.CodeConfig, "restore: negative holding %d of %s", qty, p)
		}
	}
	for i, t := range restored.History {
		switch {
		case t.Day < 1 || t.Day > state.Day:
			return gameerr.New(gameerr.CodeConfig, "restore: trade %d on day %d outside [1,%d]", i, t.Day, state.Day)
		case t.Qty <= 0:
			return gameerr.New(gameerr.CodeConfig, "restore: trade %d has quantity %d", i, t.Qty)
		case !t.Side.Valid():
			return gameerr.New(gameerr.CodeConfig, "restore: trade %d has side %q", i, t.Side)
		case !t.Price.Mul(decimal.NewFromInt(t.Qty)).Equal(t.Amount):
			return gameerr.New(gameerr.CodeConfig, "restore: trade %d amount %s is not %s x %d", i, t.Amount, t.Price, t.Qty)
		}
	}
	for _, id := range e.registry().IDs() {
		if _, ok := restored.Holdings[id]; !ok {
			restored.Holdings[id] = 0
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.series = series
	e.state = restored
	return nil
}

// State returns a deep copy of the ledger state.
func (e *Engine) State() model.LedgerState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Series returns the session's market history. Series values are immutable.
func (e *Engine) Series() *simulator.Series {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.series
}

// Day returns the current day.
func (e *Engine) Day() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Day
}

// MaxDay is the last tradable day.
func (e *Engine) MaxDay() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.series.Horizon()
}

// Event returns the calendar entry for day.
func (e *Engine) Event(day int) model.EventDescriptor {
	return e.calendar().Lookup(day)
}

// closePrice returns the closing price of product on day. A missing row
// falls back to the latest known close; only a product with no rows at all
// is an error.
func (e *Engine) closePrice(day int, product string) (decimal.Decimal, error) {
	if p, ok := e.series.Close(day, product); ok {
		return p, nil
	}
	if p, ok := e.series.LastKnownClose(day, product); ok {
		slog.Warn("price row missing, using last known close",
			"code", gameerr.CodeMissingPriceData,
			"day", day,
			"product", product,
			"price", p.String(),
		)
		return p, nil
	}
	return decimal.Zero, gameerr.New(gameerr.CodeMissingPriceData, "no price data for %s", product)
}

// todayPrices lists closing prices for the current day in registry order.
// Caller holds at least the read lock.
func (e *Engine) todayPrices() []model.ProductPrice {
	ids := e.registry().IDs()
	prices := make([]model.ProductPrice, 0, len(ids))
	for _, id := range ids {
		p, err := e.closePrice(e.state.Day, id)
		if err != nil {
			slog.Error("product has no price data", "product", id, "err", err)
		}
		prices = append(prices, model.ProductPrice{Product: id, Price: p})
	}
	return prices
}

// Snapshot returns the session's read model for the current day.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := e.state.Clone()
	prices := e.todayPrices()
	portfolio, total := valuation.Value(st.Cash, st.Holdings, prices)

	return model.Snapshot{
		Day:            st.Day,
		Cash:           st.Cash,
		Holdings:       st.Holdings,
		PortfolioValue: portfolio,
		TotalValue:     total,
		TodayPrices:    prices,
		History:        st.History,
		MaxDay:         e.series.Horizon(),
		Event:          e.calendar().Lookup(st.Day),
	}
}

// CheckOrder validates the product and side of an order, in that order.
func CheckOrder(reg *registry.Registry, product string, side model.Side) error {
	if !reg.Has(product) {
		return gameerr.New(gameerr.CodeValidation, "unknown product %q", product)
	}
	if !side.Valid() {
		return gameerr.New(gameerr.CodeValidation, "side must be buy or sell")
	}
	return nil
}

// PlaceOrder validates and fills an order at today's closing price.
//
// Validation order: product, side, quantity, then cash (buy) or holdings
// (sell). On any failure the ledger is unchanged.
func (e *Engine) PlaceOrder(product string, side model.Side, qty int64) (model.Trade, error) {
	if err := CheckOrder(e.registry(), product, side); err != nil {
		return model.Trade{}, err
	}
	if qty <= 0 {
		return model.Trade{}, gameerr.New(gameerr.CodeValidation, "quantity must be at least 1")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	price, err := e.closePrice(e.state.Day, product)
	if err != nil {
		return model.Trade{}, err
	}
	amount := price.Mul(decimal.NewFromInt(qty))

	switch side {
	case model.SideBuy:
		if e.state.Cash.LessThan(amount) {
			return model.Trade{}, gameerr.New(gameerr.CodeInsufficientFunds,
				"not enough cash: need %s, have %s", amount.StringFixed(2), e.state.Cash.StringFixed(2))
		}
		e.state.Cash = e.state.Cash.Sub(amount)
		e.state.Holdings[product] += qty
	case model.SideSell:
		if held := e.state.Holdings[product]; held < qty {
			return model.Trade{}, gameerr.New(gameerr.CodeInsufficientHoldings,
				"not enough %s held: want %d, have %d", product, qty, held)
		}
		e.state.Holdings[product] -= qty
		e.state.Cash = e.state.Cash.Add(amount)
	}

	trade := model.Trade{
		Day:     e.state.Day,
		Product: product,
		Side:    side,
		Qty:     qty,
		Price:   price,
		Amount:  amount,
	}
	e.state.History = append(e.state.History, trade)
	return trade, nil
}

// AdvanceDay moves to the next day. At the last day it fails and the day
// is unchanged.
func (e *Engine) AdvanceDay() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Day >= e.series.Horizon() {
		return e.state.Day, gameerr.New(gameerr.CodeHorizonExceeded,
			"day %d is the last day", e.series.Horizon())
	}
	e.state.Day++
	return e.state.Day, nil
}
