// Package session keeps one ledger engine per game session and persists it
// after every mutation.
//
// Each session has its own mutex held across mutate-then-save, so two
// requests for the same session never interleave and a failed save can be
// undone before anyone observes it. Different sessions proceed in parallel.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maejeom/market-game/internal/gameerr"
	"github.com/maejeom/market-game/internal/ledger"
	"github.com/maejeom/market-game/internal/metrics"
	"github.com/maejeom/market-game/internal/model"
	"github.com/maejeom/market-game/internal/simulator"
	"github.com/maejeom/market-game/internal/store"
)

// DefaultID is the session used when a request names none.
const DefaultID = "default"

// Options controls how new games are seeded.
type Options struct {
	Ledger ledger.Config

	// Seed is used when a reset names no seed.
	Seed int64

	// RandomSeed derives a seed from the clock instead of Seed.
	RandomSeed bool

	// MaxSessions caps the sessions kept in memory; 0 means no cap. Idle
	// sessions over the cap are dropped from memory and reload from the
	// store on their next request.
	MaxSessions int
}

type entry struct {
	mu   sync.Mutex
	eng  *ledger.Engine
	dead bool // removed from the manager; guarded by mu

	used time.Time // guarded by Manager.mu
}

// Manager serves game operations for many sessions over one Store.
type Manager struct {
	store store.Store
	sim   *simulator.Simulator
	opts  Options
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager creates a manager. Sessions are loaded lazily.
func NewManager(st store.Store, sim *simulator.Simulator, opts Options) *Manager {
	return &Manager{
		store:   st,
		sim:     sim,
		opts:    opts,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// entry returns the session's slot, creating an empty one on first use.
// The engine inside is loaded under the slot's own lock.
func (m *Manager) entry(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		e = &entry{}
		m.entries[id] = e
		metrics.ActiveSessions.Inc()
		m.evictIdle(id)
	}
	e.used = m.now()
	return e
}

// lock returns the live slot for id with its mutex held. A slot removed
// while the caller waited for it is skipped in favour of a fresh one.
func (m *Manager) lock(id string) *entry {
	for {
		e := m.entry(id)
		e.mu.Lock()
		if !e.dead {
			return e
		}
		e.mu.Unlock()
	}
}

// evictIdle drops the least recently used session other than keep when
// the manager is over its cap. Busy sessions are never evicted, so the cap
// is soft. Caller holds m.mu.
func (m *Manager) evictIdle(keep string) {
	if m.opts.MaxSessions <= 0 || len(m.entries) <= m.opts.MaxSessions {
		return
	}
	var oldest string
	var victim *entry
	for id, e := range m.entries {
		if id == keep {
			continue
		}
		if victim == nil || e.used.Before(victim.used) {
			oldest, victim = id, e
		}
	}
	if victim == nil || !victim.mu.TryLock() {
		return
	}
	victim.dead = true
	delete(m.entries, oldest)
	victim.mu.Unlock()
	metrics.ActiveSessions.Dec()
	slog.Debug("session evicted from memory", "session", oldest)
}

// drop removes e from the manager. Caller holds e.mu.
func (m *Manager) drop(id string, e *entry) {
	e.dead = true

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[id] == e {
		delete(m.entries, id)
		metrics.ActiveSessions.Dec()
	}
}

// load makes sure e.eng is ready. Caller holds e.mu.
func (m *Manager) load(ctx context.Context, id string, e *entry) error {
	if e.eng != nil {
		return nil
	}

	state, err := m.store.LoadState(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return gameerr.Storage("load state", err)
	}
	var series *simulator.Series
	if err == nil {
		series, err = m.store.LoadSeries(ctx, id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return gameerr.Storage("load series", err)
		}
	}

	if state != nil && series != nil {
		eng, err := ledger.Load(m.sim, m.opts.Ledger, *state, series)
		if err == nil {
			e.eng = eng
			slog.Info("session loaded", "session", id, "day", state.Day)
			return nil
		}
		slog.Warn("saved session is invalid, starting a new game", "session", id, "err", err)
	}

	seed := m.seed(nil)
	eng, err := ledger.New(m.sim, m.opts.Ledger, seed)
	if err != nil {
		return err
	}
	if err := m.save(ctx, id, eng, true); err != nil {
		return err
	}
	e.eng = eng
	metrics.Resets.Inc()
	slog.Info("session created", "session", id, "seed", seed)
	return nil
}

func (m *Manager) seed(requested *int64) int64 {
	switch {
	case requested != nil:
		return *requested
	case m.opts.RandomSeed:
		return m.now().UnixNano()
	default:
		return m.opts.Seed
	}
}

// save persists the engine; withSeries also rewrites the market history.
func (m *Manager) save(ctx context.Context, id string, eng *ledger.Engine, withSeries bool) error {
	if withSeries {
		if err := m.store.SaveSeries(ctx, id, eng.Series()); err != nil {
			return gameerr.Storage("save series", err)
		}
	}
	if err := m.store.SaveState(ctx, id, eng.State()); err != nil {
		return gameerr.Storage("save state", err)
	}
	return nil
}

// do runs fn against the loaded engine under the session lock.
func (m *Manager) do(ctx context.Context, id string, fn func(*ledger.Engine) error) error {
	e := m.lock(id)
	defer e.mu.Unlock()

	if err := m.load(ctx, id, e); err != nil {
		return err
	}
	return fn(e.eng)
}

// mutate runs op and saves the result. If the save fails the engine is put
// back to its state before op.
func (m *Manager) mutate(ctx context.Context, id string, withSeries bool, op func(*ledger.Engine) error) error {
	return m.do(ctx, id, func(eng *ledger.Engine) error {
		prevState, prevSeries := eng.State(), eng.Series()

		if err := op(eng); err != nil {
			return err
		}
		if err := m.save(ctx, id, eng, withSeries); err != nil {
			if rerr := eng.Restore(prevState, prevSeries); rerr != nil {
				slog.Error("rollback failed", "session", id, "err", rerr)
			}
			if withSeries {
				// The series may have been written before the state failed.
				if serr := m.store.SaveSeries(ctx, id, prevSeries); serr != nil {
					slog.Error("series rollback failed", "session", id, "err", serr)
				}
			}
			slog.Error("save failed, rolled back", "session", id, "err", err)
			return err
		}
		return nil
	})
}

// Snapshot returns the current read model of a session.
func (m *Manager) Snapshot(ctx context.Context, id string) (model.Snapshot, error) {
	var snap model.Snapshot
	err := m.do(ctx, id, func(eng *ledger.Engine) error {
		snap = eng.Snapshot()
		return nil
	})
	return snap, err
}

// Series returns the session's market history.
func (m *Manager) Series(ctx context.Context, id string) (*simulator.Series, error) {
	var series *simulator.Series
	err := m.do(ctx, id, func(eng *ledger.Engine) error {
		series = eng.Series()
		return nil
	})
	return series, err
}

// PlaceOrder fills an order at today's close and saves the ledger.
func (m *Manager) PlaceOrder(ctx context.Context, id, product string, side model.Side, qty int64) (model.Trade, error) {
	start := time.Now()
	var trade model.Trade
	err := m.mutate(ctx, id, false, func(eng *ledger.Engine) error {
		var err error
		trade, err = eng.PlaceOrder(product, side, qty)
		return err
	})
	metrics.OrderLatency.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())

	if err != nil {
		code := string(gameerr.CodeOf(err))
		metrics.OrdersTotal.WithLabelValues(string(side), code).Inc()
		metrics.Rejections.WithLabelValues("order", code).Inc()
		slog.Info("order rejected",
			"session", id,
			"product", product,
			"side", side,
			"qty", qty,
			"code", code,
			"err", err,
		)
		return model.Trade{}, err
	}

	metrics.OrdersTotal.WithLabelValues(string(side), "filled").Inc()
	metrics.TradedVolume.WithLabelValues(product, string(side)).Add(float64(qty))
	slog.Info("order filled",
		"session", id,
		"day", trade.Day,
		"product", product,
		"side", side,
		"qty", qty,
		"price", trade.Price.String(),
		"amount", trade.Amount.String(),
	)
	return trade, nil
}

// AdvanceDay moves the session to the next day and returns the new day
// with its calendar entry.
func (m *Manager) AdvanceDay(ctx context.Context, id string) (int, model.EventDescriptor, error) {
	var day int
	var event model.EventDescriptor
	err := m.mutate(ctx, id, false, func(eng *ledger.Engine) error {
		var err error
		day, err = eng.AdvanceDay()
		if err == nil {
			event = eng.Event(day)
		}
		return err
	})
	if err != nil {
		metrics.Rejections.WithLabelValues("next_day", string(gameerr.CodeOf(err))).Inc()
		return 0, model.EventDescriptor{}, err
	}

	metrics.DayAdvances.Inc()
	slog.Info("day advanced", "session", id, "day", day, "event", event.Code)
	return day, event, nil
}

// Reset starts a new game for the session. A nil seed uses the configured
// default. It returns the seed used.
func (m *Manager) Reset(ctx context.Context, id string, seed *int64) (int64, error) {
	used := m.seed(seed)
	err := m.mutate(ctx, id, true, func(eng *ledger.Engine) error {
		return eng.Reset(used)
	})
	if err != nil {
		metrics.Rejections.WithLabelValues("reset", string(gameerr.CodeOf(err))).Inc()
		return 0, err
	}

	metrics.Resets.Inc()
	slog.Info("game reset", "session", id, "seed", used)
	return used, nil
}

// Active returns the number of sessions held in memory.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// CheckOrder validates the product and side of an order without touching
// any session.
func (m *Manager) CheckOrder(product string, side model.Side) error {
	return ledger.CheckOrder(m.sim.Registry(), product, side)
}

// NewSession creates a session under a fresh random id and starts its game.
func (m *Manager) NewSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	e := m.lock(id)
	defer e.mu.Unlock()

	if err := m.load(ctx, id, e); err != nil {
		m.drop(id, e)
		return "", err
	}
	return id, nil
}

// Delete drops a session from memory and storage. It waits for any
// operation in flight on the session, and requests queued behind it start
// a new game.
func (m *Manager) Delete(ctx context.Context, id string) error {
	e := m.lock(id)
	defer e.mu.Unlock()

	if err := m.store.DeleteSession(ctx, id); err != nil {
		return gameerr.Storage("delete session", err)
	}
	m.drop(id, e)
	slog.Info("session deleted", "session", id)
	return nil
}
