// Package api provides the HTTP handlers for playing the game: reading the
// session snapshot, placing orders, advancing the day, resetting, exporting
// the simulated market and streaming game events over WebSocket.
//
// All monetary values use shopspring/decimal, never float64.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/maejeom/market-game/internal/export"
	"github.com/maejeom/market-game/internal/gameerr"
	"github.com/maejeom/market-game/internal/model"
	"github.com/maejeom/market-game/internal/session"
)

const (
	// SessionHeader selects the session a request plays in.
	SessionHeader = "X-Session-ID"
	// SessionParam is the query parameter alternative to SessionHeader.
	SessionParam = "session"

	maxSessionIDLen = 128
)

// Service serves game requests on top of a session manager.
type Service struct {
	sessions *session.Manager
	hub      *Hub // optional WebSocket hub for real-time events
}

// NewService creates a new game service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(sessions *session.Manager, hub *Hub) *Service {
	return &Service{sessions: sessions, hub: hub}
}

// Mount registers the game routes on r.
func (s *Service) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.GetState)
		r.Post("/order", s.PlaceOrder)
		r.Post("/next-day", s.NextDay)
		r.Post("/reset-game", s.ResetGame)
		r.Post("/sessions", s.CreateSession)
		r.Delete("/sessions/{sessionID}", s.DeleteSession)
		if s.hub != nil {
			r.Get("/ws", s.StreamEvents)
		}
	})
	r.Get("/download/simulation", s.DownloadSimulation)
}

// --- Request/Response types ---

// OrderRequest is the JSON body for POST /api/order.
type OrderRequest struct {
	Product string          `json:"product"`
	Side    string          `json:"side"` // "buy" or "sell"
	Qty     decimal.Decimal `json:"qty"`  // whole units
}

// ResetRequest is the optional JSON body for POST /api/reset-game.
type ResetRequest struct {
	Seed *int64 `json:"seed,omitempty"`
}

// Result is the envelope of every mutating endpoint. Msg and Code are set
// only when OK is false.
type Result struct {
	OK      bool                   `json:"ok"`
	Msg     string                 `json:"msg,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Trade   *model.Trade           `json:"trade,omitempty"`
	Day     int                    `json:"day,omitempty"`
	Event   *model.EventDescriptor `json:"event,omitempty"`
	Seed    *int64                 `json:"seed,omitempty"`
	Session string                 `json:"session,omitempty"`
}

// --- HTTP Handlers ---

// GetState handles GET /api/state
func (s *Service) GetState(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	snap, err := s.sessions.Snapshot(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PlaceOrder handles POST /api/order
// Fills at today's closing price or explains why not.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, gameerr.New(gameerr.CodeValidation, "invalid request body"))
		return
	}

	product := strings.TrimSpace(req.Product)
	side := model.Side(strings.ToLower(strings.TrimSpace(req.Side)))

	// The engine takes whole units; a qty that does not fit is reported
	// after the product and side checks, as the engine would.
	qty, err := wholeUnits(req.Qty)
	if err != nil {
		if cerr := s.sessions.CheckOrder(product, side); cerr != nil {
			err = cerr
		}
		writeFailure(w, err)
		return
	}

	trade, err := s.sessions.PlaceOrder(r.Context(), id, product, side, qty)
	if err != nil {
		writeFailure(w, err)
		return
	}

	if s.hub != nil {
		s.hub.Publish(Event{Type: EventOrderFilled, Session: id, Day: trade.Day, Trade: &trade})
	}
	writeJSON(w, http.StatusOK, Result{OK: true, Trade: &trade})
}

// NextDay handles POST /api/next-day
func (s *Service) NextDay(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	day, event, err := s.sessions.AdvanceDay(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}

	if s.hub != nil {
		s.hub.Publish(Event{Type: EventDayAdvanced, Session: id, Day: day, Event: &event})
	}
	writeJSON(w, http.StatusOK, Result{OK: true, Day: day, Event: &event})
}

// ResetGame handles POST /api/reset-game
// An empty body resets with the configured seed.
func (s *Service) ResetGame(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeFailure(w, gameerr.New(gameerr.CodeValidation, "invalid request body"))
		return
	}

	seed, err := s.sessions.Reset(r.Context(), id, req.Seed)
	if err != nil {
		writeFailure(w, err)
		return
	}

	if s.hub != nil {
		s.hub.Publish(Event{Type: EventGameReset, Session: id, Day: 1, Seed: &seed})
	}
	writeJSON(w, http.StatusOK, Result{OK: true, Day: 1, Seed: &seed})
}

// CreateSession handles POST /api/sessions
func (s *Service) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessions.NewSession(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Result{OK: true, Session: id})
}

// DeleteSession handles DELETE /api/sessions/{sessionID}
func (s *Service) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Result{OK: true, Session: id})
}

// DownloadSimulation handles GET /download/simulation
// Streams the session's full simulated market as CSV.
func (s *Service) DownloadSimulation(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	series, err := s.sessions.Series(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(series)+`"`)
	if err := export.WriteCSV(w, series); err != nil {
		slog.Error("csv export failed", "session", id, "err", err)
	}
}

// StreamEvents handles GET /api/ws
func (s *Service) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	s.hub.serveWS(w, r, id)
}

// wholeUnits converts an order quantity to a positive unit count.
func wholeUnits(qty decimal.Decimal) (int64, error) {
	switch {
	case !qty.IsInteger():
		return 0, gameerr.New(gameerr.CodeValidation, "quantity must be a whole number")
	case !qty.IsPositive():
		return 0, gameerr.New(gameerr.CodeValidation, "quantity must be at least 1")
	case qty.GreaterThan(decimal.NewFromInt(math.MaxInt64)):
		return 0, gameerr.New(gameerr.CodeValidation, "quantity is too large")
	}
	return qty.IntPart(), nil
}

// sessionID picks the session from the header, then the query string, then
// the default. It writes a 400 and returns false for unusable ids.
func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(SessionHeader))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get(SessionParam))
	}
	if id == "" {
		return session.DefaultID, true
	}
	if len(id) > maxSessionIDLen {
		writeFailure(w, gameerr.New(gameerr.CodeValidation, "session id is too long"))
		return "", false
	}
	return id, true
}

// statusFor maps an error to its HTTP status: business failures are the
// player's to fix, everything else is ours.
func statusFor(err error) int {
	if gameerr.IsBusiness(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeFailure writes a Result for err. Non-business errors are logged and
// their details kept out of the response.
func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	res := Result{OK: false, Code: string(gameerr.CodeOf(err)), Msg: gameerr.MessageOf(err)}

	switch {
	case errors.Is(err, gameerr.ErrStorage):
		slog.Error("storage failure", "err", err)
		res.Msg = "the game could not be saved, please try again"
	case status == http.StatusInternalServerError:
		slog.Error("request failed", "err", err)
		if res.Code == "" {
			res.Msg = "internal error"
		}
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
