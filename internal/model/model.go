// Package model defines the core domain types shared across the game.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is buy or sell.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Product is a tradable item with its starting price and daily sales volume.
// Products are immutable once registered.
type Product struct {
	ID              string          `json:"id"`
	BasePrice       decimal.Decimal `json:"base_price"`
	BaseSalesVolume int64           `json:"base_sales"`
}

// MarketRecord is one simulated (day, product) row.
// Revenue is always UnitsSold * PriceStart.
type MarketRecord struct {
	Day         int             `json:"day" db:"day"`
	Date        string          `json:"date" db:"date"` // YYYY-MM-DD
	EventLabel  string          `json:"event" db:"event"`
	Temperature int             `json:"temp" db:"temp"`
	Humidity    int             `json:"humidity" db:"humidity"`
	Product     string          `json:"product" db:"product"`
	PriceStart  decimal.Decimal `json:"price_start" db:"price_start"`
	PriceEnd    decimal.Decimal `json:"price_end" db:"price_end"` // closing price
	UnitsSold   int64           `json:"units_sold" db:"units_sold"`
	Revenue     decimal.Decimal `json:"revenue" db:"revenue"`
}

// Trade is an immutable record of a filled order.
// Once appended to a ledger's history it is never modified or removed.
type Trade struct {
	Day     int             `json:"day" db:"day"`
	Product string          `json:"product" db:"product"`
	Side    Side            `json:"side" db:"side"`
	Qty     int64           `json:"qty" db:"qty"`
	Price   decimal.Decimal `json:"price" db:"price"`
	Amount  decimal.Decimal `json:"amount" db:"amount"` // price * qty
}

// LedgerState is the mutable part of a session: the day pointer, cash,
// holdings and the append-only trade history.
type LedgerState struct {
	Day      int              `json:"day"`
	Cash     decimal.Decimal  `json:"cash"`
	Holdings map[string]int64 `json:"holdings"`
	History  []Trade          `json:"history"`
}

// Clone returns a deep copy so callers never share holdings or history.
func (s LedgerState) Clone() LedgerState {
	out := LedgerState{
		Day:      s.Day,
		Cash:     s.Cash,
		Holdings: make(map[string]int64, len(s.Holdings)),
		History:  make([]Trade, len(s.History)),
	}
	for k, v := range s.Holdings {
		out.Holdings[k] = v
	}
	copy(out.History, s.History)
	return out
}

// EventDescriptor is the descriptive calendar entry for a day.
type EventDescriptor struct {
	Code  string `json:"code" yaml:"code"`
	Title string `json:"title" yaml:"title"`
	Desc  string `json:"desc" yaml:"desc"`
}

// ProductPrice is one closing price in a snapshot.
type ProductPrice struct {
	Product string          `json:"product"`
	Price   decimal.Decimal `json:"price"`
}

// Snapshot is the read model of a session for one day.
type Snapshot struct {
	Day            int              `json:"day"`
	Cash           decimal.Decimal  `json:"cash"`
	Holdings       map[string]int64 `json:"holdings"`
	PortfolioValue decimal.Decimal  `json:"portfolio_value"` // Σ holdings * close
	TotalValue     decimal.Decimal  `json:"total_value"`     // cash + portfolio
	TodayPrices    []ProductPrice   `json:"today_prices"`
	History        []Trade          `json:"history"`
	MaxDay         int              `json:"max_day"`
	Event          EventDescriptor  `json:"event"`
}
