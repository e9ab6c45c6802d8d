// Package valuation marks holdings to market. It is stateless.
package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/maejeom/market-game/internal/model"
)

// PortfolioValue computes Σ holdings[p] * price[p] over prices, in the order
// the prices are given. Products held but missing from prices contribute
// nothing.
func PortfolioValue(holdings map[string]int64, prices []model.ProductPrice) decimal.Decimal {
	total := decimal.Zero
	for _, pp := range prices {
		qty := holdings[pp.Product]
		if qty == 0 {
			continue
		}
		total = total.Add(pp.Price.Mul(decimal.NewFromInt(qty)))
	}
	return total
}

// Total is cash plus the marked-to-market portfolio.
func Total(cash, portfolio decimal.Decimal) decimal.Decimal {
	return cash.Add(portfolio)
}

// Value returns the portfolio value and total net worth together.
func Value(cash decimal.Decimal, holdings map[string]int64, prices []model.ProductPrice) (portfolio, total decimal.Decimal) {
	portfolio = PortfolioValue(holdings, prices)
	return portfolio, Total(cash, portfolio)
}
