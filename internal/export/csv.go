// Package export writes a simulated market history as CSV.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/maejeom/market-game/internal/simulator"
)

// BOM makes spreadsheet tools read the file as UTF-8.
const BOM = "\ufeff"

// Header is the column order of every export.
var Header = []string{
	"day", "date", "event", "temp", "humidity", "product",
	"price_start", "price_end", "units_sold", "revenue",
}

// ContentType is the media type served for downloads.
const ContentType = "text/csv; charset=utf-8"

// Filename is the suggested download name for a series.
func Filename(series *simulator.Series) string {
	return "market_simulation_seed" + strconv.FormatInt(series.Seed(), 10) + ".csv"
}

// WriteCSV writes series to w: a BOM, the header, then one row per record
// in series order. Prices keep their full stored precision.
func WriteCSV(w io.Writer, series *simulator.Series) error {
	if _, err := io.WriteString(w, BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range series.Records() {
		row := []string{
			strconv.Itoa(r.Day),
			r.Date,
			r.EventLabel,
			strconv.Itoa(r.Temperature),
			strconv.Itoa(r.Humidity),
			r.Product,
			r.PriceStart.String(),
			r.PriceEnd.String(),
			strconv.FormatInt(r.UnitsSold, 10),
			r.Revenue.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
