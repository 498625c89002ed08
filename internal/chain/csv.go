package chain

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

// csvRow is one contract in a flat chain export. Numeric columns are read as
// text so empty cells can be told apart from zeros.
type csvRow struct {
	OptionType   string `csv:"option_type"`
	Symbol       string `csv:"option_symbol"`
	Strike       string `csv:"strike"`
	Bid          string `csv:"bid"`
	Ask          string `csv:"ask"`
	Volume       string `csv:"volume"`
	OpenInterest string `csv:"open_interest"`
	Delta        string `csv:"delta"`
	Gamma        string `csv:"gamma"`
	Theta        string `csv:"theta"`
	Vega         string `csv:"vega"`
	Rho          string `csv:"rho"`
	IV           string `csv:"iv"`
	Expiration   string `csv:"expiration"`
}

// LoadCSV reads a chain export with one contract per row. Rows keep their
// file order within each side. The expiration is taken from the first row
// that carries one; rows disagreeing with it are rejected.
func LoadCSV(r io.Reader, symbol string, spot float64) (*models.Chain, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, malformed("symbol", "missing")
	}
	if !(spot > 0) {
		return nil, malformed("spot_price", "must be positive, got %v", spot)
	}

	var rows []*csvRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to read chain csv: %w", err)
	}

	c := &models.Chain{
		Symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
		SpotPrice: spot,
		Calls:     []models.Quote{},
		Puts:      []models.Quote{},
	}

	for i, row := range rows {
		field := fmt.Sprintf("row[%d]", i+1)

		kind, err := models.ParseOptionType(row.OptionType)
		if err != nil {
			return nil, malformed(field+".option_type", "%v", err)
		}

		q, err := row.quote(field)
		if err != nil {
			return nil, err
		}

		if row.Expiration != "" {
			exp, err := parseExpiration(row.Expiration)
			if err != nil {
				return nil, malformed(field+".expiration", "%v", err)
			}
			switch {
			case c.Expiration.IsZero():
				c.Expiration = exp
			case !exp.Equal(c.Expiration):
				return nil, malformed(field+".expiration", "chain mixes expirations %s and %s",
					c.Expiration.Format("2006-01-02"), exp.Format("2006-01-02"))
			}
		}

		if kind == models.OptionTypePut {
			c.Puts = append(c.Puts, q)
		} else {
			c.Calls = append(c.Calls, q)
		}
	}
	return c, nil
}

func (row *csvRow) quote(field string) (models.Quote, error) {
	var q models.Quote

	strike, ok, err := parseCell(row.Strike)
	if err != nil {
		return q, malformed(field+".strike", "%v", err)
	}
	if !ok {
		return q, malformed(field+".strike", "missing")
	}
	q.Strike = strike
	q.Symbol = strings.TrimSpace(row.Symbol)

	cells := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"bid", row.Bid, &q.Bid},
		{"ask", row.Ask, &q.Ask},
	}
	for _, c := range cells {
		v, _, err := parseCell(c.raw)
		if err != nil {
			return q, malformed(field+"."+c.name, "%v", err)
		}
		*c.dst = v
	}

	vol, _, err := parseCell(row.Volume)
	if err != nil {
		return q, malformed(field+".volume", "%v", err)
	}
	q.Volume = int64(vol)
	oi, _, err := parseCell(row.OpenInterest)
	if err != nil {
		return q, malformed(field+".open_interest", "%v", err)
	}
	q.OpenInterest = int64(oi)

	if iv, ok, err := parseCell(row.IV); err != nil {
		return q, malformed(field+".iv", "%v", err)
	} else if ok {
		q.ImpliedVolatility = &iv
	}

	delta, ok, err := parseCell(row.Delta)
	if err != nil {
		return q, malformed(field+".delta", "%v", err)
	}
	if !ok {
		return q, nil
	}
	g := &models.Greeks{Delta: delta}
	for _, c := range []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"gamma", row.Gamma, &g.Gamma},
		{"theta", row.Theta, &g.Theta},
		{"vega", row.Vega, &g.Vega},
		{"rho", row.Rho, &g.Rho},
	} {
		v, _, err := parseCell(c.raw)
		if err != nil {
			return q, malformed(field+"."+c.name, "%v", err)
		}
		*c.dst = v
	}
	q.Greeks = g
	return q, nil
}

// parseCell parses a numeric cell; ok is false for an empty cell.
func parseCell(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("not a finite number: %q", s)
	}
	return f, true, nil
}

// ExpirationFromFileName is a helper for exports named like SPY_2025-02-14.csv.
func ExpirationFromFileName(name string) (time.Time, bool) {
	base := name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".csv")
	if i := strings.LastIndex(base, "_"); i >= 0 {
		if t, err := time.Parse("2006-01-02", base[i+1:]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
