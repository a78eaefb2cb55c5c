package models

import (
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeRecord is one buy or sell event, produced by upstream parsing.
// It is read-only after construction; the reconciliation engine never
// mutates it.
type TradeRecord struct {
	Date       string          `json:"date"` // ISO calendar date, YYYY-MM-DD
	Side       Side            `json:"side"`
	Name       string          `json:"name"`
	Code       string          `json:"code"` // empty for domestic-only instruments
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"` // in trade currency
	Gross      decimal.Decimal `json:"gross"`
	Currency   string          `json:"currency"`
	Rate       decimal.Decimal `json:"rate"` // exchange rate to home currency, 1 for home trades
	GrossHome  decimal.Decimal `json:"gross_home"`
	Fee        decimal.Decimal `json:"fee"`
	Tax        decimal.Decimal `json:"tax"`
	Profit     decimal.Decimal `json:"profit"`      // realized, trade currency
	ProfitHome decimal.Decimal `json:"profit_home"` // realized, home currency
	ProfitRate decimal.Decimal `json:"profit_rate"` // percentage: 14.68 means 14.68%
	Account    string          `json:"account"`
}

// DuplicateKey is the canonical identity of a trade, comparable across
// freshly parsed records and rows re-read from a sheet.
type DuplicateKey struct {
	Date     string
	Side     string
	Name     string
	Quantity string
	Price    string
}

// Key derives the record's duplicate key. Quantity and price use
// decimal.String, which renders integral values without a decimal point,
// matching the normalization applied to grid cells.
func (t *TradeRecord) Key() DuplicateKey {
	return DuplicateKey{
		Date:     t.Date,
		Side:     string(t.Side),
		Name:     t.Name,
		Quantity: t.Quantity.String(),
		Price:    t.Price.String(),
	}
}

// DomesticRow projects the record onto the 9-column domestic layout.
// The profit rate is stored as a fraction so the sheet's percent format
// renders it correctly (14.68 -> 0.1468).
func (t *TradeRecord) DomesticRow() []interface{} {
	return []interface{}{
		t.Date,
		string(t.Side),
		t.Name,
		t.Quantity.InexactFloat64(),
		t.Price.InexactFloat64(),
		t.Gross.InexactFloat64(),
		t.Fee.InexactFloat64(),
		t.Profit.InexactFloat64(),
		t.ProfitRate.Shift(-2).InexactFloat64(),
	}
}

// ForeignRow projects the record onto the 15-column foreign layout.
func (t *TradeRecord) ForeignRow() []interface{} {
	return []interface{}{
		t.Date,
		string(t.Side),
		t.Currency,
		t.Code,
		t.Name,
		t.Quantity.InexactFloat64(),
		t.Price.InexactFloat64(),
		t.Gross.InexactFloat64(),
		t.Rate.InexactFloat64(),
		t.GrossHome.InexactFloat64(),
		t.Fee.InexactFloat64(),
		t.Tax.InexactFloat64(),
		t.Profit.InexactFloat64(),
		t.ProfitHome.InexactFloat64(),
		t.ProfitRate.Shift(-2).InexactFloat64(),
	}
}
