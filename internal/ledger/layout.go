package ledger

import (
	"fmt"

	"github.com/kenshin579/auto-trading-journal/internal/models"
)

// LayoutKind identifies one of the two recognized sheet schemas. The set
// is closed: a layout is resolved once at sheet-creation time and carried
// through every call, never re-derived from header text at write time.
type LayoutKind int

const (
	LayoutDomestic LayoutKind = iota
	LayoutForeign
)

func (k LayoutKind) String() string {
	if k == LayoutForeign {
		return "foreign"
	}
	return "domestic"
}

// ParseLayout maps the external layout name to its kind.
func ParseLayout(s string) (LayoutKind, error) {
	switch s {
	case "domestic":
		return LayoutDomestic, nil
	case "foreign":
		return LayoutForeign, nil
	}
	return LayoutDomestic, fmt.Errorf("unknown layout %q", s)
}

// ColumnFormat maps one 1-based column to a number-format pattern.
type ColumnFormat struct {
	Col     int
	Type    string // "" means NUMBER
	Pattern string
}

var domesticHeaders = []string{
	"Date", "Side", "Name", "Quantity", "Price", "Amount",
	"Fee", "Profit", "Return (%)",
}

var foreignHeaders = []string{
	"Date", "Side", "Currency", "Code", "Name", "Quantity", "Price",
	"Amount (FX)", "Rate", "Amount (KRW)", "Fee", "Tax",
	"Profit (FX)", "Profit (KRW)", "Return (%)",
}

// Home-currency and count columns share one format regardless of the
// trade currency; they are applied once over the whole inserted range.
var domesticCommonFormats = []ColumnFormat{
	{Col: 4, Pattern: "#,##0"},  // Quantity
	{Col: 5, Pattern: "#,##0"},  // Price
	{Col: 6, Pattern: "#,##0"},  // Amount
	{Col: 7, Pattern: "#,##0"},  // Fee
	{Col: 8, Pattern: "#,##0"},  // Profit
	{Col: 9, Type: "PERCENT", Pattern: "0.00%"}, // Return
}

var foreignCommonFormats = []ColumnFormat{
	{Col: 6, Pattern: "#,##0"},     // Quantity
	{Col: 9, Pattern: "#,##0.00"},  // Rate
	{Col: 10, Pattern: "#,##0"},    // Amount (KRW)
	{Col: 14, Pattern: "#,##0"},    // Profit (KRW)
	{Col: 15, Type: "PERCENT", Pattern: "0.00%"}, // Return
}

// Columns denominated in the trade currency; their pattern depends on
// the currency and is applied per contiguous same-currency row group.
var foreignFXColumns = []int{7, 8, 11, 12, 13} // Price, Amount (FX), Fee, Tax, Profit (FX)

var currencyPatterns = map[string]string{
	"USD": `"$"#,##0.00`,
	"EUR": `"€"#,##0.00`,
	"GBP": `"£"#,##0.00`,
	"JPY": `"¥"#,##0`,
	"CNY": `"¥"#,##0.00`,
	"HKD": `"HK$"#,##0.00`,
}

const defaultCurrencyPattern = "#,##0.00"

// Headers returns the layout's fixed header schema.
func (k LayoutKind) Headers() []string {
	if k == LayoutForeign {
		return foreignHeaders
	}
	return domesticHeaders
}

// ColumnCount is the declared width of the layout.
func (k LayoutKind) ColumnCount() int {
	return len(k.Headers())
}

// KeyColumns returns the 1-based positions of the duplicate-key fields
// (date, side, name, quantity, price) within the layout.
func (k LayoutKind) KeyColumns() [5]int {
	if k == LayoutForeign {
		return [5]int{1, 2, 5, 6, 7}
	}
	return [5]int{1, 2, 3, 4, 5}
}

// CommonFormats returns the column formats applied once over the whole
// inserted range.
func (k LayoutKind) CommonFormats() []ColumnFormat {
	if k == LayoutForeign {
		return foreignCommonFormats
	}
	return domesticCommonFormats
}

// FXColumns returns the trade-currency-denominated columns, empty for
// the domestic layout.
func (k LayoutKind) FXColumns() []int {
	if k == LayoutForeign {
		return foreignFXColumns
	}
	return nil
}

// Row projects a record onto the layout.
func (k LayoutKind) Row(t *models.TradeRecord) []interface{} {
	if k == LayoutForeign {
		return t.ForeignRow()
	}
	return t.DomesticRow()
}

// CurrencyPattern returns the number-format pattern for FX columns of
// rows denominated in the given currency.
func CurrencyPattern(currency string) string {
	if p, ok := currencyPatterns[currency]; ok {
		return p
	}
	return defaultCurrencyPattern
}

// DetectLayout classifies a header row read back from a sheet. Header
// matching is only legitimate at cold-read time; sheets whose headers
// match neither schema (dashboards, scratch sheets) report ok=false and
// are skipped.
func DetectLayout(headers []string) (LayoutKind, bool) {
	if matchHeaders(headers, domesticHeaders) {
		return LayoutDomestic, true
	}
	if matchHeaders(headers, foreignHeaders) {
		return LayoutForeign, true
	}
	return LayoutDomestic, false
}

func matchHeaders(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
