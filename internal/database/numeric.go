package database

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// NumericToDecimal converts a pgtype.Numeric; NULL and unparsable values read as zero.
func NumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// MoneyToNumeric rounds to the two decimal places money columns store.
func MoneyToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

// QuantityPlaces is the scale of every stock quantity column.
const QuantityPlaces = 3

// QuantityToNumeric rounds to the three decimal places stock columns store.
func QuantityToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(QuantityPlaces))
	return n
}

// QuantityFits reports whether d needs no rounding to be stored as a quantity.
func QuantityFits(d decimal.Decimal) bool {
	return d.Equal(d.Round(QuantityPlaces))
}
