package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrAmountPrecision = errors.New("amount has more precision than the currency allows")

// currencies whose minor unit equals the major unit
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {},
	"MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {},
	"XOF": {}, "XPF": {},
}

var threeDecimalCurrencies = map[string]struct{}{
	"BHD": {}, "JOD": {}, "KWD": {}, "OMR": {}, "TND": {},
}

// MinorUnitExponent returns the number of decimal places in currency's minor unit.
func MinorUnitExponent(currency string) int32 {
	c := strings.ToUpper(currency)
	if _, ok := zeroDecimalCurrencies[c]; ok {
		return 0
	}
	if _, ok := threeDecimalCurrencies[c]; ok {
		return 3
	}
	return 2
}

// ToMinorUnits converts a major-unit amount to integer minor units.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	scaled := amount.Shift(MinorUnitExponent(currency))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s %s", ErrAmountPrecision, amount, strings.ToUpper(currency))
	}
	if !scaled.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return scaled.IntPart(), nil
}

func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -MinorUnitExponent(currency))
}
