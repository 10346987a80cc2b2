package listing

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// PriceUnit says whether a source reports prices in major or minor units.
type PriceUnit string

// Price units.
const (
	UnitMajor PriceUnit = "major"
	UnitMinor PriceUnit = "minor"
)

var amountPattern = regexp.MustCompile(`\d[\d.,]*`)

// ParseMinorUnits extracts the first amount from a price string such as
// "$1,234.56", "1.234,56 €" or "US $12.00 to $15.00" and returns it in minor
// units. When a string carries both separators the last one is the decimal
// mark. A lone comma followed by exactly two digits, or a lone dot, is a
// decimal mark; repeated separators group thousands. Dot-grouped amounts
// with a single group ("12.345 €") therefore read as decimals (12.35);
// sources that format prices that way should report minor units or use a
// comma decimal ("12.345,00 €").
func ParseMinorUnits(text string, unit PriceUnit) (int64, error) {
	raw := amountPattern.FindString(text)
	if raw == "" {
		return 0, eris.Errorf("listing: no amount in %q", text)
	}
	raw = strings.TrimRight(raw, ".,")

	intPart, frac := raw, ""
	lastDot, lastComma := strings.LastIndexByte(raw, '.'), strings.LastIndexByte(raw, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		sep := max(lastDot, lastComma)
		intPart, frac = raw[:sep], raw[sep+1:]
	case lastComma >= 0 && len(raw)-lastComma-1 == 2 && strings.Count(raw, ",") == 1:
		intPart, frac = raw[:lastComma], raw[lastComma+1:]
	case lastDot >= 0 && strings.Count(raw, ".") == 1:
		intPart, frac = raw[:lastDot], raw[lastDot+1:]
	}
	intPart = strings.NewReplacer(",", "", ".", "").Replace(intPart)

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "listing: parse amount %q", text)
	}
	if unit == UnitMinor {
		return whole, nil
	}

	cents := int64(0)
	switch {
	case frac == "":
	case len(frac) == 1:
		cents = int64(frac[0]-'0') * 10
	default:
		f, err := strconv.ParseFloat("0."+frac, 64)
		if err != nil {
			return 0, eris.Wrapf(err, "listing: parse fraction %q", text)
		}
		cents = int64(math.Round(f * 100))
	}
	return whole*100 + cents, nil
}

// MajorToMinor converts a numeric major-unit amount to minor units.
func MajorToMinor(v float64) int64 {
	return int64(math.Round(v * 100))
}
