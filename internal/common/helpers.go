package common

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SOLDecimals is the number of lamport digits in one SOL.
const SOLDecimals = 9

// LamportsToSOL formats lamports as a SOL decimal string without float precision loss.
func LamportsToSOL(lamports uint64) string {
	return formatWithDecimals(lamports, SOLDecimals)
}

// SOLToLamports parses a SOL decimal string into lamports without float precision loss.
// Digits past the ninth decimal are rejected rather than truncated.
func SOLToLamports(sol string) (uint64, error) {
	return parseWithDecimals(sol, SOLDecimals)
}

// formatWithDecimals inserts the decimal point into value.
// Example: formatWithDecimals(24981836, 9) = "0.024981836"
func formatWithDecimals(value uint64, decimals int) string {
	s := strconv.FormatUint(value, 10)
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	pos := len(s) - decimals
	return s[:pos] + "." + s[pos:]
}

// parseWithDecimals removes the decimal point from s, scaling by 10^decimals.
// Example: parseWithDecimals("0.024981836", 9) = 24981836
func parseWithDecimals(s string, decimals int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty amount")
	}

	whole, frac, hasPoint := strings.Cut(s, ".")
	if hasPoint && strings.Contains(frac, ".") {
		return 0, fmt.Errorf("invalid decimal format %q", s)
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return 0, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	f, err := strconv.ParseUint(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	scale := uint64(math.Pow10(decimals))
	if w > (math.MaxUint64-f)/scale {
		return 0, fmt.Errorf("amount %q overflows", s)
	}
	return w*scale + f, nil
}
