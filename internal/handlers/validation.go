package handlers

import (
	"strconv"

	"payledger/internal/money"

	"github.com/shopspring/decimal"
)

func parseAmount(raw string) (decimal.Decimal, error) {
	return money.ParsePositive(raw)
}

func parseOptionalAmount(raw *string) (*decimal.Decimal, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	amount, err := money.ParsePositive(*raw)
	if err != nil {
		return nil, err
	}
	return &amount, nil
}

// parseBoundedInt rejects out-of-range values instead of silently clamping.
func parseBoundedInt(raw string, fallback, min, max int) (int, bool) {
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < min || value > max {
		return 0, false
	}
	return value, true
}
