package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatMinor(t *testing.T) {
	if got := FormatMinor(585000); got != "5850.00" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := FormatMinor(-5); got != "-0.05" {
		t.Fatalf("unexpected format: %s", got)
	}
}

func TestPercentOf(t *testing.T) {
	if got := PercentOf(6000, decimal.RequireFromString("2.5")); got != 150 {
		t.Fatalf("expected 150, got %d", got)
	}
	if got := PercentOf(5, decimal.RequireFromString("10")); got != 0 {
		t.Fatalf("expected banker's rounding to 0, got %d", got)
	}
	if got := PercentOf(15, decimal.RequireFromString("10")); got != 2 {
		t.Fatalf("expected banker's rounding to 2, got %d", got)
	}
	if got := PercentOf(6000, decimal.Zero); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
