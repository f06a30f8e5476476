package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/zhigong-tech/conquality/internal/quality/apperr"
	"github.com/zhigong-tech/conquality/internal/quality/entity"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestResolveSavingAmountAuto(t *testing.T) {
	// 120×520 − 100×480 = 14400.00
	amount, err := ResolveSavingAmount(SavingInput{
		CalculationMode: entity.CalculationModeAuto,
		QuantityBefore:  dec("120"),
		QuantityAfter:   dec("100"),
		UnitPriceBefore: dec("520"),
		UnitPriceAfter:  dec("480"),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if amount.StringFixed(2) != "14400.00" {
		t.Errorf("Expected 14400.00, got %s", amount.StringFixed(2))
	}
}

func TestResolveSavingAmountAutoRounding(t *testing.T) {
	// 3.333×1.111 − 1×1 = 2.702963 → 2.70
	amount, err := ResolveSavingAmount(SavingInput{
		CalculationMode: entity.CalculationModeAuto,
		QuantityBefore:  dec("3.333"),
		QuantityAfter:   dec("1"),
		UnitPriceBefore: dec("1.111"),
		UnitPriceAfter:  dec("1"),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if amount.StringFixed(2) != "2.70" {
		t.Errorf("Expected 2.70, got %s", amount.StringFixed(2))
	}
}

func TestResolveSavingAmountAutoNegative(t *testing.T) {
	// 优化后反而更贵，允许负值
	amount, err := ResolveSavingAmount(SavingInput{
		CalculationMode: entity.CalculationModeAuto,
		QuantityBefore:  dec("10"),
		QuantityAfter:   dec("10"),
		UnitPriceBefore: dec("100"),
		UnitPriceAfter:  dec("120"),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if amount.StringFixed(2) != "-200.00" {
		t.Errorf("Expected -200.00, got %s", amount.StringFixed(2))
	}
}

func TestResolveSavingAmountAutoMissingFields(t *testing.T) {
	_, err := ResolveSavingAmount(SavingInput{
		CalculationMode: entity.CalculationModeAuto,
		QuantityBefore:  dec("120"),
		UnitPriceBefore: dec("520"),
	})
	if err == nil {
		t.Fatal("Expected error for missing fields")
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("Expected apperr.Error, got %T", err)
	}
	if appErr.Kind != apperr.KindValidation {
		t.Errorf("Expected validation error, got %v", appErr.Kind)
	}
	if _, ok := appErr.Fields["quantity_after"]; !ok {
		t.Errorf("Expected quantity_after in fields, got %v", appErr.Fields)
	}
	if _, ok := appErr.Fields["unit_price_after"]; !ok {
		t.Errorf("Expected unit_price_after in fields, got %v", appErr.Fields)
	}
}

func TestResolveSavingAmountManual(t *testing.T) {
	amount, err := ResolveSavingAmount(SavingInput{
		CalculationMode: entity.CalculationModeManual,
		SavingAmount:    dec("9999.999"),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if amount.StringFixed(2) != "10000.00" {
		t.Errorf("Expected 10000.00, got %s", amount.StringFixed(2))
	}
}

func TestResolveSavingAmountManualMissing(t *testing.T) {
	_, err := ResolveSavingAmount(SavingInput{
		CalculationMode: entity.CalculationModeManual,
	})
	if err == nil {
		t.Fatal("Expected error for missing saving_amount")
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
		t.Fatalf("Expected validation error, got %v", err)
	}
}

func TestResolveSavingAmountInvalidMode(t *testing.T) {
	_, err := ResolveSavingAmount(SavingInput{CalculationMode: "guess"})
	if err == nil {
		t.Fatal("Expected error for invalid mode")
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
		t.Fatalf("Expected validation error, got %v", err)
	}
}
