package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Валюты без дробной части по ISO 4217.
var zeroExponentCurrencies = map[Currency]struct{}{
	"JPY": {},
	"KRW": {},
	"VND": {},
	"CLP": {},
	"ISK": {},
}

// Exponent возвращает число знаков после запятой в минимальной единице валюты.
func (c Currency) Exponent() int32 {
	if _, ok := zeroExponentCurrencies[c]; ok {
		return 0
	}
	return 2
}

// ToMinor переводит сумму в валюте в минимальные единицы.
// Сумма должна быть положительной и не точнее минимальной единицы.
func (c Currency) ToMinor(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}

	exp := c.Exponent()
	minor := amount.Shift(exp)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: at most %d decimal places allowed for %s", ErrInvalidAmount, exp, c)
	}
	value := minor.BigInt()
	if !value.IsInt64() {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, amount)
	}
	return value.Int64(), nil
}

// FromMinor переводит минимальные единицы обратно в сумму в валюте.
func (c Currency) FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -c.Exponent())
}
