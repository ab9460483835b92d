package services

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var trPrinter = message.NewPrinter(language.Turkish)

// FormatTRY renders an amount the way Turkish users read prices: "₺50.000", "₺1.250,5".
func FormatTRY(amount float64) string {
	return "₺" + trPrinter.Sprint(number.Decimal(amount, number.MaxFractionDigits(2)))
}
