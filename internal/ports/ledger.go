package ports

import "github.com/shopspring/decimal"

// Ledger es el balance del usuario. Cada llamada es una única transición de
// estado: Debit comprueba y descuenta de forma atómica.
type Ledger interface {
	Balance() decimal.Decimal

	// Debit descuenta amount o devuelve domain.ErrInsufficientBalance sin tocar nada.
	Debit(amount decimal.Decimal) error

	// Credit suma amount (el payout agregado de un batch de liquidación).
	Credit(amount decimal.Decimal)
}
