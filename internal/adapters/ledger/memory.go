package ledger

import (
	"fmt"
	"sync"

	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/shopspring/decimal"
)

// Memory implementa ports.Ledger en memoria con aritmética decimal exacta.
// El mutex hace que cada Debit/Credit sea una única transición visible.
type Memory struct {
	mu      sync.Mutex
	balance decimal.Decimal
	debits  decimal.Decimal
	credits decimal.Decimal
}

// NewMemory crea un ledger con el balance inicial dado.
func NewMemory(initial decimal.Decimal) *Memory {
	if initial.IsNegative() {
		initial = decimal.Zero
	}
	return &Memory{balance: initial}
}

// Balance devuelve el balance actual.
func (m *Memory) Balance() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance
}

// Debit descuenta amount si hay saldo suficiente.
func (m *Memory) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("ledger.Debit: non-positive amount %s", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balance.LessThan(amount) {
		return fmt.Errorf("ledger.Debit: balance %s < %s: %w", m.balance, amount, domain.ErrInsufficientBalance)
	}
	m.balance = m.balance.Sub(amount)
	m.debits = m.debits.Add(amount)
	return nil
}

// Credit suma amount. Cantidades no positivas se ignoran.
func (m *Memory) Credit(amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = m.balance.Add(amount)
	m.credits = m.credits.Add(amount)
}

// Totals devuelve lo debitado y acreditado desde el arranque.
func (m *Memory) Totals() (debits, credits decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debits, m.credits
}
