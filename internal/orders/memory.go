package orders

import (
	"context"
	"slices"
	"sync"
)

// MemorySource keeps invoices in process and records every outcome it is
// told about. It backs tests and local development.
type MemorySource struct {
	mu         sync.Mutex
	invoices   map[string]Invoice
	confirmed  map[string][]string
	failed     map[string][]Failure
	confirmErr error
}

type Failure struct {
	TransactionID string
	Reason        string
}

var _ Source = (*MemorySource)(nil)

func NewMemorySource(invoices ...Invoice) *MemorySource {
	m := &MemorySource{
		invoices:  make(map[string]Invoice, len(invoices)),
		confirmed: make(map[string][]string),
		failed:    make(map[string][]Failure),
	}
	for _, inv := range invoices {
		m.invoices[inv.Token] = inv
	}
	return m
}

func (m *MemorySource) AddInvoice(inv Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.Token] = inv
}

// FailConfirmations makes ConfirmPayment and MarkPaymentFailed return err
// until called again with nil.
func (m *MemorySource) FailConfirmations(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmErr = err
}

func (m *MemorySource) ValidateToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[token]; !ok {
		return ErrInvalidToken
	}
	return nil
}

func (m *MemorySource) GetInvoice(_ context.Context, token string) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[token]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	inv.LineItems = slices.Clone(inv.LineItems)
	return inv, nil
}

func (m *MemorySource) ConfirmPayment(_ context.Context, token string, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confirmErr != nil {
		return m.confirmErr
	}
	m.confirmed[token] = append(m.confirmed[token], transactionID)
	return nil
}

func (m *MemorySource) MarkPaymentFailed(_ context.Context, token string, transactionID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confirmErr != nil {
		return m.confirmErr
	}
	m.failed[token] = append(m.failed[token], Failure{TransactionID: transactionID, Reason: reason})
	return nil
}

// Confirmations returns the transaction ids confirmed for token, in call order.
func (m *MemorySource) Confirmations(token string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.confirmed[token])
}

func (m *MemorySource) Failures(token string) []Failure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.failed[token])
}
