package orders

import (
	"errors"
	"slices"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMemorySource(t *testing.T) {
	t.Parallel()

	src := NewMemorySource(Invoice{Token: "tok_abc", Amount: decimal.RequireFromString("49.99"), Currency: "usd"})

	if err := src.ValidateToken(t.Context(), "tok_abc"); err != nil {
		t.Errorf("ValidateToken() error = %v", err)
	}
	if err := src.ValidateToken(t.Context(), "nope"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken(nope) error = %v, want %v", err, ErrInvalidToken)
	}
	if _, err := src.GetInvoice(t.Context(), "nope"); !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("GetInvoice(nope) error = %v, want %v", err, ErrInvoiceNotFound)
	}

	_ = src.ConfirmPayment(t.Context(), "tok_abc", "pi_1")
	if got := src.Confirmations("tok_abc"); !slices.Equal(got, []string{"pi_1"}) {
		t.Errorf("Confirmations() = %v", got)
	}

	if err := src.MarkPaymentFailed(t.Context(), "tok_abc", "pi_3", "card_declined"); err != nil {
		t.Fatalf("MarkPaymentFailed() error = %v", err)
	}
	if got, want := src.Failures("tok_abc"), []Failure{{TransactionID: "pi_3", Reason: "card_declined"}}; !slices.Equal(got, want) {
		t.Errorf("Failures() = %v, want %v", got, want)
	}

	boom := errors.New("orders down")
	src.FailConfirmations(boom)
	if err := src.MarkPaymentFailed(t.Context(), "tok_abc", "pi_2", "session_expired"); !errors.Is(err, boom) {
		t.Errorf("MarkPaymentFailed() error = %v, want %v", err, boom)
	}
	if got := src.Failures("tok_abc"); len(got) != 1 {
		t.Errorf("Failures() = %v, want only the first", got)
	}
}
