package payment

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		amount   string
		currency string
		want     int64
		wantErr  error
	}{
		{name: "usd", amount: "49.99", currency: "usd", want: 4999},
		{name: "usd whole", amount: "12", currency: "USD", want: 1200},
		{name: "jpy", amount: "500", currency: "jpy", want: 500},
		{name: "kwd", amount: "1.234", currency: "KWD", want: 1234},
		{name: "sub cent", amount: "0.001", currency: "usd", wantErr: ErrAmountPrecision},
		{name: "fractional yen", amount: "10.5", currency: "JPY", wantErr: ErrAmountPrecision},
		{name: "zero", amount: "0", currency: "usd", wantErr: ErrInvalidAmount},
		{name: "negative", amount: "-1.00", currency: "usd", wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ToMinorUnits(decimal.RequireFromString(tt.amount), tt.currency)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ToMinorUnits(%s, %s) error = %v, want %v", tt.amount, tt.currency, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ToMinorUnits(%s, %s) = %d, want %d", tt.amount, tt.currency, got, tt.want)
			}
		})
	}
}

func TestFromMinorUnits(t *testing.T) {
	t.Parallel()

	if got := FromMinorUnits(4999, "usd"); !got.Equal(decimal.RequireFromString("49.99")) {
		t.Errorf("FromMinorUnits(4999, usd) = %s, want 49.99", got)
	}
	if got := FromMinorUnits(500, "jpy"); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("FromMinorUnits(500, jpy) = %s, want 500", got)
	}
}

func TestCheckoutRequestValidate(t *testing.T) {
	t.Parallel()

	valid := CheckoutRequest{
		AmountMinorUnits: 4999,
		Currency:         "usd",
		Metadata:         map[string]string{MetadataCorrelationToken: "tok_abc"},
	}

	tests := []struct {
		name    string
		mutate  func(*CheckoutRequest)
		wantErr error
	}{
		{name: "valid", mutate: func(*CheckoutRequest) {}},
		{name: "zero amount", mutate: func(r *CheckoutRequest) { r.AmountMinorUnits = 0 }, wantErr: ErrInvalidAmount},
		{name: "negative amount", mutate: func(r *CheckoutRequest) { r.AmountMinorUnits = -5 }, wantErr: ErrInvalidAmount},
		{name: "missing currency", mutate: func(r *CheckoutRequest) { r.Currency = " " }, wantErr: ErrMissingCurrency},
		{name: "missing token", mutate: func(r *CheckoutRequest) { r.Metadata = nil }, wantErr: ErrMissingCorrelationToken},
		{
			name: "itemized",
			mutate: func(r *CheckoutRequest) {
				r.LineItems = []LineItem{{Name: "Mug", Quantity: 2, UnitAmountMinors: 1500}, {Name: "Tea", Quantity: 1, UnitAmountMinors: 1999}}
			},
		},
		{
			name: "items short of total",
			mutate: func(r *CheckoutRequest) {
				r.LineItems = []LineItem{{Name: "Mug", Quantity: 1, UnitAmountMinors: 4000}}
			},
			wantErr: ErrLineItems,
		},
		{
			name: "zero quantity",
			mutate: func(r *CheckoutRequest) {
				r.LineItems = []LineItem{{Name: "Mug", Quantity: 0, UnitAmountMinors: 4999}}
			},
			wantErr: ErrLineItems,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := valid
			req.Metadata = map[string]string{MetadataCorrelationToken: "tok_abc"}
			tt.mutate(&req)
			if err := req.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
