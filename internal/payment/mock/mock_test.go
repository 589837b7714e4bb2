package mock

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/garrettladley/payhook/internal/payment"
	"github.com/garrettladley/payhook/internal/webhook"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var testSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("mock-processor-secret"))

func validRequest() payment.CheckoutRequest {
	return payment.CheckoutRequest{
		AmountMinorUnits: 4999,
		Currency:         "usd",
		Metadata:         map[string]string{payment.MetadataCorrelationToken: "tok_abc"},
		SuccessURL:       "https://shop.example.com/thanks",
		CancelURL:        "https://shop.example.com/cart",
	}
}

func TestCreateHostedCheckout(t *testing.T) {
	t.Parallel()

	a := New("https://checkout.example.test/pay/", testSecret)
	session, err := a.CreateHostedCheckout(t.Context(), validRequest())
	if err != nil {
		t.Fatalf("CreateHostedCheckout() error = %v", err)
	}

	if !strings.HasPrefix(session.SessionID, sessionIDPrefix) {
		t.Errorf("SessionID = %q, want prefix %q", session.SessionID, sessionIDPrefix)
	}
	if !strings.Contains(session.RedirectURL, session.SessionID) {
		t.Errorf("RedirectURL %q does not contain session id %q", session.RedirectURL, session.SessionID)
	}
	if !strings.HasPrefix(session.RedirectURL, "https://checkout.example.test/pay/cs_mock_") {
		t.Errorf("RedirectURL = %q", session.RedirectURL)
	}

	want := payment.CheckoutSession{
		AmountMinorUnits: 4999,
		Currency:         "usd",
		Metadata:         map[string]string{payment.MetadataCorrelationToken: "tok_abc"},
		SuccessURL:       "https://shop.example.com/thanks",
		CancelURL:        "https://shop.example.com/cart",
		Status:           payment.SessionOpen,
	}
	if diff := cmp.Diff(want, session, cmpopts.IgnoreFields(payment.CheckoutSession{}, "SessionID", "RedirectURL")); diff != "" {
		t.Errorf("CreateHostedCheckout() mismatch (-want +got):\n%s", diff)
	}

	if _, ok := a.Session(session.SessionID); !ok {
		t.Error("Session() did not find created session")
	}
}

func TestCreateHostedCheckoutValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*payment.CheckoutRequest)
		wantErr error
	}{
		{name: "zero amount", mutate: func(r *payment.CheckoutRequest) { r.AmountMinorUnits = 0 }, wantErr: payment.ErrInvalidAmount},
		{name: "negative amount", mutate: func(r *payment.CheckoutRequest) { r.AmountMinorUnits = -1 }, wantErr: payment.ErrInvalidAmount},
		{name: "missing currency", mutate: func(r *payment.CheckoutRequest) { r.Currency = "" }, wantErr: payment.ErrMissingCurrency},
		{name: "missing token", mutate: func(r *payment.CheckoutRequest) { delete(r.Metadata, payment.MetadataCorrelationToken) }, wantErr: payment.ErrMissingCorrelationToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := New("", testSecret)
			req := validRequest()
			tt.mutate(&req)
			if _, err := a.CreateHostedCheckout(t.Context(), req); !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateHostedCheckout() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDeliverAndVerify(t *testing.T) {
	t.Parallel()

	a := New("", testSecret)
	session, err := a.CreateHostedCheckout(t.Context(), validRequest())
	if err != nil {
		t.Fatalf("CreateHostedCheckout() error = %v", err)
	}

	delivery, err := a.Deliver(session.SessionID, "txn_1", payment.StatusSucceeded)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if delivery.Header.Get(webhook.HeaderID) == "" {
		t.Fatalf("delivery missing %s header", webhook.HeaderID)
	}

	event, err := a.VerifyWebhook(t.Context(), delivery, testSecret)
	if err != nil {
		t.Fatalf("VerifyWebhook() error = %v", err)
	}

	if got := a.TransactionID(event); got != "txn_1" {
		t.Errorf("TransactionID() = %q, want txn_1", got)
	}
	if got := a.PaymentStatus(event); got != payment.StatusSucceeded {
		t.Errorf("PaymentStatus() = %q, want %q", got, payment.StatusSucceeded)
	}
	token, ok := a.ExtractCorrelationToken(event)
	if !ok || token != "tok_abc" {
		t.Errorf("ExtractCorrelationToken() = %q, %v; want tok_abc, true", token, ok)
	}
	if event.EventID != delivery.Header.Get(webhook.HeaderID) {
		t.Errorf("EventID = %q, want header id", event.EventID)
	}

	if event.FailureReason != "" {
		t.Errorf("FailureReason = %q, want empty on success", event.FailureReason)
	}

	s, _ := a.Session(session.SessionID)
	if s.Status != payment.SessionComplete {
		t.Errorf("session status = %q, want %q", s.Status, payment.SessionComplete)
	}

	failed, err := a.Deliver(session.SessionID, "txn_2", payment.StatusFailed)
	if err != nil {
		t.Fatalf("Deliver(failed) error = %v", err)
	}
	event, err = a.VerifyWebhook(t.Context(), failed, testSecret)
	if err != nil {
		t.Fatalf("VerifyWebhook(failed) error = %v", err)
	}
	if event.Status != payment.StatusFailed || event.FailureReason != FailureDeclined {
		t.Errorf("failed event = status %q reason %q, want %q %q", event.Status, event.FailureReason, payment.StatusFailed, FailureDeclined)
	}
}

func TestVerifyWebhookRejects(t *testing.T) {
	t.Parallel()

	a := New("", testSecret)

	malformed, err := a.SignRaw([]byte(`{"data":`))
	if err != nil {
		t.Fatalf("SignRaw() error = %v", err)
	}
	if _, err := a.VerifyWebhook(t.Context(), malformed, testSecret); !errors.Is(err, payment.ErrMalformedPayload) {
		t.Errorf("VerifyWebhook(malformed) error = %v, want %v", err, payment.ErrMalformedPayload)
	}

	good, err := a.SignRaw([]byte(`{"type":"payment.succeeded","data":{}}`))
	if err != nil {
		t.Fatalf("SignRaw() error = %v", err)
	}
	other := "whsec_" + base64.StdEncoding.EncodeToString([]byte("someone-else"))
	_, err = a.VerifyWebhook(t.Context(), good, other)
	if !errors.Is(err, payment.ErrInvalidSignature) {
		t.Errorf("VerifyWebhook(wrong secret) error = %v, want %v", err, payment.ErrInvalidSignature)
	}
	if !errors.Is(err, webhook.ErrSignatureMismatch) {
		t.Errorf("VerifyWebhook(wrong secret) error = %v, want wrapped %v", err, webhook.ErrSignatureMismatch)
	}

	event, err := a.VerifyWebhook(t.Context(), good, testSecret)
	if err != nil {
		t.Fatalf("VerifyWebhook() error = %v", err)
	}
	if _, ok := a.ExtractCorrelationToken(event); ok {
		t.Error("ExtractCorrelationToken() ok = true for payload without metadata")
	}
}

func TestDeliverUnknownSession(t *testing.T) {
	t.Parallel()

	a := New("", testSecret)
	if _, err := a.Deliver("cs_mock_nope", "txn_1", payment.StatusSucceeded); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Deliver() error = %v, want %v", err, ErrSessionNotFound)
	}
}
