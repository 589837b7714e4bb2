package stripe

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/garrettladley/payhook/internal/payment"
	"github.com/google/go-cmp/cmp"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func signed(t *testing.T, payload string, at time.Time) payment.WebhookRequest {
	t.Helper()

	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: at,
	})
	h := http.Header{}
	h.Set(HeaderSignature, sp.Header)
	return payment.WebhookRequest{Header: h, Body: sp.Payload}
}

func TestVerifyWebhook(t *testing.T) {
	t.Parallel()

	a := New(Config{SecretKey: "sk_test_123"}, nil)

	tests := []struct {
		name    string
		payload string
		want    payment.Event
	}{
		{
			name: "completed and paid",
			payload: `{"id":"evt_1","object":"event","api_version":"2024-06-20","type":"checkout.session.completed",
				"data":{"object":{"id":"cs_test_1","object":"checkout.session","client_reference_id":"tok_abc",
				"payment_status":"paid","payment_intent":"pi_123"}}}`,
			want: payment.Event{
				EventID:          "evt_1",
				Type:             "checkout.session.completed",
				TransactionID:    "pi_123",
				CorrelationToken: "tok_abc",
				Status:           payment.StatusSucceeded,
			},
		},
		{
			name: "completed but unpaid",
			payload: `{"id":"evt_2","object":"event","type":"checkout.session.completed",
				"data":{"object":{"id":"cs_test_2","object":"checkout.session","payment_status":"unpaid",
				"metadata":{"correlation_token":"tok_def"}}}}`,
			want: payment.Event{
				EventID:          "evt_2",
				Type:             "checkout.session.completed",
				TransactionID:    "cs_test_2",
				CorrelationToken: "tok_def",
				Status:           payment.StatusPending,
			},
		},
		{
			name: "async failure",
			payload: `{"id":"evt_3","object":"event","type":"checkout.session.async_payment_failed",
				"data":{"object":{"id":"cs_test_3","object":"checkout.session","client_reference_id":"tok_ghi",
				"payment_intent":"pi_456"}}}`,
			want: payment.Event{
				EventID:          "evt_3",
				Type:             "checkout.session.async_payment_failed",
				TransactionID:    "pi_456",
				CorrelationToken: "tok_ghi",
				Status:           payment.StatusFailed,
				FailureReason:    "async_payment_failed",
			},
		},
		{
			name: "session expired",
			payload: `{"id":"evt_5","object":"event","type":"checkout.session.expired",
				"data":{"object":{"id":"cs_test_5","object":"checkout.session","client_reference_id":"tok_jkl"}}}`,
			want: payment.Event{
				EventID:          "evt_5",
				Type:             "checkout.session.expired",
				TransactionID:    "cs_test_5",
				CorrelationToken: "tok_jkl",
				Status:           payment.StatusFailed,
				FailureReason:    "session_expired",
			},
		},
		{
			name:    "unrelated event",
			payload: `{"id":"evt_4","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`,
			want: payment.Event{
				EventID: "evt_4",
				Type:    "customer.created",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := signed(t, tt.payload, time.Now())
			got, err := a.VerifyWebhook(t.Context(), req, testWebhookSecret)
			if err != nil {
				t.Fatalf("VerifyWebhook() error = %v", err)
			}
			got.Raw = nil
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("VerifyWebhook() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVerifyWebhookRejects(t *testing.T) {
	t.Parallel()

	a := New(Config{SecretKey: "sk_test_123"}, nil)
	payload := `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session"}}}`

	wrongSecret := signed(t, payload, time.Now())
	if _, err := a.VerifyWebhook(t.Context(), wrongSecret, "whsec_other"); !errors.Is(err, payment.ErrInvalidSignature) {
		t.Errorf("wrong secret error = %v, want %v", err, payment.ErrInvalidSignature)
	}

	stale := signed(t, payload, time.Now().Add(-time.Hour))
	if _, err := a.VerifyWebhook(t.Context(), stale, testWebhookSecret); !errors.Is(err, payment.ErrInvalidSignature) {
		t.Errorf("stale error = %v, want %v", err, payment.ErrInvalidSignature)
	}

	future := signed(t, payload, time.Now().Add(5*time.Minute))
	if _, err := a.VerifyWebhook(t.Context(), future, testWebhookSecret); !errors.Is(err, payment.ErrInvalidSignature) {
		t.Errorf("future error = %v, want %v", err, payment.ErrInvalidSignature)
	}

	withinSkew := signed(t, payload, time.Now().Add(30*time.Second))
	if _, err := a.VerifyWebhook(t.Context(), withinSkew, testWebhookSecret); err != nil {
		t.Errorf("within skew error = %v, want nil", err)
	}

	unsigned := payment.WebhookRequest{Header: http.Header{}, Body: []byte(payload)}
	if _, err := a.VerifyWebhook(t.Context(), unsigned, testWebhookSecret); !errors.Is(err, payment.ErrInvalidSignature) {
		t.Errorf("unsigned error = %v, want %v", err, payment.ErrInvalidSignature)
	}

	garbage := signed(t, `{"id":`, time.Now())
	if _, err := a.VerifyWebhook(t.Context(), garbage, testWebhookSecret); !errors.Is(err, payment.ErrMalformedPayload) {
		t.Errorf("garbage error = %v, want %v", err, payment.ErrMalformedPayload)
	}
}

func TestCreateHostedCheckout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		for key, want := range map[string]string{
			"mode":                                             "payment",
			"client_reference_id":                              "tok_abc",
			"line_items[0][price_data][unit_amount]":           "4999",
			"line_items[0][price_data][currency]":              "usd",
			"line_items[0][quantity]":                          "1",
			"metadata[correlation_token]":                      "tok_abc",
			"payment_intent_data[metadata][correlation_token]": "tok_abc",
		} {
			if got := r.PostForm.Get(key); got != want {
				t.Errorf("form %s = %q, want %q", key, got, want)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	}))
	t.Cleanup(srv.Close)

	a := New(Config{SecretKey: "sk_test_123", APIURL: srv.URL}, srv.Client())

	session, err := a.CreateHostedCheckout(t.Context(), payment.CheckoutRequest{
		AmountMinorUnits: 4999,
		Currency:         "USD",
		Metadata:         map[string]string{payment.MetadataCorrelationToken: "tok_abc"},
		SuccessURL:       "https://shop.example.com/thanks",
		CancelURL:        "https://shop.example.com/cart",
	})
	if err != nil {
		t.Fatalf("CreateHostedCheckout() error = %v", err)
	}
	if session.SessionID != "cs_test_1" {
		t.Errorf("SessionID = %q, want cs_test_1", session.SessionID)
	}
	if session.RedirectURL != "https://checkout.stripe.com/c/pay/cs_test_1" {
		t.Errorf("RedirectURL = %q", session.RedirectURL)
	}
}

func TestCreateHostedCheckoutItemized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		for key, want := range map[string]string{
			"line_items[0][price_data][product_data][name]": "Mug",
			"line_items[0][price_data][unit_amount]":        "1500",
			"line_items[0][quantity]":                       "2",
			"line_items[1][price_data][product_data][name]": "Tea",
			"line_items[1][price_data][unit_amount]":        "1999",
			"line_items[1][quantity]":                       "1",
		} {
			if got := r.PostForm.Get(key); got != want {
				t.Errorf("form %s = %q, want %q", key, got, want)
			}
		}
		if got := r.PostForm.Get("line_items[2][quantity]"); got != "" {
			t.Errorf("unexpected third line item, quantity %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_2","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_2"}`))
	}))
	t.Cleanup(srv.Close)

	a := New(Config{SecretKey: "sk_test_123", APIURL: srv.URL}, srv.Client())

	_, err := a.CreateHostedCheckout(t.Context(), payment.CheckoutRequest{
		AmountMinorUnits: 4999,
		Currency:         "usd",
		LineItems: []payment.LineItem{
			{Name: "Mug", Quantity: 2, UnitAmountMinors: 1500},
			{Name: "Tea", Quantity: 1, UnitAmountMinors: 1999},
		},
		Metadata: map[string]string{payment.MetadataCorrelationToken: "tok_abc"},
	})
	if err != nil {
		t.Fatalf("CreateHostedCheckout() error = %v", err)
	}
}

func TestCreateHostedCheckoutValidates(t *testing.T) {
	t.Parallel()

	a := New(Config{SecretKey: "sk_test_123", APIURL: "http://127.0.0.1:1"}, nil)
	_, err := a.CreateHostedCheckout(t.Context(), payment.CheckoutRequest{Currency: "usd"})
	if !errors.Is(err, payment.ErrInvalidAmount) {
		t.Errorf("CreateHostedCheckout() error = %v, want %v", err, payment.ErrInvalidAmount)
	}

	_, err = a.CreateHostedCheckout(t.Context(), payment.CheckoutRequest{
		AmountMinorUnits: 4999,
		Currency:         "usd",
		LineItems:        []payment.LineItem{{Name: "Mug", Quantity: 1, UnitAmountMinors: 100}},
		Metadata:         map[string]string{payment.MetadataCorrelationToken: "tok_abc"},
	})
	if !errors.Is(err, payment.ErrLineItems) {
		t.Errorf("CreateHostedCheckout() error = %v, want %v", err, payment.ErrLineItems)
	}
}
