package orders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/garrettladley/payhook/internal/xhttp"
	go_json "github.com/goccy/go-json"
)

type Config struct {
	BaseURL string        `env:"BASE_URL"`
	APIKey  string        `env:"API_KEY"`
	Timeout time.Duration `env:"TIMEOUT"`
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("orders api: %d %s", e.StatusCode, e.Message)
}

type HTTPSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Source = (*HTTPSource)(nil)

type HTTPOption func(*HTTPSource)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.httpClient = c }
}

func NewHTTPSource(cfg Config, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: xhttp.NewHTTPClient(xhttp.WithTimeout(cfg.Timeout)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSource) ValidateToken(ctx context.Context, token string) error {
	err := s.do(ctx, http.MethodGet, cartPath(token, ""), nil, nil)
	if isStatus(err, http.StatusNotFound, http.StatusGone, http.StatusUnauthorized) {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return err
}

func (s *HTTPSource) GetInvoice(ctx context.Context, token string) (Invoice, error) {
	var inv Invoice
	err := s.do(ctx, http.MethodGet, cartPath(token, "/invoice"), nil, &inv)
	if isStatus(err, http.StatusNotFound) {
		return Invoice{}, fmt.Errorf("%w: %w", ErrInvoiceNotFound, err)
	}
	if err != nil {
		return Invoice{}, err
	}
	if inv.Token == "" {
		inv.Token = token
	}
	return inv, nil
}

type paymentOutcome struct {
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason,omitempty"`
}

func (s *HTTPSource) ConfirmPayment(ctx context.Context, token string, transactionID string) error {
	err := s.do(ctx, http.MethodPost, cartPath(token, "/payment/confirm"), paymentOutcome{TransactionID: transactionID}, nil)
	// already confirmed with this transaction
	if isStatus(err, http.StatusConflict) {
		return nil
	}
	return err
}

func (s *HTTPSource) MarkPaymentFailed(ctx context.Context, token string, transactionID string, reason string) error {
	outcome := paymentOutcome{TransactionID: transactionID, Reason: reason}
	err := s.do(ctx, http.MethodPost, cartPath(token, "/payment/fail"), outcome, nil)
	if isStatus(err, http.StatusConflict) {
		return nil
	}
	return err
}

func cartPath(token string, suffix string) string {
	return "/carts/" + url.PathEscape(token) + suffix
}

func (s *HTTPSource) do(ctx context.Context, method string, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		b, err := go_json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set(xhttp.ContentType, "application/json")
	}
	if s.apiKey != "" {
		xhttp.SetHeaderAuthorizationBearer(req, s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return parseAPIError(resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := go_json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := resp.Status
	if err := go_json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Message != "":
			msg = errResp.Message
		case errResp.Error != "":
			msg = errResp.Error
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

func isStatus(err error, codes ...int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.StatusCode == code {
			return true
		}
	}
	return false
}
