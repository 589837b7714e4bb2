package mock

type eventPayload struct {
	Type string    `json:"type"`
	Data eventData `json:"data"`
}

type eventData struct {
	SessionID     string            `json:"session_id"`
	TransactionID string            `json:"transaction_id"`
	Status        string            `json:"status"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
