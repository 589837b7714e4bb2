// Package webhook authenticates inbound processor callbacks signed with the
// Standard Webhooks scheme: HMAC-SHA256 over "id.timestamp.body" keyed by a
// base64 shared secret, plus a bounded timestamp window against replays.
package webhook

import "net/http"

const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"
)

// Envelope is an inbound delivery as received. It is never mutated.
type Envelope struct {
	ID        string
	Timestamp string
	Body      []byte
	Signature string
}

func EnvelopeFromRequest(header http.Header, body []byte) Envelope {
	return Envelope{
		ID:        header.Get(HeaderID),
		Timestamp: header.Get(HeaderTimestamp),
		Body:      body,
		Signature: header.Get(HeaderSignature),
	}
}

// Header returns the delivery headers for env.
func (env Envelope) Header() http.Header {
	h := make(http.Header, 3)
	h.Set(HeaderID, env.ID)
	h.Set(HeaderTimestamp, env.Timestamp)
	h.Set(HeaderSignature, env.Signature)
	return h
}
