package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	VersionV1 = "v1"

	secretPrefix = "whsec_"
)

// Signature is one parsed entry of the signature header.
type Signature struct {
	Version string
	Value   string
}

// ParseSignature parses a single "version,value" entry. A bare value with no
// version tag parses as v1.
func ParseSignature(entry string) (Signature, error) {
	version, value, found := strings.Cut(entry, ",")
	if !found {
		if entry == "" {
			return Signature{}, ErrDecode
		}
		return Signature{Version: VersionV1, Value: entry}, nil
	}
	if value == "" || strings.Contains(value, ",") {
		return Signature{}, ErrDecode
	}
	if version != VersionV1 {
		return Signature{Version: version, Value: value}, ErrUnsupportedVersion
	}
	return Signature{Version: version, Value: value}, nil
}

type Verifier struct {
	compare func(expected, got []byte) bool
}

func NewVerifier() *Verifier {
	return &Verifier{compare: constantTimeEqual}
}

// Verify authenticates env against secret. The header may carry several
// space separated entries during secret rotation; any matching v1 entry
// authenticates the delivery.
func (v *Verifier) Verify(env Envelope, secret string) Result {
	if env.ID == "" || env.Timestamp == "" || env.Signature == "" {
		return invalid(KindMissingHeader)
	}

	key, err := decodeSecret(secret)
	if err != nil {
		return invalid(KindMalformedSecret)
	}

	expected := []byte(computeSignature(key, env.ID, env.Timestamp, env.Body))

	var (
		candidates  int
		unsupported int
		matched     bool
	)
	for entry := range strings.FieldsSeq(env.Signature) {
		sig, err := ParseSignature(entry)
		switch {
		case errors.Is(err, ErrUnsupportedVersion):
			unsupported++
			continue
		case err != nil:
			return invalid(KindDecodeError)
		}
		candidates++
		if v.compare(expected, []byte(sig.Value)) {
			matched = true
		}
	}

	switch {
	case matched:
		return valid()
	case candidates == 0 && unsupported > 0:
		return invalid(KindUnsupportedVersion)
	case candidates == 0:
		return invalid(KindDecodeError)
	default:
		return invalid(KindSignatureMismatch)
	}
}

// Sign returns the v1 signature header value for the given delivery.
func Sign(id, timestamp string, body []byte, secret string) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return VersionV1 + "," + computeSignature(key, id, timestamp, body), nil
}

func decodeSecret(secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: not base64", ErrMalformedSecret)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedSecret)
	}
	return key, nil
}

// ValidateSecret reports whether secret can be used for signing.
func ValidateSecret(secret string) error {
	_, err := decodeSecret(secret)
	return err
}

func computeSignature(key []byte, id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// constantTimeEqual compares without leaking the position of the first
// difference. On a length mismatch it still runs a full-length comparison.
func constantTimeEqual(expected, got []byte) bool {
	if len(expected) != len(got) {
		subtle.ConstantTimeCompare(expected, expected)
		return false
	}
	return subtle.ConstantTimeCompare(expected, got) == 1
}
