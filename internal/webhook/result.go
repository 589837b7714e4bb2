package webhook

import "errors"

type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindMissingHeader      ErrorKind = "missing-header"
	KindMalformedSecret    ErrorKind = "malformed-secret"
	KindDecodeError        ErrorKind = "decode-error"
	KindSignatureMismatch  ErrorKind = "signature-mismatch"
	KindUnsupportedVersion ErrorKind = "unsupported-version"
	KindTimestampInvalid   ErrorKind = "timestamp-invalid"
	KindTimestampFuture    ErrorKind = "timestamp-future"
	KindTimestampExpired   ErrorKind = "timestamp-expired"
)

var (
	ErrMissingHeader      = errors.New("missing webhook headers")
	ErrMalformedSecret    = errors.New("malformed webhook secret")
	ErrDecode             = errors.New("malformed webhook signature")
	ErrSignatureMismatch  = errors.New("webhook signature mismatch")
	ErrUnsupportedVersion = errors.New("unsupported webhook signature version")
	ErrTimestampInvalid   = errors.New("invalid webhook timestamp")
	ErrTimestampFuture    = errors.New("webhook timestamp too far in the future")
	ErrTimestampExpired   = errors.New("webhook timestamp too old")
)

var kindErrors = map[ErrorKind]error{
	KindMissingHeader:      ErrMissingHeader,
	KindMalformedSecret:    ErrMalformedSecret,
	KindDecodeError:        ErrDecode,
	KindSignatureMismatch:  ErrSignatureMismatch,
	KindUnsupportedVersion: ErrUnsupportedVersion,
	KindTimestampInvalid:   ErrTimestampInvalid,
	KindTimestampFuture:    ErrTimestampFuture,
	KindTimestampExpired:   ErrTimestampExpired,
}

// Result is the outcome of a verification step. Kind is KindNone when Valid.
type Result struct {
	Valid bool
	Kind  ErrorKind
}

func valid() Result { return Result{Valid: true} }

func invalid(kind ErrorKind) Result { return Result{Kind: kind} }

// Err returns the sentinel error for the result's kind, or nil when valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	if err, ok := kindErrors[r.Kind]; ok {
		return err
	}
	return ErrSignatureMismatch
}
