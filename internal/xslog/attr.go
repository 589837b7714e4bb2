package xslog

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/garrettladley/payhook/internal/version"
	"github.com/garrettladley/payhook/internal/xhttp"
)

const (
	keyError = "error"
)

func Error(err error) slog.Attr {
	return slog.String(keyError, err.Error())
}

func RequestID(requestID string) slog.Attr {
	const requestIDKey = "request_id"
	return slog.String(requestIDKey, requestID)
}

func Stack() slog.Attr {
	const stackKey = "stack"
	return slog.String(stackKey, string(debug.Stack()))
}

func HTTPStatus(status int) slog.Attr {
	const statusKey = "status"
	return slog.Int(statusKey, status)
}

func Duration(duration time.Duration) slog.Attr {
	const durationKey = "duration"
	return slog.Duration(durationKey, duration)
}

func RequestMethod(r *http.Request) slog.Attr {
	const methodKey = "method"
	return slog.String(methodKey, r.Method)
}

func RequestPath(r *http.Request) slog.Attr {
	const pathKey = "path"
	return slog.String(pathKey, r.URL.Path)
}

func IP(ip string) slog.Attr {
	const ipKey = "ip"
	return slog.String(ipKey, ip)
}

// RequestIP logs the direct peer; forwarded addresses are not trusted here.
func RequestIP(r *http.Request) slog.Attr {
	return IP(xhttp.ClientIP(r, nil))
}

func Version() slog.Attr {
	const versionKey = "version"
	return slog.String(versionKey, version.Get())
}

func SessionID(id string) slog.Attr {
	const sessionIDKey = "session_id"
	return slog.String(sessionIDKey, id)
}

func EventID(id string) slog.Attr {
	const eventIDKey = "event_id"
	return slog.String(eventIDKey, id)
}

func EventType(t string) slog.Attr {
	const eventTypeKey = "event_type"
	return slog.String(eventTypeKey, t)
}

func TransactionID(id string) slog.Attr {
	const transactionIDKey = "transaction_id"
	return slog.String(transactionIDKey, id)
}

func CorrelationToken(token string) slog.Attr {
	const correlationTokenKey = "correlation_token"
	return slog.String(correlationTokenKey, token)
}

func PaymentStatus(status string) slog.Attr {
	const paymentStatusKey = "payment_status"
	return slog.String(paymentStatusKey, status)
}

func Processor(name string) slog.Attr {
	const processorKey = "processor"
	return slog.String(processorKey, name)
}

// Source names the idempotency backend that served an operation.
func Source(source string) slog.Attr {
	const sourceKey = "source"
	return slog.String(sourceKey, source)
}

func Reason(reason string) slog.Attr {
	const reasonKey = "reason"
	return slog.String(reasonKey, reason)
}

func Amount(minorUnits int64, currency string) slog.Attr {
	return slog.Group("amount",
		slog.Int64("minor_units", minorUnits),
		slog.String("currency", currency),
	)
}

func Backend(name string) slog.Attr {
	const backendKey = "backend"
	return slog.String(backendKey, name)
}
