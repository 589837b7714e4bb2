package webhook

import (
	"strconv"
	"time"
)

const (
	DefaultMaxAge        = 5 * time.Minute
	DefaultMaxFutureSkew = 60 * time.Second
)

// ReplayGuard bounds how far a delivery timestamp may lag behind or run
// ahead of the local clock.
type ReplayGuard struct {
	maxAge        time.Duration
	maxFutureSkew time.Duration
	now           func() time.Time
}

type ReplayGuardOption func(*ReplayGuard)

func WithMaxAge(d time.Duration) ReplayGuardOption {
	return func(g *ReplayGuard) { g.maxAge = d }
}

func WithMaxFutureSkew(d time.Duration) ReplayGuardOption {
	return func(g *ReplayGuard) { g.maxFutureSkew = d }
}

func WithClock(now func() time.Time) ReplayGuardOption {
	return func(g *ReplayGuard) { g.now = now }
}

func NewReplayGuard(opts ...ReplayGuardOption) *ReplayGuard {
	g := &ReplayGuard{
		maxAge:        DefaultMaxAge,
		maxFutureSkew: DefaultMaxFutureSkew,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check validates a unix-seconds timestamp.
func (g *ReplayGuard) Check(timestamp string) Result {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return invalid(KindTimestampInvalid)
	}

	delta := g.now().Sub(time.Unix(ts, 0))
	switch {
	case delta < -g.maxFutureSkew:
		return invalid(KindTimestampFuture)
	case delta > g.maxAge:
		return invalid(KindTimestampExpired)
	default:
		return valid()
	}
}

// Authenticate runs signature verification and then the replay window.
func Authenticate(v *Verifier, g *ReplayGuard, env Envelope, secret string) Result {
	if res := v.Verify(env, secret); !res.Valid {
		return res
	}
	return g.Check(env.Timestamp)
}
