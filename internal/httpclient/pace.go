package httpclient

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// PacedTransport spaces out round trips through a token-bucket limiter.
// A portal session owns one PacedTransport, so the pacing is per identity and
// nothing is shared between sessions.
type PacedTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

// NewPacer returns a limiter that allows one request per interval with no burst
// beyond the first request. interval <= 0 disables pacing.
func NewPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func (t *PacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	base := t.Base
	if base == nil {
		base = sharedTransport
	}
	return base.RoundTrip(req)
}
