// Package probe classifies candidate stream URLs by the throughput they sustain.
//
// A probe opens one streaming GET, reads it for at most Policy.Budget and gives up
// early once the average rate after Policy.Grace falls below Policy.MinRate. Each
// URL is probed once; retries are not this package's business.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/snapetech/portalharvest/internal/httpclient"
)

// Status is the liveness class of one probed URL.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusErrored Status = "errored"
)

var (
	// ErrTimeout: no response (or no data) before the deadline, before the grace period was over.
	ErrTimeout = errors.New("probe timeout")
	// ErrTooSlow: average throughput after the grace period fell below the policy minimum.
	ErrTooSlow = errors.New("probe too slow")
	// ErrNetwork: connection, protocol or non-2xx status failure.
	ErrNetwork = errors.New("probe network error")
)

// Verdict is the immutable result of probing one URL.
type Verdict struct {
	URL        string
	Status     Status
	Reason     error // nil only when Status is StatusValid
	StatusCode int
	Bytes      int64
	Elapsed    time.Duration
}

// Valid reports whether the URL kept up the minimum rate until the budget ran
// out or the body ended.
func (v Verdict) Valid() bool { return v.Status == StatusValid }

// Err returns nil for a valid verdict and the classified reason otherwise.
// Callers treat Invalid and Errored the same way.
func (v Verdict) Err() error {
	if v.Valid() {
		return nil
	}
	if v.Reason == nil {
		return fmt.Errorf("%w: %s", ErrNetwork, v.Status)
	}
	return v.Reason
}

// Rate is the average throughput in bytes per second.
func (v Verdict) Rate() float64 {
	if v.Elapsed <= 0 {
		return 0
	}
	return float64(v.Bytes) / v.Elapsed.Seconds()
}

// Probe downloads streamURL under policy p and classifies it. client may be nil.
func Probe(ctx context.Context, client *http.Client, streamURL string, p Policy) Verdict {
	return probe(ctx, client, streamURL, p, false).v
}

// Fetch probes rawURL like Probe and also returns the body it read. The body
// must end within the budget: a valid rate with a body still open at the
// deadline is errored with ErrTimeout.
func Fetch(ctx context.Context, client *http.Client, rawURL string, p Policy) ([]byte, Verdict) {
	m := probe(ctx, client, rawURL, p, true)
	if m.v.Valid() && !m.complete {
		m.errored(fmt.Errorf("%w: body still open after %s", ErrTimeout, p.withDefaults().Budget))
	}
	return m.body, m.v
}

func probe(ctx context.Context, client *http.Client, streamURL string, p Policy, capture bool) *meter {
	p = p.withDefaults()
	if client == nil {
		client = httpclient.Streams()
	}
	ctx, cancel := context.WithTimeout(ctx, p.Budget)
	defer cancel()

	m := &meter{policy: p, start: time.Now(), capture: capture, v: Verdict{URL: streamURL}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		m.errored(fmt.Errorf("%w: %v", ErrNetwork, err))
		return m
	}
	req.Header.Set("User-Agent", httpclient.DefaultUserAgent)
	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			m.errored(fmt.Errorf("%w: no response within %s", ErrTimeout, p.Budget))
		} else {
			m.errored(fmt.Errorf("%w: %v", ErrNetwork, err))
		}
		return m
	}
	defer resp.Body.Close()
	m.v.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.errored(fmt.Errorf("%w: HTTP %d", ErrNetwork, resp.StatusCode))
		return m
	}
	m.run(ctx, resp.Body)
	return m
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

type chunk struct {
	n    int
	data []byte // set only when the meter captures the body
	err  error
}

// meter accumulates bytes for one probe. It is owned by a single Probe call.
type meter struct {
	policy   Policy
	start    time.Time
	capture  bool
	body     []byte
	complete bool // body reached EOF
	v        Verdict
}

func (m *meter) run(ctx context.Context, body io.Reader) Verdict {
	chunks := make(chan chunk)
	done := make(chan struct{})
	defer close(done)
	go func() {
		buf := make([]byte, m.policy.ChunkSize)
		for {
			n, err := body.Read(buf)
			c := chunk{n: n, err: err}
			if m.capture && n > 0 {
				c.data = append([]byte(nil), buf[:n]...)
			}
			select {
			case chunks <- c:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(m.policy.checkInterval())
	defer ticker.Stop()
	for {
		select {
		case c := <-chunks:
			m.v.Bytes += int64(c.n)
			m.body = append(m.body, c.data...)
			if c.err != nil {
				return m.finish(ctx, c.err)
			}
			if v, ok := m.judge(time.Since(m.start)); ok {
				return v
			}
		case <-ticker.C:
			if v, ok := m.judge(time.Since(m.start)); ok {
				return v
			}
		}
	}
}

// judge returns a final verdict once the budget is used up or the rate has
// dropped below the minimum after the grace period.
func (m *meter) judge(elapsed time.Duration) (Verdict, bool) {
	if elapsed >= m.policy.Budget {
		return m.valid(elapsed), true
	}
	if elapsed >= m.policy.Grace && m.tooSlow(elapsed) {
		return m.slow(elapsed), true
	}
	return Verdict{}, false
}

func (m *meter) tooSlow(elapsed time.Duration) bool {
	if elapsed <= 0 {
		return false
	}
	return float64(m.v.Bytes)/elapsed.Seconds() < float64(m.policy.MinRate)
}

// finish handles the end of the body: EOF, the budget deadline, or a read error.
func (m *meter) finish(ctx context.Context, err error) Verdict {
	elapsed := time.Since(m.start)
	switch {
	case errors.Is(err, io.EOF):
		m.complete = true
		// An empty body is judged at the grace boundary, never before it.
		if m.v.Bytes == 0 {
			if elapsed < m.policy.Grace {
				t := time.NewTimer(m.policy.Grace - elapsed)
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
				}
			}
			return m.slow(time.Since(m.start))
		}
		if m.tooSlow(elapsed) {
			return m.slow(elapsed)
		}
		return m.valid(elapsed)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		if elapsed < m.policy.Grace {
			return m.errored(fmt.Errorf("%w: deadline hit after %s", ErrTimeout, elapsed.Round(time.Millisecond)))
		}
		if m.tooSlow(elapsed) {
			return m.slow(elapsed)
		}
		return m.valid(elapsed)
	default:
		return m.errored(fmt.Errorf("%w: read after %d bytes: %v", ErrNetwork, m.v.Bytes, err))
	}
}

func (m *meter) valid(elapsed time.Duration) Verdict {
	m.v.Status = StatusValid
	m.v.Reason = nil
	m.v.Elapsed = elapsed
	return m.v
}

func (m *meter) slow(elapsed time.Duration) Verdict {
	m.v.Status = StatusInvalid
	m.v.Elapsed = elapsed
	m.v.Reason = fmt.Errorf("%w: %.1f KB/s after %s (min %d KB/s)",
		ErrTooSlow, m.v.Rate()/1024, elapsed.Round(time.Millisecond), m.policy.MinRate/1024)
	return m.v
}

func (m *meter) errored(reason error) Verdict {
	m.v.Status = StatusErrored
	m.v.Reason = reason
	m.v.Elapsed = time.Since(m.start)
	return m.v
}
