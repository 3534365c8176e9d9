package httpclient

import (
	"net/http"
	"time"
)

const (
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 8

	// DefaultUserAgent is what portals and stream servers see. Several portals
	// reject requests without a browser-looking agent.
	DefaultUserAgent = "Mozilla/5.0"
)

// sharedTransport is the connection pool behind portal sessions and stream probes.
var sharedTransport *http.Transport

func init() {
	sharedTransport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        512,
		MaxIdleConnsPerHost: MaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		// Streams are read by the probe itself; never let the transport
		// decompress or buffer a media body.
		DisableCompression: true,
	}
}

// WithTimeout returns a client on the shared transport with the given total timeout.
// timeout <= 0 means no client-level timeout (callers bound requests by context).
func WithTimeout(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}

// Streams returns the client used by throughput probes. The probe bounds every
// request with its own budget, so the client carries no timeout.
func Streams() *http.Client {
	return WithTimeout(0)
}
