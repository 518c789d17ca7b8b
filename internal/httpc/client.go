// Package httpc builds the outbound HTTP clients used for telemetry export.
// The brick uplink is a slow wireless link, so every client has a hard
// timeout and keeps only a couple of idle connections.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Default timeouts for outbound requests.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// New returns a client with the given overall timeout. Zero means
// DefaultTimeout.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          4,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   DefaultConnectTimeout,
			ExpectContinueTimeout: time.Second,
		},
	}
}
