// Package httpx builds the HTTP client used by the API layer, with proxy
// support and HTTP/2 configuration.
package httpx

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

// Options controls proxy behavior for the constructed client.
type Options struct {
	// ProxyMode is one of "no-proxy" (or empty), "system" or "manual".
	ProxyMode string

	// ProxyURL is the proxy endpoint for manual mode, e.g.
	// "http://proxy.corp:3128".
	ProxyURL string
}

// NewClient creates an HTTP client configured for JSON API traffic.
//
// Connection pool sizes are modest: the client issues many small status
// requests per second during polling, all against one host.
func NewClient(opts Options) (*nethttp.Client, error) {
	transport := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 2 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	switch strings.ToLower(opts.ProxyMode) {
	case "", "no-proxy":
		transport.Proxy = nil

	case "system":
		// Use system proxy settings from environment
		transport.Proxy = nethttp.ProxyFromEnvironment

	case "manual":
		if opts.ProxyURL == "" {
			return nil, fmt.Errorf("proxy mode is manual but no proxy URL configured")
		}
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", opts.ProxyURL, err)
		}
		transport.Proxy = nethttp.ProxyURL(proxyURL)

	default:
		return nil, fmt.Errorf("unknown proxy mode %q", opts.ProxyMode)
	}

	_ = http2.ConfigureTransport(transport)

	// Runtime toggle for HTTP/2, useful when a proxy mishandles multiplexing.
	if os.Getenv("DISABLE_HTTP2") == "true" {
		transport.ForceAttemptHTTP2 = false
		transport.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	return &nethttp.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}, nil
}
