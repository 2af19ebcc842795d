package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
)

// newBrowserTransport returns an http.Transport whose TLS handshakes carry a
// Chrome ClientHello. The source blocks clients with the default Go TLS
// fingerprint, so the handshake has to look like a real browser's. ALPN is
// pinned to http/1.1 because the negotiated protocol must match what
// net/http's HTTP/1 transport actually speaks.
func newBrowserTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 15 * time.Second}

	return &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("split host port %q: %w", addr, err)
			}

			raw, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}

			spec, err := utls.UTLSIdToSpec(utls.HelloChrome_Auto)
			if err != nil {
				raw.Close()
				return nil, fmt.Errorf("build client hello spec: %w", err)
			}
			for _, ext := range spec.Extensions {
				if alpn, ok := ext.(*utls.ALPNExtension); ok {
					alpn.AlpnProtocols = []string{"http/1.1"}
				}
			}

			conn := utls.UClient(raw, &utls.Config{ServerName: host}, utls.HelloCustom)
			if err := conn.ApplyPreset(&spec); err != nil {
				raw.Close()
				return nil, fmt.Errorf("apply client hello preset: %w", err)
			}
			if err := conn.HandshakeContext(ctx); err != nil {
				raw.Close()
				return nil, fmt.Errorf("tls handshake with %s: %w", host, err)
			}
			return conn, nil
		},
		ForceAttemptHTTP2:     false,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// setBrowserHeaders fills in the request headers Chrome would send for a
// top-level navigation. Header values alone don't defeat fingerprinting,
// but mismatched headers next to a Chrome TLS fingerprint do get flagged.
func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Sec-Ch-Ua", `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`)
	req.Header.Set("Sec-Ch-Ua-Mobile", "?0")
	req.Header.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}
