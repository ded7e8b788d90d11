// ABOUTME: HTTP plumbing for opening audio streams
// ABOUTME: Client tuning, ICY request headers and response validation
package engine

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/streamprobe/streamprobe-go/internal/version"
	"github.com/streamprobe/streamprobe-go/pkg/probe"
)

// streamClient is tuned for long-lived audio streams: no overall
// request timeout, but bounded dial and response-header phases.
var streamClient = &http.Client{
	Timeout: 0,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    true,
	},
}

// openStream issues the GET for rawURL and validates the response. The
// caller owns resp.Body on success. Icy-MetaData is always requested;
// servers that do not speak ICY ignore it.
func openStream(ctx context.Context, rawURL string) (*http.Response, *probe.EngineError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &probe.EngineError{Kind: "connect", Message: "building stream request failed", Cause: err}
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Icy-MetaData", "1")

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, &probe.EngineError{Kind: "connect", Message: "connecting to stream failed", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		status := resp.Status
		resp.Body.Close()
		return nil, &probe.EngineError{Kind: "http_status", Message: status}
	}
	return resp, nil
}

// streamInfoFromHeaders builds a StreamInfo from ICY response headers.
// Absent headers leave their fields zero.
func streamInfoFromHeaders(h http.Header) *probe.StreamInfo {
	info := &probe.StreamInfo{
		Name:        h.Get("icy-name"),
		Genre:       h.Get("icy-genre"),
		ContentType: h.Get("Content-Type"),
	}
	if br, err := strconv.Atoi(strings.TrimSpace(h.Get("icy-br"))); err == nil {
		info.BitrateKbps = br
	}
	return info
}

// metaInterval returns the ICY metadata interval, or 0 when the server
// did not negotiate one.
func metaInterval(h http.Header) int {
	n, err := strconv.Atoi(strings.TrimSpace(h.Get("icy-metaint")))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
