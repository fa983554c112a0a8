package oracle

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/0x6d61/timeleech/internal/transport"
)

// Prober issues one injected request at a time and reports wall-clock
// round-trip seconds. It is the only component that touches the network.
type Prober struct {
	client  transport.Client
	baseURL string
	param   string
	headers map[string]string
	cookies map[string]string
	timeout time.Duration
}

// ProberOptions configures a Prober.
type ProberOptions struct {
	// Param is the query parameter bound to the injected value. Empty
	// means "id".
	Param string

	// Headers are sent on every probe.
	Headers map[string]string

	// Cookies are sent on every probe, so the server sees one session.
	Cookies map[string]string

	// Timeout bounds a single probe. Zero means the client default.
	Timeout time.Duration
}

// NewProber creates a Prober for the given target URL. Any query part of
// the URL is dropped; a fresh query string is built per probe.
func NewProber(client transport.Client, rawURL string, opts ProberOptions) (*Prober, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("oracle: invalid target URL %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("oracle: target URL %q missing scheme or host", rawURL)
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""

	param := opts.Param
	if param == "" {
		param = "id"
	}

	return &Prober{
		client:  client,
		baseURL: parsed.String(),
		param:   param,
		headers: opts.Headers,
		cookies: opts.Cookies,
		timeout: opts.Timeout,
	}, nil
}

// Probe sends one GET request with the payload bound to the configured
// parameter and returns the elapsed wall-clock seconds.
//
// A transport failure still carries timing information: the elapsed time
// up to the failure is returned, so a refused connection or timeout
// contributes a short ("prompt") sample instead of corrupting the run.
func (p *Prober) Probe(ctx context.Context, payloadStr string) float64 {
	q := url.Values{}
	q.Set(p.param, payloadStr)

	req := &transport.Request{
		URL:     p.baseURL + "?" + q.Encode(),
		Headers: p.headers,
		Cookies: p.cookies,
		Timeout: p.timeout,
	}

	start := time.Now()
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return time.Since(start).Seconds()
	}
	return resp.Duration.Seconds()
}

// Samples collects n probe timings for the same payload. Collection stops
// early when the context is cancelled; the samples gathered so far are
// returned. All returned values are finite and non-negative.
func (p *Prober) Samples(ctx context.Context, payloadStr string, n int) []float64 {
	timings := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		timings = append(timings, p.Probe(ctx, payloadStr))
	}
	return timings
}
