package engine

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/0x6d61/timeleech/internal/transport"
)

// --------------------------------------------------------------------------
// Mock transport client
// --------------------------------------------------------------------------

var (
	gePattern = regexp.MustCompile(`(?i)ASCII\(SUBSTRING\(\(.*\),(\d+),1\)\)\s*>=\s*(\d+)`)
	eqPattern = regexp.MustCompile(`(?i)ASCII\(SUBSTRING\(\(.*\),(\d+),1\)\)\s*=\s*(\d+)`)
)

// hiddenStringClient simulates a time-based injectable endpoint whose
// secret is a fixed string. Delays are reported in the response Duration
// without real sleeps.
type hiddenStringClient struct {
	hidden   string
	delay    time.Duration
	requests int64
}

func (c *hiddenStringClient) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	c.requests++

	parsed, _ := url.Parse(req.URL)
	payloadStr := parsed.Query().Get("id")

	duration := 5*time.Millisecond + time.Duration(c.requests%5)*100*time.Microsecond
	if c.predicateHolds(payloadStr) && strings.Contains(strings.ToUpper(payloadStr), "SLEEP(") {
		duration += c.delay
	}

	return &transport.Response{StatusCode: 200, Duration: duration}, nil
}

func (c *hiddenStringClient) predicateHolds(payloadStr string) bool {
	if m := gePattern.FindStringSubmatch(payloadStr); m != nil {
		pos, _ := strconv.Atoi(m[1])
		val, _ := strconv.Atoi(m[2])
		return pos >= 1 && pos <= len(c.hidden) && int(c.hidden[pos-1]) >= val
	}
	if m := eqPattern.FindStringSubmatch(payloadStr); m != nil {
		pos, _ := strconv.Atoi(m[1])
		val, _ := strconv.Atoi(m[2])
		return pos >= 1 && pos <= len(c.hidden) && int(c.hidden[pos-1]) == val
	}
	if strings.Contains(payloadStr, "1=0") {
		return false
	}
	return strings.Contains(payloadStr, "1=1")
}

func (c *hiddenStringClient) SetProxy(_ string) error          { return nil }
func (c *hiddenStringClient) SetRateLimit(_ float64)           {}
func (c *hiddenStringClient) Stats() *transport.TransportStats { return &transport.TransportStats{} }

func newTestSession(t *testing.T, client transport.Client, mutate func(*Config)) *Session {
	t.Helper()

	cfg := DefaultConfig()
	cfg.URL = "http://example.test/vulnerable?id=1"
	cfg.Delay = 2.0
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := NewSession(client, cfg)
	if err != nil {
		t.Fatalf("NewSession() returned error: %v", err)
	}
	return s
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

func TestNewSession_InvalidURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "not-a-url"

	if _, err := NewSession(&hiddenStringClient{}, cfg); err == nil {
		t.Error("expected error for URL without scheme or host")
	}
}

func TestNewSession_MissingURL(t *testing.T) {
	if _, err := NewSession(&hiddenStringClient{}, DefaultConfig()); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestNewSession_MalformedTemplate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "http://example.test/x"
	cfg.Template = "' OR 1=1 -- -" // no {condition} slot

	if _, err := NewSession(&hiddenStringClient{}, cfg); err == nil {
		t.Error("expected error for template without {condition} slot")
	}
}

func TestNewSession_AssignsRunID(t *testing.T) {
	s := newTestSession(t, &hiddenStringClient{hidden: "x"}, nil)
	if s.ID == "" {
		t.Error("session has no run ID")
	}
}

// --------------------------------------------------------------------------
// Extraction
// --------------------------------------------------------------------------

func TestExtract_Sequential(t *testing.T) {
	client := &hiddenStringClient{hidden: "admin", delay: 2 * time.Second}
	s := newTestSession(t, client, nil)

	res, err := s.Extract(context.Background(), "users", "username", "id=1", 20)
	if err != nil {
		t.Fatalf("Extract() returned error: %v", err)
	}

	if res.Value != "admin" {
		t.Errorf("Value = %q, want \"admin\"", res.Value)
	}
	if res.Partial {
		t.Error("Partial = true for a completed extraction")
	}
	if res.Queries == 0 {
		t.Error("Queries = 0, want the probe count")
	}
	if res.Delay != 2.0 {
		t.Errorf("Delay = %v, want 2.0", res.Delay)
	}
	if res.ID != s.ID {
		t.Errorf("result ID %q does not match session ID %q", res.ID, s.ID)
	}
}

func TestExtract_Parallel(t *testing.T) {
	client := &hiddenStringClient{hidden: "hello", delay: 2 * time.Second}
	s := newTestSession(t, client, func(c *Config) {
		c.Parallel = true
		c.Workers = 4
		c.ChunkSize = 4
	})

	res, err := s.Extract(context.Background(), "users", "username", "id=1", 20)
	if err != nil {
		t.Fatalf("Extract() returned error: %v", err)
	}
	if res.Value != "hello" {
		t.Errorf("parallel Value = %q, want \"hello\"", res.Value)
	}
}

func TestExtract_EmptyHiddenString(t *testing.T) {
	client := &hiddenStringClient{hidden: "", delay: 2 * time.Second}
	s := newTestSession(t, client, nil)

	res, err := s.Extract(context.Background(), "users", "username", "id=99", 20)
	if err != nil {
		t.Fatalf("Extract() returned error: %v", err)
	}
	if res.Value != "" {
		t.Errorf("Value = %q, want \"\"", res.Value)
	}
}

func TestExtract_TraceRecords(t *testing.T) {
	client := &hiddenStringClient{hidden: "ab", delay: 2 * time.Second}
	s := newTestSession(t, client, func(c *Config) { c.Trace = true })

	res, err := s.Extract(context.Background(), "users", "username", "id=1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trace) == 0 {
		t.Error("Trace is empty with tracing enabled")
	}
	var sampleTotal int64
	for _, rec := range res.Trace {
		sampleTotal += int64(len(rec.Samples))
	}
	// Queries = baseline + every traced probe sample.
	if res.Queries != sampleTotal+15 {
		t.Errorf("Queries = %d, want %d traced samples + 15 baseline", res.Queries, sampleTotal)
	}
}

func TestExtract_CancelledReturnsPartial(t *testing.T) {
	client := &hiddenStringClient{hidden: "password", delay: 2 * time.Second}
	s := newTestSession(t, client, nil)

	ctx, cancel := context.WithCancel(context.Background())

	chars := 0
	s.SetProgressCallback(func(msg string) {
		if strings.Contains(msg, "extracted so far") {
			chars++
			if chars == 3 {
				cancel()
			}
		}
	})

	res, err := s.Extract(ctx, "users", "password", "id=1", 20)
	if err != nil {
		t.Fatalf("Extract() returned error: %v", err)
	}
	if !res.Partial {
		t.Error("Partial = false after cancellation")
	}
	if !strings.HasPrefix("password", res.Value) || res.Value == "password" {
		t.Errorf("Value = %q, want a proper prefix of \"password\"", res.Value)
	}
}

func TestExtractUserData_StopsOnEmptyUsername(t *testing.T) {
	client := &hiddenStringClient{hidden: "", delay: 2 * time.Second}
	s := newTestSession(t, client, nil)

	creds, err := s.ExtractUserData(context.Background(), "users", "username", "password", 5)
	if err != nil {
		t.Fatalf("ExtractUserData() returned error: %v", err)
	}
	if len(creds) != 0 {
		t.Errorf("got %d credentials from an empty table, want 0", len(creds))
	}
}
