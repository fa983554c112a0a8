package extract

import (
	"context"
	"regexp"
	"strconv"
	"testing"

	"github.com/0x6d61/timeleech/internal/dbms"
)

// --------------------------------------------------------------------------
// Deterministic fake oracle
// --------------------------------------------------------------------------

var (
	gePredPattern = regexp.MustCompile(`>=\s*(\d+)\s*$`)
	eqPredPattern = regexp.MustCompile(`[^>]=\s*(\d+)\s*$`)
)

// fakeOracle answers predicates as a pure function of a hidden string.
// flipLastSearchStep makes the 7th call per position (the final binary
// search decision) answer incorrectly, exercising candidate verification.
type fakeOracle struct {
	hidden             string
	flipLastSearchStep bool

	calls       int64
	perPosition map[int]int
}

func newFakeOracle(hidden string) *fakeOracle {
	return &fakeOracle{hidden: hidden, perPosition: make(map[int]int)}
}

func (o *fakeOracle) truth(position int, predicate string) bool {
	var cp int
	if position >= 1 && position <= len(o.hidden) {
		cp = int(o.hidden[position-1])
	}

	if m := gePredPattern.FindStringSubmatch(predicate); m != nil {
		k, _ := strconv.Atoi(m[1])
		return position <= len(o.hidden) && cp >= k
	}
	if m := eqPredPattern.FindStringSubmatch(predicate); m != nil {
		k, _ := strconv.Atoi(m[1])
		return position <= len(o.hidden) && cp == k
	}
	return false
}

func (o *fakeOracle) EvaluateAt(ctx context.Context, position int, predicate string) bool {
	o.calls++
	o.perPosition[position]++

	want := o.truth(position, predicate)
	// Only positions inside the hidden string take a full 7-step search;
	// past the end the search collapses in 6, so the flip would land on a
	// verification probe instead.
	if o.flipLastSearchStep && position <= len(o.hidden) && o.perPosition[position] == 7 {
		return !want
	}
	return want
}

func newTestExtractor(o Oracle) *BinaryExtractor {
	return NewBinaryExtractor(o, dbms.Registry("MySQL"), Target{
		Table:  "users",
		Column: "username",
		Where:  "id=1",
	})
}

// --------------------------------------------------------------------------
// ExtractCharacter
// --------------------------------------------------------------------------

func TestExtractCharacter_RecoversKnownBytes(t *testing.T) {
	o := newFakeOracle("admin")
	e := newTestExtractor(o)

	ctx := context.Background()
	for i, want := range []byte("admin") {
		got, ok := e.ExtractCharacter(ctx, i+1)
		if !ok {
			t.Fatalf("position %d: not found, want %q", i+1, want)
		}
		if got != want {
			t.Errorf("position %d = %q, want %q", i+1, got, want)
		}
	}
}

func TestExtractCharacter_PastEndOfString(t *testing.T) {
	o := newFakeOracle("ab")
	e := newTestExtractor(o)

	if _, ok := e.ExtractCharacter(context.Background(), 3); ok {
		t.Error("position past end of string reported found")
	}
}

func TestExtractCharacter_EmptyString(t *testing.T) {
	// Every χ(1) >= k answer is false: high lands below the printable
	// range and the position must be reported not-found.
	o := newFakeOracle("")
	e := newTestExtractor(o)

	if _, ok := e.ExtractCharacter(context.Background(), 1); ok {
		t.Error("empty hidden string reported a found character")
	}
	// 6 search steps plus at most one in-range verification candidate.
	if o.calls > 10 {
		t.Errorf("end-of-string detection took %d oracle calls, want <= 10", o.calls)
	}
}

func TestExtractCharacter_QueryBudget(t *testing.T) {
	// Worst case per character: 7 search steps + 3 verification probes.
	for _, hidden := range []string{" ", "~", "a", "0"} {
		o := newFakeOracle(hidden)
		e := newTestExtractor(o)

		if _, ok := e.ExtractCharacter(context.Background(), 1); !ok {
			t.Fatalf("hidden %q: character not found", hidden)
		}
		if o.calls > 10 {
			t.Errorf("hidden %q: %d oracle calls, want <= 10", hidden, o.calls)
		}
	}
}

func TestExtractCharacter_SearchIsSevenSteps(t *testing.T) {
	// The printable range has 95 values; the search phase never takes
	// more than ⌈log₂ 95⌉ = 7 decisions, and for 'A' (65) it takes all 7.
	o := newFakeOracle("AAAA")
	e := newTestExtractor(o)
	e.Trace = true

	e.ExtractCharacter(context.Background(), 1)

	search := 0
	for _, s := range e.Steps() {
		if gePredPattern.MatchString(s.Predicate) {
			search++
		}
	}
	if search != 7 {
		t.Errorf("search phase used %d decisions, want 7", search)
	}
}

func TestExtractCharacter_VerificationRecoversFlippedDecision(t *testing.T) {
	// The final search decision is answered incorrectly for every
	// position, leaving high off by one. The equality verification pass
	// must still recover every character.
	o := newFakeOracle("ABz")
	o.flipLastSearchStep = true
	e := newTestExtractor(o)

	got := e.ExtractString(context.Background(), 10)
	if got != "ABz" {
		t.Errorf("ExtractString() = %q with one flipped decision per position, want \"ABz\"", got)
	}
}

func TestExtractCharacter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newFakeOracle("admin")
	e := newTestExtractor(o)

	if _, ok := e.ExtractCharacter(ctx, 1); ok {
		t.Error("cancelled extraction reported a found character")
	}
	if o.calls != 0 {
		t.Errorf("cancelled extraction still made %d oracle calls", o.calls)
	}
}

// --------------------------------------------------------------------------
// ExtractString
// --------------------------------------------------------------------------

func TestExtractString_RoundTrip(t *testing.T) {
	tests := []struct {
		hidden    string
		maxLength int
	}{
		{"admin", 5},
		{"admin", 8},
		{"admin", 20},
		{"hello", 100},
		{"A", 1},
		{"", 20},
		{"pa ss~word!", 32},
	}
	for _, tt := range tests {
		o := newFakeOracle(tt.hidden)
		e := newTestExtractor(o)

		if got := e.ExtractString(context.Background(), tt.maxLength); got != tt.hidden {
			t.Errorf("ExtractString(maxLength=%d) = %q, want %q", tt.maxLength, got, tt.hidden)
		}
	}
}

func TestExtractString_MaxLengthTruncates(t *testing.T) {
	o := newFakeOracle("password")
	e := newTestExtractor(o)

	if got := e.ExtractString(context.Background(), 3); got != "pas" {
		t.Errorf("ExtractString(maxLength=3) = %q, want \"pas\"", got)
	}
}

func TestExtractString_QueryAccounting(t *testing.T) {
	o := newFakeOracle("admin")
	e := newTestExtractor(o)
	e.Trace = true

	e.ExtractString(context.Background(), 20)

	if e.TotalQueries() != o.calls {
		t.Errorf("TotalQueries() = %d, oracle saw %d calls", e.TotalQueries(), o.calls)
	}
	if int64(len(e.Steps())) != e.TotalQueries() {
		t.Errorf("len(Steps()) = %d, want TotalQueries()=%d", len(e.Steps()), e.TotalQueries())
	}

	// 5 characters at <= 10 calls each, plus the end-of-string probe
	// round at position 6.
	if o.calls > 60 {
		t.Errorf("extraction of \"admin\" took %d oracle calls, want <= 60", o.calls)
	}
}

func TestExtractString_PartialOnCancel(t *testing.T) {
	// Cancel once 30 oracle calls have been made: each character of
	// "password" takes 8 calls, so that happens after the fourth character
	// and the result is the prefix extracted so far.
	o := newFakeOracle("password")
	e := newTestExtractor(o)

	ctx, cancel := context.WithCancel(context.Background())
	e.OnProgress = func(string) {
		if e.TotalQueries() >= 30 {
			cancel()
		}
	}

	got := e.ExtractString(ctx, 20)
	if len(got) == 0 || len(got) >= len("password") {
		t.Errorf("ExtractString() after cancellation = %q, want a proper prefix", got)
	}
	if got != "password"[:len(got)] {
		t.Errorf("partial result %q is not a prefix of the hidden string", got)
	}
}
