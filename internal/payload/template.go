// Package payload provides the injection payload template: an opaque
// user-supplied string with a single {condition} slot and an optional
// SLEEP(n) invocation whose argument the engine may rewrite.
package payload

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ConditionSlot is the textual placeholder replaced by a SQL boolean
// expression at instantiation time.
const ConditionSlot = "{condition}"

// DefaultTemplate is used when the user supplies no template. It carries
// no sleep invocation; the oracle appends one to the condition instead.
const DefaultTemplate = "' OR ({condition}) -- -"

// sleepPattern matches SLEEP(n) and PG_SLEEP(n) invocations with a
// positive decimal argument, case-insensitively, preserving the function
// name so a rewrite keeps the original dialect spelling.
var sleepPattern = regexp.MustCompile(`(?i)((?:PG_)?SLEEP)\(\s*[0-9]*\.?[0-9]+\s*\)`)

// Template is a validated injection payload template.
type Template struct {
	raw string
}

// New parses and validates a payload template. The template must contain
// exactly one {condition} slot. A sleep invocation is optional: when the
// template has none, the oracle conjoins one with the condition.
func New(raw string) (*Template, error) {
	if raw == "" {
		raw = DefaultTemplate
	}

	switch n := strings.Count(raw, ConditionSlot); {
	case n == 0:
		return nil, fmt.Errorf("payload: template has no %s slot", ConditionSlot)
	case n > 1:
		return nil, fmt.Errorf("payload: template has %d %s slots, want exactly one", n, ConditionSlot)
	}

	return &Template{raw: raw}, nil
}

// String returns the raw template text.
func (t *Template) String() string {
	return t.raw
}

// HasSleep reports whether the template text carries a sleep invocation.
func (t *Template) HasSleep() bool {
	return sleepPattern.MatchString(t.raw)
}

// WithDelay returns a copy of the template with every sleep invocation's
// argument rewritten to the given number of seconds. A template without a
// sleep invocation is returned unchanged.
func (t *Template) WithDelay(seconds float64) *Template {
	rewritten := sleepPattern.ReplaceAllString(t.raw, "${1}("+FormatSeconds(seconds)+")")
	return &Template{raw: rewritten}
}

// Instantiate substitutes a SQL boolean expression into the condition
// slot, yielding a complete injection payload.
func (t *Template) Instantiate(condition string) string {
	return strings.Replace(t.raw, ConditionSlot, condition, 1)
}

// FormatSeconds renders a delay value the way it appears inside SQL:
// integral values without a decimal point, fractional values as-is.
func FormatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'g', -1, 64)
}

// ContainsSleep reports whether an arbitrary SQL snippet carries a sleep
// invocation. Used by the oracle to decide whether a predicate already
// controls the delay itself.
func ContainsSleep(sql string) bool {
	return strings.Contains(strings.ToUpper(sql), "SLEEP(")
}
