package multiview

import (
	"fmt"
	"strings"
	"time"
)

// terminator ends every command written to the device. The link layer adds
// CRLF after it.
const terminator = "!"

// Command is an immutable wire command built by Encode.
type Command struct {
	// Name is the logical command name from the table.
	Name string

	// Params are the validated positional parameters.
	Params []int

	// RawLine is the full wire line including the terminator.
	RawLine string

	// Expect holds one entry per expected response line: a lowercase prefix
	// the line must carry, or "" to accept any line.
	Expect []string

	// Timeout is the response deadline, set at admission.
	Timeout time.Duration
}

// Lines returns how many response lines resolve the command.
func (c Command) Lines() int { return len(c.Expect) }

// Encode validates name and params against the command table and builds the
// wire line. It performs no I/O.
//
// Returns ErrInvalidParams (wrapped with detail) for unknown names, wrong
// arity, or out-of-range values.
func Encode(name string, params []int) (Command, error) {
	spec, ok := lookupCommand(name)
	if !ok {
		return Command{}, fmt.Errorf("%w: unknown command %q", ErrInvalidParams, name)
	}
	if len(params) != len(spec.params) {
		return Command{}, fmt.Errorf("%w: %s takes %d parameter(s), got %d",
			ErrInvalidParams, name, len(spec.params), len(params))
	}
	for i, p := range params {
		r := spec.params[i]
		if p < r.min || p > r.max {
			return Command{}, fmt.Errorf("%w: %s parameter %d out of range [%d, %d]: %d",
				ErrInvalidParams, name, i+1, r.min, r.max, p)
		}
	}

	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p
	}

	expect := spec.expect
	if spec.expectFor != nil {
		if override := spec.expectFor(params); override != nil {
			expect = override
		}
	}
	if len(expect) == 0 {
		// Correlation is positional: an undocumented response format still
		// occupies exactly one line.
		expect = []string{""}
	}

	return Command{
		Name:    name,
		Params:  append([]int(nil), params...),
		RawLine: fmt.Sprintf(spec.template, args...) + terminator,
		Expect:  expect,
	}, nil
}

// LineClass categorises one inbound line against the head-of-line command.
type LineClass int

const (
	// LineValue completes a single-line response.
	LineValue LineClass = iota

	// LineSequenceStart is the first line of a multi-line response.
	LineSequenceStart

	// LineContinuation is a subsequent line of a multi-line response.
	LineContinuation

	// LineMismatch matches no expected pattern for the command.
	LineMismatch
)

// Classify matches line against cmd's next expected pattern, given how many
// lines the command has already consumed. Matching is case-insensitive and
// tolerant of trailing CR and whitespace.
func Classify(cmd Command, consumed int, line string) LineClass {
	if consumed >= len(cmd.Expect) {
		return LineMismatch
	}
	if !matchesPrefix(line, cmd.Expect[consumed]) {
		return LineMismatch
	}
	switch {
	case len(cmd.Expect) == 1:
		return LineValue
	case consumed == 0:
		return LineSequenceStart
	default:
		return LineContinuation
	}
}

// matchesPrefix reports whether line carries the expected prefix. An empty
// prefix accepts any line.
func matchesPrefix(line, prefix string) bool {
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(normalize(line), prefix)
}

// normalize lowercases and trims a line for matching and extraction.
func normalize(line string) string {
	return strings.ToLower(strings.TrimSpace(line))
}

// observeLine extracts a cache observation from one consumed response line.
func observeLine(cmd Command, line string) (key, value string, ok bool) {
	spec, found := lookupCommand(cmd.Name)
	if !found || spec.observe == nil {
		return "", "", false
	}
	return spec.observe(cmd.Params, line)
}

// primaryValue returns the first extractable state value from a response.
func primaryValue(cmd Command, lines []string) string {
	for _, line := range lines {
		if _, v, ok := observeLine(cmd, line); ok {
			return v
		}
	}
	return ""
}

// classifyUnsolicited extracts an observation from a line that arrived with
// no pending request. Only distinctive state-bearing patterns match.
func classifyUnsolicited(line string) (key, value string, ok bool) {
	for _, observe := range unsolicitedObservers {
		if k, v, matched := observe(nil, line); matched {
			return k, v, true
		}
	}
	return "", "", false
}
