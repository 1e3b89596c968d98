package report

import (
	"strings"

	"github.com/jward/safepkt/internal/syntax"
)

// TestOutcome is the verdict the engine reported for one test.
type TestOutcome struct {
	Test   string `json:"test"`
	Passed bool   `json:"passed"`
}

// Report is the structured form of a raw verification log.
type Report struct {
	// Summary is the log reformatted for display.
	Summary string `json:"summary"`
	// Outcomes holds at most one entry per test name, in log order.
	Outcomes []TestOutcome `json:"outcomes"`
	// ExpectedPanics lists tests whose stanza confirms an expected panic.
	ExpectedPanics []string `json:"expected_panics,omitempty"`
	// Reconciled lists tests flipped to passed by panic reconciliation.
	Reconciled []string `json:"reconciled,omitempty"`
}

// Parse builds a Report from raw. Outcomes of tests declared with
// #[should_panic] in descriptors are forced to passed when the log confirms
// the panic occurred. Parse never fails: a log without the expected banner
// and marker yields no outcomes and a summary of the whole log.
func Parse(raw string, descriptors []syntax.TestDescriptor) *Report {
	tokens := Tokenize(raw)

	r := &Report{
		Summary:        summarize(tokens),
		Outcomes:       outcomes(tokens),
		ExpectedPanics: expectedPanics(tokens),
	}
	r.Reconciled = reconcile(r.Outcomes, r.ExpectedPanics, descriptors)
	return r
}

func markerIndex(tokens []Token) int {
	for i, tok := range tokens {
		if tok.Kind == KindMarker {
			return i
		}
	}
	return -1
}

// summarize renders the test section with dot runs compacted to their names,
// then the symbolic execution section with each "Tests" block on its own line.
func summarize(tokens []Token) string {
	marker := markerIndex(tokens)
	if marker < 0 {
		lines := make([]string, len(tokens))
		for i, tok := range tokens {
			lines[i] = tok.Line
		}
		return strings.Join(trimBlank(lines), "\n")
	}

	var testPart []string
	for _, tok := range tokens[:marker] {
		if tok.Kind == KindResultSummary {
			break
		}
		switch tok.Kind {
		case KindTestLine, KindDotRun:
			testPart = append(testPart, strings.TrimSpace(tok.Name))
		default:
			line := strings.TrimLeft(tok.Line, ".")
			if line == "" && tok.Line != "" {
				continue
			}
			testPart = append(testPart, line)
		}
	}

	var symbolicPart []string
	for _, tok := range tokens[marker+1:] {
		symbolicPart = append(symbolicPart, splitBefore(tok.Line, "Tests")...)
	}

	testPart = trimBlank(testPart)
	symbolicPart = trimBlank(symbolicPart)
	switch {
	case len(testPart) == 0:
		return strings.Join(symbolicPart, "\n")
	case len(symbolicPart) == 0:
		return strings.Join(testPart, "\n")
	}
	return strings.Join(testPart, "\n") + "\n\n" + strings.Join(symbolicPart, "\n")
}

// splitBefore breaks line so every occurrence of word after the first
// column starts a new line.
func splitBefore(line, word string) []string {
	var out []string
	for {
		i := strings.Index(line[min(1, len(line)):], word)
		if i < 0 {
			return append(out, line)
		}
		i++
		out = append(out, strings.TrimRight(line[:i], " \t"))
		line = line[i:]
	}
}

// trimBlank drops leading and trailing blank lines.
func trimBlank(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}

// outcomes collects test lines between the first banner and the marker.
func outcomes(tokens []Token) []TestOutcome {
	marker := markerIndex(tokens)
	if marker < 0 {
		return nil
	}
	banner := -1
	for i, tok := range tokens[:marker] {
		if tok.Kind == KindBanner {
			banner = i
			break
		}
	}
	if banner < 0 {
		return nil
	}

	seen := make(map[string]bool)
	var out []TestOutcome
	for _, tok := range tokens[banner+1 : marker] {
		if tok.Kind != KindTestLine || seen[tok.Test] {
			continue
		}
		seen[tok.Test] = true
		out = append(out, TestOutcome{
			Test:   tok.Test,
			Passed: strings.EqualFold(tok.Status, "OK"),
		})
	}
	return out
}

// expectedPanics returns the tests whose stanza contains the panic note. A
// stanza runs from its header to the next header, banner, result summary
// or marker.
func expectedPanics(tokens []Token) []string {
	seen := make(map[string]bool)
	var out []string
	current := ""
	for _, tok := range tokens {
		switch tok.Kind {
		case KindStanzaHeader:
			current = tok.Test
		case KindBanner, KindResultSummary, KindMarker:
			current = ""
		case KindPanicNote:
			if current != "" && !seen[current] {
				seen[current] = true
				out = append(out, current)
			}
		}
	}
	return out
}

// reconcile flips failing outcomes to passed for tests that declared an
// expected panic which the log confirms. Matching is by test name only.
func reconcile(outs []TestOutcome, panicked []string, descriptors []syntax.TestDescriptor) []string {
	expected := make(map[string]bool)
	for _, d := range descriptors {
		if d.ExpectedPanic {
			expected[d.Name] = true
		}
	}
	confirmed := make(map[string]bool, len(panicked))
	for _, name := range panicked {
		confirmed[name] = true
	}

	var flipped []string
	for i := range outs {
		o := &outs[i]
		if o.Passed || !expected[o.Test] || !confirmed[o.Test] {
			continue
		}
		o.Passed = true
		flipped = append(flipped, o.Test)
	}
	return flipped
}
