// Package report turns the raw log of a verification job into a readable
// summary and per-test outcomes.
//
// Parsing is two-phase: Tokenize labels every line with one of a fixed set of
// line kinds, and Parse folds the tokens into a Report.
package report

import (
	"regexp"
	"strings"
)

// LineKind labels one line of a raw verification log.
type LineKind int

const (
	KindText LineKind = iota
	KindBanner
	KindTestLine
	KindMarker
	KindResultSummary
	KindStanzaHeader
	KindPanicNote
	KindDotRun
)

var kindNames = map[LineKind]string{
	KindText:          "text",
	KindBanner:        "banner",
	KindTestLine:      "test",
	KindMarker:        "marker",
	KindResultSummary: "result",
	KindStanzaHeader:  "stanza",
	KindPanicNote:     "panic",
	KindDotRun:        "dots",
}

func (k LineKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Token is one classified line.
type Token struct {
	Kind LineKind
	Line string

	// Name is the text before a dot run (KindTestLine, KindDotRun).
	Name string
	// Test is the last path segment of a test (KindTestLine, KindStanzaHeader).
	Test string
	// Status is the word after the dot run (KindTestLine).
	Status string
}

// MarkerToken separates test execution output from symbolic execution output.
const MarkerToken = "VERIF"

// PanicNote is written by the engine in a test's stanza when the test
// panicked as its #[should_panic] attribute declared.
const PanicNote = "Expected panic occurred"

var (
	// Matches "Running 2 tests" or "     Running unittests src/lib.rs"
	bannerRe = regexp.MustCompile(`(?i)^\s*running\b`)
	// Matches "tests::adds_two ... OK" or "test tests::adds_two ... FAILED"
	testLineRe = regexp.MustCompile(`^\s*(?:test\s+)?((?:[A-Za-z0-9_]+::)+([A-Za-z0-9_]+))\s*\.{2,}\s*([A-Za-z]+)\s*$`)
	// Matches "test result: ok. 2 passed; 0 failed"
	resultSummaryRe = regexp.MustCompile(`^\s*test result\b`)
	// Matches "---- tests::overflows stdout ----"
	stanzaHeaderRe = regexp.MustCompile(`^\s*-{3,}\s+(\S+?)(?:\s+stdout)?\s+-{3,}\s*$`)
	// Matches "name.......status"
	dotRunRe = regexp.MustCompile(`^(.*?[^.\s])\s*\.{2,}\s*\S.*$`)
)

// Tokenize classifies every line of raw. CRLF line endings are normalised;
// only the first line containing MarkerToken is a KindMarker.
func Tokenize(raw string) []Token {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")

	tokens := make([]Token, 0, len(lines))
	sawMarker := false
	for _, line := range lines {
		tok := classify(line)
		if tok.Kind == KindMarker {
			if sawMarker {
				tok.Kind = KindText
			}
			sawMarker = true
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func classify(line string) Token {
	tok := Token{Kind: KindText, Line: line}

	switch {
	case strings.Contains(line, MarkerToken):
		tok.Kind = KindMarker
	case strings.Contains(line, PanicNote):
		tok.Kind = KindPanicNote
	case bannerRe.MatchString(line):
		tok.Kind = KindBanner
	case resultSummaryRe.MatchString(line):
		tok.Kind = KindResultSummary
	default:
		if m := stanzaHeaderRe.FindStringSubmatch(line); m != nil {
			tok.Kind = KindStanzaHeader
			tok.Test = lastSegment(m[1])
		} else if m := testLineRe.FindStringSubmatch(line); m != nil {
			tok.Kind = KindTestLine
			tok.Name = m[1]
			tok.Test = m[2]
			tok.Status = m[3]
		} else if m := dotRunRe.FindStringSubmatch(line); m != nil {
			tok.Kind = KindDotRun
			tok.Name = m[1]
		}
	}
	return tok
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "::"); i >= 0 {
		return path[i+2:]
	}
	return path
}
