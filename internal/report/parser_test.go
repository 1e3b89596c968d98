package report

import (
	"testing"

	"github.com/jward/safepkt/internal/syntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoTestLog = "Running 2 tests\r\n" +
	"suite::a ... OK\r\n" +
	"suite::b ... FAILED\r\n" +
	"test result: FAILED. 1 passed; 1 failed\r\n" +
	"VERIFICATION RESULT\r\n" +
	"KLEE: done: total instructions = 42Tests passed: 1\r\n"

const panicStanza = "---- suite::b stdout ----\n" +
	"thread 'suite::b' panicked at 'attempt to add with overflow'\n" +
	"Expected panic occurred\n"

func TestParse_PassAndFail(t *testing.T) {
	t.Parallel()
	r := Parse(twoTestLog, nil)

	assert.Equal(t, []TestOutcome{
		{Test: "a", Passed: true},
		{Test: "b", Passed: false},
	}, r.Outcomes)
	assert.Empty(t, r.Reconciled)
	assert.Empty(t, r.ExpectedPanics)
}

func TestParse_ExpectedPanicReconciled(t *testing.T) {
	t.Parallel()
	descriptors := []syntax.TestDescriptor{
		{Name: "a"},
		{Name: "b", ExpectedPanic: true},
	}

	r := Parse(twoTestLog+panicStanza, descriptors)

	require.Len(t, r.Outcomes, 2)
	assert.True(t, r.Outcomes[0].Passed)
	assert.True(t, r.Outcomes[1].Passed, "expected panic must count as a pass")
	assert.Equal(t, []string{"b"}, r.Reconciled)
	assert.Equal(t, []string{"b"}, r.ExpectedPanics)
}

func TestParse_PanicWithoutDeclaration(t *testing.T) {
	t.Parallel()
	// The stanza says the panic occurred but the test never declared
	// #[should_panic]: the failure stands.
	r := Parse(twoTestLog+panicStanza, []syntax.TestDescriptor{{Name: "b"}})

	require.Len(t, r.Outcomes, 2)
	assert.False(t, r.Outcomes[1].Passed)
	assert.Empty(t, r.Reconciled)
}

func TestParse_DeclaredPanicWithoutStanza(t *testing.T) {
	t.Parallel()
	r := Parse(twoTestLog, []syntax.TestDescriptor{{Name: "b", ExpectedPanic: true}})

	require.Len(t, r.Outcomes, 2)
	assert.False(t, r.Outcomes[1].Passed)
}

func TestParse_StanzaForOtherTest(t *testing.T) {
	t.Parallel()
	log := twoTestLog +
		"---- suite::a stdout ----\n" +
		"Expected panic occurred\n" +
		"---- suite::b stdout ----\n" +
		"thread 'suite::b' panicked at 'unexpected'\n"

	r := Parse(log, []syntax.TestDescriptor{{Name: "b", ExpectedPanic: true}})
	assert.Equal(t, []string{"a"}, r.ExpectedPanics)
	assert.False(t, r.Outcomes[1].Passed)
}

func TestParse_OneOutcomePerName(t *testing.T) {
	t.Parallel()
	log := "running 3 tests\n" +
		"test tests::a ... ok\n" +
		"test other::a ... FAILED\n" +
		"test tests::nested::c ... ok\n" +
		"VERIF\n"

	r := Parse(log, nil)
	assert.Equal(t, []TestOutcome{
		{Test: "a", Passed: true},
		{Test: "c", Passed: true},
	}, r.Outcomes)
}

func TestParse_IgnoresTestLinesOutsideBlock(t *testing.T) {
	t.Parallel()
	log := "suite::early ... OK\n" +
		"Running 1 test\n" +
		"suite::inside ... OK\n" +
		"VERIFICATION\n" +
		"suite::late ... OK\n"

	r := Parse(log, nil)
	assert.Equal(t, []TestOutcome{{Test: "inside", Passed: true}}, r.Outcomes)
}

func TestParse_NoMarker(t *testing.T) {
	t.Parallel()
	log := "Running 1 test\r\nsuite::a ... OK\r\nsomething went wrong\r\n\r\n"

	r := Parse(log, nil)
	assert.Empty(t, r.Outcomes)
	assert.Equal(t, "Running 1 test\nsuite::a ... OK\nsomething went wrong", r.Summary)
}

func TestParse_NoBanner(t *testing.T) {
	t.Parallel()
	r := Parse("suite::a ... OK\nVERIFICATION\n", nil)
	assert.Empty(t, r.Outcomes)
}

func TestParse_EmptyLog(t *testing.T) {
	t.Parallel()
	var r *Report
	assert.NotPanics(t, func() { r = Parse("", nil) })
	assert.Empty(t, r.Outcomes)
	assert.Empty(t, r.Summary)
}

func TestParse_Summary(t *testing.T) {
	t.Parallel()
	r := Parse(twoTestLog, nil)

	assert.Equal(t, "Running 2 tests\n"+
		"suite::a\n"+
		"suite::b\n"+
		"\n"+
		"KLEE: done: total instructions = 42\n"+
		"Tests passed: 1", r.Summary)
}

func TestParse_SummaryCompactsDotRuns(t *testing.T) {
	t.Parallel()
	log := "......\n" +
		"Compiling contract.......done\n" +
		"Running 1 test\n" +
		"suite::a ... OK\n" +
		"test result: ok. 1 passed\n" +
		"trailing noise after the result line\n" +
		"VERIFICATION\n" +
		"KLEE: done\n"

	r := Parse(log, nil)
	assert.Equal(t, "Compiling contract\nRunning 1 test\nsuite::a\n\nKLEE: done", r.Summary)
}

func TestTokenize_Kinds(t *testing.T) {
	t.Parallel()
	log := "Running 2 tests\n" +
		"test suite::a ... OK\n" +
		"name.....done\n" +
		"test result: ok\n" +
		"VERIFICATION\n" +
		"VERIFICATION again\n" +
		"---- suite::b stdout ----\n" +
		"Expected panic occurred\n" +
		"plain"

	var kinds []LineKind
	for _, tok := range Tokenize(log) {
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []LineKind{
		KindBanner, KindTestLine, KindDotRun, KindResultSummary,
		KindMarker, KindText, KindStanzaHeader, KindPanicNote, KindText,
	}, kinds)
}

func TestTokenize_TestLineFields(t *testing.T) {
	t.Parallel()
	toks := Tokenize("test tests::nested::adds_two ... FAILED")
	require.Len(t, toks, 1)
	tok := toks[0]
	assert.Equal(t, KindTestLine, tok.Kind)
	assert.Equal(t, "tests::nested::adds_two", tok.Name)
	assert.Equal(t, "adds_two", tok.Test)
	assert.Equal(t, "FAILED", tok.Status)
}

func TestLineKind_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "marker", KindMarker.String())
	assert.Equal(t, "unknown", LineKind(99).String())
}

func TestSplitBefore(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "Tests 1", "Tests 2"}, splitBefore("a Tests 1 Tests 2", "Tests"))
	assert.Equal(t, []string{"Tests only"}, splitBefore("Tests only", "Tests"))
	assert.Equal(t, []string{""}, splitBefore("", "Tests"))
}
