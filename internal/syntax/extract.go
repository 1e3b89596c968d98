package syntax

import (
	"regexp"
	"strings"
)

// Attribute literals recognised by Extract.
const (
	TestMarker  = "#[test]"
	PanicMarker = "#[should_panic]"
)

// FunctionKind is the node kind of a function declaration.
const FunctionKind = "function_item"

// fnNameRe captures the identifier between `fn` and the parameter list (or
// generic parameter list) of a function declaration.
var fnNameRe = regexp.MustCompile(`\bfn\s+(?:r#)?([A-Za-z_][A-Za-z0-9_]*)\s*[(<]`)

// TestDescriptor is a unit test found in a source file. Position is the
// start of its #[test] attribute.
type TestDescriptor struct {
	Name          string `json:"name"`
	Position      Point  `json:"position"`
	ExpectedPanic bool   `json:"expected_panic"`
}

// Discovery is the result of extracting tests from one traversal. Skipped
// counts #[test] markers that were not followed by a function.
type Discovery struct {
	Tests   []TestDescriptor `json:"tests"`
	Skipped int              `json:"skipped"`
}

// IsPanicMarker reports whether text is a #[should_panic] attribute, with or
// without an expected message.
func IsPanicMarker(text string) bool {
	return text == PanicMarker || strings.HasPrefix(text, "#[should_panic(")
}

// FunctionName returns the declared name of a function item's text.
func FunctionName(text string) (string, bool) {
	m := fnNameRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Extract pairs each #[test] match with the function it decorates. A
// #[should_panic] attribute directly after the marker sets ExpectedPanic and
// is skipped over. Markers without a following function are counted in
// Discovery.Skipped and produce no descriptor.
func Extract(tree Tree, matches []AttributeMatch) Discovery {
	var d Discovery
	for _, m := range matches {
		if m.Text != TestMarker {
			continue
		}
		desc, ok := describe(tree, m)
		if !ok {
			d.Skipped++
			continue
		}
		d.Tests = append(d.Tests, desc)
	}
	return d
}

func describe(tree Tree, m AttributeMatch) (TestDescriptor, bool) {
	desc := TestDescriptor{Position: tree.Span(m.Node).Start}

	sib, ok := tree.NextSibling(m.Node)
	if !ok {
		return desc, false
	}
	if IsPanicMarker(tree.Text(sib)) {
		desc.ExpectedPanic = true
		if sib, ok = tree.NextSibling(sib); !ok {
			return desc, false
		}
	}

	if tree.Kind(sib) != FunctionKind {
		return desc, false
	}
	name, ok := FunctionName(tree.Text(sib))
	if !ok {
		return desc, false
	}
	desc.Name = name
	return desc, true
}

// Discover runs Traverse and Extract over tree.
func Discover(tree Tree, ranges []VisibleRange) Discovery {
	return Extract(tree, Traverse(tree, ranges))
}
