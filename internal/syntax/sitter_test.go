package syntax

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rustTestSource = `pub fn add(a: u32, b: u32) -> u32 { a + b }

#[cfg(test)]
mod tests {
    use super::*;

    #[test]
    fn adds_two() {
        assert_eq!(add(1, 2), 3);
    }

    #[test]
    #[should_panic]
    fn overflows() {
        add(u32::MAX, 1);
    }
}
`

func parseRust(t *testing.T, src string) *SitterTree {
	t.Helper()
	tree, err := Parse(context.Background(), []byte(src), "rust")
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}

func TestSitterTree_DiscoverAll(t *testing.T) {
	t.Parallel()
	tree := parseRust(t, rustTestSource)

	d := Discover(tree, nil)
	assert.Equal(t, []TestDescriptor{
		{Name: "adds_two", Position: Point{Row: 6, Column: 4}},
		{Name: "overflows", Position: Point{Row: 11, Column: 4}, ExpectedPanic: true},
	}, d.Tests)
	assert.Zero(t, d.Skipped)
}

func TestSitterTree_AttributeParentKinds(t *testing.T) {
	t.Parallel()
	tree := parseRust(t, rustTestSource)

	matches := Traverse(tree, nil)
	require.Len(t, matches, 4)
	assert.Equal(t, "#[cfg(test)]", matches[0].Text)
	assert.Equal(t, "source_file", matches[0].ParentKind)
	for _, m := range matches[1:] {
		assert.Equal(t, "declaration_list", m.ParentKind)
	}
}

func TestSitterTree_VisibleWindow(t *testing.T) {
	t.Parallel()
	tree := parseRust(t, rustTestSource)

	// Rows 9-11: the first #[test] (row 6) is outside the window.
	d := Discover(tree, []VisibleRange{{Start: 10, End: 10}})
	require.Len(t, d.Tests, 1)
	assert.Equal(t, "overflows", d.Tests[0].Name)
	assert.True(t, d.Tests[0].ExpectedPanic)
}

func TestSitterTree_MarkerAtEndOfFile(t *testing.T) {
	t.Parallel()
	tree := parseRust(t, "fn helper() {}\n\n#[test]\n")

	var d Discovery
	assert.NotPanics(t, func() { d = Discover(tree, nil) })
	assert.Empty(t, d.Tests)
}

func TestSitterTree_CommentBetweenMarkerAndFunction(t *testing.T) {
	t.Parallel()
	tree := parseRust(t, "#[test]\n// slow on CI\nfn commented() {}\n\n#[test]\nfn plain() {}\n")

	d := Discover(tree, nil)
	require.Len(t, d.Tests, 1)
	assert.Equal(t, "plain", d.Tests[0].Name)
	assert.Equal(t, 1, d.Skipped)
}

func TestSitterTree_IgnoreAttributeIsSkipped(t *testing.T) {
	t.Parallel()
	tree := parseRust(t, "#[test]\n#[ignore]\nfn slow() {}\n")

	d := Discover(tree, nil)
	assert.Empty(t, d.Tests)
	assert.Equal(t, 1, d.Skipped)
}

func TestSitterTree_StableHandles(t *testing.T) {
	t.Parallel()
	tree := parseRust(t, rustTestSource)

	root := tree.Root()
	assert.Equal(t, root, tree.Root())
	first, ok := tree.FirstChild(root)
	require.True(t, ok)
	again, ok := tree.FirstChild(root)
	require.True(t, ok)
	assert.Equal(t, first, again)
	assert.Equal(t, "function_item", tree.Kind(first))
}

func TestSitterTree_LenCountsIssuedHandles(t *testing.T) {
	t.Parallel()
	tree := parseRust(t, rustTestSource)
	assert.Zero(t, tree.Len())

	root := tree.Root()
	assert.Equal(t, 1, tree.Len())
	child, ok := tree.FirstChild(root)
	require.True(t, ok)
	assert.Equal(t, int(child)+1, tree.Len())
}

func TestArena_Len(t *testing.T) {
	t.Parallel()
	a := NewArena("source_file", Rows(0, 3))
	a.Add(a.Root(), AttributeKind, TestMarker, Rows(1, 1))
	assert.Equal(t, 2, a.Len())
}

func TestParse_UnsupportedLanguage(t *testing.T) {
	t.Parallel()
	_, err := Parse(context.Background(), []byte("x"), "cobol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language")
}

func TestLanguageForFile(t *testing.T) {
	t.Parallel()
	lang, ok := LanguageForFile("src/lib.rs")
	assert.True(t, ok)
	assert.Equal(t, "rust", lang)

	_, ok = LanguageForFile("README.md")
	assert.False(t, ok)
}
