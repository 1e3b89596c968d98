package syntax

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// SitterTree adapts a tree-sitter tree to Tree. Handles are issued lazily as
// nodes are reached, so pruned subtrees never allocate handles.
//
// A SitterTree is not safe for concurrent use.
type SitterTree struct {
	tree  *sitter.Tree
	src   []byte
	nodes []*sitter.Node
	ids   map[*sitter.Node]NodeID
}

// NewSitterTree wraps tree, whose source bytes are src.
func NewSitterTree(tree *sitter.Tree, src []byte) *SitterTree {
	return &SitterTree{
		tree: tree,
		src:  src,
		ids:  make(map[*sitter.Node]NodeID),
	}
}

// Parse parses src with the grammar registered for lang.
func Parse(ctx context.Context, src []byte, lang string) (*SitterTree, error) {
	grammar, ok := ParserForLanguage(lang)
	if !ok {
		return nil, fmt.Errorf("syntax: unsupported language %q", lang)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("syntax: parse: %w", err)
	}
	return NewSitterTree(tree, src), nil
}

// Close releases the underlying tree-sitter tree.
func (t *SitterTree) Close() {
	t.tree.Close()
}

// Source returns the bytes the tree was parsed from.
func (t *SitterTree) Source() []byte { return t.src }

// handle returns the NodeID for n, issuing one on first sight. smacker's
// tree caches Node wrappers, so pointer identity is stable per tree.
func (t *SitterTree) handle(n *sitter.Node) NodeID {
	if id, ok := t.ids[n]; ok {
		return id
	}
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, n)
	t.ids[n] = id
	return id
}

func (t *SitterTree) Root() NodeID {
	root := t.tree.RootNode()
	if root == nil {
		return NoNode
	}
	return t.handle(root)
}

// Len is the number of handles issued so far.
func (t *SitterTree) Len() int { return len(t.nodes) }

func (t *SitterTree) Kind(id NodeID) string { return t.nodes[id].Type() }

func (t *SitterTree) Span(id NodeID) Span {
	n := t.nodes[id]
	sp, ep := n.StartPoint(), n.EndPoint()
	return Span{
		Start: Point{Row: int(sp.Row), Column: int(sp.Column)},
		End:   Point{Row: int(ep.Row), Column: int(ep.Column)},
	}
}

func (t *SitterTree) Text(id NodeID) string { return t.nodes[id].Content(t.src) }

func (t *SitterTree) FirstChild(id NodeID) (NodeID, bool) {
	n := t.nodes[id]
	if n.ChildCount() == 0 {
		return NoNode, false
	}
	c := n.Child(0)
	if c == nil {
		return NoNode, false
	}
	return t.handle(c), true
}

func (t *SitterTree) NextSibling(id NodeID) (NodeID, bool) {
	s := t.nodes[id].NextSibling()
	if s == nil {
		return NoNode, false
	}
	return t.handle(s), true
}
