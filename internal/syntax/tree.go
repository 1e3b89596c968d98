// Package syntax discovers unit tests in Rust source by walking a parsed
// syntax tree. Trees are consumed through the [Tree] interface so the walker
// can run over tree-sitter output ([SitterTree]) or an in-memory [Arena].
package syntax

// NodeID is a handle to a node owned by a Tree. Handles are only meaningful
// for the tree that issued them.
type NodeID int

// NoNode is returned when a tree has no root.
const NoNode NodeID = -1

// Point is a 0-based row/column position.
type Point struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Span is the start and end position of a node.
type Span struct {
	Start Point
	End   Point
}

// Tree is a read-only view over a parsed syntax tree. Valid handles are
// 0 through Len()-1; only handles the tree has issued are valid.
type Tree interface {
	Root() NodeID
	Len() int
	Kind(id NodeID) string
	Span(id NodeID) Span
	Text(id NodeID) string
	FirstChild(id NodeID) (NodeID, bool)
	NextSibling(id NodeID) (NodeID, bool)
}
