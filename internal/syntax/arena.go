package syntax

type arenaNode struct {
	kind       string
	text       string
	span       Span
	firstChild NodeID
	lastChild  NodeID
	next       NodeID
}

// Arena is an in-memory Tree. Nodes are appended in document order with
// Add; the first node added by NewArena is the root.
type Arena struct {
	nodes []arenaNode
}

// NewArena creates an Arena whose root has the given kind and span.
func NewArena(kind string, span Span) *Arena {
	a := &Arena{}
	a.nodes = append(a.nodes, arenaNode{
		kind:       kind,
		span:       span,
		firstChild: NoNode,
		lastChild:  NoNode,
		next:       NoNode,
	})
	return a
}

// Add appends a child to parent after its existing children and returns
// the new node's handle.
func (a *Arena) Add(parent NodeID, kind, text string, span Span) NodeID {
	id := NodeID(len(a.nodes))
	a.nodes = append(a.nodes, arenaNode{
		kind:       kind,
		text:       text,
		span:       span,
		firstChild: NoNode,
		lastChild:  NoNode,
		next:       NoNode,
	})
	p := &a.nodes[parent]
	if p.lastChild == NoNode {
		p.firstChild = id
	} else {
		a.nodes[p.lastChild].next = id
	}
	p.lastChild = id
	return id
}

func (a *Arena) Root() NodeID {
	if len(a.nodes) == 0 {
		return NoNode
	}
	return 0
}

func (a *Arena) Len() int { return len(a.nodes) }

func (a *Arena) Kind(id NodeID) string { return a.nodes[id].kind }
func (a *Arena) Span(id NodeID) Span   { return a.nodes[id].span }
func (a *Arena) Text(id NodeID) string { return a.nodes[id].text }

func (a *Arena) FirstChild(id NodeID) (NodeID, bool) {
	c := a.nodes[id].firstChild
	return c, c != NoNode
}

func (a *Arena) NextSibling(id NodeID) (NodeID, bool) {
	n := a.nodes[id].next
	return n, n != NoNode
}

// Rows is a convenience for building single-line or multi-line spans.
func Rows(start, end int) Span {
	return Span{Start: Point{Row: start}, End: Point{Row: end}}
}
