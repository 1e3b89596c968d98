package syntax

import "slices"

// AttributeKind is the node kind of an outer attribute such as #[test].
const AttributeKind = "attribute_item"

// VisibleRange is an inclusive row interval, typically the rows an editor
// currently displays.
type VisibleRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// overlaps reports whether s intersects r widened by one row on each side.
func (r VisibleRange) overlaps(s Span) bool {
	return s.Start.Row <= r.End+1 && r.Start-1 <= s.End.Row
}

// Visible reports whether s overlaps any of ranges. An empty range set
// makes every node visible.
func Visible(s Span, ranges []VisibleRange) bool {
	if len(ranges) == 0 {
		return true
	}
	for _, r := range ranges {
		if r.overlaps(s) {
			return true
		}
	}
	return false
}

// AttributeMatch is an attribute node found by Traverse together with the
// kind of the node that contains it.
type AttributeMatch struct {
	Node       NodeID
	Text       string
	ParentKind string
}

type frame struct {
	node       NodeID
	parentKind string
}

type matchKey struct {
	node NodeID
	text string
}

// Traverse walks tree in preorder and returns every visible attribute node in
// document order. Subtrees outside ranges are pruned without visiting their
// descendants; their siblings are still walked. The root itself is never
// reported.
func Traverse(tree Tree, ranges []VisibleRange) []AttributeMatch {
	root := tree.Root()
	if root == NoNode {
		return nil
	}

	stack := pushChildren(tree, nil, root, tree.Kind(root))
	seen := make(map[matchKey]bool)
	var matches []AttributeMatch

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !Visible(tree.Span(f.node), ranges) {
			continue
		}

		kind := tree.Kind(f.node)
		if kind == AttributeKind {
			text := tree.Text(f.node)
			key := matchKey{node: f.node, text: text}
			if !seen[key] {
				seen[key] = true
				matches = append(matches, AttributeMatch{
					Node:       f.node,
					Text:       text,
					ParentKind: f.parentKind,
				})
			}
		}

		stack = pushChildren(tree, stack, f.node, kind)
	}
	return matches
}

// pushChildren pushes parent's children so the first child is popped first.
func pushChildren(tree Tree, stack []frame, parent NodeID, parentKind string) []frame {
	start := len(stack)
	for c, ok := tree.FirstChild(parent); ok; c, ok = tree.NextSibling(c) {
		stack = append(stack, frame{node: c, parentKind: parentKind})
	}
	slices.Reverse(stack[start:])
	return stack
}
