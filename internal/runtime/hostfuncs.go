package runtime

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/safepkt/internal/syntax"
)

// session holds one file's traversal result while its discovery script
// runs. Node handles cross into Risor as plain ints.
type session struct {
	tree    syntax.Tree
	matches []syntax.AttributeMatch
	result  syntax.Discovery
}

func newSession(tree syntax.Tree, matches []syntax.AttributeMatch) *session {
	return &session{tree: tree, matches: matches}
}

func (s *session) globals() map[string]any {
	return map[string]any{
		"attribute_matches": s.makeAttributeMatchesFn(),
		"next_sibling":      s.makeNextSiblingFn(),
		"node_text":         s.makeNodeTextFn(),
		"node_kind":         s.makeNodeKindFn(),
		"emit_test":         s.makeEmitTestFn(),
		"skip_test":         s.makeSkipTestFn(),
	}
}

// nodeArg converts a script argument to a handle owned by the session tree.
func (s *session) nodeArg(fn string, arg object.Object) (syntax.NodeID, *object.Error) {
	n, err := toInt64(arg)
	if err != nil {
		return syntax.NoNode, object.Errorf("%s: node: %v", fn, err)
	}
	id := syntax.NodeID(n)
	if id < 0 || int(id) >= s.tree.Len() {
		return syntax.NoNode, object.Errorf("%s: unknown node %d", fn, n)
	}
	return id, nil
}

// makeAttributeMatchesFn creates "attribute_matches".
//
// attribute_matches() → [{id, text, parent_kind, row, column}]
func (s *session) makeAttributeMatchesFn() *object.Builtin {
	return object.NewBuiltin("attribute_matches", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("attribute_matches", 0, len(args))
		}
		items := make([]object.Object, 0, len(s.matches))
		for _, m := range s.matches {
			start := s.tree.Span(m.Node).Start
			items = append(items, object.NewMap(map[string]object.Object{
				"id":          object.NewInt(int64(m.Node)),
				"text":        object.NewString(m.Text),
				"parent_kind": object.NewString(m.ParentKind),
				"row":         object.NewInt(int64(start.Row)),
				"column":      object.NewInt(int64(start.Column)),
			}))
		}
		return object.NewList(items)
	})
}

// makeNextSiblingFn creates "next_sibling", returning nil for the last child.
//
// next_sibling(id) → id or nil
func (s *session) makeNextSiblingFn() *object.Builtin {
	return object.NewBuiltin("next_sibling", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("next_sibling", 1, len(args))
		}
		id, errObj := s.nodeArg("next_sibling", args[0])
		if errObj != nil {
			return errObj
		}
		sib, ok := s.tree.NextSibling(id)
		if !ok {
			return object.Nil
		}
		return object.NewInt(int64(sib))
	})
}

// node_text(id) → string
func (s *session) makeNodeTextFn() *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		id, errObj := s.nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		return object.NewString(s.tree.Text(id))
	})
}

// node_kind(id) → string
func (s *session) makeNodeKindFn() *object.Builtin {
	return object.NewBuiltin("node_kind", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_kind", 1, len(args))
		}
		id, errObj := s.nodeArg("node_kind", args[0])
		if errObj != nil {
			return errObj
		}
		return object.NewString(s.tree.Kind(id))
	})
}

// makeEmitTestFn creates "emit_test". Risor cannot construct Go structs, so
// the descriptor is passed as a map and built Go-side.
//
// emit_test({name, row, column, expected_panic})
func (s *session) makeEmitTestFn() *object.Builtin {
	return object.NewBuiltin("emit_test", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit_test", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("emit_test: %v", err)
		}
		name := getString(m, "name")
		if name == "" {
			return object.Errorf("emit_test: name is required")
		}
		s.result.Tests = append(s.result.Tests, syntax.TestDescriptor{
			Name: name,
			Position: syntax.Point{
				Row:    getInt(m, "row"),
				Column: getInt(m, "column"),
			},
			ExpectedPanic: getBool(m, "expected_panic"),
		})
		return object.Nil
	})
}

// skip_test() counts a marker that has no function.
func (s *session) makeSkipTestFn() *object.Builtin {
	return object.NewBuiltin("skip_test", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("skip_test", 0, len(args))
		}
		s.result.Skipped++
		return object.Nil
	})
}

// is_panic_marker(text) → bool
func makeIsPanicMarkerFn() *object.Builtin {
	return object.NewBuiltin("is_panic_marker", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("is_panic_marker", 1, len(args))
		}
		text, err := toString(args[0])
		if err != nil {
			return object.Errorf("is_panic_marker: %v", err)
		}
		return object.NewBool(syntax.IsPanicMarker(text))
	})
}

// function_name(text) → string or nil
func makeFunctionNameFn() *object.Builtin {
	return object.NewBuiltin("function_name", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("function_name", 1, len(args))
		}
		text, err := toString(args[0])
		if err != nil {
			return object.Errorf("function_name: %v", err)
		}
		name, ok := syntax.FunctionName(text)
		if !ok {
			return object.Nil
		}
		return object.NewString(name)
	})
}

// logObject provides log.info/warn/error methods for Risor scripts.
type logObject struct {
	logger *zap.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg)
}

// --- Risor value conversion ---

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	if s, ok := m[key].(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getInt(m map[string]object.Object, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	n, err := toInt64(v)
	if err != nil {
		return 0
	}
	return int(n)
}

func getBool(m map[string]object.Object, key string) bool {
	if b, ok := m[key].(*object.Bool); ok {
		return b.Value()
	}
	return false
}

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
