package syntax

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// Rust is the only language tests are discovered in.
const Rust = "rust"

// grammars is built on first use; loading a grammar touches cgo.
var grammars = sync.OnceValue(func() map[string]*sitter.Language {
	return map[string]*sitter.Language{Rust: rust.GetLanguage()}
})

// LanguageForFile reports the language of path from its extension.
func LanguageForFile(path string) (string, bool) {
	if strings.EqualFold(filepath.Ext(path), ".rs") {
		return Rust, true
	}
	return "", false
}

// ParserForLanguage returns the tree-sitter grammar for lang.
func ParserForLanguage(lang string) (*sitter.Language, bool) {
	g, ok := grammars()[lang]
	return g, ok
}
