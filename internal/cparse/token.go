// Package cparse is a narrow recursive-descent lexer/parser for the
// slice of C syntax the rewrite passes need to recognize: function
// declarations and definitions, function-pointer-typed declarators,
// and a handful of expression shapes (calls, name references, null
// comparisons, boolean contexts). It is not a conforming C parser —
// it only needs to find these patterns and let the caller splice
// edits into the original source text.
package cparse

// Kind classifies one lexical token.
type Kind int

const (
	EOF Kind = iota
	Ident
	Keyword
	Number
	String
	Char
	Punct
)

// Token is one lexical token with its byte offsets into the source.
type Token struct {
	Kind       Kind
	Text       string
	Start, End int
}

var keywords = map[string]bool{
	"typedef": true, "struct": true, "union": true, "enum": true,
	"void": true, "int": true, "char": true, "short": true, "long": true,
	"float": true, "double": true, "signed": true, "unsigned": true,
	"const": true, "volatile": true, "static": true, "extern": true,
	"if": true, "else": true, "while": true, "for": true, "return": true,
	"sizeof": true, "_Bool": true, "bool": true, "NULL": true,
}
