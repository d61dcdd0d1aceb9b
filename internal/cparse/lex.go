package cparse

import "strings"

// Lex tokenizes src, skipping whitespace, line comments, and block
// comments. Preprocessor directive lines are skipped wholesale: the
// rewriter only targets declarations and expressions, not the
// preprocessor, and a directive line never itself contains a pattern a
// pass needs to rewrite.
func Lex(src []byte) []Token {
	var toks []Token
	i, n := 0, len(src)
	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++

		case c == '/' && i+1 < n && src[i+1] == '/':
			for i < n && src[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && src[i+1] == '*':
			start := i
			i += 2
			for i+1 < n && !(src[i] == '*' && src[i+1] == '/') {
				i++
			}
			i = min(i+2, n)
			_ = start

		case c == '#':
			for i < n && src[i] != '\n' {
				if src[i] == '\\' && i+1 < n && src[i+1] == '\n' {
					i += 2
					continue
				}
				i++
			}

		case isIdentStart(c):
			start := i
			for i < n && isIdentCont(src[i]) {
				i++
			}
			text := string(src[start:i])
			kind := Ident
			if keywords[text] {
				kind = Keyword
			}
			toks = append(toks, Token{Kind: kind, Text: text, Start: start, End: i})

		case isDigit(c):
			start := i
			for i < n && (isIdentCont(src[i]) || src[i] == '.') {
				i++
			}
			toks = append(toks, Token{Kind: Number, Text: string(src[start:i]), Start: start, End: i})

		case c == '"':
			start := i
			i++
			for i < n && src[i] != '"' {
				if src[i] == '\\' {
					i++
				}
				i++
			}
			i = min(i+1, n)
			toks = append(toks, Token{Kind: String, Text: string(src[start:i]), Start: start, End: i})

		case c == '\'':
			start := i
			i++
			for i < n && src[i] != '\'' {
				if src[i] == '\\' {
					i++
				}
				i++
			}
			i = min(i+1, n)
			toks = append(toks, Token{Kind: Char, Text: string(src[start:i]), Start: start, End: i})

		default:
			start := i
			i += punctLen(src[i:])
			toks = append(toks, Token{Kind: Punct, Text: string(src[start:i]), Start: start, End: i})
		}
	}
	return toks
}

var multiCharPuncts = []string{"...", "->", "==", "!=", "<=", ">=", "&&", "||", "++", "--", "::"}

func punctLen(rest []byte) int {
	for _, p := range multiCharPuncts {
		if strings.HasPrefix(string(rest), p) {
			return len(p)
		}
	}
	return 1
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
