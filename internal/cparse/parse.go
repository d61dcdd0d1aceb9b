package cparse

import "strings"

// Parse builds a File from src: declaration-level nodes for every
// top-level typedef, function declaration/definition, and variable
// declaration, plus the token stream itself for expression-level scans.
func Parse(src []byte) *File {
	toks := Lex(src)
	f := &File{Tokens: toks, Src: src, Macros: FuncLikeMacros(src)}

	i := 0
	for i < len(toks) {
		// Skip a bare ';' left over from a previous declaration.
		if toks[i].Kind == Punct && toks[i].Text == ";" {
			i++
			continue
		}
		if toks[i].Kind == Keyword && toks[i].Text == "typedef" {
			next, ok := parseTypedef(toks, i, f)
			if ok {
				i = next
				continue
			}
		}
		next, ok := parseDeclOrSkip(toks, i, f)
		i = next
		if !ok {
			// Could not classify; avoid an infinite loop by always
			// advancing at least one token.
			if i == 0 {
				i = 1
			}
		}
	}
	return f
}

// declEnd finds the end of one top-level declaration starting at i:
// either the index just past a top-level ';', or just past a balanced
// '{...}' body (for a function definition), skipping over any nested
// balanced groups along the way.
func declEnd(toks []Token, i int) (bodyStart, bodyEnd, stop int) {
	depth := 0
	for j := i; j < len(toks); j++ {
		t := toks[j]
		if t.Kind != Punct {
			continue
		}
		switch t.Text {
		case "(", "[":
			depth++
		case ")", "]":
			depth--
		case "{":
			if depth == 0 {
				end := skipBraces(toks, j)
				return j, end, end
			}
			depth++
		case "}":
			depth--
		case ";":
			if depth == 0 {
				return 0, 0, j + 1
			}
		}
	}
	return 0, 0, len(toks)
}

// skipBraces returns the index just past the '}' matching the '{' at
// toks[i].
func skipBraces(toks []Token, i int) int {
	depth := 0
	for j := i; j < len(toks); j++ {
		if toks[j].Kind != Punct {
			continue
		}
		switch toks[j].Text {
		case "{":
			depth++
		case "}":
			depth--
			if depth == 0 {
				return j + 1
			}
		}
	}
	return len(toks)
}

// parseTypedef handles `typedef <type> <declarator>;`, recognizing the
// function-pointer-typedef shape `typedef Ret (*Name)(Params);` and the
// plain shape `typedef Base Name;`.
func parseTypedef(toks []Token, i int, f *File) (int, bool) {
	_, _, stop := declEnd(toks, i)
	body := toks[i+1 : stop-1] // drop 'typedef' and trailing ';'

	declStart, declEnd := 0, 0
	if len(body) > 0 {
		declStart, declEnd = body[0].Start, body[len(body)-1].End
	}

	if fp, name, ok := parseFuncPointerDeclarator(body); ok {
		f.Typedefs = append(f.Typedefs, TypedefDecl{Name: name, Type: TypeRef{FuncPtr: fp}, DeclStart: declStart, DeclEnd: declEnd})
		return stop, true
	}

	if len(body) >= 2 {
		name := body[len(body)-1]
		if name.Kind == Ident {
			base := joinText(body[:len(body)-1])
			f.Typedefs = append(f.Typedefs, TypedefDecl{Name: name.Text, Type: TypeRef{Base: base}, DeclStart: declStart, DeclEnd: declEnd})
			return stop, true
		}
	}
	return stop, true
}

// parseDeclOrSkip classifies one declaration starting at i as a
// function declaration/definition or a variable declaration, appending
// to f, and returns the index just past it.
func parseDeclOrSkip(toks []Token, i int, f *File) (int, bool) {
	bodyStart, bodyEnd, stop := declEnd(toks, i)
	if bodyStart != 0 {
		// Function definition: declarator runs up to (not including)
		// the '{'.
		declTokens := toks[i:bodyStart]
		if fd, ok := parseFuncDeclarator(declTokens); ok {
			fd.IsDefinition = true
			fd.BodyStart = toks[bodyStart].Start
			fd.BodyEnd = toks[bodyEnd-1].End
			f.FuncDecls = append(f.FuncDecls, fd)
			return bodyEnd, true
		}
		return bodyEnd, false
	}

	// Non-definition: declTokens spans up to but excluding the
	// terminating ';'.
	declTokens := toks[i : stop-1]
	if fd, ok := parseFuncDeclarator(declTokens); ok {
		f.FuncDecls = append(f.FuncDecls, fd)
		return stop, true
	}
	if vd, ok := parseVarDeclarator(declTokens); ok {
		f.VarDecls = append(f.VarDecls, vd)
		return stop, true
	}
	return stop, false
}

// parseFuncDeclarator recognizes `[attrs] RetType [*] name(params)` with
// no trailing '=' or ';' consumed (declTokens excludes them already).
func parseFuncDeclarator(declTokens []Token) (FuncDecl, bool) {
	declStart := 0
	if len(declTokens) > 0 {
		declStart = declTokens[0].Start
	}
	toks, skipWrap := stripAttributes(declTokens)
	if len(toks) == 0 || toks[len(toks)-1].Kind != Punct || toks[len(toks)-1].Text != ")" {
		return FuncDecl{}, false
	}
	close := len(toks) - 1
	open := matchParenBack(toks, close)
	if open <= 0 {
		return FuncDecl{}, false
	}
	nameTok := toks[open-1]
	if nameTok.Kind != Ident {
		return FuncDecl{}, false
	}
	// Reject a function-pointer declarator `(*name)` being mistaken for
	// a direct function declarator: that case has '*' then the ident
	// wrapped in its own parens, handled by parseFuncPointerDeclarator.
	if open >= 2 && toks[open-2].Kind == Punct && toks[open-2].Text == "(" {
		return FuncDecl{}, false
	}
	params, variadic := parseParams(toks[open+1 : close])
	retBase := joinText(toks[:open-1])
	return FuncDecl{
		Name:      nameTok.Text,
		Return:    TypeRef{Base: retBase},
		Params:    params,
		Variadic:  variadic,
		SkipWrap:  skipWrap,
		DeclStart: declStart,
		NameStart: nameTok.Start,
		NameEnd:   nameTok.End,
	}, true
}

// parseFuncPointerDeclarator recognizes `RetType (*name)(params)`
// anywhere in toks (used both for typedefs and for variable/field
// declarations of function-pointer type).
func parseFuncPointerDeclarator(toks []Token) (*FuncType, string, bool) {
	for j := 0; j+1 < len(toks); j++ {
		if !(toks[j].Kind == Punct && toks[j].Text == "(" && toks[j+1].Kind == Punct && toks[j+1].Text == "*") {
			continue
		}
		nameIdx := j + 2
		if nameIdx >= len(toks) || toks[nameIdx].Kind != Ident {
			continue
		}
		closeStar := nameIdx + 1
		if closeStar >= len(toks) || !(toks[closeStar].Kind == Punct && toks[closeStar].Text == ")") {
			continue
		}
		openParams := closeStar + 1
		if openParams >= len(toks) || !(toks[openParams].Kind == Punct && toks[openParams].Text == "(") {
			continue
		}
		closeParams := matchParen(toks, openParams)
		if closeParams < 0 {
			continue
		}
		params, variadic := parseParams(toks[openParams+1 : closeParams])
		retBase := joinText(toks[:j])
		paramTypes := make([]TypeRef, len(params))
		for k, p := range params {
			paramTypes[k] = p.Type
		}
		return &FuncType{Return: &TypeRef{Base: retBase}, Params: paramTypes, Variadic: variadic}, toks[nameIdx].Text, true
	}
	return nil, "", false
}

// parseVarDeclarator recognizes a variable/field declaration, either
// plain (`Base *name;` / `Base name;`) or function-pointer typed
// (`Base (*name)(params);`), with an optional `= init` initializer.
func parseVarDeclarator(declTokens []Token) (VarDecl, bool) {
	eq := -1
	for j, t := range declTokens {
		if t.Kind == Punct && t.Text == "=" {
			eq = j
			break
		}
	}
	decl := declTokens
	if eq >= 0 {
		decl = declTokens[:eq]
	}
	declStart, declEnd := 0, 0
	if len(decl) > 0 {
		declStart, declEnd = decl[0].Start, decl[len(decl)-1].End
	}

	if fp, name, ok := parseFuncPointerDeclarator(decl); ok {
		vd := VarDecl{Name: name, Type: TypeRef{FuncPtr: fp}, DeclStart: declStart, DeclEnd: declEnd}
		if eq >= 0 {
			initToks := declTokens[eq+1:]
			if len(initToks) > 0 {
				vd.HasInitializer = true
				vd.InitStart = initToks[0].Start
				vd.InitEnd = initToks[len(initToks)-1].End
			}
		}
		return vd, true
	}

	ptrDepth := 0
	end := len(decl)
	for end > 0 && decl[end-1].Kind == Punct && decl[end-1].Text == "*" {
		ptrDepth++
		end--
	}
	if end == 0 || decl[end-1].Kind != Ident {
		return VarDecl{}, false
	}
	name := decl[end-1]
	base := joinText(decl[:end-1])
	if strings.TrimSpace(base) == "" {
		return VarDecl{}, false
	}
	vd := VarDecl{Name: name.Text, Type: TypeRef{Base: base, Pointer: ptrDepth}, DeclStart: declStart, DeclEnd: declEnd}
	if eq >= 0 {
		initToks := declTokens[eq+1:]
		if len(initToks) > 0 {
			vd.HasInitializer = true
			vd.InitStart = initToks[0].Start
			vd.InitEnd = initToks[len(initToks)-1].End
		}
	}
	return vd, true
}

// parseParams splits a parameter token list on top-level commas and
// parses each as "Type [name]", recognizing "..." as the variadic
// marker and a lone "void" as zero parameters.
func parseParams(toks []Token) ([]Param, bool) {
	if len(toks) == 0 {
		return nil, false
	}
	if len(toks) == 1 && toks[0].Kind == Keyword && toks[0].Text == "void" {
		return nil, false
	}
	groups := splitTopLevel(toks, ",")
	var params []Param
	variadic := false
	for _, g := range groups {
		if len(g) == 1 && g[0].Kind == Punct && g[0].Text == "..." {
			variadic = true
			continue
		}
		pStart, pEnd := 0, 0
		if len(g) > 0 {
			pStart, pEnd = g[0].Start, g[len(g)-1].End
		}
		if fp, name, ok := parseFuncPointerDeclarator(g); ok {
			params = append(params, Param{Name: name, Type: TypeRef{FuncPtr: fp}, Start: pStart, End: pEnd})
			continue
		}
		end := len(g)
		ptrDepth := 0
		for end > 0 && g[end-1].Kind == Punct && g[end-1].Text == "*" {
			ptrDepth++
			end--
		}
		name := ""
		baseEnd := end
		if end > 0 && g[end-1].Kind == Ident && !isTypeKeywordOnly(g[:end]) {
			name = g[end-1].Text
			baseEnd = end - 1
		}
		params = append(params, Param{Name: name, Type: TypeRef{Base: joinText(g[:baseEnd]), Pointer: ptrDepth}, Start: pStart, End: pEnd})
	}
	return params, variadic
}

// isTypeKeywordOnly reports whether toks is exactly one base-type
// token with nothing else, meaning a trailing identifier must be the
// parameter's name rather than part of the base type.
func isTypeKeywordOnly(toks []Token) bool {
	return len(toks) == 1
}

func splitTopLevel(toks []Token, sep string) [][]Token {
	var groups [][]Token
	depth := 0
	start := 0
	for j, t := range toks {
		if t.Kind == Punct {
			switch t.Text {
			case "(", "[":
				depth++
			case ")", "]":
				depth--
			case sep:
				if depth == 0 {
					groups = append(groups, toks[start:j])
					start = j + 1
				}
			}
		}
	}
	groups = append(groups, toks[start:])
	return groups
}

func matchParen(toks []Token, open int) int {
	depth := 0
	for j := open; j < len(toks); j++ {
		if toks[j].Kind != Punct {
			continue
		}
		switch toks[j].Text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

// matchParenBack finds the '(' matching the ')' at toks[close], scanning
// backward so callers can recover a declarator's own top-level parameter
// list even when it contains a nested parenthesized declarator (e.g. a
// function-pointer parameter).
func matchParenBack(toks []Token, close int) int {
	depth := 0
	for j := close; j >= 0; j-- {
		if toks[j].Kind != Punct {
			continue
		}
		switch toks[j].Text {
		case ")":
			depth++
		case "(":
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

// stripAttributes removes leading/trailing __attribute__((...)) groups
// and reports whether an ia2_skip_wrap marker was present among them.
func stripAttributes(toks []Token) ([]Token, bool) {
	skip := false
	out := make([]Token, 0, len(toks))
	for j := 0; j < len(toks); j++ {
		if toks[j].Kind == Ident && toks[j].Text == "ia2_skip_wrap" {
			skip = true
			continue
		}
		if toks[j].Kind == Ident && toks[j].Text == "__attribute__" && j+1 < len(toks) && toks[j+1].Text == "(" {
			close := matchParen(toks, j+1)
			if close >= 0 {
				if containsText(toks[j:close+1], "ia2_skip_wrap") {
					skip = true
				}
				j = close
				continue
			}
		}
		out = append(out, toks[j])
	}
	return out, skip
}

func containsText(toks []Token, text string) bool {
	for _, t := range toks {
		if t.Text == text {
			return true
		}
	}
	return false
}

func joinText(toks []Token) string {
	var b strings.Builder
	for i, t := range toks {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
	}
	return b.String()
}
