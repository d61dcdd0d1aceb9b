package rewrite

import "ia2/internal/cparse"

// occlusionChecker answers whether a candidate edit's spelling
// location lies inside a function-like macro expansion, per one
// file's set of #defined macro names.
type occlusionChecker struct {
	path        string
	src         []byte
	invocations []cparse.Invocation
}

func newOcclusionChecker(path string, file *cparse.File) *occlusionChecker {
	return &occlusionChecker{
		path:        path,
		src:         file.Src,
		invocations: cparse.MacroInvocations(file.Tokens, file.Macros),
	}
}

// occluded reports whether [start,end) falls inside some macro
// invocation's span, returning the warning to emit in place of the
// edit if so.
func (c *occlusionChecker) occluded(start, end int, message string) (Warning, bool) {
	for _, inv := range c.invocations {
		if start >= inv.Start && end <= inv.End {
			return Warning{
				File:          c.path,
				ExpansionLine: cparse.LineOf(c.src, inv.Start),
				SpellingLine:  cparse.LineOf(c.src, start),
				Macro:         inv.Name,
				Message:       message,
			}, true
		}
	}
	return Warning{}, false
}
