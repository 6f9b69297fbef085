package schema

import "strings"

// JoinPath builds the escaped dotted path for a sequence of object keys.
// Literal dots and backslashes inside keys are backslash-escaped so that
// {"a.b": 1} and {"a": {"b": 1}} map to different paths.
func JoinPath(segs []string) string {
	var b strings.Builder
	for i, s := range segs {
		if i > 0 {
			b.WriteByte('.')
		}
		for _, r := range s {
			if r == '.' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SplitPath is the inverse of JoinPath.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	var segs []string
	var cur strings.Builder
	escaped := false
	for _, r := range path {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '.':
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(segs, cur.String())
}

// displayName is the unescaped dotted form shown to users.
func displayName(segs []string) string {
	return strings.Join(segs, ".")
}

// lookup descends through nested objects following segs.
func lookup(rec object, segs []string) (any, bool) {
	var cur any = rec
	for _, s := range segs {
		obj, ok := cur.(object)
		if !ok {
			return nil, false
		}
		v, ok := obj.get(s)
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
