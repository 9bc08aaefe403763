package vectorstore

import "strings"

// nativeCondition is one clause of a translated filter: either an exact
// match or a multi-value ("any of") match on a payload key.
type nativeCondition struct {
	Key   string
	Value string   // set when not a multi-value match
	Any   []string // set for multi-value match
}

// nativeFilter is the {must: [...]} shape the wire protocol expects.
type nativeFilter struct {
	Must []nativeCondition
}

// toNative translates a flat Filter into the store's native must-clause
// form. Multi-value matching uses {match: {any: [...]}}.
func toNative(f *Filter) *nativeFilter {
	if f == nil {
		return nil
	}
	nf := &nativeFilter{}
	for k, v := range f.Equals {
		nf.Must = append(nf.Must, nativeCondition{Key: k, Value: v})
	}
	for k, vs := range f.AnyOf {
		nf.Must = append(nf.Must, nativeCondition{Key: k, Any: vs})
	}
	return nf
}

// matches reports whether a payload satisfies a translated filter. Used
// by the local adapter, which has no server-side query engine of its
// own to delegate filtering to.
func (nf *nativeFilter) matches(payload map[string]any) bool {
	if nf == nil {
		return true
	}
	for _, cond := range nf.Must {
		val, ok := payload[cond.Key]
		if !ok {
			return false
		}
		s, ok := val.(string)
		if !ok {
			return false
		}
		if cond.Any != nil {
			if !containsAny(s, cond.Any) {
				return false
			}
			continue
		}
		if s != cond.Value {
			return false
		}
	}
	return true
}

func containsAny(s string, candidates []string) bool {
	for _, c := range candidates {
		if s == c {
			return true
		}
	}
	return false
}

// GlobToRegex translates a path glob into a text regex by escaping `.`
// and converting `*` -> `.*`, `?` -> `.`.
func GlobToRegex(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '.':
			b.WriteString(`\.`)
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
