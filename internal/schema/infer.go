package schema

import (
	"encoding/json"
	"strconv"
	"strings"
)

// pathState collects observations for one flattened path.
type pathState struct {
	segs   []string
	typ    ColumnType // Widened over leaf observations, including null
	object bool       // Seen holding an object
	leaf   bool       // Seen holding a non-null scalar or an array
}

// accumulator merges observations in first-seen path order.
type accumulator struct {
	states map[string]*pathState
	order  []string
}

func newAccumulator() *accumulator {
	return &accumulator{states: make(map[string]*pathState)}
}

func (a *accumulator) state(segs []string) *pathState {
	key := JoinPath(segs)
	st, ok := a.states[key]
	if !ok {
		st = &pathState{segs: append([]string(nil), segs...)}
		a.states[key] = st
		a.order = append(a.order, key)
	}
	return st
}

// observeRecord flattens one record into the accumulator.
func (a *accumulator) observeRecord(rec object) {
	a.observeObject(nil, rec)
}

func (a *accumulator) observeObject(prefix []string, obj object) {
	for _, m := range obj {
		segs := append(prefix[:len(prefix):len(prefix)], m.Key)
		a.observe(segs, m.Value)
	}
}

func (a *accumulator) observe(segs []string, v any) {
	st := a.state(segs)
	if obj, ok := v.(object); ok {
		st.object = true
		a.observeObject(segs, obj)
		return
	}
	t := typeOf(v)
	if t != TypeNull {
		st.leaf = true
	}
	st.typ = Widen(st.typ, t)
}

// merge folds other into a, appending unseen paths in other's order.
func (a *accumulator) merge(other *accumulator) {
	for _, key := range other.order {
		src := other.states[key]
		st, ok := a.states[key]
		if !ok {
			cp := *src
			a.states[key] = &cp
			a.order = append(a.order, key)
			continue
		}
		st.object = st.object || src.object
		st.leaf = st.leaf || src.leaf
		st.typ = Widen(st.typ, src.typ)
	}
}

// columns produces the final ordered column list.
//
// A path seen both as an object and as a leaf is a structural clash: it becomes
// one JSON column at the first-seen position of its subtree and its descendants
// are dropped. Paths seen only as null are NULL columns.
func (a *accumulator) columns() []ColumnDefinition {
	collapsed := make(map[string]bool)
	for key, st := range a.states {
		if st.object && st.leaf {
			collapsed[key] = true
		}
	}

	cols := make([]ColumnDefinition, 0, len(a.order))
	emitted := make(map[string]bool)
	for _, key := range a.order {
		st := a.states[key]

		if anc, ok := collapsedAncestor(st.segs, collapsed); ok {
			if !emitted[anc] {
				emitted[anc] = true
				as := a.states[anc]
				cols = append(cols, ColumnDefinition{
					Name: displayName(as.segs),
					Type: TypeJSON,
					Path: anc,
				})
			}
			continue
		}

		if st.object {
			continue
		}
		typ := st.typ
		if typ == "" {
			typ = TypeNull
		}
		cols = append(cols, ColumnDefinition{
			Name: displayName(st.segs),
			Type: typ,
			Path: key,
		})
	}
	return cols
}

// collapsedAncestor returns the outermost collapsed path that is segs or one of its prefixes.
func collapsedAncestor(segs []string, collapsed map[string]bool) (string, bool) {
	if len(collapsed) == 0 {
		return "", false
	}
	for i := 1; i <= len(segs); i++ {
		key := JoinPath(segs[:i])
		if collapsed[key] {
			return key, true
		}
	}
	return "", false
}

// typeOf classifies a decoded leaf value.
func typeOf(v any) ColumnType {
	switch x := v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case json.Number:
		return numberType(x)
	case string:
		return TypeText
	default:
		// Arrays and anything else cannot live in a fixed relational column
		return TypeJSON
	}
}

// numberType decides INTEGER vs REAL from the literal; integers outside int64 are REAL.
func numberType(n json.Number) ColumnType {
	s := string(n)
	if strings.ContainsAny(s, ".eE") {
		return TypeReal
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return TypeReal
	}
	return TypeInteger
}
