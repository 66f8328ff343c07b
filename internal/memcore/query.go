package memcore

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/wippyai/corebind/arena"
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/value"
)

// The predicate language is a conjunction of comparisons between a
// property and a positional argument:
//
//	TRUEPREDICATE
//	age >= $0 AND name != $1
//	status IN $0
//	title BEGINSWITH $0 && title CONTAINS $1

type clause struct {
	op   string
	arg  arena.QueryArg
	prop capi.PropKey
}

type predicate struct {
	clauses []clause
}

var operators = map[string]bool{
	"==": true, "=": true, "!=": true,
	"<": true, "<=": true, ">": true, ">=": true,
	"IN": true, "BEGINSWITH": true, "ENDSWITH": true, "CONTAINS": true,
}

func syntaxErr(msg string) error {
	return nativeErr(CategoryQuery, CodeQuerySyntax, msg)
}

func tokenize(q string) ([]string, error) {
	var out []string
	for i := 0; i < len(q); {
		c := rune(q[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '$' || c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c):
			j := i + 1
			for j < len(q) && (q[j] == '_' || unicode.IsLetter(rune(q[j])) || unicode.IsDigit(rune(q[j]))) {
				j++
			}
			out = append(out, q[i:j])
			i = j
		case strings.ContainsRune("=!<>&", c):
			j := i + 1
			for j < len(q) && strings.ContainsRune("=!<>&", rune(q[j])) {
				j++
			}
			out = append(out, q[i:j])
			i = j
		default:
			return nil, syntaxErr("unexpected character " + strconv.QuoteRune(c))
		}
	}
	return out, nil
}

func parsePredicate(c *classDef, q string, args []arena.QueryArg) (predicate, error) {
	toks, err := tokenize(q)
	if err != nil {
		return predicate{}, err
	}
	if len(toks) == 1 && strings.EqualFold(toks[0], "TRUEPREDICATE") {
		return predicate{}, nil
	}

	var pred predicate
	for len(toks) > 0 {
		if len(toks) < 3 {
			return predicate{}, syntaxErr("incomplete comparison in " + strconv.Quote(q))
		}
		name, op, ref := toks[0], strings.ToUpper(toks[1]), toks[2]
		toks = toks[3:]

		prop, ok := c.propNamed(name)
		if !ok {
			return predicate{}, syntaxErr("no property " + name + " on " + c.info.Name)
		}
		if !operators[op] {
			return predicate{}, syntaxErr("unknown operator " + op)
		}
		if !strings.HasPrefix(ref, "$") {
			return predicate{}, syntaxErr("expected argument reference, got " + ref)
		}
		n, err := strconv.Atoi(ref[1:])
		if err != nil || n < 0 || n >= len(args) {
			return predicate{}, syntaxErr("argument " + ref + " out of range")
		}
		arg := args[n]
		if op == "IN" && !arg.List {
			return predicate{}, syntaxErr("IN needs a list argument")
		}
		if op != "IN" && arg.List {
			return predicate{}, syntaxErr(op + " needs a single-value argument")
		}
		pred.clauses = append(pred.clauses, clause{prop: prop.Key, op: op, arg: arg})

		if len(toks) > 0 {
			if conj := strings.ToUpper(toks[0]); conj != "AND" && conj != "&&" {
				return predicate{}, syntaxErr("expected AND, got " + toks[0])
			}
			toks = toks[1:]
			if len(toks) == 0 {
				return predicate{}, syntaxErr("dangling AND")
			}
		}
	}
	return pred, nil
}

func (p predicate) match(r row) bool {
	for _, c := range p.clauses {
		if !c.match(r[c.prop]) {
			return false
		}
	}
	return true
}

func (c clause) match(v value.Value) bool {
	if c.op == "IN" {
		for _, a := range c.arg.Values {
			if v.Equal(a) {
				return true
			}
		}
		return false
	}
	arg := c.arg.Values[0]

	switch c.op {
	case "==", "=":
		return equalValues(v, arg)
	case "!=":
		return !equalValues(v, arg)
	case "BEGINSWITH", "ENDSWITH", "CONTAINS":
		s, ok1 := v.AsString()
		sub, ok2 := arg.AsString()
		if !ok1 || !ok2 {
			return false
		}
		switch c.op {
		case "BEGINSWITH":
			return strings.HasPrefix(s, sub)
		case "ENDSWITH":
			return strings.HasSuffix(s, sub)
		}
		return strings.Contains(s, sub)
	}

	cmp, ok := compareValues(v, arg)
	if !ok {
		return false
	}
	switch c.op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func equalValues(a, b value.Value) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return a.Equal(b)
}

func numeric(v value.Value) (float64, bool) {
	switch v.Type() {
	case value.TypeInt:
		i, _ := v.AsInt()
		return float64(i), true
	case value.TypeFloat:
		f, _ := v.AsFloat()
		return float64(f), true
	case value.TypeDouble:
		d, _ := v.AsDouble()
		return d, true
	}
	return 0, false
}

// compareValues orders two values of comparable types.
func compareValues(a, b value.Value) (int, bool) {
	if ai, ok := a.AsInt(); ok {
		if bi, ok := b.AsInt(); ok {
			return cmpOrdered(ai, bi), true
		}
	}
	if af, ok := numeric(a); ok {
		if bf, ok := numeric(b); ok {
			return cmpOrdered(af, bf), true
		}
		return 0, false
	}
	if as, ok := a.AsString(); ok {
		if bs, ok := b.AsString(); ok {
			return strings.Compare(as, bs), true
		}
		return 0, false
	}
	if at, ok := a.AsTimestamp(); ok {
		if bt, ok := b.AsTimestamp(); ok {
			if at.Seconds != bt.Seconds {
				return cmpOrdered(at.Seconds, bt.Seconds), true
			}
			return cmpOrdered(at.Nanoseconds, bt.Nanoseconds), true
		}
	}
	return 0, false
}

func cmpOrdered[T int64 | int32 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// results is a live query: it is re-evaluated on every access.
type results struct {
	realm *realm
	pred  predicate
	class capi.ClassKey
}

// keys returns matching object keys in ascending order. mu must be held.
func (r *results) keys() []capi.ObjKey {
	t := r.realm.file.tables[r.class]
	if t == nil {
		return nil
	}
	var out []capi.ObjKey
	for _, k := range t.keys() {
		if r.pred.match(t.rows[k]) {
			out = append(out, k)
		}
	}
	return out
}

func (e *Engine) Query(p capi.Ptr, class capi.ClassKey, query string, args uint32, nargs int) (capi.Ptr, error) {
	decoded, err := arena.ReadQueryArgs(e.mem, args, nargs)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.liveRealm(p)
	if err != nil {
		return 0, err
	}
	c, ok := r.file.class(class)
	if !ok {
		return 0, nativeErr(CategorySchema, CodeNoSuchClass, "no such class")
	}
	pred, err := parsePredicate(c, query, decoded)
	if err != nil {
		return 0, err
	}
	return e.put(&results{realm: r, class: class, pred: pred}), nil
}

func (e *Engine) liveResults(p capi.Ptr) (*results, error) {
	res, err := resolve[*results](e, p)
	if err != nil {
		return nil, err
	}
	if res.realm.closed {
		return nil, nativeErr(CategoryLogic, CodeClosed, "realm is closed")
	}
	return res, nil
}

func (e *Engine) ResultsCount(p capi.Ptr) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.liveResults(p)
	if err != nil {
		return 0, err
	}
	return len(res.keys()), nil
}

func (e *Engine) ResultsGet(p capi.Ptr, index int) (capi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.liveResults(p)
	if err != nil {
		return 0, err
	}
	keys := res.keys()
	if index < 0 || index >= len(keys) {
		return 0, nativeErr(CategoryLogic, CodeInvalidPointer,
			"index "+strconv.Itoa(index)+" out of range for "+strconv.Itoa(len(keys))+" results")
	}
	return e.put(&object{realm: res.realm, class: res.class, key: keys[index]}), nil
}
