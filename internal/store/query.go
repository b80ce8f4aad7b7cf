package store

import "encoding/json"

// Cond is a single predicate over a JSON document. With Elem empty it matches
// when the top-level Field equals Value; otherwise Field must be an array
// holding at least one object whose Elem member equals Value.
type Cond struct {
	Field string
	Elem  string
	Value string
}

// Eq matches documents whose top-level field equals value.
func Eq(field, value string) Cond {
	return Cond{Field: field, Value: value}
}

// ElemMatch matches documents whose array field contains an object with
// member elem equal to value.
func ElemMatch(field, elem, value string) Cond {
	return Cond{Field: field, Elem: elem, Value: value}
}

// Query is a disjunction of conjunctions. A Query with no terms matches
// nothing.
type Query struct {
	Terms [][]Cond
}

// Where builds a query matching documents satisfying every cond.
func Where(conds ...Cond) Query {
	return Query{Terms: [][]Cond{conds}}
}

// Or combines queries so that a document matching any of them matches.
func Or(qs ...Query) Query {
	var out Query
	for _, q := range qs {
		out.Terms = append(out.Terms, q.Terms...)
	}
	return out
}

// Matches evaluates the query against an encoded JSON document.
func (q Query) Matches(data []byte) bool {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	for _, term := range q.Terms {
		if matchAll(doc, term) {
			return true
		}
	}
	return false
}

func matchAll(doc map[string]any, conds []Cond) bool {
	if len(conds) == 0 {
		return false
	}
	for _, c := range conds {
		if !c.matches(doc) {
			return false
		}
	}
	return true
}

func (c Cond) matches(doc map[string]any) bool {
	v, ok := doc[c.Field]
	if !ok {
		return false
	}
	if c.Elem == "" {
		s, ok := v.(string)
		return ok && s == c.Value
	}
	elems, ok := v.([]any)
	if !ok {
		return false
	}
	for _, e := range elems {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := obj[c.Elem].(string); ok && s == c.Value {
			return true
		}
	}
	return false
}
