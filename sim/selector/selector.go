// Package selector implements the hierarchical port-addressing language used to
// name state variables exposed by an LPU.
//
// A selector is a comma-separated list of paths. Each path is a sequence of
// levels: "/name" is a literal string level and "[items]" is a bracketed level
// whose comma-separated items are integers, strings, or start:stop integer
// ranges (stop exclusive). Bracketed levels expand combinatorially:
//
//	/lpu0/out/gpot[0:2],/lpu0/[in,out]/spk[0]
//
// expands to /lpu0/out/gpot[0], /lpu0/out/gpot[1], /lpu0/in/spk[0] and
// /lpu0/out/spk[0]. Integer levels render as "[i]" and string levels as
// "/name" in the canonical identifier form.
package selector

import (
	"iter"
	"slices"
	"strings"
)

// Selector is an immutable, ordered, deduplicated set of port identifiers.
// The zero value is an empty selector.
type Selector struct {
	expr  string
	ids   []string
	index map[string]int
}

// Parse builds a Selector from its textual form.
// Returns *ParseError on malformed input. The empty string parses to an empty selector.
func Parse(s string) (*Selector, error) {
	paths, err := parse(s)
	if err != nil {
		return nil, err
	}
	sel := &Selector{expr: strings.TrimSpace(s)}
	for _, p := range paths {
		for _, id := range p.expand() {
			sel.add(id)
		}
	}
	return sel, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Selector {
	sel, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sel
}

// Expand parses s and returns its canonical identifiers.
func Expand(s string) ([]string, error) {
	sel, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return sel.Identifiers(), nil
}

// FromIdentifiers builds a Selector from a list of selector strings, each of
// which may itself expand to several identifiers.
func FromIdentifiers(ids []string) (*Selector, error) {
	return Parse(strings.Join(ids, ","))
}

func fromCanonical(ids []string) *Selector {
	sel := &Selector{}
	for _, id := range ids {
		sel.add(id)
	}
	sel.expr = strings.Join(sel.ids, ",")
	return sel
}

func (s *Selector) add(id string) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = len(s.ids)
	s.ids = append(s.ids, id)
}

// Identifiers returns the expanded identifiers in first-occurrence order.
// Each call returns a fresh slice.
func (s *Selector) Identifiers() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.ids)
}

// All iterates the expanded identifiers in the same order as Identifiers.
func (s *Selector) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		if s == nil {
			return
		}
		for _, id := range s.ids {
			if !yield(id) {
				return
			}
		}
	}
}

// Len returns the number of distinct identifiers.
func (s *Selector) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// String returns the expression the selector was built from.
func (s *Selector) String() string {
	if s == nil {
		return ""
	}
	return s.expr
}

// Index returns the position of a canonical identifier, or -1.
func (s *Selector) Index(id string) int {
	if s == nil {
		return -1
	}
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

// Contains reports whether every identifier denoted by sel is a member of s.
// A malformed or empty sel is never contained.
func (s *Selector) Contains(sel string) bool {
	other, err := Parse(sel)
	if err != nil || other.Len() == 0 {
		return false
	}
	return other.IsSubset(s)
}

// IsSubset reports whether every identifier of s is also in other.
func (s *Selector) IsSubset(other *Selector) bool {
	for id := range s.All() {
		if other.Index(id) < 0 {
			return false
		}
	}
	return true
}

// Union returns the identifiers of all selectors in insertion order.
func Union(sels ...*Selector) *Selector {
	var ids []string
	for _, sel := range sels {
		ids = append(ids, sel.Identifiers()...)
	}
	return fromCanonical(ids)
}

// Intersection returns the identifiers of a that are also in b, in a's order.
func Intersection(a, b *Selector) *Selector {
	var ids []string
	for id := range a.All() {
		if b.Index(id) >= 0 {
			ids = append(ids, id)
		}
	}
	return fromCanonical(ids)
}

// Difference returns the identifiers of a that are not in b, in a's order.
func Difference(a, b *Selector) *Selector {
	var ids []string
	for id := range a.All() {
		if b.Index(id) < 0 {
			ids = append(ids, id)
		}
	}
	return fromCanonical(ids)
}

// Disjoint reports whether a and b share no identifier.
func Disjoint(a, b *Selector) bool {
	return Intersection(a, b).Len() == 0
}
