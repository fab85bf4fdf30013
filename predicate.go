package docq

import (
	"fmt"
	"strings"

	"github.com/autom8ter/docq/util"
	"github.com/samber/lo"
)

// Tree is a boolean predicate over lookups: an Atom, a Conjunction or a Disjunction.
// Trees are values - combining them never modifies the operands.
//
// Trees are kept in disjunctive normal form: a Conjunction holds atoms and a Disjunction
// holds atoms or conjunctions.
type Tree interface {
	// Empty returns true if the tree holds no constraints (it matches every document)
	Empty() bool
	// String returns a readable rendering of the tree
	String() string
	isTree()
}

// Atom is a single field/operator/value constraint
type Atom struct {
	lookup Lookup
}

// NewAtom creates an atom from a logical path, an operator suffix (gt, not__in, "" for eq) and a value
func NewAtom(path, operator string, value any) Atom {
	return Atom{lookup: Lookup{Path: path, Operator: operator, Value: value}}
}

// Path is the logical field path of the atom
func (a Atom) Path() string {
	return a.lookup.Path
}

// Operator is the operator suffix of the atom
func (a Atom) Operator() string {
	return a.lookup.Operator
}

// Value is the raw value of the atom
func (a Atom) Value() any {
	return a.lookup.Value
}

// Lookup returns the atom as a lookup
func (a Atom) Lookup() Lookup {
	return a.lookup
}

func (a Atom) Empty() bool {
	return false
}

func (a Atom) String() string {
	return fmt.Sprintf("%s=%s", a.lookup.Expr(), util.JSONString(a.lookup.Value))
}

func (Atom) isTree() {}

// Conjunction is an AND-group of atoms
type Conjunction struct {
	atoms []Atom
}

// Atoms returns the atoms of the conjunction in order
func (c Conjunction) Atoms() []Atom {
	return append([]Atom{}, c.atoms...)
}

func (c Conjunction) Empty() bool {
	return len(c.atoms) == 0
}

func (c Conjunction) String() string {
	if len(c.atoms) == 0 {
		return "()"
	}
	return "(" + strings.Join(lo.Map(c.atoms, func(a Atom, _ int) string {
		return a.String()
	}), " AND ") + ")"
}

func (Conjunction) isTree() {}

// Disjunction is an OR-group of atoms and conjunctions
type Disjunction struct {
	alternatives []Tree
}

// Alternatives returns the alternatives of the disjunction in order
func (d Disjunction) Alternatives() []Tree {
	return append([]Tree{}, d.alternatives...)
}

func (d Disjunction) Empty() bool {
	return len(d.alternatives) == 0
}

func (d Disjunction) String() string {
	return "(" + strings.Join(lo.Map(d.alternatives, func(t Tree, _ int) string {
		return t.String()
	}), " OR ") + ")"
}

func (Disjunction) isTree() {}

// Q creates a tree from lookups that must all match. Q() with no lookups is the empty tree, the
// identity of both And and Or.
func Q(lookups ...Lookup) Tree {
	atoms := lo.Map(lookups, func(l Lookup, _ int) Atom {
		return Atom{lookup: l}
	})
	return conjunctionOf(atoms)
}

// And returns the conjunction of the trees. AND distributes over OR: if an operand is a
// Disjunction, the result is a Disjunction of the cross product of alternatives, in
// left-major order. Empty trees are skipped.
func And(trees ...Tree) Tree {
	var result Tree = Conjunction{}
	for _, t := range trees {
		result = and(result, t)
	}
	return result
}

// Or returns the disjunction of the trees. Alternatives are concatenated, never merged.
// Empty trees are skipped.
func Or(trees ...Tree) Tree {
	var alts []Tree
	for _, t := range trees {
		if t == nil || t.Empty() {
			continue
		}
		alts = append(alts, alternatives(t)...)
	}
	return disjunctionOf(alts)
}

func and(a, b Tree) Tree {
	switch {
	case b == nil || b.Empty():
		return a
	case a == nil || a.Empty():
		return b
	}
	_, aOr := a.(Disjunction)
	_, bOr := b.(Disjunction)
	if !aOr && !bOr {
		return conjunctionOf(append(atomsOf(a), atomsOf(b)...))
	}
	var alts []Tree
	for _, left := range alternatives(a) {
		for _, right := range alternatives(b) {
			alts = append(alts, conjunctionOf(append(atomsOf(left), atomsOf(right)...)))
		}
	}
	return disjunctionOf(alts)
}

// alternatives returns the alternatives of a disjunction or the tree itself
func alternatives(t Tree) []Tree {
	if d, ok := t.(Disjunction); ok {
		return d.Alternatives()
	}
	return []Tree{t}
}

// atomsOf returns the atoms of an atom or conjunction
func atomsOf(t Tree) []Atom {
	switch t := t.(type) {
	case Atom:
		return []Atom{t}
	case Conjunction:
		return t.Atoms()
	default:
		panic(fmt.Sprintf("docq: %T is not a conjunction", t))
	}
}

func conjunctionOf(atoms []Atom) Tree {
	if len(atoms) == 1 {
		return atoms[0]
	}
	return Conjunction{atoms: atoms}
}

func disjunctionOf(alts []Tree) Tree {
	switch len(alts) {
	case 0:
		return Conjunction{}
	case 1:
		return alts[0]
	default:
		return Disjunction{alternatives: alts}
	}
}

// DNF returns the tree as a list of alternatives, each a list of atoms that must all match
func DNF(t Tree) [][]Atom {
	if t == nil || t.Empty() {
		return nil
	}
	return lo.Map(alternatives(t), func(alt Tree, _ int) []Atom {
		return atomsOf(alt)
	})
}
