package ecs

import "strings"

// Condition gates a system or set. It is evaluated right before the gated
// system runs (or, for sets, when their stage starts) and reads the World
// through the access it declares.
type Condition struct {
	name  string
	decls []AccessDecl
	eval  func(w *World) bool
}

// NewCondition builds a condition from a predicate and the access it needs.
func NewCondition(name string, fn func(w *World) bool, decls ...AccessDecl) Condition {
	return Condition{name: name, decls: decls, eval: fn}
}

// Name returns the condition's name, used in logs.
func (c Condition) Name() string { return c.name }

// ResourceExists is true while resource T is stored.
func ResourceExists[T any]() Condition {
	return NewCondition("ResourceExists", func(w *World) bool { return HasResource[T](w) }, ReadsResource[T]())
}

// ResourceEquals is true while resource T is stored and equal to value.
func ResourceEquals[T comparable](value T) Condition {
	return NewCondition("ResourceEquals", func(w *World) bool {
		r := Resource[T](w)
		return r != nil && *r == value
	}, ReadsResource[T]())
}

// RunOnce is true the first time it is evaluated only. Each call returns an
// independent condition; do not share one between systems.
func RunOnce() Condition {
	ran := false
	return NewCondition("RunOnce", func(*World) bool {
		if ran {
			return false
		}
		ran = true
		return true
	})
}

// Not inverts c.
func Not(c Condition) Condition {
	return NewCondition("Not("+c.name+")", func(w *World) bool { return !c.eval(w) }, c.decls...)
}

// And is true when every condition is. Evaluation stops at the first false one.
func And(conds ...Condition) Condition {
	return combine("And", conds, false)
}

// Or is true when any condition is. Evaluation stops at the first true one.
func Or(conds ...Condition) Condition {
	return combine("Or", conds, true)
}

func combine(op string, conds []Condition, stopOn bool) Condition {
	names := make([]string, len(conds))
	var decls []AccessDecl
	for i, c := range conds {
		names[i] = c.name
		decls = append(decls, c.decls...)
	}
	return NewCondition(op+"("+strings.Join(names, ", ")+")", func(w *World) bool {
		for _, c := range conds {
			if c.eval(w) == stopOn {
				return stopOn
			}
		}
		return !stopOn
	}, decls...)
}

func evalConditions(w *World, conds []Condition) bool {
	for _, c := range conds {
		if !c.eval(w) {
			return false
		}
	}
	return true
}
