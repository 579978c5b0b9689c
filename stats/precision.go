package stats

import "fmt"

type PrecisionKind uint8

const (
	Absent PrecisionKind = iota
	Inexact
	Exact
)

func (k PrecisionKind) String() string {
	switch k {
	case Exact:
		return "Exact"
	case Inexact:
		return "Inexact"
	default:
		return "Absent"
	}
}

// Precision is a statistic value together with how much it can be trusted.
// The zero value is Absent.
type Precision[T any] struct {
	kind  PrecisionKind
	value T
}

func ExactOf[T any](v T) Precision[T] {
	return Precision[T]{kind: Exact, value: v}
}

func InexactOf[T any](v T) Precision[T] {
	return Precision[T]{kind: Inexact, value: v}
}

func AbsentOf[T any]() Precision[T] {
	return Precision[T]{}
}

func (p Precision[T]) Kind() PrecisionKind {
	return p.kind
}

// Value returns the value and whether one is present.
func (p Precision[T]) Value() (T, bool) {
	return p.value, p.kind != Absent
}

func (p Precision[T]) IsExact() bool {
	return p.kind == Exact
}

// ToInexact downgrades an exact value, absent stays absent.
func (p Precision[T]) ToInexact() Precision[T] {
	if p.kind == Exact {
		p.kind = Inexact
	}
	return p
}

func (p Precision[T]) String() string {
	if p.kind == Absent {
		return "Absent"
	}
	return fmt.Sprintf("%s(%v)", p.kind, p.value)
}
