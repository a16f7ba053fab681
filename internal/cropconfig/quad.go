// Package cropconfig expands the scalar-or-quadruple crop options into
// concrete per-edge values.
package cropconfig

import "fmt"

// Number is the element type of a per-edge quadruple.
type Number interface {
	~int | ~float64
}

// QuadKind tags how a Quad was supplied.
type QuadKind int

const (
	QuadUnset QuadKind = iota
	QuadScalar
	QuadQuadruple
)

// Quad is either nothing, a single value for all four edges, or one value
// per edge in (left, bottom, right, top) order.
type Quad[T Number] struct {
	Kind   QuadKind
	Scalar T
	Values [4]T
}

// Scalar broadcasts v to every edge.
func Scalar[T Number](v T) Quad[T] {
	return Quad[T]{Kind: QuadScalar, Scalar: v}
}

// Quadruple sets each edge explicitly.
func Quadruple[T Number](left, bottom, right, top T) Quad[T] {
	return Quad[T]{Kind: QuadQuadruple, Values: [4]T{left, bottom, right, top}}
}

// Expand maps q to four values: an explicit quadruple verbatim, a scalar
// repeated, and an unset quad to fallback. Values are not range checked;
// negative percentages and offsets pass through.
func (q Quad[T]) Expand(fallback [4]T) [4]T {
	switch q.Kind {
	case QuadQuadruple:
		return q.Values
	case QuadScalar:
		return [4]T{q.Scalar, q.Scalar, q.Scalar, q.Scalar}
	default:
		return fallback
	}
}

// QuadFromSlice builds a Quad from the raw settings shape: four values give a
// quadruple, none give the scalar. Any other length falls back to the scalar
// and returns a warning naming field.
func QuadFromSlice[T Number](field string, scalar T, values []T) (Quad[T], string) {
	switch len(values) {
	case 0:
		return Scalar(scalar), ""
	case 4:
		return Quadruple(values[0], values[1], values[2], values[3]), ""
	default:
		return Scalar(scalar), fmt.Sprintf("%s has %d values, expected 4; using %v for every edge", field, len(values), scalar)
	}
}
