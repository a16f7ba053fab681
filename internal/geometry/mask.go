package geometry

import (
	"fmt"
	"strings"
)

// EdgeMask selects, per edge in box order, whether the override value is
// taken (true) or the default kept (false).
type EdgeMask [4]bool

// ParseEdgeMask parses a four character mask over {t, f}, e.g. "tfft".
func ParseEdgeMask(s string) (EdgeMask, error) {
	var m EdgeMask
	s = strings.TrimSpace(s)
	if len(s) != 4 {
		return m, &ValidationError{Field: "edge_mask", Message: fmt.Sprintf("want 4 characters of t/f, got %q", s)}
	}
	for i, c := range s {
		switch c {
		case 't':
			m[i] = true
		case 'f':
		default:
			return EdgeMask{}, &ValidationError{Field: "edge_mask", Message: fmt.Sprintf("character %q at %d is not t or f", c, i)}
		}
	}
	return m, nil
}

// AllTrue reports whether every edge takes the override.
func (m EdgeMask) AllTrue() bool { return m == EdgeMask{true, true, true, true} }

// AllFalse reports whether every edge keeps the default.
func (m EdgeMask) AllFalse() bool { return m == EdgeMask{} }

func (m EdgeMask) String() string {
	var b strings.Builder
	for _, v := range m {
		if v {
			b.WriteByte('t')
		} else {
			b.WriteByte('f')
		}
	}
	return b.String()
}

// CombineWithMask builds a new list where edge i of page p comes from
// overrides[p] when mask[i] is set and from defaults[p] otherwise.
// Pairing is positional; both lists must have the same length.
func CombineWithMask(mask EdgeMask, defaults, overrides PageBoxList) (PageBoxList, error) {
	if len(defaults) != len(overrides) {
		return nil, contractf("combine_with_mask", "length mismatch: %d default boxes, %d override boxes", len(defaults), len(overrides))
	}
	out := make(PageBoxList, len(defaults))
	for p := range defaults {
		b := defaults[p]
		for i, take := range mask {
			if take {
				b[i] = overrides[p][i]
			}
		}
		out[p] = b
	}
	return out, nil
}
