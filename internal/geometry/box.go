// Package geometry holds the page-space box types and the order-statistic
// and mask arithmetic used to derive crop boxes from per-page measurements.
//
// Boxes are (left, bottom, right, top) quadruples in PDF user space. The
// ordering left <= right, bottom <= top is expected from callers but is not
// enforced here.
package geometry

import (
	"math"
	"strconv"
	"strings"
)

// Edge names one side of a box, in storage order.
type Edge int

const (
	EdgeLeft Edge = iota
	EdgeBottom
	EdgeRight
	EdgeTop
)

// Edges lists every edge in box order.
var Edges = [4]Edge{EdgeLeft, EdgeBottom, EdgeRight, EdgeTop}

func (e Edge) String() string {
	switch e {
	case EdgeLeft:
		return "left"
	case EdgeBottom:
		return "bottom"
	case EdgeRight:
		return "right"
	case EdgeTop:
		return "top"
	default:
		return "edge(" + strconv.Itoa(int(e)) + ")"
	}
}

// Box is an axis-aligned rectangle stored as (left, bottom, right, top).
type Box [4]float64

// NewBox creates a box from its four edges
func NewBox(left, bottom, right, top float64) Box {
	return Box{left, bottom, right, top}
}

func (b Box) Left() float64   { return b[EdgeLeft] }
func (b Box) Bottom() float64 { return b[EdgeBottom] }
func (b Box) Right() float64  { return b[EdgeRight] }
func (b Box) Top() float64    { return b[EdgeTop] }

// Edge returns the value of edge e.
func (b Box) Edge(e Edge) float64 { return b[e] }

// Width returns right - left
func (b Box) Width() float64 { return b.Right() - b.Left() }

// Height returns top - bottom
func (b Box) Height() float64 { return b.Top() - b.Bottom() }

// Intersect returns the overlap of b and other. Disjoint boxes produce a box
// with right < left or top < bottom; callers that care check IsEmpty.
func (b Box) Intersect(other Box) Box {
	return Box{
		math.Max(b.Left(), other.Left()),
		math.Max(b.Bottom(), other.Bottom()),
		math.Min(b.Right(), other.Right()),
		math.Min(b.Top(), other.Top()),
	}
}

// IsEmpty reports whether the box has no positive area.
func (b Box) IsEmpty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

// Format renders the box as a PDF array with the given decimal precision,
// trailing zeros trimmed.
func (b Box) Format(precision int) string {
	parts := make([]string, 4)
	for i, v := range b {
		s := strconv.FormatFloat(v, 'f', precision, 64)
		if strings.Contains(s, ".") {
			s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
		}
		if s == "-0" {
			s = "0"
		}
		parts[i] = s
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (b Box) String() string { return b.Format(8) }

// PageBoxList holds one box per page, indexed by 0-based page number.
type PageBoxList []Box

// Clone returns an independent copy of the list.
func (l PageBoxList) Clone() PageBoxList {
	if l == nil {
		return nil
	}
	out := make(PageBoxList, len(l))
	copy(out, l)
	return out
}

// Broadcast returns a list of n copies of b.
func Broadcast(b Box, n int) PageBoxList {
	out := make(PageBoxList, n)
	for i := range out {
		out[i] = b
	}
	return out
}
