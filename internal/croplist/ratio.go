package croplist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/local/cropmargins/internal/geometry"
)

// PageRatio is a target width to height ratio such as 8.5:11.
type PageRatio struct {
	Width  float64
	Height float64
}

// ParsePageRatio parses "W:H" with positive W and H.
func ParsePageRatio(s string) (*PageRatio, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return nil, &geometry.ValidationError{Field: "set_page_ratios", Message: fmt.Sprintf("want W:H, got %q", s)}
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || w <= 0 {
		return nil, &geometry.ValidationError{Field: "set_page_ratios", Message: fmt.Sprintf("bad width %q", parts[0])}
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || h <= 0 {
		return nil, &geometry.ValidationError{Field: "set_page_ratios", Message: fmt.Sprintf("bad height %q", parts[1])}
	}
	return &PageRatio{Width: w, Height: h}, nil
}

func (r PageRatio) Value() float64 { return r.Width / r.Height }

func (r PageRatio) String() string {
	return strconv.FormatFloat(r.Width, 'g', -1, 64) + ":" + strconv.FormatFloat(r.Height, 'g', -1, 64)
}

// Pad grows b along one axis until its width:height equals r. The added
// space is split between the two edges of that axis in proportion to their
// weights (left and right, or bottom and top); two zero weights split evenly.
// Degenerate boxes are returned unchanged.
func (r PageRatio) Pad(b geometry.Box, weights [4]float64) geometry.Box {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return b
	}
	target := r.Value()
	switch {
	case w/h < target:
		lo, hi := split(h*target-w, weights[geometry.EdgeLeft], weights[geometry.EdgeRight])
		b[geometry.EdgeLeft] -= lo
		b[geometry.EdgeRight] += hi
	case w/h > target:
		lo, hi := split(w/target-h, weights[geometry.EdgeBottom], weights[geometry.EdgeTop])
		b[geometry.EdgeBottom] -= lo
		b[geometry.EdgeTop] += hi
	}
	return b
}

func split(amount, wLo, wHi float64) (float64, float64) {
	total := wLo + wHi
	if total <= 0 {
		return amount / 2, amount / 2
	}
	return amount * wLo / total, amount * wHi / total
}
