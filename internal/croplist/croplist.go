// Package croplist turns full page boxes and measured content boxes into the
// final per-page crop boxes.
package croplist

import (
	"fmt"
	"sort"

	"github.com/local/cropmargins/internal/cropconfig"
	"github.com/local/cropmargins/internal/geometry"
	"github.com/local/cropmargins/internal/samesize"
)

// Input holds the per-page measurements for one document.
type Input struct {
	// Full is the full page box of every page, already pre-cropped.
	Full geometry.PageBoxList
	// Content is the measured content extent of every page.
	Content geometry.PageBoxList
	// Blank marks pages without any content. Nil means no page is blank.
	Blank []bool
	// Selection holds the pages to crop.
	Selection geometry.Selection
}

// Params collects the validated options that shape the crop.
type Params struct {
	Args     cropconfig.Arguments
	Uniform  bool
	SameSize samesize.Options
	Ratio    *PageRatio
	Weights  [4]float64
}

// Result is the outcome of Calculate.
type Result struct {
	// Full is the full page box list after the same-size policy.
	Full geometry.PageBoxList
	// Crop is the box to write into every page.
	Crop geometry.PageBoxList
	// Margins holds the per-page margins the cut was derived from.
	Margins [][4]float64
}

// PreCrop shrinks every box by the given absolute amount per edge.
func PreCrop(full geometry.PageBoxList, precrop [4]float64) geometry.PageBoxList {
	out := make(geometry.PageBoxList, len(full))
	for i, b := range full {
		out[i] = geometry.NewBox(b.Left()+precrop[0], b.Bottom()+precrop[1], b.Right()-precrop[2], b.Top()-precrop[3])
	}
	return out
}

// Margins returns the distance from each edge of content to the same edge
// of full, positive when content lies inside full.
func Margins(full, content geometry.Box) [4]float64 {
	return [4]float64{
		content.Left() - full.Left(),
		content.Bottom() - full.Bottom(),
		full.Right() - content.Right(),
		full.Top() - content.Top(),
	}
}

// Calculate applies the same-size policy to the full boxes, derives each
// selected page's margins, optionally makes them uniform, and cuts away
// everything but the retained share plus offset. Unselected pages keep their
// full box. Inputs are not modified.
func Calculate(in Input, p Params) (Result, error) {
	n := len(in.Full)
	if len(in.Content) != n {
		return Result{}, &geometry.ContractError{
			Op:      "calculate_crop_list",
			Message: fmt.Sprintf("%d full boxes but %d content boxes", n, len(in.Content)),
		}
	}
	if in.Blank != nil && len(in.Blank) != n {
		return Result{}, &geometry.ContractError{
			Op:      "calculate_crop_list",
			Message: fmt.Sprintf("%d full boxes but %d blank flags", n, len(in.Blank)),
		}
	}
	if err := in.Selection.Validate(n); err != nil {
		return Result{}, err
	}

	full, err := samesize.Apply(p.SameSize, in.Full, in.Selection)
	if err != nil {
		return Result{}, err
	}

	content := make(geometry.PageBoxList, n)
	margins := make([][4]float64, n)
	for i := range full {
		c := in.Content[i].Intersect(full[i])
		if (in.Blank != nil && in.Blank[i]) || c.Width() < 0 || c.Height() < 0 {
			c = full[i]
		}
		content[i] = c
		margins[i] = Margins(full[i], c)
	}

	pagesToCrop := in.Selection.Sorted()
	if p.Uniform && len(pagesToCrop) > 0 {
		uniform := uniformMargins(margins, pagesToCrop, p.Args.UniformOrderStat4)
		for _, pg := range pagesToCrop {
			margins[pg] = uniform
		}
	}

	crop := full.Clone()
	for _, pg := range pagesToCrop {
		f := full[pg]
		var cut [4]float64
		for e := range cut {
			cut[e] = margins[pg][e]*(100-p.Args.PercentRetain4[e])/100 + p.Args.AbsoluteOffset4[e]
		}
		b := geometry.NewBox(f.Left()+cut[0], f.Bottom()+cut[1], f.Right()-cut[2], f.Top()-cut[3])
		if b.Right() < b.Left() {
			b[geometry.EdgeLeft], b[geometry.EdgeRight] = content[pg].Left(), content[pg].Right()
		}
		if b.Top() < b.Bottom() {
			b[geometry.EdgeBottom], b[geometry.EdgeTop] = content[pg].Bottom(), content[pg].Top()
		}
		if p.Ratio != nil {
			b = p.Ratio.Pad(b, p.Weights)
		}
		crop[pg] = b
	}

	return Result{Full: full, Crop: crop, Margins: margins}, nil
}

// uniformMargins picks, per edge, the order[e]-th smallest margin over the
// selected pages. Index 0 keeps every page's content visible.
func uniformMargins(margins [][4]float64, pages []int, order [4]int) [4]float64 {
	var out [4]float64
	values := make([]float64, len(pages))
	for e := range out {
		for i, pg := range pages {
			values[i] = margins[pg][e]
		}
		sort.Float64s(values)
		k := order[e]
		if k > len(values)-1 {
			k = len(values) - 1
		}
		if k < 0 {
			k = 0
		}
		out[e] = values[k]
	}
	return out
}
