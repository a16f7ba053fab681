package geometry

import "sort"

// SameSizeBoundingBox returns one box covering the selected pages' boxes.
//
// Each edge is handled independently: the selected pages' left and bottom
// values are sorted ascending, right and top descending, and the value at
// position orderN is taken. With orderN == 0 this is the smallest box that
// contains every selected box; larger values ignore the orderN most extreme
// pages per edge, which keeps one odd-sized page from widening the whole set.
//
// orderN must satisfy 0 <= orderN < sel.Len(); clamping is the caller's job.
func SameSizeBoundingBox(boxes PageBoxList, sel Selection, orderN int) (Box, error) {
	if sel.Len() == 0 {
		return Box{}, ErrEmptySelection
	}
	if err := sel.Validate(len(boxes)); err != nil {
		return Box{}, err
	}
	if orderN < 0 || orderN >= sel.Len() {
		return Box{}, contractf("same_size_bounding_box", "order statistic %d outside [0, %d)", orderN, sel.Len())
	}

	pages := sel.Sorted()
	var out Box
	for _, e := range Edges {
		values := make([]float64, 0, len(pages))
		for _, p := range pages {
			values = append(values, boxes[p][e])
		}
		if e == EdgeLeft || e == EdgeBottom {
			sort.Float64s(values)
		} else {
			sort.Sort(sort.Reverse(sort.Float64Slice(values)))
		}
		out[e] = values[orderN]
	}
	return out, nil
}
