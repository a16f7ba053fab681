package geometry

import "sort"

// Selection is a set of 0-based page indices.
type Selection map[int]struct{}

// NewSelection builds a selection from page indices; duplicates collapse.
func NewSelection(pages ...int) Selection {
	s := make(Selection, len(pages))
	for _, p := range pages {
		s[p] = struct{}{}
	}
	return s
}

// AllPages selects every page of an n-page document.
func AllPages(n int) Selection {
	s := make(Selection, n)
	for i := 0; i < n; i++ {
		s[i] = struct{}{}
	}
	return s
}

func (s Selection) Contains(page int) bool {
	_, ok := s[page]
	return ok
}

func (s Selection) Len() int { return len(s) }

// Sorted returns the selected indices in ascending order.
func (s Selection) Sorted() []int {
	out := make([]int, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Validate checks every index lies in [0, numPages).
func (s Selection) Validate(numPages int) error {
	for _, p := range s.Sorted() {
		if p < 0 || p >= numPages {
			return contractf("selection", "page index %d out of range [0, %d)", p, numPages)
		}
	}
	return nil
}
