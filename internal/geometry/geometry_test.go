package geometry

import (
	"errors"
	"testing"
)

func sampleBoxes() PageBoxList {
	return PageBoxList{
		{0, 0, 100, 100},
		{10, 10, 110, 110},
		{5, 5, 105, 105},
	}
}

func TestSameSizeBoundingBox(t *testing.T) {
	tests := []struct {
		name   string
		boxes  PageBoxList
		sel    Selection
		orderN int
		want   Box
	}{
		{"covers all", sampleBoxes(), NewSelection(0, 1, 2), 0, Box{0, 0, 110, 110}},
		{"drops one outlier per edge", sampleBoxes(), NewSelection(0, 1, 2), 1, Box{5, 5, 105, 105}},
		{"drops two", sampleBoxes(), NewSelection(0, 1, 2), 2, Box{10, 10, 100, 100}},
		{"single page", sampleBoxes(), NewSelection(1), 0, Box{10, 10, 110, 110}},
		{"subset", sampleBoxes(), NewSelection(0, 2), 0, Box{0, 0, 105, 105}},
		{
			"edges independent",
			PageBoxList{{0, 50, 90, 200}, {20, 10, 300, 150}},
			NewSelection(0, 1), 0,
			Box{0, 10, 300, 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SameSizeBoundingBox(tt.boxes, tt.sel, tt.orderN)
			if err != nil {
				t.Fatalf("SameSizeBoundingBox() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("SameSizeBoundingBox() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSameSizeBoundingBoxContainsSelection(t *testing.T) {
	boxes := PageBoxList{
		{12, 30, 500, 700},
		{3, 44, 480, 720},
		{25, 18, 610, 690},
		{7, 29, 505, 701},
	}
	sel := AllPages(len(boxes))
	got, err := SameSizeBoundingBox(boxes, sel, 0)
	if err != nil {
		t.Fatal(err)
	}
	for p, b := range boxes {
		if b.Left() < got.Left() || b.Bottom() < got.Bottom() || b.Right() > got.Right() || b.Top() > got.Top() {
			t.Errorf("page %d box %v not inside %v", p, b, got)
		}
	}
}

func TestSameSizeBoundingBoxMonotonic(t *testing.T) {
	boxes := PageBoxList{
		{12, 30, 500, 700},
		{3, 44, 480, 720},
		{25, 18, 610, 690},
		{7, 29, 505, 701},
		{9, 31, 499, 698},
	}
	sel := AllPages(len(boxes))
	prev, err := SameSizeBoundingBox(boxes, sel, 0)
	if err != nil {
		t.Fatal(err)
	}
	for n := 1; n < sel.Len(); n++ {
		cur, err := SameSizeBoundingBox(boxes, sel, n)
		if err != nil {
			t.Fatalf("orderN=%d: %v", n, err)
		}
		if cur.Left() < prev.Left() || cur.Bottom() < prev.Bottom() || cur.Right() > prev.Right() || cur.Top() > prev.Top() {
			t.Errorf("orderN=%d relaxed outwards: %v -> %v", n, prev, cur)
		}
		prev = cur
	}
}

func TestSameSizeBoundingBoxErrors(t *testing.T) {
	t.Run("empty selection", func(t *testing.T) {
		_, err := SameSizeBoundingBox(sampleBoxes(), NewSelection(), 0)
		if !errors.Is(err, ErrEmptySelection) {
			t.Errorf("error = %v, want ErrEmptySelection", err)
		}
	})

	t.Run("index out of range", func(t *testing.T) {
		_, err := SameSizeBoundingBox(sampleBoxes(), NewSelection(0, 3), 0)
		if !IsContractError(err) {
			t.Errorf("error = %v, want ContractError", err)
		}
	})

	t.Run("order statistic too large", func(t *testing.T) {
		_, err := SameSizeBoundingBox(sampleBoxes(), NewSelection(0, 1), 2)
		if !IsContractError(err) {
			t.Errorf("error = %v, want ContractError", err)
		}
	})

	t.Run("negative order statistic", func(t *testing.T) {
		_, err := SameSizeBoundingBox(sampleBoxes(), NewSelection(0, 1), -1)
		if !IsContractError(err) {
			t.Errorf("error = %v, want ContractError", err)
		}
	})
}

func TestSameSizeBoundingBoxDoesNotMutate(t *testing.T) {
	boxes := sampleBoxes()
	before := boxes.Clone()
	if _, err := SameSizeBoundingBox(boxes, AllPages(3), 1); err != nil {
		t.Fatal(err)
	}
	for i := range boxes {
		if boxes[i] != before[i] {
			t.Errorf("page %d changed: %v -> %v", i, before[i], boxes[i])
		}
	}
}

func TestParseEdgeMask(t *testing.T) {
	tests := []struct {
		in      string
		want    EdgeMask
		wantErr bool
	}{
		{"tfft", EdgeMask{true, false, false, true}, false},
		{"ffff", EdgeMask{}, false},
		{"tttt", EdgeMask{true, true, true, true}, false},
		{" ftft ", EdgeMask{false, true, false, true}, false},
		{"tft", EdgeMask{}, true},
		{"tftft", EdgeMask{}, true},
		{"txft", EdgeMask{}, true},
		{"TFFT", EdgeMask{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEdgeMask(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEdgeMask(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !IsValidationError(err) {
				t.Errorf("error type = %T, want *ValidationError", err)
			}
			if got != tt.want {
				t.Errorf("ParseEdgeMask(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestEdgeMaskString(t *testing.T) {
	if s := (EdgeMask{true, false, false, true}).String(); s != "tfft" {
		t.Errorf("String() = %q, want tfft", s)
	}
	if !(EdgeMask{true, true, true, true}).AllTrue() || (EdgeMask{true, false, true, true}).AllTrue() {
		t.Error("AllTrue mismatch")
	}
	if !(EdgeMask{}).AllFalse() || (EdgeMask{false, false, true, false}).AllFalse() {
		t.Error("AllFalse mismatch")
	}
}

func TestCombineWithMask(t *testing.T) {
	t.Run("mixed mask", func(t *testing.T) {
		mask, _ := ParseEdgeMask("tfft")
		got, err := CombineWithMask(mask, PageBoxList{{1, 2, 3, 4}}, PageBoxList{{10, 20, 30, 40}})
		if err != nil {
			t.Fatal(err)
		}
		want := Box{10, 2, 3, 40}
		if len(got) != 1 || got[0] != want {
			t.Errorf("CombineWithMask() = %v, want [%v]", got, want)
		}
	})

	defaults := PageBoxList{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}}
	overrides := PageBoxList{{-1, -2, -3, -4}, {-5, -6, -7, -8}, {-9, -10, -11, -12}}

	t.Run("all false keeps defaults", func(t *testing.T) {
		got, err := CombineWithMask(EdgeMask{}, defaults, overrides)
		if err != nil {
			t.Fatal(err)
		}
		for i := range got {
			if got[i] != defaults[i] {
				t.Errorf("page %d = %v, want %v", i, got[i], defaults[i])
			}
		}
	})

	t.Run("all true takes overrides", func(t *testing.T) {
		got, err := CombineWithMask(EdgeMask{true, true, true, true}, defaults, overrides)
		if err != nil {
			t.Fatal(err)
		}
		for i := range got {
			if got[i] != overrides[i] {
				t.Errorf("page %d = %v, want %v", i, got[i], overrides[i])
			}
		}
	})

	t.Run("positional under permutation", func(t *testing.T) {
		mask := EdgeMask{false, true, true, false}
		perm := []int{2, 0, 1}
		pd := make(PageBoxList, len(perm))
		po := make(PageBoxList, len(perm))
		for i, j := range perm {
			pd[i] = defaults[j]
			po[i] = overrides[j]
		}
		base, _ := CombineWithMask(mask, defaults, overrides)
		permuted, _ := CombineWithMask(mask, pd, po)
		for i, j := range perm {
			if permuted[i] != base[j] {
				t.Errorf("permuted[%d] = %v, want %v", i, permuted[i], base[j])
			}
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := CombineWithMask(EdgeMask{}, defaults, overrides[:2])
		if !IsContractError(err) {
			t.Errorf("error = %v, want ContractError", err)
		}
	})

	t.Run("inputs untouched", func(t *testing.T) {
		d := defaults.Clone()
		o := overrides.Clone()
		_, _ = CombineWithMask(EdgeMask{true, true, true, true}, d, o)
		for i := range d {
			if d[i] != defaults[i] || o[i] != overrides[i] {
				t.Errorf("page %d mutated", i)
			}
		}
	})
}

func TestBoxFormat(t *testing.T) {
	tests := []struct {
		box  Box
		want string
	}{
		{Box{0, 0, 612, 792}, "[0 0 612 792]"},
		{Box{1.5, -2.25, 100.125, 3}, "[1.5 -2.25 100.125 3]"},
		{Box{1.0 / 3, 0, 0, 0}, "[0.33333333 0 0 0]"},
		{Box{-0.0000000001, 0, 0, 0}, "[0 0 0 0]"},
	}
	for _, tt := range tests {
		if got := tt.box.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestBoxIntersect(t *testing.T) {
	a := Box{0, 0, 100, 100}
	b := Box{50, -10, 150, 80}
	want := Box{50, 0, 100, 80}
	if got := a.Intersect(b); got != want {
		t.Errorf("Intersect() = %v, want %v", got, want)
	}
	if !a.Intersect(Box{200, 200, 300, 300}).IsEmpty() {
		t.Error("disjoint intersection should be empty")
	}
}

func TestSelection(t *testing.T) {
	s := NewSelection(3, 1, 3, 0)
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
	got := s.Sorted()
	want := []int{0, 1, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sorted() = %v, want %v", got, want)
		}
	}
	if err := s.Validate(4); err != nil {
		t.Errorf("Validate(4) = %v", err)
	}
	if err := s.Validate(3); !IsContractError(err) {
		t.Errorf("Validate(3) = %v, want ContractError", err)
	}
	if err := NewSelection(-1).Validate(3); !IsContractError(err) {
		t.Errorf("negative index error = %v, want ContractError", err)
	}
}
