package pdfbox

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/cropmargins/internal/geometry"
)

// PageBoundaries holds the boxes present on one page. Absent boxes are nil.
type PageBoundaries struct {
	Media    *geometry.Box `json:"media,omitempty"`
	Crop     *geometry.Box `json:"crop,omitempty"`
	Trim     *geometry.Box `json:"trim,omitempty"`
	Bleed    *geometry.Box `json:"bleed,omitempty"`
	Art      *geometry.Box `json:"art,omitempty"`
	Rotation int           `json:"rotation"`
}

// Get returns the box of type t, or nil.
func (pb PageBoundaries) Get(t BoxType) *geometry.Box {
	switch t {
	case MediaBox:
		return pb.Media
	case CropBox:
		return pb.Crop
	case TrimBox:
		return pb.Trim
	case ArtBox:
		return pb.Art
	case BleedBox:
		return pb.Bleed
	}
	return nil
}

// MediaOrZero returns the media box, or the zero box when it is missing.
func (pb PageBoundaries) MediaOrZero() geometry.Box {
	if pb.Media == nil {
		return geometry.Box{}
	}
	return *pb.Media
}

// FullPageBox combines the boxes named in precedence: the first one present
// is the base and every further present box is intersected with it. With
// none present the media box is used.
func FullPageBox(pb PageBoundaries, precedence []BoxType) geometry.Box {
	var full *geometry.Box
	for _, t := range precedence {
		b := pb.Get(t)
		if b == nil {
			continue
		}
		if full == nil {
			v := *b
			full = &v
			continue
		}
		v := full.Intersect(*b)
		full = &v
	}
	if full == nil {
		return pb.MediaOrZero()
	}
	return *full
}

// Visible is the area a renderer shows: the crop box clipped to the media box.
func Visible(pb PageBoundaries) geometry.Box {
	return FullPageBox(pb, []BoxType{MediaBox, CropBox})
}

// FullPageBoxes applies FullPageBox to every page.
func FullPageBoxes(pages []PageBoundaries, precedence []BoxType) geometry.PageBoxList {
	out := make(geometry.PageBoxList, len(pages))
	for i, pb := range pages {
		out[i] = FullPageBox(pb, precedence)
	}
	return out
}

// Rotations lists each page's /Rotate value.
func Rotations(pages []PageBoundaries) []int {
	out := make([]int, len(pages))
	for i, pb := range pages {
		out[i] = pb.Rotation
	}
	return out
}

// VisibleBoxes applies Visible to every page.
func VisibleBoxes(pages []PageBoundaries) geometry.PageBoxList {
	out := make(geometry.PageBoxList, len(pages))
	for i, pb := range pages {
		out[i] = Visible(pb)
	}
	return out
}

func fromModel(pb model.PageBoundaries) PageBoundaries {
	return PageBoundaries{
		Media:    fromBox(pb.Media),
		Crop:     fromBox(pb.Crop),
		Trim:     fromBox(pb.Trim),
		Bleed:    fromBox(pb.Bleed),
		Art:      fromBox(pb.Art),
		Rotation: pb.Rot,
	}
}

func fromBox(b *model.Box) *geometry.Box {
	if b == nil {
		return nil
	}
	return fromRect(b.Rect)
}

func fromRect(r *types.Rectangle) *geometry.Box {
	if r == nil {
		return nil
	}
	b := geometry.NewBox(r.LL.X, r.LL.Y, r.UR.X, r.UR.Y)
	return &b
}
