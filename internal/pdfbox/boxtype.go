// Package pdfbox reads page boundary boxes from PDF files and writes
// computed crop boxes back, using pdfcpu.
package pdfbox

import (
	"fmt"
	"strings"

	"github.com/local/cropmargins/internal/geometry"
)

// BoxType identifies one of the PDF page boundary boxes.
type BoxType string

const (
	MediaBox BoxType = "m"
	CropBox  BoxType = "c"
	TrimBox  BoxType = "t"
	ArtBox   BoxType = "a"
	BleedBox BoxType = "b"
)

// Name returns the pdfcpu box name, e.g. "media".
func (t BoxType) Name() string {
	switch t {
	case MediaBox:
		return "media"
	case CropBox:
		return "crop"
	case TrimBox:
		return "trim"
	case ArtBox:
		return "art"
	case BleedBox:
		return "bleed"
	}
	return string(t)
}

// ParseBoxType accepts the one letter code or the long name ("mediabox",
// "media", "m").
func ParseBoxType(s string) (BoxType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "media", "mediabox":
		return MediaBox, nil
	case "c", "crop", "cropbox":
		return CropBox, nil
	case "t", "trim", "trimbox":
		return TrimBox, nil
	case "a", "art", "artbox":
		return ArtBox, nil
	case "b", "bleed", "bleedbox":
		return BleedBox, nil
	}
	return "", &geometry.ValidationError{Field: "box_type", Message: fmt.Sprintf("unknown box type %q", s)}
}

// ParseBoxTypes parses a list, dropping duplicates and keeping order.
func ParseBoxTypes(in []string) ([]BoxType, error) {
	out := make([]BoxType, 0, len(in))
	seen := make(map[BoxType]bool, len(in))
	for _, s := range in {
		t, err := ParseBoxType(s)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}
