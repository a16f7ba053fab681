package measure

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/cropmargins/internal/geometry"
	"github.com/local/cropmargins/internal/metrics"
)

// DefaultThreshold is the gray level used when the requested threshold is
// outside 0..255.
const DefaultThreshold = 191

// Doc abstracts a rendered PDF document.
type Doc interface {
	NumPage() int
	ImageDPI(page int, dpi float64) (image.Image, error)
	Close() error
}

// Opener abstracts opening a PDF path into a Doc.
type Opener interface {
	Open(path string) (Doc, error)
}

// defaultOpener is provided in doc_fitz.go using go-fitz.
var defaultOpener Opener

func setDefaultOpener(o Opener) { defaultOpener = o }

// Extent is the measured content of one page.
type Extent struct {
	Box   geometry.Box `json:"box"`
	Blank bool         `json:"blank"`
}

// Request describes one measurement pass.
type Request struct {
	Path string
	// Visible is the box each page renders to, in page space.
	Visible geometry.PageBoxList
	// Pages limits rendering to these 0-based indices; the rest are reported
	// blank with their visible box.
	Pages geometry.Selection
	// Rotation holds each page's /Rotate in degrees. Missing entries are 0.
	Rotation  []int
	DPI       float64
	Threshold int
}

func (r Request) rotation(page int) int {
	if page < len(r.Rotation) {
		return r.Rotation[page]
	}
	return 0
}

// Measurer renders pages through an Opener.
type Measurer struct {
	opener Opener
}

// New returns a Measurer. A nil opener selects the go-fitz renderer.
func New(opener Opener) *Measurer {
	if opener == nil {
		opener = defaultOpener
	}
	return &Measurer{opener: opener}
}

// Measure renders every requested page and returns one extent per page.
func (m *Measurer) Measure(ctx context.Context, req Request) ([]Extent, error) {
	if m.opener == nil {
		return nil, errors.New("no PDF renderer configured")
	}
	threshold := req.Threshold
	if threshold < 0 || threshold > 255 {
		threshold = DefaultThreshold
	}
	dpi := req.DPI
	if dpi <= 0 {
		dpi = 72
	}

	d, err := m.opener.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer d.Close()

	if n := d.NumPage(); n != len(req.Visible) {
		return nil, &geometry.ContractError{
			Op:      "measure",
			Message: fmt.Sprintf("renderer reports %d pages, boundaries list %d", n, len(req.Visible)),
		}
	}
	if err := req.Pages.Validate(len(req.Visible)); err != nil {
		return nil, err
	}

	out := make([]Extent, len(req.Visible))
	for i, v := range req.Visible {
		out[i] = Extent{Box: v, Blank: true}
	}

	for _, p := range req.Pages.Sorted() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		img, err := d.ImageDPI(p, dpi)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", p+1, err)
		}
		r, ok := ContentExtent(img, uint8(threshold))
		metrics.ObservePageRender(time.Since(start))
		if !ok {
			log.Debug().Int("page", p+1).Msg("page has no content above threshold")
			continue
		}
		out[p] = Extent{Box: PixelsToBox(r, img.Bounds(), req.Visible[p], req.rotation(p))}
		log.Debug().
			Int("page", p+1).
			Int("width_px", img.Bounds().Dx()).
			Int("height_px", img.Bounds().Dy()).
			Int("rotation", req.rotation(p)).
			Str("content", out[p].Box.String()).
			Msg("measured page content")
	}
	return out, nil
}

// RenderDPI picks the rendering resolution for an x/y resolution pair.
func RenderDPI(resX, resY float64) float64 {
	return math.Max(resX, resY)
}

// Boxes splits extents into content boxes and blank flags.
func Boxes(extents []Extent) (geometry.PageBoxList, []bool) {
	boxes := make(geometry.PageBoxList, len(extents))
	blank := make([]bool, len(extents))
	for i, e := range extents {
		boxes[i] = e.Box
		blank[i] = e.Blank
	}
	return boxes, blank
}
