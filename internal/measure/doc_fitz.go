package measure

import (
	"image"

	fitz "github.com/gen2brain/go-fitz"
)

// fitzOpener implements Opener using github.com/gen2brain/go-fitz.
type fitzOpener struct{}

func (fitzOpener) Open(path string) (Doc, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return fitzDoc{doc}, nil
}

func init() {
	setDefaultOpener(fitzOpener{})
}

// --- Adapters ---

type fitzDoc struct{ *fitz.Document }

func (d fitzDoc) ImageDPI(page int, dpi float64) (image.Image, error) {
	img, err := d.Document.ImageDPI(page, dpi)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Available reports whether a renderer is configured.
func Available() bool { return defaultOpener != nil }
