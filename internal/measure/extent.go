// Package measure renders pages and finds the extent of their visible
// content, expressed as a box in page space.
package measure

import (
	"image"
	"image/color"

	"github.com/local/cropmargins/internal/geometry"
)

// toGrayscale converts an image to grayscale
func toGrayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}

	return gray
}

// ContentExtent returns the smallest pixel rectangle holding every pixel
// whose gray level is at or below threshold. ok is false for a page with no
// such pixel.
func ContentExtent(img image.Image, threshold uint8) (r image.Rectangle, ok bool) {
	gray := toGrayscale(img)
	bounds := gray.Bounds()
	minX, minY := bounds.Max.X, bounds.Max.Y
	maxX, maxY := bounds.Min.X-1, bounds.Min.Y-1

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if gray.GrayAt(x, y).Y > threshold {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// PixelsToBox maps a pixel rectangle of the rendering imgBounds onto page,
// the unrotated box the rendering covers. The renderer applies the page's
// /Rotate (clockwise), so r is first turned back into unrotated pixel space.
// Pixel rows grow downwards, page y upwards.
func PixelsToBox(r, imgBounds image.Rectangle, page geometry.Box, rotation int) geometry.Box {
	w, h := float64(imgBounds.Dx()), float64(imgBounds.Dy())
	x0, x1 := float64(r.Min.X-imgBounds.Min.X), float64(r.Max.X-imgBounds.Min.X)
	y0, y1 := float64(r.Min.Y-imgBounds.Min.Y), float64(r.Max.Y-imgBounds.Min.Y)

	// u runs left to right over the unrotated rendering, v top to bottom;
	// uw x vh is that rendering's size in pixels.
	var u0, u1, v0, v1, uw, vh float64
	switch normalizeRotation(rotation) {
	case 90:
		u0, u1, v0, v1, uw, vh = y0, y1, w-x1, w-x0, h, w
	case 180:
		u0, u1, v0, v1, uw, vh = w-x1, w-x0, h-y1, h-y0, w, h
	case 270:
		u0, u1, v0, v1, uw, vh = h-y1, h-y0, x0, x1, h, w
	default:
		u0, u1, v0, v1, uw, vh = x0, x1, y0, y1, w, h
	}

	sx := page.Width() / uw
	sy := page.Height() / vh
	return geometry.NewBox(
		page.Left()+u0*sx,
		page.Top()-v1*sy,
		page.Left()+u1*sx,
		page.Top()-v0*sy,
	)
}

// normalizeRotation folds a /Rotate value into 0, 90, 180 or 270. Values
// that are not a multiple of 90 are invalid in PDF and read as 0.
func normalizeRotation(deg int) int {
	if deg%90 != 0 {
		return 0
	}
	return ((deg % 360) + 360) % 360
}
