// Package samesize makes a selected set of pages share one box, either the
// common bounding box of the selection or a caller supplied fixed box.
package samesize

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/cropmargins/internal/geometry"
	"github.com/local/cropmargins/internal/settings"
)

// Options drives Apply. A nil pointer field means the option was not given.
type Options struct {
	Verbose bool

	// SamePageSize requests the common bounding box of the selection.
	SamePageSize bool
	// OrderStat, when set, forces SamePageSize and ignores that many extreme
	// pages per edge.
	OrderStat *int
	// SetSamePageSize is a fixed box used when SamePageSize is not set.
	SetSamePageSize *geometry.Box
	// Mask limits which edges take the uniform value.
	Mask *geometry.EdgeMask
}

// OptionsFromSettings extracts the same-size options. A fixed box without
// four values or an unparsable mask is ignored with a warning.
func OptionsFromSettings(s settings.Settings) (Options, []string) {
	opts := Options{
		Verbose:      s.Verbose,
		SamePageSize: s.SamePageSize,
	}
	var warnings []string

	if s.SamePageSizeOrderStat != nil {
		n := *s.SamePageSizeOrderStat
		opts.OrderStat = &n
	}

	switch len(s.SetSamePageSize) {
	case 0:
	case 4:
		b := geometry.NewBox(s.SetSamePageSize[0], s.SetSamePageSize[1], s.SetSamePageSize[2], s.SetSamePageSize[3])
		opts.SetSamePageSize = &b
	default:
		warnings = append(warnings, fmt.Sprintf("Ignoring set_same_page_size: expected 4 values, got %d", len(s.SetSamePageSize)))
	}

	if s.SamePageSize4 != "" {
		m, err := geometry.ParseEdgeMask(s.SamePageSize4)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Ignoring same_page_size4: %v", err))
		} else {
			opts.Mask = &m
		}
	}

	return opts, warnings
}

// Apply returns a new box list in which every selected page carries the
// uniform box (edge-masked against its own box when a mask is set).
// Unselected pages keep their box. With neither SamePageSize, OrderStat nor
// SetSamePageSize the result equals boxes.
func Apply(opts Options, boxes geometry.PageBoxList, sel geometry.Selection) (geometry.PageBoxList, error) {
	orderN := 0
	samePageSize := opts.SamePageSize
	if opts.OrderStat != nil {
		samePageSize = true
		orderN = clamp(*opts.OrderStat, 0, sel.Len()-1)
	}

	if !samePageSize && opts.SetSamePageSize == nil {
		return boxes.Clone(), nil
	}

	level := zerolog.DebugLevel
	if opts.Verbose {
		level = zerolog.InfoLevel
	}

	var uniform geometry.Box
	if samePageSize {
		ev := log.WithLevel(level).Int("selected", sel.Len())
		if orderN != 0 {
			ev = ev.Int("ignored_per_edge", orderN)
		}
		ev.Msg("setting each page size to the smallest box bounding the selected pages")

		b, err := geometry.SameSizeBoundingBox(boxes, sel, orderN)
		if err != nil {
			return nil, fmt.Errorf("same page size: %w", err)
		}
		uniform = b
	} else {
		uniform = *opts.SetSamePageSize
		log.WithLevel(level).Str("box", uniform.String()).Msg("setting each page size to the box passed in")
	}

	if err := sel.Validate(len(boxes)); err != nil {
		return nil, err
	}

	uniformList := geometry.Broadcast(uniform, len(boxes))
	if opts.Mask != nil {
		combined, err := geometry.CombineWithMask(*opts.Mask, boxes, uniformList)
		if err != nil {
			return nil, fmt.Errorf("same page size mask: %w", err)
		}
		uniformList = combined
	}

	out := make(geometry.PageBoxList, len(boxes))
	for p, b := range boxes {
		if sel.Contains(p) {
			out[p] = uniformList[p]
		} else {
			out[p] = b
		}
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
