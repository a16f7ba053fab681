// Package cropjob runs one crop computation: configuration validation,
// optional document I/O, and the crop list calculation.
package cropjob

import (
	"fmt"

	"github.com/local/cropmargins/internal/cropconfig"
	"github.com/local/cropmargins/internal/croplist"
	"github.com/local/cropmargins/internal/geometry"
	"github.com/local/cropmargins/internal/pageconfig"
	"github.com/local/cropmargins/internal/pdfbox"
	"github.com/local/cropmargins/internal/samesize"
	"github.com/local/cropmargins/internal/settings"
)

// Plan is the validated form of a settings object for an n-page document.
type Plan struct {
	Page       pageconfig.PageConfiguration
	Params     croplist.Params
	Selection  geometry.Selection
	Precedence []pdfbox.BoxType
	Targets    []pdfbox.BoxType
	Threshold  int
	Warnings   []string
}

// NewPlan validates s for a document of numPages pages. Every repairable
// problem becomes a warning; only a selection with no valid page fails.
func NewPlan(s settings.Settings, numPages int) (*Plan, error) {
	p := &Plan{}

	cfg, warnings := pageconfig.New(&s).Validate()
	p.Page = cfg
	p.Warnings = append(p.Warnings, warnings...)

	// percent_retain4 was already repaired above; hand the result on so the
	// same problem is not reported twice.
	norm := s.Clone()
	norm.PercentRetain4 = append([]float64(nil), cfg.PercentRetain4...)
	args, warnings := cropconfig.Normalize(norm)
	p.Warnings = append(p.Warnings, warnings...)

	same, warnings := samesize.OptionsFromSettings(s)
	p.Warnings = append(p.Warnings, warnings...)

	var ratio *croplist.PageRatio
	if s.SetPageRatios != "" {
		r, err := croplist.ParsePageRatio(s.SetPageRatios)
		if err != nil {
			p.Warnings = append(p.Warnings, fmt.Sprintf("Ignoring set_page_ratios: %v", err))
		} else {
			ratio = r
		}
	}
	if len(s.PageRatioWeights) != 0 && len(s.PageRatioWeights) != 4 {
		p.Warnings = append(p.Warnings, "Ignoring page_ratio_weights: expected 4 values")
	}

	p.Params = croplist.Params{
		Args:     args,
		Uniform:  s.Uniform,
		SameSize: same,
		Ratio:    ratio,
		Weights:  cfg.PageRatioWeights,
	}

	p.Threshold = s.ThresholdValue()
	if p.Threshold < 0 || p.Threshold > 255 {
		p.Warnings = append(p.Warnings, fmt.Sprintf("Invalid threshold %d, reset to %d", p.Threshold, settings.DefaultThreshold))
		p.Threshold = settings.DefaultThreshold
	}

	p.Precedence = boxTypes(cfg.FullPageBox, []pdfbox.BoxType{pdfbox.MediaBox, pdfbox.CropBox}, "full_page_box", &p.Warnings)
	p.Targets = boxTypes(cfg.BoxesToSet, []pdfbox.BoxType{pdfbox.MediaBox}, "boxes_to_set", &p.Warnings)

	sel, warnings, err := SelectPages(s.Pages, numPages)
	p.Warnings = append(p.Warnings, warnings...)
	if err != nil {
		return nil, err
	}
	p.Selection = sel
	return p, nil
}

func boxTypes(in []string, def []pdfbox.BoxType, field string, warnings *[]string) []pdfbox.BoxType {
	out, err := pdfbox.ParseBoxTypes(in)
	if err != nil || len(out) == 0 {
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("Ignoring %s: %v", field, err))
		}
		return def
	}
	return out
}

// SelectPages turns 1-based page numbers into a selection of 0-based
// indices. Empty means every page. Out-of-range numbers are dropped with a
// warning; if nothing valid remains the selection is an error.
func SelectPages(pages []int, numPages int) (geometry.Selection, []string, error) {
	if len(pages) == 0 {
		return geometry.AllPages(numPages), nil, nil
	}
	var warnings []string
	sel := geometry.NewSelection()
	for _, p := range pages {
		if p < 1 || p > numPages {
			warnings = append(warnings, fmt.Sprintf("Ignoring page %d: document has %d pages", p, numPages))
			continue
		}
		sel[p-1] = struct{}{}
	}
	if sel.Len() == 0 {
		return nil, warnings, &geometry.ValidationError{Field: "pages", Message: "no valid pages selected"}
	}
	return sel, warnings, nil
}
