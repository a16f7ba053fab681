package cropjob

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/cropmargins/internal/croplist"
	"github.com/local/cropmargins/internal/geometry"
	"github.com/local/cropmargins/internal/metrics"
	"github.com/local/cropmargins/internal/settings"
)

// ComputeRequest carries measurements the caller already holds.
type ComputeRequest struct {
	Settings settings.Settings    `json:"settings"`
	Full     geometry.PageBoxList `json:"full_boxes"`
	Content  geometry.PageBoxList `json:"content_boxes"`
	Blank    []bool               `json:"blank,omitempty"`
}

// ComputeResult is the outcome of Compute.
type ComputeResult struct {
	Full     geometry.PageBoxList `json:"full_boxes"`
	Crop     geometry.PageBoxList `json:"crop_boxes"`
	Selected []int                `json:"selected_pages"`
	Warnings []string             `json:"warnings"`
}

// Compute derives crop boxes from supplied full and content boxes without
// touching any file.
func Compute(req ComputeRequest) (*ComputeResult, error) {
	start := time.Now()
	res, err := compute(req)
	result := "success"
	if err != nil {
		result = "failed"
	}
	metrics.ObserveRun("compute", result, time.Since(start))
	return res, err
}

func compute(req ComputeRequest) (*ComputeResult, error) {
	if len(req.Full) == 0 {
		return nil, &geometry.ValidationError{Field: "full_boxes", Message: "at least one page is required"}
	}
	if len(req.Content) != len(req.Full) {
		return nil, &geometry.ValidationError{
			Field:   "content_boxes",
			Message: fmt.Sprintf("got %d boxes for %d pages", len(req.Content), len(req.Full)),
		}
	}

	plan, err := NewPlan(req.Settings, len(req.Full))
	if err != nil {
		return nil, err
	}
	metrics.AddConfigWarnings(len(plan.Warnings))
	logWarnings(plan.Warnings)

	full := croplist.PreCrop(req.Full, plan.Page.PreCrop4())
	out, err := croplist.Calculate(croplist.Input{
		Full:      full,
		Content:   req.Content,
		Blank:     req.Blank,
		Selection: plan.Selection,
	}, plan.Params)
	if err != nil {
		return nil, err
	}

	return &ComputeResult{
		Full:     out.Full,
		Crop:     out.Crop,
		Selected: oneBased(plan.Selection),
		Warnings: nonNil(plan.Warnings),
	}, nil
}

func logWarnings(warnings []string) {
	for _, w := range warnings {
		log.Warn().Str("warning", w).Msg("configuration repaired")
	}
}

func oneBased(sel geometry.Selection) []int {
	pages := sel.Sorted()
	for i := range pages {
		pages[i]++
	}
	return pages
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
