package cropjob

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/cropmargins/internal/croplist"
	"github.com/local/cropmargins/internal/geometry"
	"github.com/local/cropmargins/internal/logger"
	"github.com/local/cropmargins/internal/measure"
	"github.com/local/cropmargins/internal/metrics"
	"github.com/local/cropmargins/internal/pdfbox"
	"github.com/local/cropmargins/internal/settings"
	"github.com/local/cropmargins/internal/source"
)

// Sources resolves inputs and delivers outputs.
type Sources interface {
	Fetch(ctx context.Context, ref string) (*source.Local, error)
	TempFile(pattern string) (string, error)
	Publish(ctx context.Context, localPath, dest string) (string, error)
	OutputRef(input string) string
}

// Boundaries reads and writes PDF page boxes.
type Boundaries interface {
	ReadBoundaries(path, password string) ([]pdfbox.PageBoundaries, error)
	WriteBoxes(in, out string, boxes geometry.PageBoxList, sel geometry.Selection, targets []pdfbox.BoxType, password string) error
	Decrypt(in, out, password string) error
}

// Measurer finds the content extent of rendered pages.
type Measurer interface {
	Measure(ctx context.Context, req measure.Request) ([]measure.Extent, error)
}

// Request describes one document run.
type Request struct {
	ID       string            `json:"id"`
	Input    string            `json:"input"`
	Output   string            `json:"output,omitempty"`
	Settings settings.Settings `json:"settings"`
}

// Result is the outcome of a document run.
type Result struct {
	ID         string               `json:"id"`
	Input      string               `json:"input"`
	Output     string               `json:"output"`
	Pages      int                  `json:"pages"`
	Selected   []int                `json:"selected_pages"`
	Full       geometry.PageBoxList `json:"full_boxes"`
	Crop       geometry.PageBoxList `json:"crop_boxes"`
	Warnings   []string             `json:"warnings"`
	CropData   string               `json:"crop_data_file,omitempty"`
	DurationMs int64                `json:"duration_ms"`
}

// Runner executes document runs.
type Runner struct {
	Sources    Sources
	Boundaries Boundaries
	Measurer   Measurer
	// OutputRoot, when set, is the only directory local outputs and crop
	// data files may be written under.
	OutputRoot string
}

// Run fetches the input, measures its pages, computes and writes the crop
// boxes, and publishes the cropped copy.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := r.run(ctx, req)
	result := "success"
	if err != nil {
		result = "failed"
	}
	metrics.ObserveRun("document", result, time.Since(start))
	if res != nil {
		res.DurationMs = time.Since(start).Milliseconds()
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, req Request) (*Result, error) {
	lg := logger.ForRun(req.ID, req.Input)

	cropData, dest, err := r.destinations(req)
	if err != nil {
		return nil, err
	}

	local, err := r.Sources.Fetch(ctx, req.Input)
	if err != nil {
		return nil, fmt.Errorf("fetch input: %w", err)
	}
	defer local.Cleanup()

	work := local.Path
	if pw := req.Settings.Password; pw != nil && *pw != "" {
		dec, err := r.Sources.TempFile("decrypted-*.pdf")
		if err != nil {
			return nil, err
		}
		defer os.Remove(dec)
		if err := r.Boundaries.Decrypt(local.Path, dec, *pw); err != nil {
			return nil, err
		}
		work = dec
	}

	pbs, err := r.Boundaries.ReadBoundaries(work, "")
	if err != nil {
		return nil, err
	}
	if len(pbs) == 0 {
		return nil, &geometry.ValidationError{Field: "input", Message: "document has no pages"}
	}

	plan, err := NewPlan(req.Settings, len(pbs))
	if err != nil {
		return nil, err
	}
	metrics.AddConfigWarnings(len(plan.Warnings))
	for _, w := range plan.Warnings {
		lg.Warn().Str("warning", w).Msg("configuration repaired")
	}

	level := zerolog.DebugLevel
	if plan.Page.IsVerbose() {
		level = zerolog.InfoLevel
	}
	lg.WithLevel(level).Str("config", plan.Page.String()).Int("pages", len(pbs)).Int("selected", plan.Selection.Len()).Msg("starting crop run")

	full := croplist.PreCrop(pdfbox.FullPageBoxes(pbs, plan.Precedence), plan.Page.PreCrop4())

	extents, err := r.Measurer.Measure(ctx, measure.Request{
		Path:      work,
		Visible:   pdfbox.VisibleBoxes(pbs),
		Pages:     plan.Selection,
		Rotation:  pdfbox.Rotations(pbs),
		DPI:       measure.RenderDPI(plan.Page.Resolution()),
		Threshold: plan.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("measure pages: %w", err)
	}
	content, blank := measure.Boxes(extents)

	out, err := croplist.Calculate(croplist.Input{
		Full:      full,
		Content:   content,
		Blank:     blank,
		Selection: plan.Selection,
	}, plan.Params)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cropped, err := r.Sources.TempFile("cropped-*.pdf")
	if err != nil {
		return nil, err
	}
	defer os.Remove(cropped)
	if err := r.Boundaries.WriteBoxes(work, cropped, out.Crop, plan.Selection, plan.Targets, ""); err != nil {
		return nil, fmt.Errorf("write boxes: %w", err)
	}

	res := &Result{
		ID:       req.ID,
		Input:    req.Input,
		Pages:    len(pbs),
		Selected: oneBased(plan.Selection),
		Full:     out.Full,
		Crop:     out.Crop,
		Warnings: nonNil(plan.Warnings),
	}

	if plan.Page.ShouldWriteCropData() {
		if err := pdfbox.WriteCropData(cropData, pdfbox.CropData(out.Full, out.Crop, plan.Selection)); err != nil {
			return nil, err
		}
		res.CropData = cropData
	}

	final, err := r.Sources.Publish(ctx, cropped, dest)
	if err != nil {
		return nil, fmt.Errorf("publish output: %w", err)
	}
	res.Output = final

	metrics.AddPagesCropped(plan.Selection.Len())
	lg.Info().Str("output", final).Int("pages", len(pbs)).Int("cropped", plan.Selection.Len()).Int("warnings", len(plan.Warnings)).Msg("crop run finished")
	return res, nil
}

// destinations resolves where the crop data file and the cropped copy go,
// holding local paths to OutputRoot when it is set.
func (r *Runner) destinations(req Request) (cropData, dest string, err error) {
	cropData = req.Settings.WriteCropDataToFile
	dest = req.Output
	if dest == "" {
		dest = r.Sources.OutputRef(req.Input)
	}
	if r.OutputRoot == "" {
		return cropData, dest, nil
	}
	if cropData != "" {
		if cropData, err = source.Confine("write_crop_data_to_file", r.OutputRoot, source.LocalPath(cropData)); err != nil {
			return "", "", err
		}
	}
	if !source.IsRemote(dest) {
		if dest, err = source.Confine("output", r.OutputRoot, source.LocalPath(dest)); err != nil {
			return "", "", err
		}
	}
	return cropData, dest, nil
}
