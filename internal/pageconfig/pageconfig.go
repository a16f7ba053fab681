// Package pageconfig holds the consolidated per-document view of the settings
// that the measurement, crop and write stages consult during one run.
package pageconfig

import (
	"fmt"

	"github.com/local/cropmargins/internal/settings"
)

const (
	DefaultDPI           = 72
	DefaultPercentRetain = settings.DefaultPercentRetain
	// DecimalPrecision is the number of decimals written for box values.
	DecimalPrecision = 8
)

// DefaultPageRatioWeights distributes page-ratio padding evenly.
var DefaultPageRatioWeights = [4]float64{1, 1, 1, 1}

// PageConfiguration is created once per run and read-only afterwards.
// Validate returns a repaired copy instead of mutating the receiver.
type PageConfiguration struct {
	Verbose  bool
	Password *string

	ResX float64
	ResY float64

	FullPageBox      []string
	AbsolutePreCrop4 []float64
	PercentRetain    float64
	PercentRetain4   []float64

	WriteCropDataToFile string
	BoxesToSet          []string
	PageRatioWeights    [4]float64
}

// Default returns the configuration used when no settings are supplied.
func Default() PageConfiguration {
	return PageConfiguration{
		ResX:             DefaultDPI,
		ResY:             DefaultDPI,
		FullPageBox:      []string{"m", "c"},
		AbsolutePreCrop4: []float64{0, 0, 0, 0},
		PercentRetain:    DefaultPercentRetain,
		PercentRetain4:   []float64{DefaultPercentRetain, DefaultPercentRetain, DefaultPercentRetain, DefaultPercentRetain},
		BoxesToSet:       []string{"m"},
		PageRatioWeights: DefaultPageRatioWeights,
	}
}

// New derives a configuration from s. A nil s yields Default. Scalar shorthand
// for the percent-retain and pre-crop quadruples is expanded here; the raw
// quadruple, when given, is kept as supplied so Validate can repair it.
func New(s *settings.Settings) PageConfiguration {
	if s == nil {
		return Default()
	}
	cfg := PageConfiguration{
		Verbose:             s.Verbose,
		ResX:                s.ResX,
		ResY:                s.ResY,
		FullPageBox:         append([]string(nil), s.FullPageBox...),
		PercentRetain:       s.PercentRetain,
		WriteCropDataToFile: s.WriteCropDataToFile,
		BoxesToSet:          append([]string(nil), s.BoxesToSet...),
		PageRatioWeights:    DefaultPageRatioWeights,
	}
	if s.Password != nil {
		p := *s.Password
		cfg.Password = &p
	}
	if len(cfg.FullPageBox) == 0 {
		cfg.FullPageBox = []string{"m", "c"}
	}
	if len(cfg.BoxesToSet) == 0 {
		cfg.BoxesToSet = []string{"m"}
	}

	if len(s.PercentRetain4) > 0 {
		cfg.PercentRetain4 = append([]float64(nil), s.PercentRetain4...)
	} else {
		p := s.PercentRetain
		cfg.PercentRetain4 = []float64{p, p, p, p}
	}

	if len(s.AbsolutePreCrop4) > 0 {
		cfg.AbsolutePreCrop4 = append([]float64(nil), s.AbsolutePreCrop4...)
	} else {
		c := s.AbsolutePreCrop
		cfg.AbsolutePreCrop4 = []float64{c, c, c, c}
	}

	if len(s.PageRatioWeights) == 4 {
		copy(cfg.PageRatioWeights[:], s.PageRatioWeights)
	}
	return cfg
}

// Resolution returns the rendering resolution in dots per inch.
func (c PageConfiguration) Resolution() (x, y float64) { return c.ResX, c.ResY }

func (c PageConfiguration) IsVerbose() bool { return c.Verbose }

func (c PageConfiguration) HasPassword() bool { return c.Password != nil }

// PasswordValue returns the document password, or "" when none was given.
func (c PageConfiguration) PasswordValue() string {
	if c.Password == nil {
		return ""
	}
	return *c.Password
}

func (c PageConfiguration) ShouldWriteCropData() bool { return c.WriteCropDataToFile != "" }

func (c PageConfiguration) CropDataFilename() string { return c.WriteCropDataToFile }

func (c PageConfiguration) String() string {
	return fmt.Sprintf("PageConfiguration(verbose=%t, resolution=%gx%g, boxes=%v)", c.Verbose, c.ResX, c.ResY, c.FullPageBox)
}

// Validate returns a repaired copy of c and one warning per repair. It never
// fails; validating its own output again yields no warnings.
func (c PageConfiguration) Validate() (PageConfiguration, []string) {
	out := c.clone()
	var warnings []string

	if out.ResX <= 0 {
		out.ResX = DefaultDPI
		warnings = append(warnings, fmt.Sprintf("Invalid X resolution, reset to %d", DefaultDPI))
	}
	if out.ResY <= 0 {
		out.ResY = DefaultDPI
		warnings = append(warnings, fmt.Sprintf("Invalid Y resolution, reset to %d", DefaultDPI))
	}

	if len(out.PercentRetain4) != 4 {
		p := out.PercentRetain
		out.PercentRetain4 = []float64{p, p, p, p}
		warnings = append(warnings, "Fixed percent_retain_4 to have 4 values")
	}
	if len(out.AbsolutePreCrop4) != 4 {
		out.AbsolutePreCrop4 = []float64{0, 0, 0, 0}
		warnings = append(warnings, "Fixed absolute_precrop_4 to have 4 values")
	}

	return out, warnings
}

// PreCrop4 returns the pre-crop amounts as an array. Only meaningful on a
// validated configuration.
func (c PageConfiguration) PreCrop4() [4]float64 {
	var out [4]float64
	copy(out[:], c.AbsolutePreCrop4)
	return out
}

func (c PageConfiguration) clone() PageConfiguration {
	out := c
	if c.Password != nil {
		p := *c.Password
		out.Password = &p
	}
	out.FullPageBox = append([]string(nil), c.FullPageBox...)
	out.BoxesToSet = append([]string(nil), c.BoxesToSet...)
	out.PercentRetain4 = append([]float64(nil), c.PercentRetain4...)
	out.AbsolutePreCrop4 = append([]float64(nil), c.AbsolutePreCrop4...)
	return out
}
