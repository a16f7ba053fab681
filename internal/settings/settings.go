// Package settings defines the per-document crop settings supplied by callers
// (HTTP request bodies, the CLI, or a TOML defaults file). Every field has a
// declared default in Default; decoding always starts from those defaults so
// no consumer has to check for missing fields.
package settings

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// Settings is the raw, unvalidated settings object. Slice fields keep the
// caller's shape so validation can detect and repair wrong-length input.
type Settings struct {
	Verbose  bool    `json:"verbose" toml:"verbose"`
	Password *string `json:"password,omitempty" toml:"password"`

	ResX float64 `json:"res_x" toml:"res_x"`
	ResY float64 `json:"res_y" toml:"res_y"`

	// FullPageBox lists box types (m, c, t, a, b) used to build the full page
	// box; the first present one is the base and the rest intersect it.
	FullPageBox []string `json:"full_page_box" toml:"full_page_box"`
	// BoxesToSet lists the box types the final crop is written into.
	BoxesToSet []string `json:"boxes_to_set" toml:"boxes_to_set"`

	PercentRetain  float64   `json:"percent_retain" toml:"percent_retain"`
	PercentRetain4 []float64 `json:"percent_retain4,omitempty" toml:"percent_retain4"`

	AbsoluteOffset  float64   `json:"absolute_offset" toml:"absolute_offset"`
	AbsoluteOffset4 []float64 `json:"absolute_offset4,omitempty" toml:"absolute_offset4"`

	AbsolutePreCrop  float64   `json:"absolute_precrop" toml:"absolute_precrop"`
	AbsolutePreCrop4 []float64 `json:"absolute_precrop4,omitempty" toml:"absolute_precrop4"`

	Uniform           bool  `json:"uniform" toml:"uniform"`
	UniformOrderStat  *int  `json:"uniform_order_stat,omitempty" toml:"uniform_order_stat"`
	UniformOrderStat4 []int `json:"uniform_order_stat4,omitempty" toml:"uniform_order_stat4"`

	SamePageSize          bool      `json:"same_page_size" toml:"same_page_size"`
	SamePageSizeOrderStat *int      `json:"same_page_size_order_stat,omitempty" toml:"same_page_size_order_stat"`
	SetSamePageSize       []float64 `json:"set_same_page_size,omitempty" toml:"set_same_page_size"`
	SamePageSize4         string    `json:"same_page_size4,omitempty" toml:"same_page_size4"`

	PageRatioWeights []float64 `json:"page_ratio_weights" toml:"page_ratio_weights"`
	SetPageRatios    string    `json:"set_page_ratios,omitempty" toml:"set_page_ratios"`

	// Threshold is the gray level at or below which a rendered pixel counts
	// as content. Nil means DefaultThreshold; 0 keeps only pure black.
	Threshold *int `json:"threshold,omitempty" toml:"threshold"`

	// Pages holds 1-based page numbers to crop; empty means every page.
	Pages []int `json:"pages,omitempty" toml:"pages"`

	WriteCropDataToFile string `json:"write_crop_data_to_file,omitempty" toml:"write_crop_data_to_file"`
}

const (
	DefaultResolution    = 72
	DefaultPercentRetain = 10.0
	DefaultThreshold     = 191
)

// Default returns settings with every documented default filled in.
func Default() Settings {
	return Settings{
		ResX:             DefaultResolution,
		ResY:             DefaultResolution,
		FullPageBox:      []string{"m", "c"},
		BoxesToSet:       []string{"m"},
		PercentRetain:    DefaultPercentRetain,
		PageRatioWeights: []float64{1, 1, 1, 1},
	}
}

// Clone returns a deep copy so callers may tweak a shared base safely.
func (s Settings) Clone() Settings {
	out := s
	if s.Password != nil {
		p := *s.Password
		out.Password = &p
	}
	if s.UniformOrderStat != nil {
		v := *s.UniformOrderStat
		out.UniformOrderStat = &v
	}
	if s.SamePageSizeOrderStat != nil {
		v := *s.SamePageSizeOrderStat
		out.SamePageSizeOrderStat = &v
	}
	if s.Threshold != nil {
		v := *s.Threshold
		out.Threshold = &v
	}
	out.FullPageBox = cloneSlice(s.FullPageBox)
	out.BoxesToSet = cloneSlice(s.BoxesToSet)
	out.PercentRetain4 = cloneSlice(s.PercentRetain4)
	out.AbsoluteOffset4 = cloneSlice(s.AbsoluteOffset4)
	out.AbsolutePreCrop4 = cloneSlice(s.AbsolutePreCrop4)
	out.UniformOrderStat4 = cloneSlice(s.UniformOrderStat4)
	out.SetSamePageSize = cloneSlice(s.SetSamePageSize)
	out.PageRatioWeights = cloneSlice(s.PageRatioWeights)
	out.Pages = cloneSlice(s.Pages)
	return out
}

// ThresholdValue returns the configured threshold or DefaultThreshold.
func (s Settings) ThresholdValue() int {
	if s.Threshold == nil {
		return DefaultThreshold
	}
	return *s.Threshold
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// Decode reads JSON settings on top of base. Fields absent from the document
// keep base's values.
func Decode(r io.Reader, base Settings) (Settings, error) {
	s := base.Clone()
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

// LoadFile reads TOML settings on top of Default. A missing file yields the
// defaults.
func LoadFile(path string) (Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return s, nil
	}
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode TOML settings: %w", err)
	}
	return s, nil
}
