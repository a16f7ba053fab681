package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/local/cropmargins/internal/settings"
)

// settingsFlags mirrors the settings object on the command line. Only flags
// the user set override the loaded settings.
type settingsFlags struct {
	resX, resY      float64
	fullPageBox     []string
	boxesToSet      []string
	percent         float64
	percent4        []float64
	offset          float64
	offset4         []float64
	precrop         float64
	precrop4        []float64
	uniform         bool
	uniformStat     int
	uniformStat4    []int
	samePageSize    bool
	sameStat        int
	setSamePageSize []float64
	sameMask        string
	ratio           string
	ratioWeights    []float64
	threshold       int
	pages           []int
	cropData        string
	password        string
	askPassword     bool
}

func (f *settingsFlags) register(fs *pflag.FlagSet) {
	fs.Float64Var(&f.resX, "res-x", settings.DefaultResolution, "Horizontal rendering resolution in dpi")
	fs.Float64Var(&f.resY, "res-y", settings.DefaultResolution, "Vertical rendering resolution in dpi")
	fs.StringSliceVar(&f.fullPageBox, "full-page-box", nil, "Box types intersected to form the full page box (m,c,t,a,b)")
	fs.StringSliceVarP(&f.boxesToSet, "boxes", "b", nil, "Box types the crop is written into")
	fs.Float64VarP(&f.percent, "percent", "p", settings.DefaultPercentRetain, "Percent of each margin to retain")
	fs.Float64SliceVar(&f.percent4, "percent4", nil, "Percent to retain per edge: left,bottom,right,top")
	fs.Float64VarP(&f.offset, "offset", "a", 0, "Extra points cut from every edge")
	fs.Float64SliceVar(&f.offset4, "offset4", nil, "Extra points cut per edge: left,bottom,right,top")
	fs.Float64Var(&f.precrop, "precrop", 0, "Points removed from the full page box before measuring")
	fs.Float64SliceVar(&f.precrop4, "precrop4", nil, "Pre-crop per edge: left,bottom,right,top")
	fs.BoolVarP(&f.uniform, "uniform", "u", false, "Cut the same margins from every selected page")
	fs.IntVar(&f.uniformStat, "uniform-order-stat", 0, "Skip this many smallest margins in uniform mode")
	fs.IntSliceVar(&f.uniformStat4, "uniform-order-stat4", nil, "Uniform order statistic per edge")
	fs.BoolVarP(&f.samePageSize, "same-page-size", "s", false, "Give every selected page the same full box")
	fs.IntVar(&f.sameStat, "same-page-size-order-stat", 0, "Order statistic for the same-size bounding box")
	fs.Float64SliceVar(&f.setSamePageSize, "set-same-page-size", nil, "Fixed full box for every selected page: l,b,r,t")
	fs.StringVar(&f.sameMask, "same-page-size4", "", "Per-edge mask for same-size mode, e.g. tfft")
	fs.StringVar(&f.ratio, "page-ratio", "", "Make every crop this width:height ratio")
	fs.Float64SliceVar(&f.ratioWeights, "page-ratio-weights", nil, "How ratio padding is split: left,bottom,right,top")
	fs.IntVar(&f.threshold, "threshold", settings.DefaultThreshold, "Gray level at or below which a pixel is content (0-255)")
	fs.IntSliceVar(&f.pages, "pages", nil, "1-based pages to crop (default all)")
	fs.StringVar(&f.cropData, "crop-data", "", "Write per-page crop data as JSON to this file")
	fs.StringVar(&f.password, "password", "", "Password of an encrypted input")
	fs.BoolVar(&f.askPassword, "ask-password", false, "Prompt for the password without echo")
}

// apply copies every changed flag onto s.
func (f *settingsFlags) apply(fs *pflag.FlagSet, s *settings.Settings) error {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("res-x", func() { s.ResX = f.resX })
	set("res-y", func() { s.ResY = f.resY })
	set("full-page-box", func() { s.FullPageBox = f.fullPageBox })
	set("boxes", func() { s.BoxesToSet = f.boxesToSet })
	set("percent", func() { s.PercentRetain = f.percent })
	set("percent4", func() { s.PercentRetain4 = f.percent4 })
	set("offset", func() { s.AbsoluteOffset = f.offset })
	set("offset4", func() { s.AbsoluteOffset4 = f.offset4 })
	set("precrop", func() { s.AbsolutePreCrop = f.precrop })
	set("precrop4", func() { s.AbsolutePreCrop4 = f.precrop4 })
	set("uniform", func() { s.Uniform = f.uniform })
	set("uniform-order-stat", func() { n := f.uniformStat; s.UniformOrderStat = &n })
	set("uniform-order-stat4", func() { s.UniformOrderStat4 = f.uniformStat4 })
	set("same-page-size", func() { s.SamePageSize = f.samePageSize })
	set("same-page-size-order-stat", func() { n := f.sameStat; s.SamePageSizeOrderStat = &n })
	set("set-same-page-size", func() { s.SetSamePageSize = f.setSamePageSize })
	set("same-page-size4", func() { s.SamePageSize4 = f.sameMask })
	set("page-ratio", func() { s.SetPageRatios = f.ratio })
	set("page-ratio-weights", func() { s.PageRatioWeights = f.ratioWeights })
	set("threshold", func() { n := f.threshold; s.Threshold = &n })
	set("pages", func() { s.Pages = f.pages })
	set("crop-data", func() { s.WriteCropDataToFile = f.cropData })
	set("password", func() { pw := f.password; s.Password = &pw })

	if f.askPassword {
		pw, err := readPassword()
		if err != nil {
			return err
		}
		s.Password = &pw
	}
	return nil
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--ask-password needs an interactive terminal")
	}
	fmt.Fprint(os.Stderr, "PDF password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// loadSettings reads the config file and applies the command's flags on top.
func loadSettings(cmd *cobra.Command, g *globalFlags, f *settingsFlags) (settings.Settings, error) {
	s, err := settings.LoadFile(g.config)
	if err != nil {
		return settings.Settings{}, err
	}
	if g.verbose {
		s.Verbose = true
	}
	if err := f.apply(cmd.Flags(), &s); err != nil {
		return settings.Settings{}, err
	}
	return s, nil
}
