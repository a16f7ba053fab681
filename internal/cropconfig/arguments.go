package cropconfig

import "github.com/local/cropmargins/internal/settings"

// Arguments carries the per-edge crop parameters after expansion.
type Arguments struct {
	PercentRetain4    [4]float64
	AbsoluteOffset4   [4]float64
	UniformOrderStat4 [4]int
}

var (
	defaultPercentRetain4 = [4]float64{
		settings.DefaultPercentRetain, settings.DefaultPercentRetain,
		settings.DefaultPercentRetain, settings.DefaultPercentRetain,
	}
	defaultZeros4     = [4]float64{}
	defaultOrderStat4 = [4]int{}
)

// Normalize expands the percent-retain, absolute-offset and uniform order
// statistic options to quadruples. Wrong-length quadruples are replaced by
// the scalar form and reported in the returned warnings.
func Normalize(s settings.Settings) (Arguments, []string) {
	var warnings []string
	note := func(w string) {
		if w != "" {
			warnings = append(warnings, w)
		}
	}

	pct, w := QuadFromSlice("percent_retain4", s.PercentRetain, s.PercentRetain4)
	note(w)
	off, w := QuadFromSlice("absolute_offset4", s.AbsoluteOffset, s.AbsoluteOffset4)
	note(w)

	var order Quad[int]
	switch {
	case len(s.UniformOrderStat4) == 4:
		v := s.UniformOrderStat4
		order = Quadruple(v[0], v[1], v[2], v[3])
	case s.UniformOrderStat != nil:
		if len(s.UniformOrderStat4) != 0 {
			order, w = QuadFromSlice("uniform_order_stat4", *s.UniformOrderStat, s.UniformOrderStat4)
			note(w)
		} else {
			order = Scalar(*s.UniformOrderStat)
		}
	case len(s.UniformOrderStat4) != 0:
		order, w = QuadFromSlice("uniform_order_stat4", 0, s.UniformOrderStat4)
		note(w)
	}

	return Arguments{
		PercentRetain4:    pct.Expand(defaultPercentRetain4),
		AbsoluteOffset4:   off.Expand(defaultZeros4),
		UniformOrderStat4: order.Expand(defaultOrderStat4),
	}, warnings
}
