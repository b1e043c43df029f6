package density

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/popdensity-cli/internal/raster"
)

// Statistics summarises the valid cells of a window. When Count is zero
// every other field is zero.
type Statistics struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Std    float64 `json:"std"`
	Sum    float64 `json:"sum"`
}

// Empty reports whether no valid cells were found.
func (s Statistics) Empty() bool { return s.Count == 0 }

// Valid returns the values that are not equal to the nodata sentinel. With
// no sentinel registered every value is valid, negative ones included.
func Valid(values []float64, nodata raster.NoData) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if nodata.Matches(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Summarize filters nodata cells and computes the statistics of the rest.
// Std is the population standard deviation.
func Summarize(values []float64, nodata raster.NoData) Statistics {
	valid := Valid(values, nodata)
	if len(valid) == 0 {
		return Statistics{}
	}

	mean, std := stat.PopMeanStdDev(valid, nil)
	lo, hi := floats.Min(valid), floats.Max(valid)
	// Rounding in the running sum can push the mean a ulp past an extreme.
	return Statistics{
		Count:  len(valid),
		Mean:   math.Min(math.Max(mean, lo), hi),
		Median: median(valid),
		Min:    lo,
		Max:    hi,
		Std:    std,
		Sum:    floats.Sum(valid),
	}
}

// median sorts vals in place.
func median(vals []float64) float64 {
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}
