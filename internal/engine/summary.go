package engine

import (
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/verdantlabs/landchange/internal/models"
)

// Summarize tallies the mask and describes both index rasters.
func Summarize(before, after models.IndexRaster, mask models.ChangeMask) models.ChangeSummary {
	changed, unchanged, masked := mask.Counts()
	summary := models.ChangeSummary{
		Changed:   changed,
		Unchanged: unchanged,
		Masked:    masked,
		Start:     IndexSummary(before),
		End:       IndexSummary(after),
	}
	if defined := changed + unchanged; defined > 0 {
		summary.ChangedFraction = float64(changed) / float64(defined)
	}
	return summary
}

// IndexSummary computes descriptive statistics over the defined pixels.
// Quantiles use the empirical CDF, so they are always observed values.
func IndexSummary(index models.IndexRaster) models.IndexStats {
	data := make(stats.Float64Data, 0, len(index.Values))
	for i := range index.Values {
		if v, ok := index.At(i); ok {
			data = append(data, v)
		}
	}
	out := models.IndexStats{Defined: len(data)}
	if len(data) == 0 {
		return out
	}
	out.Mean, _ = data.Mean()
	out.Median, _ = data.Median()

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	out.StdDev = stat.PopStdDev(sorted, nil)
	out.P10 = stat.Quantile(0.1, stat.Empirical, sorted, nil)
	out.P90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	return out
}
