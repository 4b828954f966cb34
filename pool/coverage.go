package pool

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/dynpool/timebase"
)

// buildMatrix samples every candidate's windows on the run grid. Slice s
// of a row is true when the candidate is visible at tb.Offset(s); window
// bounds count as visible on both ends.
func buildMatrix(group []Candidate, tb timebase.TimeBase) [][]bool {
	slices := tb.Steps()
	vis := make([][]bool, len(group))
	for i, cand := range group {
		row := make([]bool, slices)
		for s := 0; s < slices; s++ {
			off := tb.Offset(s)
			for _, w := range cand.Windows {
				if w.Rise > off {
					break
				}
				if w.Contains(off) {
					row[s] = true
					break
				}
			}
		}
		vis[i] = row
	}
	return vis
}

// windowMidpoints maps each candidate to the mean midpoint of its
// windows, normalized to [0, 1] over the horizon. The spread of these is
// the pass-phasing diversity of a pool.
func windowMidpoints(group []Candidate, tb timebase.TimeBase) []float64 {
	mids := make([]float64, len(group))
	h := tb.Horizon.Seconds()
	if h <= 0 {
		return mids
	}
	for i, cand := range group {
		if len(cand.Windows) == 0 {
			continue
		}
		var sum float64
		for _, w := range cand.Windows {
			sum += (w.Rise + w.Set).Seconds() / 2
		}
		mids[i] = sum / float64(len(cand.Windows)) / h
	}
	return mids
}

func coverageOf(slices, deficient int) float64 {
	if slices == 0 {
		return 0
	}
	return float64(slices-deficient) / float64(slices)
}

func diversityOf(members []int, mids []float64) float64 {
	if len(members) < 2 {
		return 0
	}
	xs := make([]float64, len(members))
	for i, m := range members {
		xs[i] = mids[m]
	}
	return stat.StdDev(xs, nil)
}

func diversityAfterSwap(members []int, mids []float64, out, in int) float64 {
	if len(members) < 2 {
		return 0
	}
	xs := make([]float64, 0, len(members))
	for _, m := range members {
		if m == out {
			m = in
		}
		xs = append(xs, mids[m])
	}
	return stat.StdDev(xs, nil)
}

func sliceStats(counts []int) SliceStats {
	if len(counts) == 0 {
		return SliceStats{}
	}
	xs := make([]float64, len(counts))
	min, max := counts[0], counts[0]
	for i, n := range counts {
		xs[i] = float64(n)
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	stats := SliceStats{
		Min:  min,
		Max:  max,
		Mean: stat.Mean(xs, nil),
	}
	if len(xs) > 1 {
		stats.StdDev = stat.StdDev(xs, nil)
	}
	sort.Float64s(xs)
	stats.P5 = stat.Quantile(0.05, stat.Empirical, xs, nil)
	return stats
}
