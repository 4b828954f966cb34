package pool

import (
	"context"
	"fmt"
	"sort"

	"github.com/signalsfoundry/dynpool/model"
	"github.com/signalsfoundry/dynpool/timebase"
)

const (
	// swapRounds bounds the exchange refinement.
	swapRounds = 3

	sizeWeight      = 100
	coverageWeight  = 10000
	diversityWeight = 50
)

// cost scores a candidate pool. Swaps are only considered when they hold
// coverage, so the weights settle ties towards smaller, more
// phase-diverse pools.
func cost(size int, coverage, diversity float64) float64 {
	return sizeWeight*float64(size) - coverageWeight*coverage - diversityWeight*diversity
}

// searchState tracks the per-slice visible counts of the current pool.
type searchState struct {
	vis       [][]bool
	counts    []int
	floor     int
	deficient int
	selected  []bool

	// members holds group indexes in addition order.
	members []int
}

func newSearchState(vis [][]bool, slices, floor int) *searchState {
	return &searchState{
		vis:       vis,
		counts:    make([]int, slices),
		floor:     floor,
		deficient: slices,
		selected:  make([]bool, len(vis)),
	}
}

// gain counts the still-deficient slices candidate m is visible in.
func (s *searchState) gain(m int) int {
	g := 0
	for slice, ok := range s.vis[m] {
		if ok && s.counts[slice] < s.floor {
			g++
		}
	}
	return g
}

func (s *searchState) add(m int) {
	s.selected[m] = true
	s.members = append(s.members, m)
	for slice, ok := range s.vis[m] {
		if ok {
			s.counts[slice]++
			if s.counts[slice] == s.floor {
				s.deficient--
			}
		}
	}
}

func (s *searchState) remove(m int) {
	s.selected[m] = false
	for i, mm := range s.members {
		if mm == m {
			s.members = append(s.members[:i], s.members[i+1:]...)
			break
		}
	}
	for slice, ok := range s.vis[m] {
		if ok {
			if s.counts[slice] == s.floor {
				s.deficient++
			}
			s.counts[slice]--
		}
	}
}

func (s *searchState) coverage() float64 {
	return coverageOf(len(s.counts), s.deficient)
}

func (s *searchState) deficientAfterRemove(m int) int {
	d := s.deficient
	for slice, ok := range s.vis[m] {
		if ok && s.counts[slice] == s.floor {
			d++
		}
	}
	return d
}

func (s *searchState) deficientAfterSwap(out, in int) int {
	d := s.deficient
	vo, vi := s.vis[out], s.vis[in]
	for slice, c := range s.counts {
		nc := c
		if vo[slice] {
			nc--
		}
		if vi[slice] {
			nc++
		}
		switch {
		case c >= s.floor && nc < s.floor:
			d++
		case c < s.floor && nc >= s.floor:
			d--
		}
	}
	return d
}

// search runs the three passes for one constellation: greedy seeding up
// to the bar or the budget, redundancy trimming, then bounded swap
// refinement. The outcome is either an accepted selection or a typed
// infeasibility.
func (o *Optimizer) search(ctx context.Context, c model.Constellation, target Target, group []Candidate, tb timebase.TimeBase) (*Selection, *Infeasibility, error) {
	slices := tb.Steps()
	if len(group) == 0 {
		return nil, &Infeasibility{
			Constellation: c,
			DeficitSlices: slices,
			Reason:        "no candidates survived the visibility filter",
		}, nil
	}

	vis := buildMatrix(group, tb)
	mids := windowMidpoints(group, tb)
	st := newSearchState(vis, slices, target.MinVisible)

	// Greedy seeding: repeatedly add the candidate covering the most
	// still-deficient slices. Group order is ascending catalog ID, so
	// ties go to the lower ID.
	for len(st.members) < target.MaxPool && st.coverage() < o.cfg.CoverageBar {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		best, bestGain := -1, 0
		for m := range group {
			if st.selected[m] {
				continue
			}
			if g := st.gain(m); g > bestGain {
				best, bestGain = m, g
			}
		}
		if best < 0 {
			break
		}
		st.add(best)
	}

	// Trim members whose removal keeps the bar, newest picks first.
	for i := len(st.members) - 1; i >= 0; i-- {
		m := st.members[i]
		if coverageOf(slices, st.deficientAfterRemove(m)) >= o.cfg.CoverageBar {
			st.remove(m)
		}
	}

	o.swapPass(ctx, st, mids, group)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if cov := st.coverage(); cov < o.cfg.CoverageBar {
		reason := fmt.Sprintf("best coverage %.3f under bar %.2f with %d of %d members",
			cov, o.cfg.CoverageBar, len(st.members), target.MaxPool)
		if len(group) < target.MinVisible {
			reason = fmt.Sprintf("%d candidates cannot meet a visibility floor of %d",
				len(group), target.MinVisible)
		}
		return nil, &Infeasibility{
			Constellation: c,
			BestCoverage:  cov,
			DeficitSlices: st.deficient,
			Reason:        reason,
		}, nil
	}

	return accept(c, st, group, tb), nil, nil
}

// swapPass runs bounded best-improvement rounds exchanging one member
// for one outsider. A swap is only eligible when it does not grow the
// deficient-slice count.
func (o *Optimizer) swapPass(ctx context.Context, st *searchState, mids []float64, group []Candidate) {
	for round := 0; round < swapRounds; round++ {
		if ctx.Err() != nil {
			return
		}
		bestCost := cost(len(st.members), st.coverage(), diversityOf(st.members, mids))
		bestOut, bestIn := -1, -1
		for _, out := range st.members {
			for in := range group {
				if st.selected[in] {
					continue
				}
				d := st.deficientAfterSwap(out, in)
				if d > st.deficient {
					continue
				}
				cov := coverageOf(len(st.counts), d)
				div := diversityAfterSwap(st.members, mids, out, in)
				if c := cost(len(st.members), cov, div); c < bestCost-1e-9 {
					bestOut, bestIn, bestCost = out, in, c
				}
			}
		}
		if bestOut < 0 {
			return
		}
		st.remove(bestOut)
		st.add(bestIn)
	}
}

// accept freezes the search state into the published selection.
func accept(c model.Constellation, st *searchState, group []Candidate, tb timebase.TimeBase) *Selection {
	members := make([]uint32, 0, len(st.members))
	for _, m := range st.members {
		members = append(members, group[m].CatalogID)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

	sel := &Selection{
		Constellation: c,
		Members:       members,
		Coverage:      st.coverage(),
		Stats:         sliceStats(st.counts),
	}
	for s, n := range st.counts {
		if n >= st.floor {
			continue
		}
		if len(sel.Gaps) == maxReportedGaps {
			break
		}
		sel.Gaps = append(sel.Gaps, Deficit{
			Slice:      s,
			SinceEpoch: tb.Offset(s),
			Visible:    n,
			Required:   st.floor,
		})
	}
	return sel
}
