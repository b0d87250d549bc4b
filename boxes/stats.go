package boxes

import (
	"context"
	"encoding/binary"

	"github.com/hupe1980/meshjoin/comm"
)

// Stats summarizes how boxes are spread over the ranks after a
// redistribution: a quantile histogram of per-rank box counts plus the
// distribution fit. Diagnostic only.
type Stats struct {
	// Fit is (max assigned weight) / (ideal average weight) of the
	// distribution the boxes were balanced against.
	Fit float64

	// NonEmptyRanks counts ranks holding at least one box.
	NonEmptyRanks int

	// Min and Max are the smallest and largest per-rank box counts.
	Min, Max int

	// QuantileStart has len(QuantileRanks)+1 bucket boundaries over
	// [Min, Max]; QuantileRanks[q] counts ranks whose box count falls in
	// bucket q.
	QuantileStart []int
	QuantileRanks []int
}

// CollectStats gathers per-rank box counts and builds the histogram.
// nQuantiles is reduced when the count spread is smaller. Collective.
func (d *Distrib) CollectStats(ctx context.Context, ch comm.Channel, nLocalBoxes, nQuantiles int) (*Stats, error) {
	if nQuantiles < 1 {
		nQuantiles = 1
	}

	gathered, err := ch.AllGather(ctx, binary.LittleEndian.AppendUint64(nil, uint64(nLocalBoxes)))
	if err != nil {
		return nil, err
	}
	counts := make([]int, len(gathered))
	for r, b := range gathered {
		counts[r] = int(binary.LittleEndian.Uint64(b))
	}

	st := &Stats{Fit: d.fit}
	st.Min = counts[0]
	for _, c := range counts {
		if c < st.Min {
			st.Min = c
		}
		if c > st.Max {
			st.Max = c
		}
		if c > 0 {
			st.NonEmptyRanks++
		}
	}

	delta := st.Max - st.Min
	if delta < nQuantiles {
		nQuantiles = delta
	}
	if nQuantiles < 1 {
		nQuantiles = 1
	}

	step := delta / nQuantiles
	if delta%nQuantiles > 0 {
		step++
	}

	st.QuantileStart = make([]int, nQuantiles+1)
	for q := 0; q < nQuantiles; q++ {
		st.QuantileStart[q] = st.Min + q*step
	}
	st.QuantileStart[nQuantiles] = st.Max + 1

	st.QuantileRanks = make([]int, nQuantiles)
	for _, c := range counts {
		q := 0
		if step > 0 {
			q = (c - st.Min) / step
		}
		if q >= nQuantiles {
			q = nQuantiles - 1
		}
		st.QuantileRanks[q]++
	}
	return st, nil
}
