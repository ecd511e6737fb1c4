// Package features builds aligned regression inputs from a newest-first series.
//
// Row i of every feature column predicts series[i]. Columns built from older
// data are shorter, so blocks of different lengths are truncated to a common
// number of rows by dropping the oldest rows before they are fitted together.
package features

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrMisaligned is returned when feature blocks cannot be aligned.
var ErrMisaligned = errors.New("features: misaligned feature blocks")

// Block is a group of equal-length feature columns.
type Block [][]float64

// Len returns the usable number of rows of the block.
func (b Block) Len() (int, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: empty block", ErrMisaligned)
	}
	n := len(b[0])
	for i, col := range b[1:] {
		if len(col) != n {
			return 0, fmt.Errorf("%w: column %d has %d rows, want %d", ErrMisaligned, i+1, len(col), n)
		}
	}
	return n, nil
}

// ARLag returns the series shifted lag steps into the past: row i holds
// series[i+lag]. The result shares memory with series.
func ARLag(series []float64, lag int) []float64 {
	if lag < 0 || lag >= len(series) {
		return []float64{}
	}
	return series[lag:]
}

// MovingAverage returns the trailing mean of window values starting one step
// back: row i holds mean(series[i+1 : i+1+window]). The result has
// len(series)-window rows.
func MovingAverage(series []float64, window int) []float64 {
	n := len(series) - window
	if window < 1 || n <= 0 {
		return []float64{}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = stat.Mean(series[i+1:i+1+window], nil)
	}
	return out
}

// Align truncates every block and the target to the shortest block length and
// concatenates the blocks column-wise.
//
// Truncation keeps the first rows (the most recent observations) and drops the
// oldest excess. The returned target is a prefix of target.
func Align(target []float64, blocks ...Block) (*mat.Dense, []float64, error) {
	if len(blocks) == 0 {
		return nil, nil, fmt.Errorf("%w: no blocks", ErrMisaligned)
	}

	rows := -1
	cols := 0
	for i, b := range blocks {
		n, err := b.Len()
		if err != nil {
			return nil, nil, fmt.Errorf("block %d: %w", i, err)
		}
		if rows < 0 || n < rows {
			rows = n
		}
		cols += len(b)
	}
	if rows <= 0 {
		return nil, nil, fmt.Errorf("%w: no usable rows", ErrMisaligned)
	}
	if rows > len(target) {
		return nil, nil, fmt.Errorf("%w: %d usable rows but target has %d", ErrMisaligned, rows, len(target))
	}

	x := mat.NewDense(rows, cols, nil)
	j := 0
	for _, b := range blocks {
		for _, col := range b {
			x.SetCol(j, col[:rows])
			j++
		}
	}
	return x, target[:rows], nil
}
