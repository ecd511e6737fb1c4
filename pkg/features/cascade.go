package features

import (
	"fmt"
	"iter"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Kind is the type of a cascade factor.
type Kind int

const (
	// AR factors use a lagged value.
	AR Kind = iota
	// MA factors use a trailing mean.
	MA
)

// String returns the key prefix of the kind.
func (k Kind) String() string {
	switch k {
	case AR:
		return "AR"
	case MA:
		return "MA"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MinLag is the smallest lag a factor of this kind accepts. A trailing mean
// needs at least two points.
func (k Kind) MinLag() int {
	if k == MA {
		return 2
	}
	return 1
}

// ParseKind parses "AR" or "MA", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(s) {
	case "AR":
		return AR, nil
	case "MA":
		return MA, nil
	default:
		return 0, fmt.Errorf("features: unknown kind %q", s)
	}
}

// CascadeSize returns the number of tuples CascadeLags yields.
func CascadeSize(count int, kind Kind, maxLag int) int {
	width := maxLag - kind.MinLag() + 1
	if count < 1 || width < 1 {
		return 0
	}
	size := 1
	for range count {
		size *= width
	}
	return size
}

// CascadeLags yields every ordered count-tuple of lags in
// [kind.MinLag(), maxLag] in lexicographic order. Repeats are allowed.
//
// Tuples are produced lazily by an odometer; the yielded slice is a fresh copy.
func CascadeLags(count int, kind Kind, maxLag int) iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		lo := kind.MinLag()
		if count < 1 || maxLag < lo {
			return
		}

		digits := make([]int, count)
		for i := range digits {
			digits[i] = lo
		}

		for {
			if !yield(append([]int(nil), digits...)) {
				return
			}

			i := count - 1
			for i >= 0 && digits[i] == maxLag {
				digits[i] = lo
				i--
			}
			if i < 0 {
				return
			}
			digits[i]++
		}
	}
}

// CascadeColumn builds one factor column truncated to len(series)-maxLag rows,
// so all columns of a tuple whose largest lag is maxLag share a length.
//
// An AR column holds series[i+lag]; an MA column holds the mean of the lag
// values starting one step back from row i.
func CascadeColumn(series []float64, kind Kind, lag, maxLag int) ([]float64, error) {
	rows := len(series) - maxLag
	if lag < kind.MinLag() || lag > maxLag {
		return nil, fmt.Errorf("%w: %s lag %d outside [%d, %d]", ErrMisaligned, kind, lag, kind.MinLag(), maxLag)
	}
	if rows <= 0 {
		return nil, fmt.Errorf("%w: series of %d points too short for lag %d", ErrMisaligned, len(series), maxLag)
	}

	out := make([]float64, rows)
	switch kind {
	case AR:
		copy(out, series[lag:lag+rows])
	case MA:
		for i := range out {
			out[i] = stat.Mean(series[i+1:i+1+lag], nil)
		}
	default:
		return nil, fmt.Errorf("features: unknown kind %v", kind)
	}
	return out, nil
}

// Cascade builds the design matrix and target for one lag tuple.
func Cascade(series []float64, kind Kind, lags []int) (*mat.Dense, []float64, error) {
	if len(lags) == 0 {
		return nil, nil, fmt.Errorf("%w: empty lag tuple", ErrMisaligned)
	}
	maxLag := lags[0]
	for _, l := range lags[1:] {
		maxLag = max(maxLag, l)
	}

	block := make(Block, len(lags))
	for i, l := range lags {
		col, err := CascadeColumn(series, kind, l, maxLag)
		if err != nil {
			return nil, nil, err
		}
		block[i] = col
	}
	return Align(series, block)
}
