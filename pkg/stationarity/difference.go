package stationarity

// Difference returns the first difference of a newest-first series:
// out[i] = series[i] - series[i+1]. The result is one element shorter.
func Difference(series []float64) []float64 {
	if len(series) < 2 {
		return []float64{}
	}
	out := make([]float64, len(series)-1)
	for i := range out {
		out[i] = series[i] - series[i+1]
	}
	return out
}

// DifferenceN applies Difference d times.
func DifferenceN(series []float64, d int) []float64 {
	out := make([]float64, len(series))
	copy(out, series)
	for range d {
		out = Difference(out)
	}
	return out
}

// Integrate undoes d differencing steps for a single new value.
//
// next is the new value on the d-times differenced scale and recent holds at
// least the d most recent original-scale values, newest first. The returned
// value is the new observation on the original scale:
//
//	x_new = next + sum_{k=0}^{d-1} (Δ^k recent)[0]
func Integrate(next float64, recent []float64, d int) float64 {
	if d <= 0 {
		return next
	}
	if len(recent) < d {
		panic("stationarity: Integrate needs d recent values")
	}

	level := make([]float64, d)
	copy(level, recent[:d])

	value := next
	for k := 0; k < d; k++ {
		value += level[0]
		level = Difference(level)
	}
	return value
}
