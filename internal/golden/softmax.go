// Package golden holds the host-side reference for accelerator output:
// the grouped softmax the hardware is expected to compute and the hex
// row files used as test vectors.
package golden

import "math"

// Softmax writes the softmax of x into dst (which may alias x) and
// returns dst. Subtracting the maximum keeps exp in range; an all -Inf
// input produces zeros.
func Softmax(dst, x []float64) []float64 {
	if len(dst) < len(x) {
		dst = make([]float64, len(x))
	}
	dst = dst[:len(x)]
	if len(x) == 0 {
		return dst
	}
	maxv := x[0]
	for _, v := range x[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i, v := range x {
		e := math.Exp(v - maxv)
		dst[i] = e
		sum += e
	}
	if sum == 0 || math.IsNaN(sum) {
		for i := range dst {
			dst[i] = 0
		}
		return dst
	}
	inv := 1 / sum
	for i := range dst {
		dst[i] *= inv
	}
	return dst
}

// GroupedSoftmax is the per-row reference used by the hardware test
// bench. For size <= len(data) the row is cut into len(data)/size groups,
// each normalized on its own. For larger sizes the row is tiled up to
// size lanes, normalized as one group, and the first len(data) outputs
// are returned.
func GroupedSoftmax(data []float64, size int) []float64 {
	n := len(data)
	if n == 0 || size <= 0 {
		return nil
	}
	if size > n {
		ext := make([]float64, size)
		for i := range ext {
			ext[i] = data[i%n]
		}
		return Softmax(ext, ext)[:n]
	}

	out := make([]float64, 0, n)
	for start := 0; start+size <= n; start += size {
		out = append(out, Softmax(nil, data[start:start+size])...)
	}
	return out
}
