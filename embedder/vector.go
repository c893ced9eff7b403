package embedder

import (
	"encoding/binary"
	"math"
)

// Encode packs vec as little-endian float32. A zero-length vector encodes to
// a zero-length, non-nil slice so it is stored as an empty blob, not NULL.
func Encode(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Decode is the inverse of Encode. Trailing bytes that do not form a whole
// float32 are ignored.
func Decode(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Vectors of
// different length, empty vectors and zero vectors give 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return max(-1, min(1, s))
}

// IsZero reports whether vec is empty or all zeros.
func IsZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
