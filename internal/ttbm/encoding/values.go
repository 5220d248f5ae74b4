package encoding

import (
	"math/rand"
	"strconv"
)

// Precision is the number of decimals rendered for every sensor reading.
const Precision = 6

// ValueGenerator produces the reading of one sensor at one tick.
type ValueGenerator interface {
	Next(metric, device, sensor, ts uint64) float64
	// MaxWidth is an upper bound on the rendered length, in bytes, of any value Next may return.
	MaxWidth() int
}

// ConstantValues reports V for every reading.
type ConstantValues struct {
	V float64
}

// DefaultConstant is the reading reported when no value policy is configured.
var DefaultConstant = ConstantValues{V: 1.2}

func (c ConstantValues) Next(_, _, _, _ uint64) float64 {
	return c.V
}

func (c ConstantValues) MaxWidth() int {
	return len(strconv.FormatFloat(c.V, 'f', Precision, 64))
}

// RandomValues reports uniformly distributed readings in [0, Scale). The sequence is fully determined by the
// seed, so two runs with the same seed send the same data.
// A RandomValues must not be shared between goroutines.
type RandomValues struct {
	Scale float64
	rng   *rand.Rand
}

func NewRandomValues(seed int64, scale float64) *RandomValues {
	return &RandomValues{
		Scale: scale,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

func (r *RandomValues) Next(_, _, _, _ uint64) float64 {
	return r.rng.Float64() * r.Scale
}

func (r *RandomValues) MaxWidth() int {
	// Values stay below Scale, so Scale itself bounds the integer digits; one extra byte covers a minus sign.
	return len(strconv.FormatFloat(r.Scale, 'f', Precision, 64)) + 1
}
