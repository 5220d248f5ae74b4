package encoding

import (
	"math"
	"math/bits"
	"strconv"

	"github.com/pkg/errors"
)

// ErrLineTooLong is returned when a rendered metric line would not fit the encoder's buffer.
var ErrLineTooLong = errors.New("metric line exceeds buffer capacity")

const (
	metricPrefix = "metric_"
	devicePrefix = ",device=d_"
	sensorPrefix = "s_"
)

// Encoder renders metric lines in the TickTockDB line format:
//
//	metric_<M>,device=d_<D> s_0=<v>,s_1=<v>,...,s_<S-1>=<v>\n
//
// The returned bytes are only valid until the next call to Encode. An Encoder must not be shared between
// goroutines.
type Encoder struct {
	sensorCount  uint64
	maxLineBytes int
	values       ValueGenerator
	buf          []byte
}

func NewEncoder(sensorCount uint64, maxLineBytes int, values ValueGenerator) *Encoder {
	initial := maxLineBytes
	if initial > 4096 {
		initial = 4096
	}
	return &Encoder{
		sensorCount:  sensorCount,
		maxLineBytes: maxLineBytes,
		values:       values,
		buf:          make([]byte, 0, initial),
	}
}

// Encode renders the line for one metric of one device at tick ts. If the line would be longer than the
// configured maximum, nothing is rendered and an error wrapping ErrLineTooLong is returned.
func (e *Encoder) Encode(metric, device, ts uint64) ([]byte, error) {
	b := e.buf[:0]
	b = append(b, metricPrefix...)
	b = strconv.AppendUint(b, metric, 10)
	b = append(b, devicePrefix...)
	b = strconv.AppendUint(b, device, 10)
	b = append(b, ' ')

	for s := uint64(0); s < e.sensorCount; s++ {
		if s > 0 {
			b = append(b, ',')
		}
		b = append(b, sensorPrefix...)
		b = strconv.AppendUint(b, s, 10)
		b = append(b, '=')
		b = strconv.AppendFloat(b, e.values.Next(metric, device, s, ts), 'f', Precision, 64)
		if len(b) >= e.maxLineBytes {
			// The newline still has to fit.
			e.buf = b[:0]
			return nil, e.tooLong(metric, device)
		}
	}
	b = append(b, '\n')
	e.buf = b
	if len(b) > e.maxLineBytes {
		return nil, e.tooLong(metric, device)
	}
	return b, nil
}

func (e *Encoder) tooLong(metric, device uint64) error {
	return errors.Wrapf(ErrLineTooLong, "metric_%d of device d_%d with %d sensors does not fit in %d bytes",
		metric, device, e.sensorCount, e.maxLineBytes)
}

// MaxLineLength returns the length of the longest line a run with the given dimensions can produce, assuming
// no value renders longer than valueWidth bytes. Lengths that do not fit in an int are reported as math.MaxInt.
func MaxLineLength(metricCount, deviceCount, sensorCount uint64, valueWidth int) int {
	if metricCount == 0 || deviceCount == 0 {
		return 0
	}
	head := uint64(len(metricPrefix) + digits(metricCount-1) + len(devicePrefix) + digits(deviceCount-1) + 1)
	// Each sensor adds its name, '=', the value and a separating comma; the last one has no comma.
	perSensor := uint64(len(sensorPrefix) + 1 + valueWidth + 1)
	n := addSaturating(head, mulSaturating(sensorCount, perSensor))
	n = addSaturating(n, digitSum(sensorCount))
	if sensorCount > 0 && n < math.MaxUint64 {
		n--
	}
	n = addSaturating(n, 1)
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}

// digitSum returns the total number of decimal digits of every integer in [0, n).
func digitSum(n uint64) uint64 {
	var total uint64
	lo, hi, width := uint64(0), uint64(10), uint64(1)
	for lo < n {
		end := min(n, hi)
		total = addSaturating(total, mulSaturating(end-lo, width))
		lo = end
		width++
		if hi > math.MaxUint64/10 {
			hi = math.MaxUint64
		} else {
			hi *= 10
		}
	}
	return total
}

func addSaturating(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

func mulSaturating(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

func digits(v uint64) int {
	n := 1
	for v >= 10 {
		v /= 10
		n++
	}
	return n
}
