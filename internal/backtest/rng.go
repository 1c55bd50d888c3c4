package backtest

// RNG is a deterministic, save/restorable [0,1) stream. It is hash-mixed
// rather than cryptographic: the goal is bit-for-bit reproducibility of
// a run given the same seed or the same restored state, not
// unpredictability (spec.md 4.C1).
type RNG struct {
	state uint32
}

const (
	rngPrime  uint32 = 2654435761 // Knuth multiplicative hash constant
	rngMulK1  uint32 = 0x85ebca6b
	rngMulK2  uint32 = 0xc2b2ae35
)

// NewRNG builds a generator from a seed string. The seed's length is
// XOR-folded with a large prime, then each character is mixed in via
// rotl13(mul(h XOR char, k1)).
func NewRNG(seed string) *RNG {
	h := uint32(len(seed)) ^ rngPrime
	for _, c := range seed {
		h ^= uint32(c)
		h *= rngMulK1
		h = rotl32(h, 13)
	}
	return &RNG{state: h}
}

// RNGFromState rebuilds a generator at an exact previously-observed
// point in its sequence.
func RNGFromState(state uint32) *RNG {
	return &RNG{state: state}
}

func rotl32(x uint32, r uint) uint32 {
	return (x << r) | (x >> (32 - r))
}

// Next returns the next value in [0,1) and advances internal state via
// a two-round xorshift-multiply mix.
func (r *RNG) Next() float64 {
	h := r.state
	h ^= h >> 16
	h *= rngMulK1
	h ^= h >> 13
	h *= rngMulK2
	h ^= h >> 16
	r.state = h
	return float64(h) / 4294967296.0 // 2^32
}

// GetState returns the current scalar state.
func (r *RNG) GetState() uint32 {
	return r.state
}
