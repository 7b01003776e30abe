package util

import "math/big"

// MaxTarget is Bitcoin's canonical maximum target, decoded from its
// well-known compact ("bits") encoding: 0x00000000FFFF...FF.
var MaxTarget = CompactToTarget(0x1d00ffff)

// HashLessThanTarget reports whether a hash (little-endian 32 bytes,
// Bitcoin's native byte order) is strictly less than target, interpreting
// both as unsigned 256-bit integers. Proof-of-work acceptance requires
// strict inequality, unlike share-difficulty checks which accept equality.
func HashLessThanTarget(hash [32]byte, target *big.Int) bool {
	reversed := ReverseBytes(hash[:])
	hashInt := new(big.Int).SetBytes(reversed)
	return hashInt.Cmp(target) < 0
}

// CheckedAddU32 adds two uint32 values, returning ok=false on overflow.
func CheckedAddU32(a, b uint32) (uint32, bool) {
	sum := uint64(a) + uint64(b)
	if sum > 0xffffffff {
		return 0, false
	}
	return uint32(sum), true
}

// CheckedSubU32 subtracts b from a, returning ok=false on underflow.
func CheckedSubU32(a, b uint32) (uint32, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}

// ClampInt64 clamps v into [lo, hi].
func ClampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MulDivTarget computes target*num/den using big.Int arithmetic, clamped to
// [1, ceiling] so a degenerate zero target or an overflowing multiplication
// never escapes as a usable (and dangerously permissive) target.
func MulDivTarget(target *big.Int, num, den int64, ceiling *big.Int) *big.Int {
	if den == 0 {
		den = 1
	}
	result := new(big.Int).Mul(target, big.NewInt(num))
	result.Div(result, big.NewInt(den))
	if result.Sign() <= 0 {
		result.SetInt64(1)
	}
	if result.Cmp(ceiling) > 0 {
		result.Set(ceiling)
	}
	return result
}
