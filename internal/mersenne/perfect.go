package mersenne

import "math/big"

// Result is a confirmed Mersenne prime exponent and the even perfect number
// it generates.
type Result struct {
	P     int
	Value *big.Int
}

// BuildPerfectNumber returns 2^(p-1) * (2^p - 1). The caller is expected to
// have confirmed that p is a Mersenne prime exponent.
func BuildPerfectNumber(p int) *big.Int {
	if p < 1 {
		return new(big.Int)
	}
	v := MersenneNumber(p)
	return v.Lsh(v, uint(p-1))
}

// Evaluate runs one exponent through the screener, the Lucas–Lehmer test and
// the builder, stopping at the first stage that rejects it.
func Evaluate(p int) (Result, bool) {
	if !IsPrime(p) {
		return Result{}, false
	}
	if !IsMersennePrime(p) {
		return Result{}, false
	}
	return Result{P: p, Value: BuildPerfectNumber(p)}, true
}

// IsPerfect reports whether n is an even perfect number, i.e. whether
// n = 2^(p-1) * (2^p - 1) for some Mersenne prime exponent p. No odd perfect
// number is known, so odd n is always rejected.
func IsPerfect(n *big.Int) bool {
	if n == nil || n.Sign() <= 0 || n.Bit(0) == 1 {
		return false
	}
	p, ok := ExponentOf(n)
	if !ok {
		return false
	}
	return IsPrime(p) && IsMersennePrime(p)
}

// ExponentOf recovers p from a value of the form 2^(p-1) * (2^p - 1). It
// reports false when n does not have that shape.
func ExponentOf(n *big.Int) (int, bool) {
	if n == nil || n.Sign() <= 0 {
		return 0, false
	}
	tz := n.TrailingZeroBits()
	p := int(tz) + 1
	odd := new(big.Int).Rsh(n, tz)
	if odd.Cmp(MersenneNumber(p)) != 0 {
		return 0, false
	}
	return p, true
}
