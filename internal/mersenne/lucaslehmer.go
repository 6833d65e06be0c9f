package mersenne

import "math/big"

var (
	bigOne = big.NewInt(1)
	bigTwo = big.NewInt(2)
)

// MersenneNumber returns 2^p - 1.
func MersenneNumber(p int) *big.Int {
	m := new(big.Int).Lsh(bigOne, uint(p))
	return m.Sub(m, bigOne)
}

// IsMersennePrime runs the Lucas–Lehmer test on 2^p - 1. The result is only
// meaningful for prime p; other inputs still get a plain boolean back.
func IsMersennePrime(p int) bool {
	if p < 2 {
		return false
	}
	if p == 2 {
		return true
	}

	m := MersenneNumber(p)
	s := big.NewInt(4)
	hi := new(big.Int)
	for i := 0; i < p-2; i++ {
		s.Mul(s, s)
		s.Sub(s, bigTwo)
		reduce(s, m, uint(p), hi)
	}
	return s.Sign() == 0
}

// reduce sets k to k mod m where m = 2^p - 1, using 2^p ≡ 1 (mod m) so the
// high bits can be folded onto the low bits with a shift and a mask. hi is
// scratch space.
func reduce(k, m *big.Int, p uint, hi *big.Int) {
	if k.Sign() < 0 {
		k.Mod(k, m)
		return
	}
	for k.Cmp(m) > 0 {
		hi.Rsh(k, p)
		k.And(k, m)
		k.Add(k, hi)
	}
	if k.Cmp(m) == 0 {
		k.SetInt64(0)
	}
}
