// Package mersenne implements the arithmetic behind perfect-number discovery:
// a trial-division screen for exponents, the Lucas–Lehmer test for Mersenne
// numbers and Euclid's construction of even perfect numbers.
//
// Exponents are native ints. Every value derived from an exponent is a
// *big.Int; nothing in this package uses floating point.
package mersenne

// IsPrime reports whether n is prime using trial division by odd integers up
// to floor(sqrt(n)). It is only meant for screening exponents.
func IsPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := 3; d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}
