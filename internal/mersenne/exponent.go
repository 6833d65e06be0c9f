package mersenne

// FirstExponent is the smallest exponent considered.
const FirstExponent = 2

// ExponentSource hands out consecutive exponents starting at FirstExponent.
// Each stream session owns its own source.
type ExponentSource struct {
	next int
}

func NewExponentSource() *ExponentSource {
	return &ExponentSource{next: FirstExponent}
}

// NextBatch returns the exponents [next, next+size) and advances the cursor by
// size. A size below 1 is treated as 1.
func (s *ExponentSource) NextBatch(size int) []int {
	if size < 1 {
		size = 1
	}
	batch := make([]int, size)
	for i := range batch {
		batch[i] = s.next + i
	}
	s.next += size
	return batch
}

// Peek returns the next exponent NextBatch will hand out.
func (s *ExponentSource) Peek() int {
	return s.next
}
