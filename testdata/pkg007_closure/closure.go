package closure

func Apply(x int) int {
	add := func(y int) int {
		return x + y
	}
	return add(1)
}

func Order(a, b int64) (int64, bool) {
	if a > b {
		return a, true
	}
	return b, false
}

func Larger(a, b int64) int64 {
	v, _ := Order(a, b)
	return v
}

func Fact(n int) int {
	if n <= 1 {
		return 1
	}
	return n * Fact(n-1)
}

func Narrow(x int) uint8 {
	return uint8(x) ^ 0xFF
}

func Count(n uint8) int {
	c := 0
	inc := func() {
		c++
	}
	for i := uint8(0); i < n; i++ {
		inc()
	}
	return c
}
