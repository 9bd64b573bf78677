package loop

func SumTo(n int) int {
	s := 0
	for i := 1; i <= n; i++ {
		s += i
	}
	return s
}

func Spin(n uint8) uint8 {
	for n != 0 {
		n++
	}
	return n
}

func Forever(n int) int {
	for n >= 0 {
		n = n | 1
	}
	return n
}
