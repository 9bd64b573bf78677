package panics

func Div(a, b int) int {
	return a / b
}

func MustPositive(x int) int {
	if x < 0 {
		panic("negative")
	}
	return x
}

func Shift(x int32, n int8) int32 {
	return x << n
}
