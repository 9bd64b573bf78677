package linear

func Inc(x int) int {
	return x + 1
}
