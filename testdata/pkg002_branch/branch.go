package branch

func Choose(x bool) int {
	if x {
		return 1
	}
	return 0
}

func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
