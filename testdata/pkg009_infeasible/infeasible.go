package infeasible

func Sign(x int) int {
	if x > 0 {
		if x < 0 {
			return 2
		}
		return 1
	}
	return 0
}
