package unsupported

func Sum(a []int) int {
	s := 0
	for _, v := range a {
		s += v
	}
	return s
}

func Name(s string) string {
	return s + "!"
}

func Ok(x int) int {
	return -x
}
