package triangle

func ClassifyTriangle(a, b, c int) string {
	if a <= 0 || b <= 0 || c <= 0 {
		return "invalid"
	}
	if a+b <= c || b+c <= a || a+c <= b {
		return "not a triangle"
	}
	if a == b {
		if b == c {
			return "equilateral"
		}
		return "isosceles"
	}
	if b == c || a == c {
		return "isosceles"
	}
	return "scalene"
}
