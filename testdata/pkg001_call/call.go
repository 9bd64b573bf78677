package call

func Caller(a int8, b int16) bool {
	z := callee(a, b)
	if z == 0xAFF {
		return true
	}
	return false
}

func callee(a int8, b int16) int32 {
	x := int32(a) * int32(b)
	if x > 10 {
		return x + 1
	}
	return x - 1
}
