package names

func foo(x int) int {
	if x > 0 {
		return x
	}
	return -x
}

func _foo(x int) int {
	if x > 0 {
		return -x
	}
	return x
}

func Foo(x int) bool {
	return foo(x) == _foo(x)
}
