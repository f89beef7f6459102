package kernel

// Memset sets every byte of target to value. Instead of using a for loop,
// this function uses log2(len(target)) copy calls which should give us a
// speed boost when clearing large regions such as the kernel heap.
func Memset(target []byte, value byte) {
	if len(target) == 0 {
		return
	}

	// Set first element and make log2(size) optimized copies
	target[0] = value
	for index := 1; index < len(target); index *= 2 {
		copy(target[index:], target[:index])
	}
}

// Memset16 fills target with little-endian copies of value. A trailing odd
// byte is left untouched.
func Memset16(target []byte, value uint16) {
	if len(target) < 2 {
		return
	}

	target[0], target[1] = byte(value), byte(value>>8)
	end := len(target) &^ 1
	for index := 2; index < end; index *= 2 {
		copy(target[index:end], target[:index])
	}
}

// Memcopy copies min(len(dst), len(src)) bytes from src to dst and returns
// the number of copied bytes.
func Memcopy(dst, src []byte) int {
	return copy(dst, src)
}
