// Package bitint holds the power-of-two helpers used to size capture ring
// buffers.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size, and 1 for
// size <= 0. Powers of two are returned unchanged.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// RingBytes returns the byte capacity of a ring holding at least frames
// 16-bit frames of the given channel count, rounded up to a power of two.
func RingBytes(frames, channels int) int {
	return NextPowerOfTwo(frames * channels * 2)
}
