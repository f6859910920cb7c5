package util

import "encoding/binary"

// Murmur3 computes the 32-bit murmur3 hash of data with the given seed, as
// used by BIP37 bloom filters.
func Murmur3(data []byte, seed uint32) uint32 {
	const (
		c1 = 0xcc9e2d51
		c2 = 0x1b873593
	)

	h1 := seed
	n := len(data) / 4

	for i := 0; i < n; i++ {
		k1 := binary.LittleEndian.Uint32(data[i*4:])
		k1 *= c1
		k1 = k1<<15 | k1>>17
		k1 *= c2
		h1 ^= k1
		h1 = h1<<13 | h1>>19
		h1 = h1*5 + 0xe6546b64
	}

	// tail
	var k1 uint32
	tail := data[n*4:]
	switch len(tail) {
	case 3:
		k1 ^= uint32(tail[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint32(tail[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint32(tail[0])
		k1 *= c1
		k1 = k1<<15 | k1>>17
		k1 *= c2
		h1 ^= k1
	}

	// avalanche
	h1 ^= uint32(len(data))
	h1 ^= h1 >> 16
	h1 *= 0x85ebca6b
	h1 ^= h1 >> 13
	h1 *= 0xc2b2ae35
	h1 ^= h1 >> 16
	return h1
}
