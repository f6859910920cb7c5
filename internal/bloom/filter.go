package bloom

import (
	"github.com/djkazic/btclib-go/pkg/util"
)

// seedStep spaces the murmur3 seeds of the BIP37 hash-function family.
const seedStep = 0xfba4c795

// Filter is a BIP37 bloom filter of size bytes with functionCount hash
// functions derived from murmur3.
type Filter struct {
	size          uint32
	bitField      []byte
	functionCount uint32
	tweak         uint32
}

// New creates an empty filter.
func New(size, functionCount, tweak uint32) *Filter {
	return &Filter{
		size:          size,
		bitField:      make([]byte, size*8),
		functionCount: functionCount,
		tweak:         tweak,
	}
}

// Add sets the filter bits for item.
func (f *Filter) Add(item []byte) {
	for i := uint32(0); i < f.functionCount; i++ {
		seed := i*seedStep + f.tweak
		bit := util.Murmur3(item, seed) % (f.size * 8)
		f.bitField[bit] = 1
	}
}

// FilterBytes packs the bit field for the wire.
func (f *Filter) FilterBytes() []byte {
	// length is a multiple of 8 by construction
	b, _ := util.BitFieldToBytes(f.bitField)
	return b
}

// FilterLoad encodes the BIP37 filterload payload: varint size, bit field,
// function count, tweak, and the matched-item flags byte.
func (f *Filter) FilterLoad(flags byte) []byte {
	out := util.WriteVarInt(uint64(f.size))
	out = append(out, f.FilterBytes()...)
	out = append(out, util.Uint32ToBytes(f.functionCount)...)
	out = append(out, util.Uint32ToBytes(f.tweak)...)
	return append(out, flags)
}
