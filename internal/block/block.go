package block

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/djkazic/btclib-go/pkg/util"
)

// HeaderSize is the fixed wire size of a block header.
const HeaderSize = 80

// Genesis block headers, wire encoded.
var (
	GenesisRaw        = mustHex("0100000000000000000000000000000000000000000000000000000000000000000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a29ab5f49ffff001d1dac2b7c")
	TestnetGenesisRaw = mustHex("0100000000000000000000000000000000000000000000000000000000000000000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4adae5494dffff001d1aa4ae18")
)

func mustHex(s string) []byte {
	b, err := util.HexToBytes(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Block is an 80-byte block header. PrevBlock and MerkleRoot are held in
// display order (big-endian) and reversed on the wire.
type Block struct {
	Version    uint32
	PrevBlock  [32]byte
	MerkleRoot [32]byte
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
}

// Parse reads an 80-byte header from the stream.
func Parse(r io.Reader) (*Block, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return ParseBytes(buf[:])
}

// ParseBytes decodes an 80-byte header.
func ParseBytes(raw []byte) (*Block, error) {
	if len(raw) != HeaderSize {
		return nil, fmt.Errorf("block: header must be %d bytes, got %d", HeaderSize, len(raw))
	}
	b := &Block{
		Version:   binary.LittleEndian.Uint32(raw[0:4]),
		Timestamp: binary.LittleEndian.Uint32(raw[68:72]),
		Bits:      binary.LittleEndian.Uint32(raw[72:76]),
		Nonce:     binary.LittleEndian.Uint32(raw[76:80]),
	}
	copy(b.PrevBlock[:], util.ReverseBytes(raw[4:36]))
	copy(b.MerkleRoot[:], util.ReverseBytes(raw[36:68]))
	return b, nil
}

// Serialize encodes the header to its 80-byte wire form.
func (b *Block) Serialize() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], b.Version)
	copy(buf[4:36], util.ReverseBytes(b.PrevBlock[:]))
	copy(buf[36:68], util.ReverseBytes(b.MerkleRoot[:]))
	binary.LittleEndian.PutUint32(buf[68:72], b.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], b.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], b.Nonce)
	return buf
}

// Hash is the double-SHA256 of the serialization in display order.
func (b *Block) Hash() [32]byte {
	h := util.DoubleSHA256(b.Serialize())
	var out [32]byte
	copy(out[:], util.ReverseBytes(h[:]))
	return out
}

// BIP9 reports version-bits signaling (top three bits 001).
func (b *Block) BIP9() bool {
	return b.Version>>29 == 0b001
}

// BIP91 reports bit 4 signaling.
func (b *Block) BIP91() bool {
	return b.Version>>4&1 == 1
}

// BIP141 reports bit 1 (segwit) signaling.
func (b *Block) BIP141() bool {
	return b.Version>>1&1 == 1
}

// Target returns the proof-of-work target this header claims.
func (b *Block) Target() *big.Int {
	return util.CompactToTarget(b.Bits)
}

// Difficulty returns the header's difficulty relative to difficulty 1.
func (b *Block) Difficulty() float64 {
	return util.TargetToDifficulty(b.Target(), util.MaxTarget())
}

// CheckPoW reports whether the header hash is below its claimed target.
func (b *Block) CheckPoW() bool {
	h := util.DoubleSHA256(b.Serialize())
	return util.HashMeetsTarget(h, b.Target())
}

func (b *Block) String() string {
	h := b.Hash()
	return fmt.Sprintf("Block %x (version=%#x bits=%#x nonce=%d)", h, b.Version, b.Bits, b.Nonce)
}
