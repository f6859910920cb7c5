package merkle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/djkazic/btclib-go/pkg/util"
)

// MerkleBlock is a block header plus a partial merkle tree proving
// inclusion of filter-matching transactions (BIP37).
type MerkleBlock struct {
	Version    uint32
	PrevBlock  [32]byte
	MerkleRoot [32]byte
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32

	Total  uint32
	Hashes [][32]byte
	Flags  []byte
}

// ParseMerkleBlock reads a merkleblock payload from the stream.
func ParseMerkleBlock(r io.Reader) (*MerkleBlock, error) {
	var head [84]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("read merkleblock header: %w", err)
	}

	mb := &MerkleBlock{
		Version:   binary.LittleEndian.Uint32(head[0:4]),
		Timestamp: binary.LittleEndian.Uint32(head[68:72]),
		Bits:      binary.LittleEndian.Uint32(head[72:76]),
		Nonce:     binary.LittleEndian.Uint32(head[76:80]),
		Total:     binary.LittleEndian.Uint32(head[80:84]),
	}
	copy(mb.PrevBlock[:], util.ReverseBytes(head[4:36]))
	copy(mb.MerkleRoot[:], util.ReverseBytes(head[36:68]))

	numHashes, err := util.ReadVarIntFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read hash count: %w", err)
	}
	mb.Hashes = make([][32]byte, numHashes)
	for i := range mb.Hashes {
		var h [32]byte
		if _, err := io.ReadFull(r, h[:]); err != nil {
			return nil, fmt.Errorf("read hash %d: %w", i, err)
		}
		copy(mb.Hashes[i][:], util.ReverseBytes(h[:]))
	}

	flagsLen, err := util.ReadVarIntFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read flags length: %w", err)
	}
	mb.Flags = make([]byte, flagsLen)
	if _, err := io.ReadFull(r, mb.Flags); err != nil {
		return nil, fmt.Errorf("read flags: %w", err)
	}
	return mb, nil
}

// IsValid reconstructs the partial merkle tree and compares its root to the
// header's merkle root.
func (mb *MerkleBlock) IsValid() bool {
	hashes := make([][]byte, len(mb.Hashes))
	for i, h := range mb.Hashes {
		hashes[i] = util.ReverseBytes(h[:])
	}

	tree := NewTree(int(mb.Total))
	root, err := tree.Populate(util.BytesToBitField(mb.Flags), hashes)
	if err != nil {
		return false
	}
	return bytes.Equal(util.ReverseBytes(root), mb.MerkleRoot[:])
}
