package merkle

import (
	"fmt"

	"github.com/djkazic/btclib-go/pkg/util"
)

// Parent hashes the concatenation of two child hashes.
func Parent(left, right []byte) []byte {
	combined := make([]byte, 0, len(left)+len(right))
	combined = append(combined, left...)
	combined = append(combined, right...)
	return util.Hash256(combined)
}

// ParentLevel reduces one level of hashes to its parents, duplicating the
// last hash when the level has odd length.
func ParentLevel(hashes [][]byte) [][]byte {
	if len(hashes)%2 == 1 {
		hashes = append(hashes, hashes[len(hashes)-1])
	}
	parents := make([][]byte, 0, len(hashes)/2)
	for i := 0; i < len(hashes); i += 2 {
		parents = append(parents, Parent(hashes[i], hashes[i+1]))
	}
	return parents
}

// Root reduces a list of hashes to the merkle root.
func Root(hashes [][]byte) []byte {
	current := hashes
	for len(current) > 1 {
		current = ParentLevel(current)
	}
	return current[0]
}

// Tree is a partial merkle tree over total leaves: level 0 holds the root,
// level maxDepth the leaves, and level d holds ceil(total / 2^(maxDepth-d))
// nodes. A cursor supports the depth-first population walk.
type Tree struct {
	total    int
	maxDepth int
	nodes    [][][]byte

	currentDepth int
	currentIndex int
}

// NewTree allocates an empty tree shaped for total leaves.
func NewTree(total int) *Tree {
	maxDepth := 0
	for 1<<maxDepth < total {
		maxDepth++
	}
	nodes := make([][][]byte, maxDepth+1)
	for depth := 0; depth <= maxDepth; depth++ {
		span := 1 << (maxDepth - depth)
		numItems := (total + span - 1) / span
		nodes[depth] = make([][]byte, numItems)
	}
	return &Tree{total: total, maxDepth: maxDepth, nodes: nodes}
}

// Root returns the computed root, or nil before population.
func (t *Tree) Root() []byte {
	return t.nodes[0][0]
}

func (t *Tree) up() {
	t.currentDepth--
	t.currentIndex /= 2
}

func (t *Tree) left() {
	t.currentDepth++
	t.currentIndex *= 2
}

func (t *Tree) right() {
	t.currentDepth++
	t.currentIndex = t.currentIndex*2 + 1
}

func (t *Tree) isLeaf() bool {
	return t.currentDepth == t.maxDepth
}

func (t *Tree) setCurrent(h []byte) {
	t.nodes[t.currentDepth][t.currentIndex] = h
}

func (t *Tree) rightExists() bool {
	return len(t.nodes[t.currentDepth+1]) > t.currentIndex*2+1
}

// Populate fills the tree from BIP37 flag bits and hashes, returning the
// computed root. Flags and hashes must be exactly consumed.
func (t *Tree) Populate(flagBits []byte, hashes [][]byte) ([]byte, error) {
	t.currentDepth = 0
	t.currentIndex = 0

	root, err := t.populate(&flagBits, &hashes)
	if err != nil {
		return nil, err
	}
	if len(hashes) != 0 {
		return nil, fmt.Errorf("merkle: %d hashes not consumed", len(hashes))
	}
	for _, bit := range flagBits {
		if bit != 0 {
			return nil, fmt.Errorf("merkle: flag bits not all consumed")
		}
	}
	return root, nil
}

func (t *Tree) populate(flagBits *[]byte, hashes *[][]byte) ([]byte, error) {
	if len(*flagBits) == 0 {
		return nil, fmt.Errorf("merkle: ran out of flag bits")
	}
	flag := (*flagBits)[0]
	*flagBits = (*flagBits)[1:]

	takeHash := func() ([]byte, error) {
		if len(*hashes) == 0 {
			return nil, fmt.Errorf("merkle: ran out of hashes")
		}
		h := (*hashes)[0]
		*hashes = (*hashes)[1:]
		return h, nil
	}

	// A leaf, or an unmatched subtree: the next hash covers this node.
	if t.isLeaf() || flag == 0 {
		h, err := takeHash()
		if err != nil {
			return nil, err
		}
		t.setCurrent(h)
		return h, nil
	}

	t.left()
	left, err := t.populate(flagBits, hashes)
	if err != nil {
		return nil, err
	}
	t.up()

	right := left
	if t.rightExists() {
		t.right()
		right, err = t.populate(flagBits, hashes)
		if err != nil {
			return nil, err
		}
		t.up()
	}

	value := Parent(left, right)
	t.setCurrent(value)
	return value, nil
}
