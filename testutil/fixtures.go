package testutil

import (
	"testing"

	"github.com/djkazic/btclib-go/internal/block"
)

// Wire-encoded mainnet headers for the first blocks after genesis.
var mainnetHeaderHex = map[int]string{
	1: "010000006fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a089c68d6190000000000982051fd1e4ba744bbbe680e1fee14677ba1a3c3540bf7b1cdb606e857233e0e61bc6649ffff001d01e36299",
	2: "010000004860eb18bf1b1620e37e9490fc8a427514416fd75159ab86688e9a8300000000d5fdcc541e25de1c7a5addedf24858b8bb665c9f36ef744ee42c316022c90f9bb0bc6649ffff001d08d2bd61",
}

// MainnetHeader returns the real mainnet header at the given early height.
func MainnetHeader(t *testing.T, height int) *block.Block {
	t.Helper()
	hexStr, ok := mainnetHeaderHex[height]
	if !ok {
		t.Fatalf("no fixture header for height %d", height)
	}
	b, err := block.ParseBytes(MustDecodeHex(t, hexStr))
	if err != nil {
		t.Fatalf("parse fixture header %d: %v", height, err)
	}
	return b
}

// MainnetGenesisHash returns the mainnet genesis block hash in display order.
func MainnetGenesisHash(t *testing.T) [32]byte {
	t.Helper()
	b, err := block.ParseBytes(block.GenesisRaw)
	if err != nil {
		t.Fatalf("parse genesis: %v", err)
	}
	return b.Hash()
}

// TestnetGenesisHash returns the testnet genesis block hash in display order.
func TestnetGenesisHash(t *testing.T) [32]byte {
	t.Helper()
	b, err := block.ParseBytes(block.TestnetGenesisRaw)
	if err != nil {
		t.Fatalf("parse testnet genesis: %v", err)
	}
	return b.Hash()
}

// DisplayHash converts display-order hex into a [32]byte hash.
func DisplayHash(t *testing.T, hexStr string) [32]byte {
	t.Helper()
	b := MustDecodeHex(t, hexStr)
	if len(b) != 32 {
		t.Fatalf("hash hex must be 32 bytes, got %d", len(b))
	}
	var h [32]byte
	copy(h[:], b)
	return h
}
