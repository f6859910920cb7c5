package headers

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/djkazic/btclib-go/internal/block"
	"github.com/djkazic/btclib-go/testutil"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func openStore(t *testing.T, testnet bool) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "headers.db"), testnet, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenSeedsGenesis(t *testing.T) {
	store := openStore(t, false)

	tip, height, err := store.Tip()
	if err != nil {
		t.Fatalf("Tip: %v", err)
	}
	if height != 0 {
		t.Errorf("genesis height = %d, want 0", height)
	}
	if tip.Hash() != testutil.MainnetGenesisHash(t) {
		t.Errorf("tip = %x, want genesis", tip.Hash())
	}
	if store.Count() != 1 {
		t.Errorf("count = %d, want 1", store.Count())
	}
}

func TestAppendChain(t *testing.T) {
	store := openStore(t, false)

	b1 := testutil.MainnetHeader(t, 1)
	b2 := testutil.MainnetHeader(t, 2)

	if err := store.Append(b1); err != nil {
		t.Fatalf("Append block 1: %v", err)
	}
	if err := store.Append(b2); err != nil {
		t.Fatalf("Append block 2: %v", err)
	}

	_, height, err := store.Tip()
	if err != nil {
		t.Fatalf("Tip: %v", err)
	}
	if height != 2 {
		t.Errorf("tip height = %d, want 2", height)
	}

	got, ok := store.ByHeight(1)
	if !ok {
		t.Fatal("header at height 1 missing")
	}
	if got.Hash() != b1.Hash() {
		t.Error("header at height 1 mismatch")
	}
}

func TestAppendRejectsNonTipParent(t *testing.T) {
	store := openStore(t, false)

	b2 := testutil.MainnetHeader(t, 2)
	if err := store.Append(b2); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("appending block 2 over genesis should fail, got %v", err)
	}
}

func TestAppendRejectsBadPoW(t *testing.T) {
	store := openStore(t, false)

	bad := testutil.MainnetHeader(t, 1)
	bad.Nonce ^= 0xff
	if err := store.Append(bad); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("corrupted nonce should fail proof of work, got %v", err)
	}
}

func TestAppendRejectsBadBits(t *testing.T) {
	store := openStore(t, false)

	// Forge a header that claims an absurdly easy target. It can satisfy
	// its own claim, but the bits differ from the epoch schedule.
	forged := &block.Block{
		Version:   1,
		PrevBlock: testutil.MainnetGenesisHash(t),
		Timestamp: 1231469665,
		Bits:      0x207fffff,
		Nonce:     1,
	}
	if !forged.CheckPoW() {
		t.Fatal("forged header should satisfy its own easy target")
	}
	if err := store.Append(forged); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("off-schedule bits should be rejected, got %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "headers.db")

	store, err := Open(path, false, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Append(testutil.MainnetHeader(t, 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, false, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	_, height, err := reopened.Tip()
	if err != nil {
		t.Fatalf("Tip: %v", err)
	}
	if height != 1 {
		t.Errorf("height after reopen = %d, want 1", height)
	}
}

func TestAncestors(t *testing.T) {
	store := openStore(t, false)
	b1 := testutil.MainnetHeader(t, 1)
	b2 := testutil.MainnetHeader(t, 2)
	_ = store.Append(b1)
	_ = store.Append(b2)

	ancestors := store.Ancestors(b2.Hash(), 10)
	if len(ancestors) != 3 {
		t.Fatalf("ancestors = %d, want 3", len(ancestors))
	}
	if ancestors[0].Hash() != b2.Hash() || ancestors[2].Hash() != testutil.MainnetGenesisHash(t) {
		t.Error("ancestors out of order")
	}
}

func TestTestnetStoreSeedsTestnetGenesis(t *testing.T) {
	store := openStore(t, true)
	tip, _, err := store.Tip()
	if err != nil {
		t.Fatalf("Tip: %v", err)
	}
	if tip.Hash() != testutil.TestnetGenesisHash(t) {
		t.Errorf("testnet tip = %x, want testnet genesis", tip.Hash())
	}
}
