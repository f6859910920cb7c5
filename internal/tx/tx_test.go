package tx

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/djkazic/btclib-go/internal/ecc"
	"github.com/djkazic/btclib-go/internal/script"
	"github.com/djkazic/btclib-go/pkg/util"
)

// mockFetcher serves transactions from a map, standing in for the HTTP
// backing store.
type mockFetcher struct {
	txs map[string]*Tx
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{txs: make(map[string]*Tx)}
}

func (m *mockFetcher) put(t *testing.T, transaction *Tx) {
	t.Helper()
	id, err := transaction.ID()
	if err != nil {
		t.Fatalf("ID: %v", err)
	}
	m.txs[id] = transaction
}

func (m *mockFetcher) Fetch(_ context.Context, txID string, _ bool) (*Tx, error) {
	transaction, ok := m.txs[txID]
	if !ok {
		return nil, fmt.Errorf("tx %s not found", txID)
	}
	return transaction, nil
}

const rawTxHex = "0100000001813f79011acb80925dfe69b3def355fe914bd1d96a3f5f71bf8303c6a989c7d1000000006b483045022100ed81ff192e75a3fd2304004dcadb746fa5e24c5031ccfcf21320b0277457c98f02207a986d955c6e0cb35d446a89d3f56100f4d7f67801c31967743a9c8e10615bed01210349fc4e631e3624a545de3f89f5d8684c7b8138bd94bdd531d2e213bf016b278afeffffff02a135ef01000000001976a914bc3b654dca7e56b04dca18f2566cdaf02e8d9ada88ac99c39800000000001976a9141c4bc762dd5423e332166702cb75f40df79fea1288ac19430600"

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := util.HexToBytes(s)
	if err != nil {
		t.Fatalf("bad hex: %v", err)
	}
	return b
}

func TestParseTx(t *testing.T) {
	parsed, err := Parse(bytes.NewReader(mustHex(t, rawTxHex)), false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if parsed.Version != 1 {
		t.Errorf("version = %d, want 1", parsed.Version)
	}
	if len(parsed.TxIns) != 1 {
		t.Fatalf("inputs = %d, want 1", len(parsed.TxIns))
	}

	in := parsed.TxIns[0]
	wantPrev := "d1c789a9c60383bf715f3f6ad9d14b91fe55f3deb369fe5d9280cb1a01793f81"
	if util.BytesToHex(in.PrevTx[:]) != wantPrev {
		t.Errorf("prev tx = %x, want %s", in.PrevTx, wantPrev)
	}
	if in.PrevIndex != 0 {
		t.Errorf("prev index = %d, want 0", in.PrevIndex)
	}
	if in.Sequence != 0xfffffffe {
		t.Errorf("sequence = %#x, want 0xfffffffe", in.Sequence)
	}

	if len(parsed.TxOuts) != 2 {
		t.Fatalf("outputs = %d, want 2", len(parsed.TxOuts))
	}
	if parsed.TxOuts[0].Amount != 32454049 {
		t.Errorf("output 0 amount = %d, want 32454049", parsed.TxOuts[0].Amount)
	}
	if parsed.TxOuts[1].Amount != 10011545 {
		t.Errorf("output 1 amount = %d, want 10011545", parsed.TxOuts[1].Amount)
	}
	spk, err := parsed.TxOuts[0].ScriptPubKey.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	wantSpk := "1976a914bc3b654dca7e56b04dca18f2566cdaf02e8d9ada88ac"
	if util.BytesToHex(spk) != wantSpk {
		t.Errorf("output 0 script = %x, want %s", spk, wantSpk)
	}

	if parsed.Locktime != 410393 {
		t.Errorf("locktime = %d, want 410393", parsed.Locktime)
	}
}

func TestSerializeTxRoundTrip(t *testing.T) {
	raw := mustHex(t, rawTxHex)
	parsed, err := Parse(bytes.NewReader(raw), false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := parsed.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("round trip mismatch")
	}
}

func TestParseRejectsSegwit(t *testing.T) {
	raw := mustHex(t, rawTxHex)
	// Splice in the segwit marker and flag.
	witness := append([]byte{}, raw[:4]...)
	witness = append(witness, 0x00, 0x01)
	witness = append(witness, raw[4:]...)

	if _, err := Parse(bytes.NewReader(witness), false); err == nil {
		t.Error("segwit-flagged raw should be rejected")
	}
}

func TestParseRejectsZeroOutputs(t *testing.T) {
	var raw []byte
	raw = append(raw, util.Uint32ToBytes(1)...)
	raw = append(raw, 0x01)                            // one input
	raw = append(raw, make([]byte, 32)...)             // prev tx
	raw = append(raw, util.Uint32ToBytes(0xffffffff)...) // prev index
	raw = append(raw, 0x00)                            // empty script sig
	raw = append(raw, util.Uint32ToBytes(0xffffffff)...) // sequence
	raw = append(raw, 0x00)                            // zero outputs
	raw = append(raw, util.Uint32ToBytes(0)...)        // locktime

	if _, err := Parse(bytes.NewReader(raw), false); err == nil {
		t.Error("zero outputs should be rejected")
	}
}

// fundingChain builds a previous transaction paying amount to the key's
// P2PKH address and a spending transaction referencing it, registered in
// the returned fetcher.
func fundingChain(t *testing.T, priv *ecc.PrivateKey, amount, spend int64) (*Tx, *mockFetcher) {
	t.Helper()
	fetcher := newMockFetcher()

	lock := script.NewP2PKH(priv.Point.Hash160(true))
	prevOut, err := NewTxOut(amount, lock)
	if err != nil {
		t.Fatalf("NewTxOut: %v", err)
	}

	var fakeOutpoint [32]byte
	fakeOutpoint[31] = 0x01
	prev := &Tx{
		Version:  1,
		TxIns:    []*TxIn{NewTxIn(fakeOutpoint, 0)},
		TxOuts:   []*TxOut{prevOut},
		Locktime: 0,
	}
	fetcher.put(t, prev)

	prevID, err := prev.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	dest := script.NewP2PKH(util.Hash160([]byte("elsewhere")))
	out, err := NewTxOut(spend, dest)
	if err != nil {
		t.Fatalf("NewTxOut: %v", err)
	}
	spending := &Tx{
		Version:  1,
		TxIns:    []*TxIn{NewTxIn(prevID, 0)},
		TxOuts:   []*TxOut{out},
		Locktime: 0,
	}
	return spending, fetcher
}

func TestSignInputAndVerify(t *testing.T) {
	priv, err := ecc.NewPrivateKey(big.NewInt(8675309))
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	spending, fetcher := fundingChain(t, priv, 100_000, 99_000)
	ctx := context.Background()

	ok, err := spending.SignInput(ctx, 0, priv, fetcher)
	if err != nil {
		t.Fatalf("SignInput: %v", err)
	}
	if !ok {
		t.Fatal("signed input should verify")
	}

	valid, err := spending.Verify(ctx, fetcher)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !valid {
		t.Error("transaction should verify")
	}
}

func TestVerifyWrongKeyFails(t *testing.T) {
	priv, _ := ecc.NewPrivateKey(big.NewInt(8675309))
	wrong, _ := ecc.NewPrivateKey(big.NewInt(12345))
	spending, fetcher := fundingChain(t, priv, 100_000, 99_000)
	ctx := context.Background()

	ok, err := spending.SignInput(ctx, 0, wrong, fetcher)
	if err != nil {
		t.Fatalf("SignInput: %v", err)
	}
	if ok {
		t.Error("signature from the wrong key should not verify")
	}
}

func TestVerifyNegativeFee(t *testing.T) {
	priv, _ := ecc.NewPrivateKey(big.NewInt(8675309))
	spending, fetcher := fundingChain(t, priv, 100_000, 200_000)
	ctx := context.Background()

	if _, err := spending.SignInput(ctx, 0, priv, fetcher); err != nil {
		t.Fatalf("SignInput: %v", err)
	}
	valid, err := spending.Verify(ctx, fetcher)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if valid {
		t.Error("transaction creating coins should not verify")
	}
}

func TestFee(t *testing.T) {
	priv, _ := ecc.NewPrivateKey(big.NewInt(424242))
	spending, fetcher := fundingChain(t, priv, 50_000, 40_000)

	fee, err := spending.Fee(context.Background(), fetcher)
	if err != nil {
		t.Fatalf("Fee: %v", err)
	}
	if fee != 10_000 {
		t.Errorf("fee = %d, want 10000", fee)
	}
}

func TestVerifyP2SH(t *testing.T) {
	fetcher := newMockFetcher()

	// Anyone-can-spend redeem script: OP_1.
	redeem := script.New(script.OpCmd(script.Op1))
	redeemRaw, err := redeem.RawSerialize()
	if err != nil {
		t.Fatalf("RawSerialize: %v", err)
	}
	lock := script.New(
		script.OpCmd(script.OpHash160),
		script.DataCmd(util.Hash160(redeemRaw)),
		script.OpCmd(script.OpEqual),
	)

	prevOut, _ := NewTxOut(5_000, lock)
	var fakeOutpoint [32]byte
	fakeOutpoint[31] = 0x02
	prev := &Tx{
		Version:  1,
		TxIns:    []*TxIn{NewTxIn(fakeOutpoint, 0)},
		TxOuts:   []*TxOut{prevOut},
		Locktime: 0,
	}
	fetcher.put(t, prev)
	prevID, _ := prev.Hash()

	dest, _ := NewTxOut(4_000, script.NewP2PKH(util.Hash160([]byte("dest"))))
	spending := &Tx{
		Version:  1,
		TxIns:    []*TxIn{NewTxIn(prevID, 0)},
		TxOuts:   []*TxOut{dest},
		Locktime: 0,
	}
	spending.TxIns[0].ScriptSig = script.New(script.DataCmd(redeemRaw))

	ok, err := spending.VerifyInput(context.Background(), 0, fetcher)
	if err != nil {
		t.Fatalf("VerifyInput: %v", err)
	}
	if !ok {
		t.Error("p2sh spend should verify")
	}
}

func TestIsCoinbase(t *testing.T) {
	raw := "01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff5e03d71b07254d696e656420627920416e74506f6f6c20626a31312f4542312f4144362f43205914293101fabe6d6d678e2c8c34afc36896e7d9402824ed38e856676ee94bfdb0c6c4bcd8b2e5666a0400000000000000c7270000a5e00e00ffffffff01faf20b58000000001976a914338c84849423992471bffb1a54a8d9b1d69dc28f88ac00000000"
	coinbase, err := Parse(bytes.NewReader(mustHex(t, raw)), false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !coinbase.IsCoinbase() {
		t.Error("coinbase not recognized")
	}

	height, ok := coinbase.CoinbaseHeight()
	if !ok {
		t.Fatal("CoinbaseHeight should succeed on a coinbase")
	}
	if height != 465879 {
		t.Errorf("height = %d, want 465879", height)
	}

	regular, _ := Parse(bytes.NewReader(mustHex(t, rawTxHex)), false)
	if regular.IsCoinbase() {
		t.Error("regular tx misrecognized as coinbase")
	}
	if _, ok := regular.CoinbaseHeight(); ok {
		t.Error("CoinbaseHeight should fail on a regular tx")
	}
}

func TestSigHashDiffersPerInput(t *testing.T) {
	priv, _ := ecc.NewPrivateKey(big.NewInt(777))
	fetcher := newMockFetcher()

	lock := script.NewP2PKH(priv.Point.Hash160(true))
	out1, _ := NewTxOut(1_000, lock)
	out2, _ := NewTxOut(2_000, lock)
	var fakeOutpoint [32]byte
	fakeOutpoint[31] = 0x03
	prev := &Tx{
		Version:  1,
		TxIns:    []*TxIn{NewTxIn(fakeOutpoint, 0)},
		TxOuts:   []*TxOut{out1, out2},
		Locktime: 0,
	}
	fetcher.put(t, prev)
	prevID, _ := prev.Hash()

	dest, _ := NewTxOut(2_500, script.NewP2PKH(util.Hash160([]byte("dest"))))
	spending := &Tx{
		Version:  1,
		TxIns:    []*TxIn{NewTxIn(prevID, 0), NewTxIn(prevID, 1)},
		TxOuts:   []*TxOut{dest},
		Locktime: 0,
	}

	ctx := context.Background()
	z0, err := spending.SigHash(ctx, 0, nil, fetcher)
	if err != nil {
		t.Fatalf("SigHash(0): %v", err)
	}
	z1, err := spending.SigHash(ctx, 1, nil, fetcher)
	if err != nil {
		t.Fatalf("SigHash(1): %v", err)
	}
	if z0.Cmp(z1) == 0 {
		t.Error("sighash should differ per input")
	}
}
