package tx

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/djkazic/btclib-go/internal/ecc"
	"github.com/djkazic/btclib-go/internal/script"
	"github.com/djkazic/btclib-go/pkg/util"
)

// SighashAll commits the signature to all inputs and outputs.
const SighashAll = 1

// ErrNegativeFee is returned when outputs exceed inputs.
var ErrNegativeFee = errors.New("tx: output amount exceeds input amount")

// TxIn spends one output of a previous transaction. PrevTx is held in
// display order (big-endian) and reversed on the wire.
type TxIn struct {
	PrevTx    [32]byte
	PrevIndex uint32
	ScriptSig *script.Script
	Sequence  uint32
}

// NewTxIn creates an input with an empty script sig and default sequence.
func NewTxIn(prevTx [32]byte, prevIndex uint32) *TxIn {
	return &TxIn{
		PrevTx:    prevTx,
		PrevIndex: prevIndex,
		ScriptSig: script.New(),
		Sequence:  0xffffffff,
	}
}

// ParseTxIn reads one input from the stream.
func ParseTxIn(r io.Reader) (*TxIn, error) {
	var prevTx [32]byte
	if _, err := io.ReadFull(r, prevTx[:]); err != nil {
		return nil, fmt.Errorf("read prev tx: %w", err)
	}
	copy(prevTx[:], util.ReverseBytes(prevTx[:]))

	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("read prev index: %w", err)
	}
	prevIndex := binary.LittleEndian.Uint32(buf[:])

	scriptSig, err := script.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse script sig: %w", err)
	}

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("read sequence: %w", err)
	}

	return &TxIn{
		PrevTx:    prevTx,
		PrevIndex: prevIndex,
		ScriptSig: scriptSig,
		Sequence:  binary.LittleEndian.Uint32(buf[:]),
	}, nil
}

// Serialize writes the input in wire format.
func (in *TxIn) Serialize() ([]byte, error) {
	out := make([]byte, 0, 40)
	out = append(out, util.ReverseBytes(in.PrevTx[:])...)
	out = append(out, util.Uint32ToBytes(in.PrevIndex)...)
	sig, err := in.ScriptSig.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize script sig: %w", err)
	}
	out = append(out, sig...)
	return append(out, util.Uint32ToBytes(in.Sequence)...), nil
}

// Value looks up the amount of the spent output through the fetcher.
func (in *TxIn) Value(ctx context.Context, fetcher Fetcher) (int64, error) {
	prev, err := fetcher.Fetch(ctx, util.BytesToHex(in.PrevTx[:]), false)
	if err != nil {
		return 0, err
	}
	if int(in.PrevIndex) >= len(prev.TxOuts) {
		return 0, fmt.Errorf("tx: prev index %d out of range", in.PrevIndex)
	}
	return prev.TxOuts[in.PrevIndex].Amount, nil
}

// ScriptPubKey looks up the locking script of the spent output.
func (in *TxIn) ScriptPubKey(ctx context.Context, fetcher Fetcher) (*script.Script, error) {
	prev, err := fetcher.Fetch(ctx, util.BytesToHex(in.PrevTx[:]), false)
	if err != nil {
		return nil, err
	}
	if int(in.PrevIndex) >= len(prev.TxOuts) {
		return nil, fmt.Errorf("tx: prev index %d out of range", in.PrevIndex)
	}
	return prev.TxOuts[in.PrevIndex].ScriptPubKey, nil
}

func (in *TxIn) String() string {
	return fmt.Sprintf("%x:%d", in.PrevTx, in.PrevIndex)
}

// TxOut locks an amount of satoshi behind a script.
type TxOut struct {
	Amount       int64
	ScriptPubKey *script.Script
}

// NewTxOut creates an output, requiring a non-negative amount.
func NewTxOut(amount int64, scriptPubKey *script.Script) (*TxOut, error) {
	if amount < 0 {
		return nil, fmt.Errorf("tx: negative amount %d", amount)
	}
	return &TxOut{Amount: amount, ScriptPubKey: scriptPubKey}, nil
}

// ParseTxOut reads one output from the stream.
func ParseTxOut(r io.Reader) (*TxOut, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("read amount: %w", err)
	}
	amount := int64(binary.LittleEndian.Uint64(buf[:]))
	if amount < 0 {
		return nil, fmt.Errorf("tx: negative amount %d", amount)
	}

	scriptPubKey, err := script.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse script pubkey: %w", err)
	}
	return &TxOut{Amount: amount, ScriptPubKey: scriptPubKey}, nil
}

// Serialize writes the output in wire format.
func (out *TxOut) Serialize() ([]byte, error) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(out.Amount))
	spk, err := out.ScriptPubKey.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize script pubkey: %w", err)
	}
	return append(b, spk...), nil
}

func (out *TxOut) String() string {
	return fmt.Sprintf("%d:%s", out.Amount, out.ScriptPubKey)
}

// Tx is a legacy (pre-segwit) Bitcoin transaction.
type Tx struct {
	Version  uint32
	TxIns    []*TxIn
	TxOuts   []*TxOut
	Locktime uint32
	Testnet  bool
}

// Parse reads a legacy transaction from the stream. Segwit-flagged raws
// (zero input-count marker) are rejected rather than half-parsed.
func Parse(r io.Reader, testnet bool) (*Tx, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	version := binary.LittleEndian.Uint32(buf[:])

	inCount, err := util.ReadVarIntFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read input count: %w", err)
	}
	if inCount == 0 {
		return nil, fmt.Errorf("tx: zero inputs (segwit serialization is not supported)")
	}
	txIns := make([]*TxIn, 0, inCount)
	for i := uint64(0); i < inCount; i++ {
		in, err := ParseTxIn(r)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		txIns = append(txIns, in)
	}

	outCount, err := util.ReadVarIntFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read output count: %w", err)
	}
	if outCount == 0 {
		return nil, fmt.Errorf("tx: zero outputs")
	}
	txOuts := make([]*TxOut, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		out, err := ParseTxOut(r)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		txOuts = append(txOuts, out)
	}

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("read locktime: %w", err)
	}

	return &Tx{
		Version:  version,
		TxIns:    txIns,
		TxOuts:   txOuts,
		Locktime: binary.LittleEndian.Uint32(buf[:]),
		Testnet:  testnet,
	}, nil
}

// Serialize writes the transaction in legacy wire format.
func (t *Tx) Serialize() ([]byte, error) {
	var out []byte
	out = append(out, util.Uint32ToBytes(t.Version)...)
	out = append(out, util.WriteVarInt(uint64(len(t.TxIns)))...)
	for i, in := range t.TxIns {
		b, err := in.Serialize()
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out = append(out, b...)
	}
	out = append(out, util.WriteVarInt(uint64(len(t.TxOuts)))...)
	for i, o := range t.TxOuts {
		b, err := o.Serialize()
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		out = append(out, b...)
	}
	return append(out, util.Uint32ToBytes(t.Locktime)...), nil
}

// Hash is the double-SHA256 of the serialization, reversed to display
// order.
func (t *Tx) Hash() ([32]byte, error) {
	raw, err := t.Serialize()
	if err != nil {
		return [32]byte{}, err
	}
	h := util.DoubleSHA256(raw)
	var out [32]byte
	copy(out[:], util.ReverseBytes(h[:]))
	return out, nil
}

// ID is the hex transaction id.
func (t *Tx) ID() (string, error) {
	h, err := t.Hash()
	if err != nil {
		return "", err
	}
	return util.BytesToHex(h[:]), nil
}

// Fee returns input value minus output value in satoshi.
func (t *Tx) Fee(ctx context.Context, fetcher Fetcher) (int64, error) {
	var inAmount, outAmount int64
	for _, in := range t.TxIns {
		v, err := in.Value(ctx, fetcher)
		if err != nil {
			return 0, err
		}
		inAmount += v
	}
	for _, out := range t.TxOuts {
		outAmount += out.Amount
	}
	if inAmount < outAmount {
		return 0, ErrNegativeFee
	}
	return inAmount - outAmount, nil
}

// SigHash computes the integer z to sign for the given input under
// SIGHASH_ALL. When redeemScript is non-nil it stands in for the previous
// locking script (P2SH).
func (t *Tx) SigHash(ctx context.Context, inputIndex int, redeemScript *script.Script, fetcher Fetcher) (*big.Int, error) {
	if inputIndex < 0 || inputIndex >= len(t.TxIns) {
		return nil, fmt.Errorf("tx: input index %d out of range", inputIndex)
	}

	var out []byte
	out = append(out, util.Uint32ToBytes(t.Version)...)
	out = append(out, util.WriteVarInt(uint64(len(t.TxIns)))...)

	for i, in := range t.TxIns {
		sigScript := script.New()
		if i == inputIndex {
			if redeemScript != nil {
				sigScript = redeemScript
			} else {
				spk, err := in.ScriptPubKey(ctx, fetcher)
				if err != nil {
					return nil, err
				}
				sigScript = spk
			}
		}
		b, err := (&TxIn{
			PrevTx:    in.PrevTx,
			PrevIndex: in.PrevIndex,
			ScriptSig: sigScript,
			Sequence:  in.Sequence,
		}).Serialize()
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out = append(out, b...)
	}

	out = append(out, util.WriteVarInt(uint64(len(t.TxOuts)))...)
	for i, o := range t.TxOuts {
		b, err := o.Serialize()
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		out = append(out, b...)
	}
	out = append(out, util.Uint32ToBytes(t.Locktime)...)
	out = append(out, util.Uint32ToBytes(SighashAll)...)

	return new(big.Int).SetBytes(util.Hash256(out)), nil
}

// VerifyInput checks the signature of one input against the previous
// output's locking script.
func (t *Tx) VerifyInput(ctx context.Context, inputIndex int, fetcher Fetcher) (bool, error) {
	if inputIndex < 0 || inputIndex >= len(t.TxIns) {
		return false, fmt.Errorf("tx: input index %d out of range", inputIndex)
	}
	in := t.TxIns[inputIndex]

	scriptPubKey, err := in.ScriptPubKey(ctx, fetcher)
	if err != nil {
		return false, err
	}

	var redeemScript *script.Script
	if scriptPubKey.IsP2SH() {
		// The redeem script rides as the last element of the script sig.
		cmds := in.ScriptSig.Cmds
		if len(cmds) == 0 || !cmds[len(cmds)-1].IsData() {
			return false, nil
		}
		raw := cmds[len(cmds)-1].Data
		buf := util.WriteVarInt(uint64(len(raw)))
		buf = append(buf, raw...)
		redeemScript, err = script.Parse(bytes.NewReader(buf))
		if err != nil {
			return false, nil
		}
	}

	z, err := t.SigHash(ctx, inputIndex, redeemScript, fetcher)
	if err != nil {
		return false, err
	}
	combined := in.ScriptSig.Concat(scriptPubKey)
	return combined.Evaluate(z), nil
}

// Verify checks the fee and every input. UTXO liveness is the caller's
// concern.
func (t *Tx) Verify(ctx context.Context, fetcher Fetcher) (bool, error) {
	if _, err := t.Fee(ctx, fetcher); err != nil {
		if errors.Is(err, ErrNegativeFee) {
			return false, nil
		}
		return false, err
	}
	for i := range t.TxIns {
		ok, err := t.VerifyInput(ctx, i, fetcher)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// SignInput signs input i with the private key under SIGHASH_ALL, installs
// the unlocking script and re-verifies the input.
func (t *Tx) SignInput(ctx context.Context, inputIndex int, priv *ecc.PrivateKey, fetcher Fetcher) (bool, error) {
	z, err := t.SigHash(ctx, inputIndex, nil, fetcher)
	if err != nil {
		return false, err
	}

	sig := append(priv.Sign(z).DER(), SighashAll)
	sec := priv.Point.SEC(true)
	t.TxIns[inputIndex].ScriptSig = script.New(script.DataCmd(sig), script.DataCmd(sec))

	return t.VerifyInput(ctx, inputIndex, fetcher)
}

// IsCoinbase reports whether the transaction is the block subsidy claim: a
// single input spending the null outpoint.
func (t *Tx) IsCoinbase() bool {
	if len(t.TxIns) != 1 {
		return false
	}
	in := t.TxIns[0]
	var zero [32]byte
	return in.PrevTx == zero && in.PrevIndex == 0xffffffff
}

// CoinbaseHeight returns the BIP34 block height from the coinbase script
// sig, or false when the transaction is not a coinbase.
func (t *Tx) CoinbaseHeight() (uint64, bool) {
	if !t.IsCoinbase() {
		return 0, false
	}
	cmds := t.TxIns[0].ScriptSig.Cmds
	if len(cmds) == 0 || !cmds[0].IsData() {
		return 0, false
	}
	return util.LittleEndianToInt(cmds[0].Data), true
}

func (t *Tx) String() string {
	id, _ := t.ID()
	return fmt.Sprintf("tx: %s version: %d ins: %d outs: %d locktime: %d",
		id, t.Version, len(t.TxIns), len(t.TxOuts), t.Locktime)
}
