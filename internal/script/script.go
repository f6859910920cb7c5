package script

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/djkazic/btclib-go/pkg/util"
)

// MaxElementSize is the largest data element a script may carry.
const MaxElementSize = 520

var (
	// ErrParse is returned when script bytes violate the declared length.
	ErrParse = errors.New("script: parse failed")

	// ErrElementTooLarge is returned when a data element exceeds
	// MaxElementSize.
	ErrElementTooLarge = errors.New("script: element exceeds 520 bytes")
)

// Cmd is one script command: an opcode when Data is nil, a data element
// otherwise.
type Cmd struct {
	Op   byte
	Data []byte
}

// OpCmd wraps an opcode as a command.
func OpCmd(op byte) Cmd {
	return Cmd{Op: op}
}

// DataCmd wraps a data element as a command.
func DataCmd(data []byte) Cmd {
	return Cmd{Data: data}
}

// IsData reports whether the command is a data element.
func (c Cmd) IsData() bool {
	return c.Data != nil
}

// Script is an ordered list of commands.
type Script struct {
	Cmds []Cmd
}

// New creates a script from commands.
func New(cmds ...Cmd) *Script {
	return &Script{Cmds: cmds}
}

// Concat returns a new script with other's commands appended, the form a
// combined scriptSig+scriptPubkey takes before evaluation.
func (sc *Script) Concat(other *Script) *Script {
	cmds := make([]Cmd, 0, len(sc.Cmds)+len(other.Cmds))
	cmds = append(cmds, sc.Cmds...)
	cmds = append(cmds, other.Cmds...)
	return &Script{Cmds: cmds}
}

// Parse reads a varint length followed by exactly that many bytes of script
// commands from r.
func Parse(r io.Reader) (*Script, error) {
	length, err := util.ReadVarIntFrom(r)
	if err != nil {
		return nil, fmt.Errorf("%w: length prefix: %v", ErrParse, err)
	}

	var cmds []Cmd
	count := uint64(0)
	readData := func(n uint64) ([]byte, error) {
		if n > MaxElementSize {
			return nil, ErrElementTooLarge
		}
		if count+n > length {
			return nil, fmt.Errorf("%w: element overruns declared length", ErrParse)
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("%w: truncated element: %v", ErrParse, err)
		}
		count += n
		return data, nil
	}

	for count < length {
		var current [1]byte
		if _, err := io.ReadFull(r, current[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated script: %v", ErrParse, err)
		}
		count++
		op := current[0]

		switch {
		case op >= 1 && op <= 75:
			data, err := readData(uint64(op))
			if err != nil {
				return nil, err
			}
			cmds = append(cmds, DataCmd(data))

		case op == OpPushdata1:
			lenBuf, err := readData(1)
			if err != nil {
				return nil, err
			}
			data, err := readData(uint64(lenBuf[0]))
			if err != nil {
				return nil, err
			}
			cmds = append(cmds, DataCmd(data))

		case op == OpPushdata2:
			lenBuf, err := readData(2)
			if err != nil {
				return nil, err
			}
			data, err := readData(uint64(binary.LittleEndian.Uint16(lenBuf)))
			if err != nil {
				return nil, err
			}
			cmds = append(cmds, DataCmd(data))

		case op == OpPushdata4:
			lenBuf, err := readData(4)
			if err != nil {
				return nil, err
			}
			data, err := readData(uint64(binary.LittleEndian.Uint32(lenBuf)))
			if err != nil {
				return nil, err
			}
			cmds = append(cmds, DataCmd(data))

		default:
			cmds = append(cmds, OpCmd(op))
		}
	}
	if count != length {
		return nil, fmt.Errorf("%w: consumed %d of %d declared bytes", ErrParse, count, length)
	}
	return &Script{Cmds: cmds}, nil
}

// RawSerialize encodes the commands without the varint length prefix, using
// the minimal push encoding for each element.
func (sc *Script) RawSerialize() ([]byte, error) {
	var out []byte
	for _, cmd := range sc.Cmds {
		if !cmd.IsData() {
			out = append(out, cmd.Op)
			continue
		}
		if len(cmd.Data) > MaxElementSize {
			return nil, ErrElementTooLarge
		}
		out = append(out, util.WriteScriptLen(len(cmd.Data))...)
		out = append(out, cmd.Data...)
	}
	return out, nil
}

// Serialize encodes the script prefixed with its varint length.
func (sc *Script) Serialize() ([]byte, error) {
	raw, err := sc.RawSerialize()
	if err != nil {
		return nil, err
	}
	out := util.WriteVarInt(uint64(len(raw)))
	return append(out, raw...), nil
}

// Evaluate runs the script against the signature hash z. It returns true
// when the script completes with a truthy top element.
func (sc *Script) Evaluate(z *big.Int) bool {
	cmds := make([]Cmd, len(sc.Cmds))
	copy(cmds, sc.Cmds)

	var mainStack, altStack stack

	for len(cmds) > 0 {
		cmd := cmds[0]
		cmds = cmds[1:]

		if cmd.IsData() {
			mainStack.push(cmd.Data)

			// BIP16: a redeem script pushed in front of the canonical
			// P2SH tail commits to its hash, then runs.
			if isP2SHTail(cmds) {
				if !runP2SHTail(&mainStack, cmds, cmd.Data) {
					return false
				}
				redeem, err := parseRedeemScript(cmd.Data)
				if err != nil {
					return false
				}
				cmds = redeem.Cmds
			}
			continue
		}

		op := cmd.Op
		switch {
		case op >= Op1 && op <= Op16:
			mainStack.push(encodeNum(int64(op) - 0x50))

		case op == OpIf:
			if !opIf(&mainStack, &cmds) {
				return false
			}
		case op == OpNotIf:
			if !opNotIf(&mainStack, &cmds) {
				return false
			}

		case op == OpToAltStack:
			if !opToAltStack(&mainStack, &altStack) {
				return false
			}
		case op == OpFromAltStack:
			if !opFromAltStack(&mainStack, &altStack) {
				return false
			}

		case op == OpCheckSig:
			if !opCheckSig(&mainStack, z) {
				return false
			}
		case op == OpCheckSigVerify:
			if !opCheckSigVerify(&mainStack, z) {
				return false
			}
		case op == OpCheckMultiSig:
			if !opCheckMultiSig(&mainStack, z) {
				return false
			}
		case op == OpCheckMultiSigV:
			if !opCheckMultiSigVerify(&mainStack, z) {
				return false
			}

		default:
			fn, ok := stackOps[op]
			if !ok {
				return false
			}
			if !fn(&mainStack) {
				return false
			}
		}
	}

	if len(mainStack) == 0 {
		return false
	}
	return len(mainStack[len(mainStack)-1]) != 0
}

// isP2SHTail reports whether cmds is exactly
// [OP_HASH160, <20-byte hash>, OP_EQUAL].
func isP2SHTail(cmds []Cmd) bool {
	return len(cmds) == 3 &&
		!cmds[0].IsData() && cmds[0].Op == OpHash160 &&
		cmds[1].IsData() && len(cmds[1].Data) == 20 &&
		!cmds[2].IsData() && cmds[2].Op == OpEqual
}

// runP2SHTail executes the hash-commit tail against the pushed redeem script
// bytes: hash160, compare to the committed hash, verify.
func runP2SHTail(s *stack, tail []Cmd, redeemBytes []byte) bool {
	if _, ok := s.pop(); !ok { // the redeem script push itself
		return false
	}
	s.push(util.Hash160(redeemBytes))
	s.push(tail[1].Data)
	return opEqual(s) && opVerify(s)
}

// parseRedeemScript reparses raw redeem-script bytes by prefixing a varint
// length.
func parseRedeemScript(raw []byte) (*Script, error) {
	buf := util.WriteVarInt(uint64(len(raw)))
	buf = append(buf, raw...)
	return Parse(bytes.NewReader(buf))
}

// IsP2PKH reports whether the script matches the pay-to-pubkey-hash
// template OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG.
func (sc *Script) IsP2PKH() bool {
	c := sc.Cmds
	return len(c) == 5 &&
		!c[0].IsData() && c[0].Op == OpDup &&
		!c[1].IsData() && c[1].Op == OpHash160 &&
		c[2].IsData() && len(c[2].Data) == 20 &&
		!c[3].IsData() && c[3].Op == OpEqualVerify &&
		!c[4].IsData() && c[4].Op == OpCheckSig
}

// IsP2SH reports whether the script matches the pay-to-script-hash template
// OP_HASH160 <20 bytes> OP_EQUAL.
func (sc *Script) IsP2SH() bool {
	c := sc.Cmds
	return len(c) == 3 &&
		!c[0].IsData() && c[0].Op == OpHash160 &&
		c[1].IsData() && len(c[1].Data) == 20 &&
		!c[2].IsData() && c[2].Op == OpEqual
}

// NewP2PKH builds the standard pay-to-pubkey-hash locking script for a
// 20-byte hash160.
func NewP2PKH(h160 []byte) *Script {
	return New(
		OpCmd(OpDup),
		OpCmd(OpHash160),
		DataCmd(h160),
		OpCmd(OpEqualVerify),
		OpCmd(OpCheckSig),
	)
}

func (sc *Script) String() string {
	parts := make([]string, 0, len(sc.Cmds))
	for _, cmd := range sc.Cmds {
		if cmd.IsData() {
			parts = append(parts, fmt.Sprintf("%x", cmd.Data))
		} else {
			parts = append(parts, OpcodeName(cmd.Op))
		}
	}
	return strings.Join(parts, " ")
}
