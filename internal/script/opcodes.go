package script

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"math/big"

	"golang.org/x/crypto/ripemd160"

	"github.com/djkazic/btclib-go/internal/ecc"
	"github.com/djkazic/btclib-go/pkg/util"
)

// Opcode values referenced outside the dispatch tables.
const (
	OpFalse          = 0x00
	OpPushdata1      = 0x4c
	OpPushdata2      = 0x4d
	OpPushdata4      = 0x4e
	Op1Negate        = 0x4f
	Op1              = 0x51
	Op16             = 0x60
	OpIf             = 0x63
	OpNotIf          = 0x64
	OpElse           = 0x67
	OpEndIf          = 0x68
	OpVerify         = 0x69
	OpReturn         = 0x6a
	OpToAltStack     = 0x6b
	OpFromAltStack   = 0x6c
	OpDrop           = 0x75
	OpDup            = 0x76
	OpEqual          = 0x87
	OpEqualVerify    = 0x88
	OpHash160        = 0xa9
	OpHash256        = 0xaa
	OpCheckSig       = 0xac
	OpCheckSigVerify = 0xad
	OpCheckMultiSig  = 0xae
	OpCheckMultiSigV = 0xaf
)

type stack [][]byte

func (s *stack) push(v []byte) {
	*s = append(*s, v)
}

func (s *stack) pop() ([]byte, bool) {
	if len(*s) == 0 {
		return nil, false
	}
	v := (*s)[len(*s)-1]
	*s = (*s)[:len(*s)-1]
	return v, true
}

func (s *stack) peek(depthFromTop int) ([]byte, bool) {
	idx := len(*s) - 1 - depthFromTop
	if idx < 0 {
		return nil, false
	}
	return (*s)[idx], true
}

// encodeNum encodes a script integer as minimal little-endian
// sign-magnitude bytes. Zero encodes as the empty element.
func encodeNum(n int64) []byte {
	if n == 0 {
		return []byte{}
	}

	abs := n
	negative := n < 0
	if negative {
		abs = -n
	}

	var out []byte
	for abs > 0 {
		out = append(out, byte(abs&0xff))
		abs >>= 8
	}

	if out[len(out)-1]&0x80 != 0 {
		if negative {
			out = append(out, 0x80)
		} else {
			out = append(out, 0x00)
		}
	} else if negative {
		out[len(out)-1] |= 0x80
	}
	return out
}

// decodeNum is the inverse of encodeNum.
func decodeNum(element []byte) int64 {
	if len(element) == 0 {
		return 0
	}

	// big-endian for processing
	be := util.ReverseBytes(element)
	negative := be[0]&0x80 != 0
	var n int64
	if negative {
		n = int64(be[0] & 0x7f)
	} else {
		n = int64(be[0])
	}
	for _, c := range be[1:] {
		n = n<<8 | int64(c)
	}
	if negative {
		return -n
	}
	return n
}

func boolElement(v bool) []byte {
	if v {
		return encodeNum(1)
	}
	return encodeNum(0)
}

// stackOps dispatches opcodes that only touch the main stack. Each function
// returns false to fail evaluation.
var stackOps = map[byte]func(*stack) bool{
	0x00: op0,
	0x4f: func(s *stack) bool { s.push(encodeNum(-1)); return true },
	0x61: opNop, // OP_NOP
	0x69: opVerify,
	0x6a: func(*stack) bool { return false }, // OP_RETURN
	0x6d: op2Drop,
	0x6e: op2Dup,
	0x6f: op3Dup,
	0x70: op2Over,
	0x72: op2Swap,
	0x73: opIfDup,
	0x74: opDepth,
	0x75: opDrop,
	0x76: opDup,
	0x77: opNip,
	0x78: opOver,
	0x79: opPick,
	0x7a: opRoll,
	0x7b: opRot,
	0x7c: opSwap,
	0x7d: opTuck,
	0x82: opSize,
	0x87: opEqual,
	0x88: opEqualVerify,
	0x8b: numUnaryOp(func(n int64) int64 { return n + 1 }),             // OP_1ADD
	0x8c: numUnaryOp(func(n int64) int64 { return n - 1 }),             // OP_1SUB
	0x8f: numUnaryOp(func(n int64) int64 { return -n }),                // OP_NEGATE
	0x90: numUnaryOp(abs64),                                            // OP_ABS
	0x91: opNot,                                                        // OP_NOT
	0x92: numUnaryOp(func(n int64) int64 { return b2i(n != 0) }),       // OP_0NOTEQUAL
	0x93: numBinaryOp(func(a, b int64) int64 { return a + b }),         // OP_ADD
	0x94: numBinaryOp(func(a, b int64) int64 { return a - b }),         // OP_SUB
	0x95: numBinaryOp(func(a, b int64) int64 { return a * b }),         // OP_MUL
	0x9a: numBinaryOp(func(a, b int64) int64 { return b2i(a != 0 && b != 0) }), // OP_BOOLAND
	0x9b: numBinaryOp(func(a, b int64) int64 { return b2i(a != 0 || b != 0) }), // OP_BOOLOR
	0x9c: numBinaryOp(func(a, b int64) int64 { return b2i(a == b) }),   // OP_NUMEQUAL
	0x9d: opNumEqualVerify,
	0x9e: numBinaryOp(func(a, b int64) int64 { return b2i(a != b) }),   // OP_NUMNOTEQUAL
	0x9f: numBinaryOp(func(a, b int64) int64 { return b2i(a < b) }),    // OP_LESSTHAN
	0xa0: numBinaryOp(func(a, b int64) int64 { return b2i(a > b) }),    // OP_GREATERTHAN
	0xa1: numBinaryOp(func(a, b int64) int64 { return b2i(a <= b) }),   // OP_LESSTHANOREQUAL
	0xa2: numBinaryOp(func(a, b int64) int64 { return b2i(a >= b) }),   // OP_GREATERTHANOREQUAL
	0xa3: numBinaryOp(min64),                                           // OP_MIN
	0xa4: numBinaryOp(max64),                                           // OP_MAX
	0xa5: opWithin,
	0xa6: hashOp(func(b []byte) []byte { h := ripemd160.New(); h.Write(b); return h.Sum(nil) }), // OP_RIPEMD160
	0xa7: hashOp(func(b []byte) []byte { h := sha1.Sum(b); return h[:] }),                       // OP_SHA1
	0xa8: hashOp(func(b []byte) []byte { h := sha256.Sum256(b); return h[:] }),                  // OP_SHA256
	0xa9: hashOp(util.Hash160),
	0xaa: hashOp(util.Hash256),
	0xb0: opNop, // OP_NOP1
	0xb3: opNop, // OP_NOP4
	0xb4: opNop,
	0xb5: opNop,
	0xb6: opNop,
	0xb7: opNop,
	0xb8: opNop,
	0xb9: opNop, // OP_NOP10
}

func b2i(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func op0(s *stack) bool {
	s.push(encodeNum(0))
	return true
}

func opNop(*stack) bool { return true }

func opVerify(s *stack) bool {
	element, ok := s.pop()
	if !ok {
		return false
	}
	return decodeNum(element) != 0
}

func op2Drop(s *stack) bool {
	if len(*s) < 2 {
		return false
	}
	*s = (*s)[:len(*s)-2]
	return true
}

func op2Dup(s *stack) bool {
	if len(*s) < 2 {
		return false
	}
	*s = append(*s, (*s)[len(*s)-2:]...)
	return true
}

func op3Dup(s *stack) bool {
	if len(*s) < 3 {
		return false
	}
	*s = append(*s, (*s)[len(*s)-3:]...)
	return true
}

func op2Over(s *stack) bool {
	if len(*s) < 4 {
		return false
	}
	*s = append(*s, (*s)[len(*s)-4:len(*s)-2]...)
	return true
}

func op2Swap(s *stack) bool {
	n := len(*s)
	if n < 4 {
		return false
	}
	(*s)[n-4], (*s)[n-3], (*s)[n-2], (*s)[n-1] = (*s)[n-2], (*s)[n-1], (*s)[n-4], (*s)[n-3]
	return true
}

func opIfDup(s *stack) bool {
	top, ok := s.peek(0)
	if !ok {
		return false
	}
	if decodeNum(top) != 0 {
		s.push(top)
	}
	return true
}

func opDepth(s *stack) bool {
	s.push(encodeNum(int64(len(*s))))
	return true
}

func opDrop(s *stack) bool {
	_, ok := s.pop()
	return ok
}

func opDup(s *stack) bool {
	top, ok := s.peek(0)
	if !ok {
		return false
	}
	s.push(top)
	return true
}

func opNip(s *stack) bool {
	n := len(*s)
	if n < 2 {
		return false
	}
	(*s)[n-2] = (*s)[n-1]
	*s = (*s)[:n-1]
	return true
}

func opOver(s *stack) bool {
	v, ok := s.peek(1)
	if !ok {
		return false
	}
	s.push(v)
	return true
}

func opPick(s *stack) bool {
	element, ok := s.pop()
	if !ok {
		return false
	}
	n := decodeNum(element)
	if n < 0 || int(n) >= len(*s) {
		return false
	}
	v, _ := s.peek(int(n))
	s.push(v)
	return true
}

func opRoll(s *stack) bool {
	element, ok := s.pop()
	if !ok {
		return false
	}
	n := decodeNum(element)
	if n < 0 || int(n) >= len(*s) {
		return false
	}
	idx := len(*s) - 1 - int(n)
	v := (*s)[idx]
	*s = append((*s)[:idx], (*s)[idx+1:]...)
	s.push(v)
	return true
}

func opRot(s *stack) bool {
	n := len(*s)
	if n < 3 {
		return false
	}
	(*s)[n-3], (*s)[n-2], (*s)[n-1] = (*s)[n-2], (*s)[n-1], (*s)[n-3]
	return true
}

func opSwap(s *stack) bool {
	n := len(*s)
	if n < 2 {
		return false
	}
	(*s)[n-2], (*s)[n-1] = (*s)[n-1], (*s)[n-2]
	return true
}

func opTuck(s *stack) bool {
	n := len(*s)
	if n < 2 {
		return false
	}
	top := (*s)[n-1]
	*s = append(*s, nil)
	copy((*s)[n-1:], (*s)[n-2:])
	(*s)[n-2] = top
	return true
}

func opSize(s *stack) bool {
	top, ok := s.peek(0)
	if !ok {
		return false
	}
	s.push(encodeNum(int64(len(top))))
	return true
}

func opEqual(s *stack) bool {
	a, ok := s.pop()
	if !ok {
		return false
	}
	b, ok := s.pop()
	if !ok {
		return false
	}
	s.push(boolElement(bytes.Equal(a, b)))
	return true
}

func opEqualVerify(s *stack) bool {
	return opEqual(s) && opVerify(s)
}

func opNot(s *stack) bool {
	element, ok := s.pop()
	if !ok {
		return false
	}
	s.push(boolElement(decodeNum(element) == 0))
	return true
}

func opNumEqualVerify(s *stack) bool {
	return numBinaryOp(func(a, b int64) int64 { return b2i(a == b) })(s) && opVerify(s)
}

func opWithin(s *stack) bool {
	maxEl, ok := s.pop()
	if !ok {
		return false
	}
	minEl, ok := s.pop()
	if !ok {
		return false
	}
	el, ok := s.pop()
	if !ok {
		return false
	}
	x := decodeNum(el)
	s.push(boolElement(x >= decodeNum(minEl) && x < decodeNum(maxEl)))
	return true
}

func numUnaryOp(f func(int64) int64) func(*stack) bool {
	return func(s *stack) bool {
		element, ok := s.pop()
		if !ok {
			return false
		}
		s.push(encodeNum(f(decodeNum(element))))
		return true
	}
}

func numBinaryOp(f func(a, b int64) int64) func(*stack) bool {
	return func(s *stack) bool {
		b, ok := s.pop()
		if !ok {
			return false
		}
		a, ok := s.pop()
		if !ok {
			return false
		}
		s.push(encodeNum(f(decodeNum(a), decodeNum(b))))
		return true
	}
}

func hashOp(h func([]byte) []byte) func(*stack) bool {
	return func(s *stack) bool {
		element, ok := s.pop()
		if !ok {
			return false
		}
		s.push(h(element))
		return true
	}
}

// opIf and opNotIf consume the remaining command list up to the matching
// OP_ENDIF, keeping the taken branch.
func opIf(s *stack, cmds *[]Cmd) bool {
	condition, ok := s.pop()
	if !ok {
		return false
	}
	taken, rest, ok := splitBranch(*cmds, decodeNum(condition) != 0)
	if !ok {
		return false
	}
	*cmds = append(taken, rest...)
	return true
}

func opNotIf(s *stack, cmds *[]Cmd) bool {
	condition, ok := s.pop()
	if !ok {
		return false
	}
	taken, rest, ok := splitBranch(*cmds, decodeNum(condition) == 0)
	if !ok {
		return false
	}
	*cmds = append(taken, rest...)
	return true
}

// splitBranch scans cmds for the matching OP_ENDIF at depth zero, honoring
// nesting, and returns the branch selected by takeTrue plus the commands
// after the conditional.
func splitBranch(cmds []Cmd, takeTrue bool) (branch, rest []Cmd, ok bool) {
	var trueBranch, falseBranch []Cmd
	current := &trueBranch
	depth := 0

	for i, cmd := range cmds {
		if !cmd.IsData() {
			switch cmd.Op {
			case OpIf, OpNotIf:
				depth++
			case OpElse:
				if depth == 0 {
					current = &falseBranch
					continue
				}
			case OpEndIf:
				if depth == 0 {
					if takeTrue {
						return trueBranch, cmds[i+1:], true
					}
					return falseBranch, cmds[i+1:], true
				}
				depth--
			}
		}
		*current = append(*current, cmd)
	}
	return nil, nil, false
}

func opToAltStack(s, alt *stack) bool {
	v, ok := s.pop()
	if !ok {
		return false
	}
	alt.push(v)
	return true
}

func opFromAltStack(s, alt *stack) bool {
	v, ok := alt.pop()
	if !ok {
		return false
	}
	s.push(v)
	return true
}

func opCheckSig(s *stack, z *big.Int) bool {
	secPubkey, ok := s.pop()
	if !ok {
		return false
	}
	derSig, ok := s.pop()
	if !ok || len(derSig) == 0 {
		return false
	}
	// The final byte is the sighash type, not part of the DER structure.
	point, err := ecc.ParseSEC(secPubkey)
	if err != nil {
		return false
	}
	sig, err := ecc.ParseDER(derSig[:len(derSig)-1])
	if err != nil {
		return false
	}
	s.push(boolElement(point.Verify(z, sig)))
	return true
}

func opCheckSigVerify(s *stack, z *big.Int) bool {
	return opCheckSig(s, z) && opVerify(s)
}

// opCheckMultiSig validates m-of-n signatures, popping the extra element
// required by the off-by-one consensus bug.
func opCheckMultiSig(s *stack, z *big.Int) bool {
	nEl, ok := s.pop()
	if !ok {
		return false
	}
	n := decodeNum(nEl)
	if n < 0 || int(n) > len(*s) {
		return false
	}
	secPubkeys := make([][]byte, 0, n)
	for i := int64(0); i < n; i++ {
		sec, _ := s.pop()
		secPubkeys = append(secPubkeys, sec)
	}

	mEl, ok := s.pop()
	if !ok {
		return false
	}
	m := decodeNum(mEl)
	if m < 0 || int(m) > len(*s) {
		return false
	}
	derSigs := make([][]byte, 0, m)
	for i := int64(0); i < m; i++ {
		der, _ := s.pop()
		if len(der) == 0 {
			return false
		}
		derSigs = append(derSigs, der[:len(der)-1])
	}

	// off-by-one dummy element
	if _, ok := s.pop(); !ok {
		return false
	}

	points := make([]*ecc.S256Point, 0, len(secPubkeys))
	for _, sec := range secPubkeys {
		point, err := ecc.ParseSEC(sec)
		if err != nil {
			return false
		}
		points = append(points, point)
	}

	valid := true
	for _, der := range derSigs {
		sig, err := ecc.ParseDER(der)
		if err != nil {
			return false
		}
		matched := false
		for len(points) > 0 {
			point := points[0]
			points = points[1:]
			if point.Verify(z, sig) {
				matched = true
				break
			}
		}
		if !matched {
			valid = false
			break
		}
	}
	s.push(boolElement(valid))
	return true
}

func opCheckMultiSigVerify(s *stack, z *big.Int) bool {
	return opCheckMultiSig(s, z) && opVerify(s)
}

// OpcodeName returns the canonical name of an opcode, or OP_[n] for
// unnamed values.
func OpcodeName(op byte) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "OP_[" + big.NewInt(int64(op)).String() + "]"
}

var opcodeNames = map[byte]string{
	0x00: "OP_0",
	0x4c: "OP_PUSHDATA1",
	0x4d: "OP_PUSHDATA2",
	0x4e: "OP_PUSHDATA4",
	0x4f: "OP_1NEGATE",
	0x51: "OP_1",
	0x52: "OP_2",
	0x53: "OP_3",
	0x54: "OP_4",
	0x55: "OP_5",
	0x56: "OP_6",
	0x57: "OP_7",
	0x58: "OP_8",
	0x59: "OP_9",
	0x5a: "OP_10",
	0x5b: "OP_11",
	0x5c: "OP_12",
	0x5d: "OP_13",
	0x5e: "OP_14",
	0x5f: "OP_15",
	0x60: "OP_16",
	0x61: "OP_NOP",
	0x63: "OP_IF",
	0x64: "OP_NOTIF",
	0x67: "OP_ELSE",
	0x68: "OP_ENDIF",
	0x69: "OP_VERIFY",
	0x6a: "OP_RETURN",
	0x6b: "OP_TOALTSTACK",
	0x6c: "OP_FROMALTSTACK",
	0x6d: "OP_2DROP",
	0x6e: "OP_2DUP",
	0x6f: "OP_3DUP",
	0x70: "OP_2OVER",
	0x72: "OP_2SWAP",
	0x73: "OP_IFDUP",
	0x74: "OP_DEPTH",
	0x75: "OP_DROP",
	0x76: "OP_DUP",
	0x77: "OP_NIP",
	0x78: "OP_OVER",
	0x79: "OP_PICK",
	0x7a: "OP_ROLL",
	0x7b: "OP_ROT",
	0x7c: "OP_SWAP",
	0x7d: "OP_TUCK",
	0x82: "OP_SIZE",
	0x87: "OP_EQUAL",
	0x88: "OP_EQUALVERIFY",
	0x8b: "OP_1ADD",
	0x8c: "OP_1SUB",
	0x8f: "OP_NEGATE",
	0x90: "OP_ABS",
	0x91: "OP_NOT",
	0x92: "OP_0NOTEQUAL",
	0x93: "OP_ADD",
	0x94: "OP_SUB",
	0x95: "OP_MUL",
	0x9a: "OP_BOOLAND",
	0x9b: "OP_BOOLOR",
	0x9c: "OP_NUMEQUAL",
	0x9d: "OP_NUMEQUALVERIFY",
	0x9e: "OP_NUMNOTEQUAL",
	0x9f: "OP_LESSTHAN",
	0xa0: "OP_GREATERTHAN",
	0xa1: "OP_LESSTHANOREQUAL",
	0xa2: "OP_GREATERTHANOREQUAL",
	0xa3: "OP_MIN",
	0xa4: "OP_MAX",
	0xa5: "OP_WITHIN",
	0xa6: "OP_RIPEMD160",
	0xa7: "OP_SHA1",
	0xa8: "OP_SHA256",
	0xa9: "OP_HASH160",
	0xaa: "OP_HASH256",
	0xac: "OP_CHECKSIG",
	0xad: "OP_CHECKSIGVERIFY",
	0xae: "OP_CHECKMULTISIG",
	0xaf: "OP_CHECKMULTISIGVERIFY",
	0xb1: "OP_CHECKLOCKTIMEVERIFY",
	0xb2: "OP_CHECKSEQUENCEVERIFY",
}
