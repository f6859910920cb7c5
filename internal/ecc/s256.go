package ecc

import (
	"fmt"
	"math/big"

	"github.com/djkazic/btclib-go/pkg/util"
)

// secp256k1 domain parameters.
var (
	// P is the field prime 2^256 - 2^32 - 977.
	P = mustHexInt("fffffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f")

	// N is the order of the generator point.
	N = mustHexInt("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")

	// Gx, Gy are the coordinates of the generator point G.
	Gx = mustHexInt("79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	Gy = mustHexInt("483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8")

	// halfN is used for low-S normalization (integer N/2).
	halfN = new(big.Int).Rsh(N, 1)

	curveA = &FieldElement{Num: big.NewInt(0), Prime: P}
	curveB = &FieldElement{Num: big.NewInt(7), Prime: P}

	// G is the generator of the secp256k1 group.
	G = mustS256Point(Gx, Gy)
)

func mustHexInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("ecc: bad hex constant " + s)
	}
	return n
}

func mustS256Point(x, y *big.Int) *S256Point {
	p, err := NewS256Point(x, y)
	if err != nil {
		panic(err)
	}
	return p
}

// S256Point is a point on the secp256k1 curve y^2 = x^3 + 7.
type S256Point struct {
	point *Point
}

// NewS256Point creates a secp256k1 point from affine coordinates.
func NewS256Point(x, y *big.Int) (*S256Point, error) {
	fx, err := NewFieldElement(x, P)
	if err != nil {
		return nil, err
	}
	fy, err := NewFieldElement(y, P)
	if err != nil {
		return nil, err
	}
	p, err := NewPoint(fx, fy, curveA, curveB)
	if err != nil {
		return nil, err
	}
	return &S256Point{point: p}, nil
}

// S256Infinity returns the secp256k1 group identity.
func S256Infinity() *S256Point {
	return &S256Point{point: &Point{A: curveA, B: curveB}}
}

// X returns the affine x coordinate, or nil for the point at infinity.
func (p *S256Point) X() *big.Int {
	if p.point.IsInfinity() {
		return nil
	}
	return p.point.X.Num
}

// Y returns the affine y coordinate, or nil for the point at infinity.
func (p *S256Point) Y() *big.Int {
	if p.point.IsInfinity() {
		return nil
	}
	return p.point.Y.Num
}

// IsInfinity reports whether the point is the group identity.
func (p *S256Point) IsInfinity() bool {
	return p.point.IsInfinity()
}

// Eq reports point equality.
func (p *S256Point) Eq(other *S256Point) bool {
	return p.point.Eq(other.point)
}

// Add returns p + other.
func (p *S256Point) Add(other *S256Point) *S256Point {
	return &S256Point{point: p.point.add(other.point)}
}

// Mul returns coef * p. The scalar is reduced modulo the group order first.
func (p *S256Point) Mul(coef *big.Int) *S256Point {
	c := new(big.Int).Mod(coef, N)
	return &S256Point{point: p.point.Mul(c)}
}

// Verify checks an ECDSA signature over the message hash z against this
// public key. Malformed-but-parseable signatures simply verify false.
func (p *S256Point) Verify(z *big.Int, sig *Signature) bool {
	one := big.NewInt(1)
	if sig.R.Cmp(one) < 0 || sig.R.Cmp(N) >= 0 {
		return false
	}
	if sig.S.Cmp(one) < 0 || sig.S.Cmp(N) >= 0 {
		return false
	}

	// sInv = s^(n-2) mod n
	sInv := new(big.Int).Exp(sig.S, new(big.Int).Sub(N, big.NewInt(2)), N)
	u := new(big.Int).Mul(z, sInv)
	u.Mod(u, N)
	v := new(big.Int).Mul(sig.R, sInv)
	v.Mod(v, N)

	total := G.Mul(u).Add(p.Mul(v))
	if total.IsInfinity() {
		return false
	}
	rx := new(big.Int).Mod(total.X(), N)
	return rx.Cmp(sig.R) == 0
}

// SEC serializes the point in SEC format, compressed (33 bytes) or
// uncompressed (65 bytes).
func (p *S256Point) SEC(compressed bool) []byte {
	x := make([]byte, 32)
	p.X().FillBytes(x)
	if !compressed {
		y := make([]byte, 32)
		p.Y().FillBytes(y)
		out := make([]byte, 0, 65)
		out = append(out, 0x04)
		out = append(out, x...)
		return append(out, y...)
	}

	prefix := byte(0x02)
	if p.Y().Bit(0) == 1 {
		prefix = 0x03
	}
	out := make([]byte, 0, 33)
	out = append(out, prefix)
	return append(out, x...)
}

// ParseSEC deserializes a SEC-encoded public key, decompressing if needed.
func ParseSEC(sec []byte) (*S256Point, error) {
	if len(sec) == 0 {
		return nil, fmt.Errorf("%w: empty SEC data", ErrValueOutOfRange)
	}

	switch sec[0] {
	case 0x04:
		if len(sec) != 65 {
			return nil, fmt.Errorf("%w: uncompressed SEC must be 65 bytes, got %d", ErrValueOutOfRange, len(sec))
		}
		x := new(big.Int).SetBytes(sec[1:33])
		y := new(big.Int).SetBytes(sec[33:65])
		return NewS256Point(x, y)

	case 0x02, 0x03:
		if len(sec) != 33 {
			return nil, fmt.Errorf("%w: compressed SEC must be 33 bytes, got %d", ErrValueOutOfRange, len(sec))
		}
		x, err := NewFieldElement(new(big.Int).SetBytes(sec[1:33]), P)
		if err != nil {
			return nil, err
		}
		// y^2 = x^3 + 7
		alpha, err := x.Pow(big.NewInt(3)).Add(curveB)
		if err != nil {
			return nil, err
		}
		beta := sqrt(alpha)

		// Pick the root whose parity matches the prefix.
		wantOdd := sec[0] == 0x03
		y := beta.Num
		if (y.Bit(0) == 1) != wantOdd {
			y = new(big.Int).Sub(P, y)
		}
		return NewS256Point(x.Num, y)

	default:
		return nil, fmt.Errorf("%w: unknown SEC prefix 0x%02x", ErrValueOutOfRange, sec[0])
	}
}

// sqrt computes a square root in the secp256k1 field as v^((p+1)/4), valid
// because p = 3 mod 4.
func sqrt(v *FieldElement) *FieldElement {
	exp := new(big.Int).Add(P, big.NewInt(1))
	exp.Rsh(exp, 2)
	return v.Pow(exp)
}

// Hash160 returns RIPEMD160(SHA256(sec)) of the point's SEC encoding.
func (p *S256Point) Hash160(compressed bool) []byte {
	return util.Hash160(p.SEC(compressed))
}

// Address derives the Base58Check P2PKH address for this public key.
func (p *S256Point) Address(compressed, testnet bool) string {
	return util.H160ToP2PKHAddress(p.Hash160(compressed), testnet)
}

func (p *S256Point) String() string {
	if p.IsInfinity() {
		return "S256Point(infinity)"
	}
	return fmt.Sprintf("S256Point(%064x, %064x)", p.X(), p.Y())
}
