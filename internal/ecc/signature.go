package ecc

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrMalformedSignature is returned when DER signature bytes violate the
// expected structure.
var ErrMalformedSignature = errors.New("ecc: malformed DER signature")

// Signature is an ECDSA signature pair.
type Signature struct {
	R *big.Int
	S *big.Int
}

// DER serializes the signature in DER format: a SEQUENCE of two INTEGERs,
// each encoded minimally big-endian with a 0x00 pad when the high bit is set.
func (sig *Signature) DER() []byte {
	rBin := derInt(sig.R)
	sBin := derInt(sig.S)

	out := make([]byte, 0, len(rBin)+len(sBin)+2)
	out = append(out, 0x30, byte(len(rBin)+len(sBin)))
	out = append(out, rBin...)
	return append(out, sBin...)
}

func derInt(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) == 0 {
		b = []byte{0x00}
	}
	if b[0]&0x80 != 0 {
		b = append([]byte{0x00}, b...)
	}
	out := make([]byte, 0, len(b)+2)
	out = append(out, 0x02, byte(len(b)))
	return append(out, b...)
}

// ParseDER is the strict inverse of DER.
func ParseDER(der []byte) (*Signature, error) {
	if len(der) < 6 {
		return nil, fmt.Errorf("%w: too short", ErrMalformedSignature)
	}
	if der[0] != 0x30 {
		return nil, fmt.Errorf("%w: bad sequence tag 0x%02x", ErrMalformedSignature, der[0])
	}
	if int(der[1]) != len(der)-2 {
		return nil, fmt.Errorf("%w: bad sequence length", ErrMalformedSignature)
	}

	r, rest, err := parseDERInt(der[2:])
	if err != nil {
		return nil, err
	}
	s, rest, err := parseDERInt(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes", ErrMalformedSignature)
	}
	return &Signature{R: r, S: s}, nil
}

func parseDERInt(b []byte) (*big.Int, []byte, error) {
	if len(b) < 2 {
		return nil, nil, fmt.Errorf("%w: truncated integer", ErrMalformedSignature)
	}
	if b[0] != 0x02 {
		return nil, nil, fmt.Errorf("%w: bad integer tag 0x%02x", ErrMalformedSignature, b[0])
	}
	length := int(b[1])
	if length == 0 || len(b) < 2+length {
		return nil, nil, fmt.Errorf("%w: bad integer length %d", ErrMalformedSignature, length)
	}
	return new(big.Int).SetBytes(b[2 : 2+length]), b[2+length:], nil
}

func (sig *Signature) String() string {
	return fmt.Sprintf("Signature(%x, %x)", sig.R, sig.S)
}
