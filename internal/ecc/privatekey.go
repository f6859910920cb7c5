package ecc

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/djkazic/btclib-go/pkg/util"
)

// PrivateKey is a secp256k1 secret scalar with its cached public point.
type PrivateKey struct {
	secret *big.Int

	// Point is the public key secret*G.
	Point *S256Point
}

// NewPrivateKey creates a private key from a secret in [1, N-1].
func NewPrivateKey(secret *big.Int) (*PrivateKey, error) {
	if secret.Sign() <= 0 || secret.Cmp(N) >= 0 {
		return nil, fmt.Errorf("%w: secret not in [1, n-1]", ErrValueOutOfRange)
	}
	return &PrivateKey{
		secret: new(big.Int).Set(secret),
		Point:  G.Mul(secret),
	}, nil
}

// Sign produces a low-S ECDSA signature over the message hash z using a
// deterministic RFC6979 nonce.
func (pk *PrivateKey) Sign(z *big.Int) *Signature {
	k := pk.deterministicK(z)
	r := new(big.Int).Mod(G.Mul(k).X(), N)

	kInv := new(big.Int).Exp(k, new(big.Int).Sub(N, big.NewInt(2)), N)
	s := new(big.Int).Mul(r, pk.secret)
	s.Add(s, z)
	s.Mul(s, kInv)
	s.Mod(s, N)

	if s.Cmp(halfN) > 0 {
		s.Sub(N, s)
	}
	return &Signature{R: r, S: s}
}

// deterministicK derives the signing nonce from (secret, z) with the
// HMAC-SHA256 construction of RFC6979. Candidates outside [1, n) are
// rejected and the generator is stepped.
func (pk *PrivateKey) deterministicK(z *big.Int) *big.Int {
	k := make([]byte, 32)
	v := make([]byte, 32)
	for i := range v {
		v[i] = 0x01
	}

	zv := new(big.Int).Set(z)
	if zv.Cmp(N) > 0 {
		zv.Sub(zv, N)
	}
	zBytes := make([]byte, 32)
	zv.FillBytes(zBytes)
	secretBytes := make([]byte, 32)
	pk.secret.FillBytes(secretBytes)

	mac := func(key []byte, parts ...[]byte) []byte {
		m := hmac.New(sha256.New, key)
		for _, p := range parts {
			m.Write(p)
		}
		return m.Sum(nil)
	}

	k = mac(k, v, []byte{0x00}, secretBytes, zBytes)
	v = mac(k, v)
	k = mac(k, v, []byte{0x01}, secretBytes, zBytes)
	v = mac(k, v)

	for {
		v = mac(k, v)
		candidate := new(big.Int).SetBytes(v)
		if candidate.Sign() > 0 && candidate.Cmp(N) < 0 {
			return candidate
		}
		k = mac(k, v, []byte{0x00})
		v = mac(k, v)
	}
}

// WIF exports the secret in wallet import format.
func (pk *PrivateKey) WIF(compressed, testnet bool) string {
	prefix := byte(0x80)
	if testnet {
		prefix = 0xef
	}

	payload := make([]byte, 0, 34)
	payload = append(payload, prefix)
	secretBytes := make([]byte, 32)
	pk.secret.FillBytes(secretBytes)
	payload = append(payload, secretBytes...)
	if compressed {
		payload = append(payload, 0x01)
	}
	return util.EncodeBase58Checksum(payload)
}

// Hex returns the secret as 64 hex digits.
func (pk *PrivateKey) Hex() string {
	return fmt.Sprintf("%064x", pk.secret)
}
