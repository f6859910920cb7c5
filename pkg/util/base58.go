package util

import (
	"fmt"
	"math/big"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ErrAddressChecksum is returned when a Base58Check string fails its
// trailing-four-byte checksum.
var ErrAddressChecksum = fmt.Errorf("base58: address checksum mismatch")

// EncodeBase58 encodes bytes as a Base58 string, preserving each leading
// zero byte as '1'.
func EncodeBase58(b []byte) string {
	zeros := 0
	for _, c := range b {
		if c != 0 {
			break
		}
		zeros++
	}

	num := new(big.Int).SetBytes(b)
	radix := big.NewInt(58)
	mod := new(big.Int)

	var out []byte
	for num.Sign() > 0 {
		num.DivMod(num, radix, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for i := 0; i < zeros; i++ {
		out = append(out, '1')
	}

	return string(ReverseBytes(out))
}

// EncodeBase58Checksum appends the first 4 bytes of hash256(b) and encodes
// the result as Base58.
func EncodeBase58Checksum(b []byte) string {
	checksum := Hash256(b)[:4]
	payload := make([]byte, 0, len(b)+4)
	payload = append(payload, b...)
	payload = append(payload, checksum...)
	return EncodeBase58(payload)
}

// DecodeBase58Address decodes a 25-byte Base58Check address (version byte,
// 20-byte hash160, 4-byte checksum) and returns the hash160 payload.
func DecodeBase58Address(s string) ([]byte, error) {
	num := new(big.Int)
	radix := big.NewInt(58)
	for _, c := range s {
		idx := indexOfBase58(byte(c))
		if idx < 0 {
			return nil, fmt.Errorf("base58: invalid character %q", c)
		}
		num.Mul(num, radix)
		num.Add(num, big.NewInt(int64(idx)))
	}

	// version (1) + hash160 (20) + checksum (4)
	combined := make([]byte, 25)
	num.FillBytes(combined)

	checksum := combined[21:]
	expected := Hash256(combined[:21])[:4]
	for i := range checksum {
		if checksum[i] != expected[i] {
			return nil, ErrAddressChecksum
		}
	}
	return combined[1:21], nil
}

func indexOfBase58(c byte) int {
	for i := 0; i < len(base58Alphabet); i++ {
		if base58Alphabet[i] == c {
			return i
		}
	}
	return -1
}

// H160ToP2PKHAddress encodes a hash160 as a pay-to-pubkey-hash address.
func H160ToP2PKHAddress(h160 []byte, testnet bool) string {
	prefix := byte(0x00)
	if testnet {
		prefix = 0x6f
	}
	return EncodeBase58Checksum(append([]byte{prefix}, h160...))
}

// H160ToP2SHAddress encodes a hash160 as a pay-to-script-hash address.
func H160ToP2SHAddress(h160 []byte, testnet bool) string {
	prefix := byte(0x05)
	if testnet {
		prefix = 0xc4
	}
	return EncodeBase58Checksum(append([]byte{prefix}, h160...))
}
