package util

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"golang.org/x/crypto/ripemd160"
)

// TwoWeeks is the length of a difficulty epoch in seconds.
const TwoWeeks = 60 * 60 * 24 * 14

// MaxTargetBits is the compact encoding of the highest allowed proof-of-work
// target (difficulty 1).
const MaxTargetBits = 0x1d00ffff

// MaxTarget returns the highest allowed proof-of-work target.
func MaxTarget() *big.Int {
	return CompactToTarget(MaxTargetBits)
}

// DoubleSHA256 computes SHA256(SHA256(data)), used extensively in Bitcoin.
func DoubleSHA256(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// Hash256 is DoubleSHA256 returning a slice.
func Hash256(data []byte) []byte {
	h := DoubleSHA256(data)
	return h[:]
}

// Hash160 computes RIPEMD160(SHA256(data)), the 20-byte hash behind P2PKH
// and P2SH addresses.
func Hash160(data []byte) []byte {
	first := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(first[:])
	return r.Sum(nil)
}

// ReverseBytes returns a new slice with bytes reversed.
func ReverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// HashToHex returns a reversed hex string of a hash (Bitcoin display order).
func HashToHex(hash [32]byte) string {
	return hex.EncodeToString(ReverseBytes(hash[:]))
}

// HexToHash converts a display-order hex string back to a [32]byte hash.
func HexToHash(s string) ([32]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	if len(b) != 32 {
		return [32]byte{}, hex.ErrLength
	}
	var h [32]byte
	copy(h[:], ReverseBytes(b))
	return h, nil
}

// CompactToTarget converts a Bitcoin compact (nBits) representation to a big.Int target.
func CompactToTarget(compact uint32) *big.Int {
	exponent := compact >> 24
	mantissa := compact & 0x007fffff

	target := new(big.Int).SetUint64(uint64(mantissa))

	if exponent <= 3 {
		target.Rsh(target, uint(8*(3-exponent)))
	} else {
		target.Lsh(target, uint(8*(exponent-3)))
	}

	// Negative bit
	if compact&0x00800000 != 0 {
		target.Neg(target)
	}

	return target
}

// TargetToCompact converts a big.Int target to Bitcoin compact (nBits) representation.
func TargetToCompact(target *big.Int) uint32 {
	if target.Sign() == 0 {
		return 0
	}

	isNegative := target.Sign() < 0
	absTarget := new(big.Int).Abs(target)

	b := absTarget.Bytes()
	size := uint32(len(b))

	var mantissa uint32
	if size <= 3 {
		for i, v := range b {
			mantissa |= uint32(v) << uint(8*(2-i))
		}
	} else {
		mantissa = (uint32(b[0]) << 16) | (uint32(b[1]) << 8) | uint32(b[2])
	}

	// If the high bit of mantissa is set, shift right to avoid being interpreted as negative
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		size++
	}

	compact := (size << 24) | (mantissa & 0x007fffff)

	if isNegative {
		compact |= 0x00800000
	}

	return compact
}

// CalculateNewBits computes the compact target for the next 2016-block epoch
// from the previous epoch's bits and its measured duration in seconds. The
// duration is clamped to [TwoWeeks/4, TwoWeeks*4] and the result never drops
// below difficulty 1.
func CalculateNewBits(prevBits uint32, timeDifferential int64) uint32 {
	if timeDifferential > TwoWeeks*4 {
		timeDifferential = TwoWeeks * 4
	}
	if timeDifferential < TwoWeeks/4 {
		timeDifferential = TwoWeeks / 4
	}

	newTarget := CompactToTarget(prevBits)
	newTarget.Mul(newTarget, big.NewInt(timeDifferential))
	newTarget.Div(newTarget, big.NewInt(TwoWeeks))

	maxTarget := MaxTarget()
	if newTarget.Cmp(maxTarget) > 0 {
		newTarget = maxTarget
	}

	return TargetToCompact(newTarget)
}

// TargetToDifficulty converts a target to difficulty relative to the given max target.
func TargetToDifficulty(target, maxTarget *big.Int) float64 {
	if target.Sign() == 0 {
		return 0
	}
	// difficulty = maxTarget / target
	maxFloat := new(big.Float).SetInt(maxTarget)
	targetFloat := new(big.Float).SetInt(target)
	diff := new(big.Float).Quo(maxFloat, targetFloat)
	result, _ := diff.Float64()
	return result
}

// HashMeetsTarget checks if a hash (as little-endian 32 bytes) is below target.
func HashMeetsTarget(hash [32]byte, target *big.Int) bool {
	// Bitcoin block hashes are compared as little-endian 256-bit integers.
	// Convert to big-endian for big.Int comparison.
	reversed := ReverseBytes(hash[:])
	hashInt := new(big.Int).SetBytes(reversed)
	return hashInt.Cmp(target) < 0
}
