package util

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
)

// HexToBytes decodes a hex string to bytes, returning an error if invalid.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// BytesToHex encodes bytes to a hex string.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// WriteVarInt writes a Bitcoin-style variable-length integer to a byte slice.
// Returns the bytes written.
func WriteVarInt(val uint64) []byte {
	switch {
	case val < 0xfd:
		return []byte{byte(val)}
	case val <= 0xffff:
		b := make([]byte, 3)
		b[0] = 0xfd
		binary.LittleEndian.PutUint16(b[1:], uint16(val))
		return b
	case val <= 0xffffffff:
		b := make([]byte, 5)
		b[0] = 0xfe
		binary.LittleEndian.PutUint32(b[1:], uint32(val))
		return b
	default:
		b := make([]byte, 9)
		b[0] = 0xff
		binary.LittleEndian.PutUint64(b[1:], val)
		return b
	}
}

// ReadVarInt reads a Bitcoin-style variable-length integer from a byte slice.
// Returns the value and the number of bytes consumed.
func ReadVarInt(data []byte) (uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("empty data")
	}

	switch {
	case data[0] < 0xfd:
		return uint64(data[0]), 1, nil
	case data[0] == 0xfd:
		if len(data) < 3 {
			return 0, 0, fmt.Errorf("insufficient data for uint16 varint")
		}
		return uint64(binary.LittleEndian.Uint16(data[1:3])), 3, nil
	case data[0] == 0xfe:
		if len(data) < 5 {
			return 0, 0, fmt.Errorf("insufficient data for uint32 varint")
		}
		return uint64(binary.LittleEndian.Uint32(data[1:5])), 5, nil
	default:
		if len(data) < 9 {
			return 0, 0, fmt.Errorf("insufficient data for uint64 varint")
		}
		return binary.LittleEndian.Uint64(data[1:9]), 9, nil
	}
}

// ReadVarIntFrom reads a Bitcoin-style variable-length integer from a stream.
func ReadVarIntFrom(r io.Reader) (uint64, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return 0, err
	}

	var rest []byte
	switch first[0] {
	case 0xfd:
		rest = make([]byte, 2)
	case 0xfe:
		rest = make([]byte, 4)
	case 0xff:
		rest = make([]byte, 8)
	default:
		return uint64(first[0]), nil
	}
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, fmt.Errorf("truncated varint: %w", err)
	}

	switch len(rest) {
	case 2:
		return uint64(binary.LittleEndian.Uint16(rest)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(rest)), nil
	default:
		return binary.LittleEndian.Uint64(rest), nil
	}
}

// WriteScriptLen writes a Bitcoin script push-length prefix (direct push or
// OP_PUSHDATA1/2/4, whichever is minimal).
func WriteScriptLen(length int) []byte {
	switch {
	case length < 0x4c:
		return []byte{byte(length)}
	case length <= 0xff:
		return []byte{0x4c, byte(length)}
	case length <= 0xffff:
		b := make([]byte, 3)
		b[0] = 0x4d
		binary.LittleEndian.PutUint16(b[1:], uint16(length))
		return b
	default:
		b := make([]byte, 5)
		b[0] = 0x4e
		binary.LittleEndian.PutUint32(b[1:], uint32(length))
		return b
	}
}

// Uint32ToBytes converts a uint32 to 4-byte little-endian.
func Uint32ToBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// Uint64ToBytes converts a uint64 to 8-byte little-endian.
func Uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// LittleEndianToInt interprets up to 8 little-endian bytes as a uint64.
func LittleEndianToInt(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// IntToLittleEndian encodes v as length little-endian bytes.
func IntToLittleEndian(v uint64, length int) []byte {
	b := make([]byte, length)
	for i := 0; i < length; i++ {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
