package p2p

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/djkazic/btclib-go/pkg/util"
)

// Network magics.
var (
	MainnetMagic = [4]byte{0xf9, 0xbe, 0xb4, 0xd9}
	TestnetMagic = [4]byte{0x0b, 0x11, 0x09, 0x07}
)

const commandSize = 12

var (
	// ErrBadMagic is returned when an envelope carries the wrong network
	// magic.
	ErrBadMagic = errors.New("p2p: bad network magic")

	// ErrBadChecksum is returned when the payload checksum does not match.
	ErrBadChecksum = errors.New("p2p: bad payload checksum")

	// ErrTruncatedFrame is returned when the stream ends inside an
	// envelope. The connection is unusable afterwards.
	ErrTruncatedFrame = errors.New("p2p: truncated frame")
)

// Envelope frames one wire message: magic, zero-padded command, payload
// length, checksum, payload.
type Envelope struct {
	Command string
	Payload []byte
	Testnet bool
}

// NewEnvelope wraps a command and payload for the chosen network.
func NewEnvelope(command string, payload []byte, testnet bool) *Envelope {
	return &Envelope{Command: command, Payload: payload, Testnet: testnet}
}

func (e *Envelope) magic() [4]byte {
	if e.Testnet {
		return TestnetMagic
	}
	return MainnetMagic
}

// ParseEnvelope reads one envelope from the stream, verifying magic and
// checksum.
func ParseEnvelope(r io.Reader, testnet bool) (*Envelope, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: magic: %v", ErrTruncatedFrame, err)
	}
	expected := MainnetMagic
	if testnet {
		expected = TestnetMagic
	}
	if magic != expected {
		return nil, fmt.Errorf("%w: got %x want %x", ErrBadMagic, magic, expected)
	}

	var command [commandSize]byte
	if _, err := io.ReadFull(r, command[:]); err != nil {
		return nil, fmt.Errorf("%w: command: %v", ErrTruncatedFrame, err)
	}

	var lenAndSum [8]byte
	if _, err := io.ReadFull(r, lenAndSum[:]); err != nil {
		return nil, fmt.Errorf("%w: length: %v", ErrTruncatedFrame, err)
	}
	payloadLen := binary.LittleEndian.Uint32(lenAndSum[:4])
	checksum := lenAndSum[4:8]

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrTruncatedFrame, err)
	}
	if !bytes.Equal(util.Hash256(payload)[:4], checksum) {
		return nil, ErrBadChecksum
	}

	return &Envelope{
		Command: string(bytes.TrimRight(command[:], "\x00")),
		Payload: payload,
		Testnet: testnet,
	}, nil
}

// Serialize encodes the envelope to its wire form.
func (e *Envelope) Serialize() []byte {
	magic := e.magic()
	out := make([]byte, 0, 24+len(e.Payload))
	out = append(out, magic[:]...)

	var command [commandSize]byte
	copy(command[:], e.Command)
	out = append(out, command[:]...)

	out = append(out, util.Uint32ToBytes(uint32(len(e.Payload)))...)
	out = append(out, util.Hash256(e.Payload)[:4]...)
	return append(out, e.Payload...)
}

// Stream returns a reader over the payload for message parsing.
func (e *Envelope) Stream() io.Reader {
	return bytes.NewReader(e.Payload)
}

func (e *Envelope) String() string {
	return fmt.Sprintf("%s: %x", e.Command, e.Payload)
}
