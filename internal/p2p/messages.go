package p2p

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/djkazic/btclib-go/internal/block"
	"github.com/djkazic/btclib-go/pkg/util"
)

// ProtocolVersion is the wire protocol version this library speaks.
const ProtocolVersion = 70015

// userAgent identifies this library in version messages.
const userAgent = "/btclib-go:0.1/"

// Inventory object types for getdata.
const (
	TxDataType            = 1
	BlockDataType         = 2
	FilteredBlockDataType = 3
	CompactBlockDataType  = 4
)

// ErrProtocolViolation is returned when a peer sends a structurally valid
// but semantically illegal message.
var ErrProtocolViolation = errors.New("p2p: protocol violation")

// Message is one wire protocol message.
type Message interface {
	// Command is the envelope command string.
	Command() string

	// Serialize encodes the payload.
	Serialize() []byte
}

// parsers maps command strings to payload parsers for WaitFor.
var parsers = map[string]func(io.Reader) (Message, error){
	"version": func(r io.Reader) (Message, error) { return ParseVersion(r) },
	"verack":  func(r io.Reader) (Message, error) { return ParseVerAck(r) },
	"ping":    func(r io.Reader) (Message, error) { return ParsePing(r) },
	"pong":    func(r io.Reader) (Message, error) { return ParsePong(r) },
	"headers": func(r io.Reader) (Message, error) { return ParseHeaders(r) },
	"getdata": func(r io.Reader) (Message, error) { return ParseGetData(r) },
}

// VersionMessage announces a node's capabilities during the handshake.
type VersionMessage struct {
	Version          uint32
	Services         uint64
	Timestamp        uint64
	ReceiverServices uint64
	ReceiverIP       [4]byte
	ReceiverPort     uint16
	SenderServices   uint64
	SenderIP         [4]byte
	SenderPort       uint16
	Nonce            [8]byte
	UserAgent        string
	LatestBlock      uint32
	Relay            bool
}

// NewVersionMessage creates a version message with library defaults, a
// current timestamp and a random nonce.
func NewVersionMessage() *VersionMessage {
	m := &VersionMessage{
		Version:      ProtocolVersion,
		Timestamp:    uint64(time.Now().Unix()),
		ReceiverPort: 8333,
		SenderPort:   8333,
		UserAgent:    userAgent,
	}
	rand.Read(m.Nonce[:])
	return m
}

func (m *VersionMessage) Command() string { return "version" }

// Serialize encodes the version payload. IPs are written as IPv4-mapped
// IPv6 addresses.
func (m *VersionMessage) Serialize() []byte {
	var out []byte
	out = append(out, util.Uint32ToBytes(m.Version)...)
	out = append(out, util.Uint64ToBytes(m.Services)...)
	out = append(out, util.Uint64ToBytes(m.Timestamp)...)

	out = append(out, util.Uint64ToBytes(m.ReceiverServices)...)
	out = append(out, ipv4Mapped(m.ReceiverIP)...)
	out = binary.BigEndian.AppendUint16(out, m.ReceiverPort)

	out = append(out, util.Uint64ToBytes(m.SenderServices)...)
	out = append(out, ipv4Mapped(m.SenderIP)...)
	out = binary.BigEndian.AppendUint16(out, m.SenderPort)

	out = append(out, m.Nonce[:]...)
	out = append(out, util.WriteVarInt(uint64(len(m.UserAgent)))...)
	out = append(out, m.UserAgent...)
	out = append(out, util.Uint32ToBytes(m.LatestBlock)...)
	if m.Relay {
		out = append(out, 0x01)
	} else {
		out = append(out, 0x00)
	}
	return out
}

func ipv4Mapped(ip [4]byte) []byte {
	out := make([]byte, 16)
	out[10] = 0xff
	out[11] = 0xff
	copy(out[12:], ip[:])
	return out
}

// ParseVersion decodes a version payload.
func ParseVersion(r io.Reader) (*VersionMessage, error) {
	m := &VersionMessage{}

	var fixed [20]byte // version(4) services(8) timestamp(8)
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, fmt.Errorf("version header: %w", err)
	}
	m.Version = binary.LittleEndian.Uint32(fixed[0:4])
	m.Services = binary.LittleEndian.Uint64(fixed[4:12])
	m.Timestamp = binary.LittleEndian.Uint64(fixed[12:20])

	var addr [26]byte // services(8) + ip(16) + port(2)
	if _, err := io.ReadFull(r, addr[:]); err != nil {
		return nil, fmt.Errorf("version receiver: %w", err)
	}
	m.ReceiverServices = binary.LittleEndian.Uint64(addr[0:8])
	copy(m.ReceiverIP[:], addr[20:24])
	m.ReceiverPort = binary.BigEndian.Uint16(addr[24:26])

	if _, err := io.ReadFull(r, addr[:]); err != nil {
		return nil, fmt.Errorf("version sender: %w", err)
	}
	m.SenderServices = binary.LittleEndian.Uint64(addr[0:8])
	copy(m.SenderIP[:], addr[20:24])
	m.SenderPort = binary.BigEndian.Uint16(addr[24:26])

	if _, err := io.ReadFull(r, m.Nonce[:]); err != nil {
		return nil, fmt.Errorf("version nonce: %w", err)
	}

	uaLen, err := util.ReadVarIntFrom(r)
	if err != nil {
		return nil, fmt.Errorf("version user agent length: %w", err)
	}
	ua := make([]byte, uaLen)
	if _, err := io.ReadFull(r, ua); err != nil {
		return nil, fmt.Errorf("version user agent: %w", err)
	}
	m.UserAgent = string(ua)

	var tail [5]byte
	if _, err := io.ReadFull(r, tail[:]); err != nil {
		return nil, fmt.Errorf("version tail: %w", err)
	}
	m.LatestBlock = binary.LittleEndian.Uint32(tail[0:4])
	switch tail[4] {
	case 0x00:
		m.Relay = false
	case 0x01:
		m.Relay = true
	default:
		return nil, fmt.Errorf("%w: relay byte 0x%02x", ErrProtocolViolation, tail[4])
	}
	return m, nil
}

// VerAckMessage acknowledges a version message.
type VerAckMessage struct{}

func (m *VerAckMessage) Command() string   { return "verack" }
func (m *VerAckMessage) Serialize() []byte { return nil }

// ParseVerAck decodes the (empty) verack payload.
func ParseVerAck(io.Reader) (*VerAckMessage, error) {
	return &VerAckMessage{}, nil
}

// PingMessage carries a liveness nonce.
type PingMessage struct {
	Nonce [8]byte
}

func (m *PingMessage) Command() string   { return "ping" }
func (m *PingMessage) Serialize() []byte { return m.Nonce[:] }

// ParsePing decodes a ping payload.
func ParsePing(r io.Reader) (*PingMessage, error) {
	m := &PingMessage{}
	if _, err := io.ReadFull(r, m.Nonce[:]); err != nil {
		return nil, fmt.Errorf("ping nonce: %w", err)
	}
	return m, nil
}

// PongMessage echoes a ping nonce.
type PongMessage struct {
	Nonce [8]byte
}

func (m *PongMessage) Command() string   { return "pong" }
func (m *PongMessage) Serialize() []byte { return m.Nonce[:] }

// ParsePong decodes a pong payload.
func ParsePong(r io.Reader) (*PongMessage, error) {
	m := &PongMessage{}
	if _, err := io.ReadFull(r, m.Nonce[:]); err != nil {
		return nil, fmt.Errorf("pong nonce: %w", err)
	}
	return m, nil
}

// GetHeadersMessage requests headers starting after StartBlock.
type GetHeadersMessage struct {
	Version    uint32
	NumHashes  uint64
	StartBlock [32]byte
	EndBlock   [32]byte
}

// NewGetHeaders requests headers from the given start hash up to the tip.
func NewGetHeaders(startBlock [32]byte) *GetHeadersMessage {
	return &GetHeadersMessage{
		Version:    ProtocolVersion,
		NumHashes:  1,
		StartBlock: startBlock,
	}
}

func (m *GetHeadersMessage) Command() string { return "getheaders" }

// Serialize encodes the getheaders payload. Block hashes go over the wire
// little-endian.
func (m *GetHeadersMessage) Serialize() []byte {
	var out []byte
	out = append(out, util.Uint32ToBytes(m.Version)...)
	out = append(out, util.WriteVarInt(m.NumHashes)...)
	out = append(out, util.ReverseBytes(m.StartBlock[:])...)
	return append(out, util.ReverseBytes(m.EndBlock[:])...)
}

// HeadersMessage carries up to 2000 block headers, each followed by a
// zero transaction count.
type HeadersMessage struct {
	Blocks []*block.Block
}

func (m *HeadersMessage) Command() string { return "headers" }

// Serialize encodes the headers payload.
func (m *HeadersMessage) Serialize() []byte {
	out := util.WriteVarInt(uint64(len(m.Blocks)))
	for _, b := range m.Blocks {
		out = append(out, b.Serialize()...)
		out = append(out, 0x00)
	}
	return out
}

// ParseHeaders decodes a headers payload, rejecting any header that claims
// transactions.
func ParseHeaders(r io.Reader) (*HeadersMessage, error) {
	count, err := util.ReadVarIntFrom(r)
	if err != nil {
		return nil, fmt.Errorf("headers count: %w", err)
	}
	blocks := make([]*block.Block, 0, count)
	for i := uint64(0); i < count; i++ {
		b, err := block.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("header %d: %w", i, err)
		}
		numTxs, err := util.ReadVarIntFrom(r)
		if err != nil {
			return nil, fmt.Errorf("header %d tx count: %w", i, err)
		}
		if numTxs != 0 {
			return nil, fmt.Errorf("%w: headers entry with %d txs", ErrProtocolViolation, numTxs)
		}
		blocks = append(blocks, b)
	}
	return &HeadersMessage{Blocks: blocks}, nil
}

// InventoryItem is one (type, id) pair in a getdata request.
type InventoryItem struct {
	Type uint32
	ID   [32]byte
}

// GetDataMessage requests objects by inventory.
type GetDataMessage struct {
	Items []InventoryItem
}

func (m *GetDataMessage) Command() string { return "getdata" }

// Add appends a request for one object.
func (m *GetDataMessage) Add(dataType uint32, id [32]byte) {
	m.Items = append(m.Items, InventoryItem{Type: dataType, ID: id})
}

// Serialize encodes the getdata payload.
func (m *GetDataMessage) Serialize() []byte {
	out := util.WriteVarInt(uint64(len(m.Items)))
	for _, item := range m.Items {
		out = append(out, util.Uint32ToBytes(item.Type)...)
		out = append(out, util.ReverseBytes(item.ID[:])...)
	}
	return out
}

// ParseGetData decodes a getdata payload.
func ParseGetData(r io.Reader) (*GetDataMessage, error) {
	count, err := util.ReadVarIntFrom(r)
	if err != nil {
		return nil, fmt.Errorf("getdata count: %w", err)
	}
	m := &GetDataMessage{}
	for i := uint64(0); i < count; i++ {
		var buf [36]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("getdata item %d: %w", i, err)
		}
		var id [32]byte
		copy(id[:], util.ReverseBytes(buf[4:36]))
		m.Add(binary.LittleEndian.Uint32(buf[0:4]), id)
	}
	return m, nil
}

// GenericMessage carries an arbitrary command and pre-encoded payload, the
// escape hatch for commands without a dedicated type (filterload, mempool).
type GenericMessage struct {
	Cmd     string
	Payload []byte
}

// NewGenericMessage wraps a raw payload under a command.
func NewGenericMessage(command string, payload []byte) *GenericMessage {
	return &GenericMessage{Cmd: command, Payload: payload}
}

func (m *GenericMessage) Command() string   { return m.Cmd }
func (m *GenericMessage) Serialize() []byte { return m.Payload }
