package p2p

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/djkazic/btclib-go/internal/metrics"
)

const (
	// MainnetPort is the default mainnet peer port.
	MainnetPort = 8333

	// TestnetPort is the default testnet peer port.
	TestnetPort = 18333

	// dialTimeout bounds the initial TCP connect.
	dialTimeout = 10 * time.Second

	// writeTimeout is the maximum time to wait for a write to complete.
	writeTimeout = 10 * time.Second
)

// SimpleNode is a synchronous connection to one Bitcoin peer. It is not
// safe for concurrent use; run one goroutine per connection.
type SimpleNode struct {
	conn    net.Conn
	reader  *bufio.Reader
	testnet bool
	logger  *zap.Logger
}

// Dial connects to a peer. A zero port selects the network default.
func Dial(host string, port int, testnet bool, logger *zap.Logger) (*SimpleNode, error) {
	if port == 0 {
		if testnet {
			port = TestnetPort
		} else {
			port = MainnetPort
		}
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	logger.Info("connected to peer",
		zap.String("addr", addr),
		zap.Bool("testnet", testnet),
	)

	return &SimpleNode{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		testnet: testnet,
		logger:  logger,
	}, nil
}

// Close releases the socket.
func (n *SimpleNode) Close() error {
	return n.conn.Close()
}

// Send writes one message as a single envelope frame.
func (n *SimpleNode) Send(msg Message) error {
	envelope := NewEnvelope(msg.Command(), msg.Serialize(), n.testnet)
	n.logger.Debug("sending", zap.String("command", msg.Command()))

	n.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := n.conn.Write(envelope.Serialize()); err != nil {
		return fmt.Errorf("send %s: %w", msg.Command(), err)
	}
	metrics.EnvelopesSent.WithLabelValues(msg.Command()).Inc()
	return nil
}

// Read parses the next envelope off the wire.
func (n *SimpleNode) Read() (*Envelope, error) {
	envelope, err := ParseEnvelope(n.reader, n.testnet)
	if err != nil {
		return nil, err
	}
	n.logger.Debug("receiving", zap.String("command", envelope.Command))
	metrics.EnvelopesRead.WithLabelValues(envelope.Command).Inc()
	return envelope, nil
}

// Handshake sends our version and loops until the peer's version and
// verack have both arrived, acknowledging the peer version along the way.
func (n *SimpleNode) Handshake() error {
	if err := n.Send(NewVersionMessage()); err != nil {
		return err
	}

	var versionReceived, verackReceived bool
	for !versionReceived || !verackReceived {
		msg, err := n.WaitFor("version", "verack")
		if err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
		switch msg.Command() {
		case "verack":
			verackReceived = true
		case "version":
			versionReceived = true
		}
	}

	n.logger.Info("handshake complete")
	return nil
}

// WaitFor reads envelopes until one matches a requested command and
// returns it parsed. Peer versions are acknowledged with verack and pings
// answered with pongs while waiting.
func (n *SimpleNode) WaitFor(commands ...string) (Message, error) {
	wanted := make(map[string]bool, len(commands))
	for _, c := range commands {
		wanted[c] = true
	}

	for {
		envelope, err := n.Read()
		if err != nil {
			return nil, err
		}

		switch envelope.Command {
		case "version":
			if err := n.Send(&VerAckMessage{}); err != nil {
				return nil, err
			}
		case "ping":
			ping, err := ParsePing(envelope.Stream())
			if err != nil {
				return nil, err
			}
			if err := n.Send(&PongMessage{Nonce: ping.Nonce}); err != nil {
				return nil, err
			}
		}

		if !wanted[envelope.Command] {
			continue
		}

		parse, ok := parsers[envelope.Command]
		if !ok {
			return NewGenericMessage(envelope.Command, envelope.Payload), nil
		}
		return parse(envelope.Stream())
	}
}
