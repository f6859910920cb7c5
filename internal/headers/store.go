package headers

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/djkazic/btclib-go/internal/block"
	"github.com/djkazic/btclib-go/internal/metrics"
	"github.com/djkazic/btclib-go/pkg/util"
)

// RetargetInterval is the number of blocks per difficulty epoch.
const RetargetInterval = 2016

var (
	headersBucket = []byte("headers")
	chainBucket   = []byte("chain")
	tipKey        = []byte("tip")
)

// ErrInvalidHeader is returned when an appended header fails chain
// validation.
var ErrInvalidHeader = errors.New("headers: invalid header")

// record is the stored form of one header.
type record struct {
	Height int64  `cbor:"1,keyasint"`
	Raw    []byte `cbor:"2,keyasint"`
}

// Store is a persistent, validated chain of block headers. Headers append
// only at the tip; each must link to its parent, satisfy its own
// proof-of-work claim and, on mainnet, carry the bits the retarget
// schedule dictates.
type Store struct {
	db      *bolt.DB
	testnet bool
	logger  *zap.Logger
}

// Open opens or creates a header store at path, seeding the genesis header
// when the store is empty.
func Open(path string, testnet bool, logger *zap.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open header store: %w", err)
	}

	s := &Store{db: db, testnet: testnet, logger: logger}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) bootstrap() error {
	return s.db.Update(func(btx *bolt.Tx) error {
		hb, err := btx.CreateBucketIfNotExists(headersBucket)
		if err != nil {
			return err
		}
		cb, err := btx.CreateBucketIfNotExists(chainBucket)
		if err != nil {
			return err
		}
		if cb.Get(tipKey) != nil {
			return nil
		}

		raw := block.GenesisRaw
		if s.testnet {
			raw = block.TestnetGenesisRaw
		}
		genesis, err := block.ParseBytes(raw)
		if err != nil {
			return err
		}
		hash := genesis.Hash()

		if err := putRecord(hb, hash, &record{Height: 0, Raw: raw}); err != nil {
			return err
		}
		if err := cb.Put(heightKey(0), hash[:]); err != nil {
			return err
		}
		if err := cb.Put(tipKey, hash[:]); err != nil {
			return err
		}

		s.logger.Info("seeded genesis header", zap.String("hash", util.BytesToHex(hash[:])))
		return nil
	})
}

func putRecord(b *bolt.Bucket, hash [32]byte, rec *record) error {
	encoded, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return b.Put(hash[:], encoded)
}

func heightKey(height int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(height))
	return k
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tip returns the best header and its height.
func (s *Store) Tip() (*block.Block, int64, error) {
	var b *block.Block
	var height int64
	err := s.db.View(func(btx *bolt.Tx) error {
		tip := btx.Bucket(chainBucket).Get(tipKey)
		if tip == nil {
			return errors.New("headers: no tip")
		}
		var hash [32]byte
		copy(hash[:], tip)
		var err error
		b, height, err = getHeader(btx, hash)
		return err
	})
	return b, height, err
}

// Get returns a header by display-order hash.
func (s *Store) Get(hash [32]byte) (*block.Block, int64, bool) {
	var b *block.Block
	var height int64
	err := s.db.View(func(btx *bolt.Tx) error {
		var err error
		b, height, err = getHeader(btx, hash)
		return err
	})
	if err != nil {
		return nil, 0, false
	}
	return b, height, true
}

// ByHeight returns the header at a chain height.
func (s *Store) ByHeight(height int64) (*block.Block, bool) {
	var b *block.Block
	err := s.db.View(func(btx *bolt.Tx) error {
		hashBytes := btx.Bucket(chainBucket).Get(heightKey(height))
		if hashBytes == nil {
			return fmt.Errorf("headers: no header at height %d", height)
		}
		var hash [32]byte
		copy(hash[:], hashBytes)
		var err error
		b, _, err = getHeader(btx, hash)
		return err
	})
	if err != nil {
		return nil, false
	}
	return b, true
}

func getHeader(btx *bolt.Tx, hash [32]byte) (*block.Block, int64, error) {
	encoded := btx.Bucket(headersBucket).Get(hash[:])
	if encoded == nil {
		return nil, 0, fmt.Errorf("headers: %s not found", util.BytesToHex(hash[:]))
	}
	var rec record
	if err := cbor.Unmarshal(encoded, &rec); err != nil {
		return nil, 0, fmt.Errorf("decode record: %w", err)
	}
	b, err := block.ParseBytes(rec.Raw)
	if err != nil {
		return nil, 0, err
	}
	return b, rec.Height, nil
}

// Height returns the tip height.
func (s *Store) Height() (int64, error) {
	_, height, err := s.Tip()
	return height, err
}

// Append validates b against the current tip and stores it.
func (s *Store) Append(b *block.Block) error {
	err := s.db.Update(func(btx *bolt.Tx) error {
		cb := btx.Bucket(chainBucket)
		hb := btx.Bucket(headersBucket)

		tipBytes := cb.Get(tipKey)
		var tipHash [32]byte
		copy(tipHash[:], tipBytes)
		tip, tipHeight, err := getHeader(btx, tipHash)
		if err != nil {
			return err
		}

		if b.PrevBlock != tipHash {
			return fmt.Errorf("%w: prev %s does not extend tip %s",
				ErrInvalidHeader, util.BytesToHex(b.PrevBlock[:]), util.BytesToHex(tipHash[:]))
		}
		if !b.CheckPoW() {
			return fmt.Errorf("%w: proof of work check failed", ErrInvalidHeader)
		}

		height := tipHeight + 1
		if err := s.checkBits(btx, b, tip, height); err != nil {
			return err
		}

		hash := b.Hash()
		if err := putRecord(hb, hash, &record{Height: height, Raw: b.Serialize()}); err != nil {
			return err
		}
		if err := cb.Put(heightKey(height), hash[:]); err != nil {
			return err
		}
		return cb.Put(tipKey, hash[:])
	})
	if err != nil {
		metrics.HeadersRejected.Inc()
		return err
	}
	metrics.HeadersStored.Inc()
	return nil
}

// checkBits enforces the retarget schedule on mainnet. Testnet's
// 20-minute minimum-difficulty rule makes the expected bits
// non-deterministic from headers alone, so testnet headers only need
// valid proof of work.
func (s *Store) checkBits(btx *bolt.Tx, b, tip *block.Block, height int64) error {
	if s.testnet {
		return nil
	}

	if height%RetargetInterval != 0 {
		if b.Bits != tip.Bits {
			return fmt.Errorf("%w: bits %#x differ from epoch bits %#x", ErrInvalidHeader, b.Bits, tip.Bits)
		}
		return nil
	}

	epochStartHeight := height - RetargetInterval
	hashBytes := btx.Bucket(chainBucket).Get(heightKey(epochStartHeight))
	if hashBytes == nil {
		return fmt.Errorf("headers: missing epoch start at height %d", epochStartHeight)
	}
	var hash [32]byte
	copy(hash[:], hashBytes)
	epochStart, _, err := getHeader(btx, hash)
	if err != nil {
		return err
	}

	expected := util.CalculateNewBits(tip.Bits, int64(tip.Timestamp)-int64(epochStart.Timestamp))
	if b.Bits != expected {
		return fmt.Errorf("%w: bits %#x, retarget expects %#x", ErrInvalidHeader, b.Bits, expected)
	}
	return nil
}

// Count returns the number of stored headers (tip height + 1).
func (s *Store) Count() int64 {
	height, err := s.Height()
	if err != nil {
		return 0
	}
	return height + 1
}

// Ancestors walks back from a hash collecting up to limit headers, newest
// first.
func (s *Store) Ancestors(from [32]byte, limit int) []*block.Block {
	var out []*block.Block
	current := from
	var zero [32]byte
	for len(out) < limit {
		b, _, ok := s.Get(current)
		if !ok {
			break
		}
		out = append(out, b)
		if b.PrevBlock == zero {
			break
		}
		current = b.PrevBlock
	}
	return out
}
