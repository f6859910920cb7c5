package tx

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/djkazic/btclib-go/internal/metrics"
	"github.com/djkazic/btclib-go/pkg/util"
)

// Fetcher resolves transactions by id. Implementations cache.
type Fetcher interface {
	// Fetch returns the transaction with the given display-order hex id.
	// With fresh set, any cached copy is bypassed.
	Fetch(ctx context.Context, txID string, fresh bool) (*Tx, error)
}

const (
	mainnetTxURL = "http://mainnet.programmingbitcoin.com"
	testnetTxURL = "http://testnet.programmingbitcoin.com"
)

// HTTPFetcher fetches raw transactions over HTTP and keeps an in-memory
// cache, owned by the fetcher instance, with an optional JSON disk image.
type HTTPFetcher struct {
	baseURL string
	testnet bool
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]*Tx
}

// NewHTTPFetcher creates a fetcher against the public block explorer for
// the chosen network.
func NewHTTPFetcher(testnet bool, logger *zap.Logger) *HTTPFetcher {
	url := mainnetTxURL
	if testnet {
		url = testnetTxURL
	}
	return &HTTPFetcher{
		baseURL: url,
		testnet: testnet,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(4), 4),
		logger:  logger,
		cache:   make(map[string]*Tx),
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, txID string, fresh bool) (*Tx, error) {
	if !fresh {
		f.mu.Lock()
		cached, ok := f.cache[txID]
		f.mu.Unlock()
		if ok {
			metrics.TxCacheHits.Inc()
			return cached, nil
		}
	}
	metrics.TxCacheMisses.Inc()

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/tx/%s.hex", f.baseURL, txID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.TxFetchErrors.Inc()
		return nil, fmt.Errorf("fetch tx %s: %w", txID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.TxFetchErrors.Inc()
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.TxFetchErrors.Inc()
		return nil, fmt.Errorf("fetch tx %s: status %d", txID, resp.StatusCode)
	}

	raw, err := util.HexToBytes(strings.TrimSpace(string(body)))
	if err != nil {
		metrics.TxFetchErrors.Inc()
		return nil, fmt.Errorf("fetch tx %s: unexpected response %q", txID, strings.TrimSpace(string(body)))
	}

	parsed, err := parseRawPossiblyWitness(raw, f.testnet)
	if err != nil {
		metrics.TxFetchErrors.Inc()
		return nil, fmt.Errorf("parse tx %s: %w", txID, err)
	}

	gotID, err := parsed.ID()
	if err != nil {
		return nil, err
	}
	if gotID != txID {
		metrics.TxFetchErrors.Inc()
		return nil, fmt.Errorf("fetch tx: id mismatch: got %s want %s", gotID, txID)
	}

	f.logger.Debug("fetched tx",
		zap.String("txid", txID),
		zap.Int("bytes", len(raw)),
	)

	f.mu.Lock()
	f.cache[txID] = parsed
	f.mu.Unlock()
	return parsed, nil
}

// parseRawPossiblyWitness parses a raw transaction, rewriting a
// witness-flagged serialization into the legacy layout: the marker and flag
// bytes [4,6) are dropped and the locktime is taken from the trailing four
// bytes. The witness stack itself is discarded by this legacy path.
func parseRawPossiblyWitness(raw []byte, testnet bool) (*Tx, error) {
	if len(raw) < 5 {
		return nil, fmt.Errorf("tx: raw too short")
	}
	if raw[4] != 0 {
		return Parse(bytes.NewReader(raw), testnet)
	}

	stripped := make([]byte, 0, len(raw)-2)
	stripped = append(stripped, raw[:4]...)
	stripped = append(stripped, raw[6:]...)
	parsed, err := Parse(bytes.NewReader(stripped), testnet)
	if err != nil {
		return nil, err
	}
	parsed.Locktime = binary.LittleEndian.Uint32(raw[len(raw)-4:])
	return parsed, nil
}

// LoadCache merges a JSON disk cache (tx id -> raw hex) into memory.
func (f *HTTPFetcher) LoadCache(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read cache: %w", err)
	}

	var diskCache map[string]string
	if err := json.Unmarshal(data, &diskCache); err != nil {
		return fmt.Errorf("decode cache: %w", err)
	}

	loaded := make(map[string]*Tx, len(diskCache))
	for id, rawHex := range diskCache {
		raw, err := util.HexToBytes(rawHex)
		if err != nil {
			return fmt.Errorf("cache entry %s: %w", id, err)
		}
		parsed, err := parseRawPossiblyWitness(raw, f.testnet)
		if err != nil {
			return fmt.Errorf("cache entry %s: %w", id, err)
		}
		loaded[id] = parsed
	}

	f.mu.Lock()
	for id, parsed := range loaded {
		f.cache[id] = parsed
	}
	f.mu.Unlock()

	f.logger.Info("loaded tx cache", zap.String("path", path), zap.Int("entries", len(loaded)))
	return nil
}

// DumpCache writes the in-memory cache to disk as a JSON object mapping
// tx id to raw hex.
func (f *HTTPFetcher) DumpCache(path string) error {
	f.mu.Lock()
	toDump := make(map[string]string, len(f.cache))
	for id, cached := range f.cache {
		raw, err := cached.Serialize()
		if err != nil {
			f.mu.Unlock()
			return fmt.Errorf("serialize %s: %w", id, err)
		}
		toDump[id] = util.BytesToHex(raw)
	}
	f.mu.Unlock()

	data, err := json.MarshalIndent(toDump, "", "    ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}

	f.logger.Info("dumped tx cache", zap.String("path", path), zap.Int("entries", len(toDump)))
	return nil
}

// CacheSize returns the number of transactions held in memory.
func (f *HTTPFetcher) CacheSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cache)
}

// Put inserts a transaction into the cache under its id. Useful for tests
// and for seeding from block downloads.
func (f *HTTPFetcher) Put(t *Tx) error {
	id, err := t.ID()
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.cache[id] = t
	f.mu.Unlock()
	return nil
}
