package headers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/djkazic/btclib-go/internal/p2p"
)

// maxHeadersPerBatch is the most headers a peer returns for one
// getheaders request.
const maxHeadersPerBatch = 2000

// Sync downloads headers from the peer into the store, batch by batch,
// starting at the store's tip. It stops after maxHeaders headers or when
// the peer returns a short batch, and returns the number appended.
func Sync(node *p2p.SimpleNode, store *Store, maxHeaders int, logger *zap.Logger) (int, error) {
	appended := 0

	for appended < maxHeaders {
		tip, tipHeight, err := store.Tip()
		if err != nil {
			return appended, err
		}

		if err := node.Send(p2p.NewGetHeaders(tip.Hash())); err != nil {
			return appended, err
		}
		msg, err := node.WaitFor("headers")
		if err != nil {
			return appended, err
		}
		hdrs, ok := msg.(*p2p.HeadersMessage)
		if !ok {
			return appended, fmt.Errorf("headers: unexpected message %s", msg.Command())
		}

		for _, b := range hdrs.Blocks {
			if err := store.Append(b); err != nil {
				return appended, fmt.Errorf("append at height %d: %w", tipHeight+1, err)
			}
			appended++
			tipHeight++
			if appended >= maxHeaders {
				break
			}
		}

		logger.Info("headers batch",
			zap.Int("received", len(hdrs.Blocks)),
			zap.Int64("height", tipHeight),
		)

		if len(hdrs.Blocks) < maxHeadersPerBatch {
			break
		}
	}
	return appended, nil
}
