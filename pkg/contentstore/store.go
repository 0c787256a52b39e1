// Package contentstore abstracts the content-addressed store that batches
// are pinned to. Pinning is the pipeline's durability boundary: a batch is
// considered anchored once its payload is pinned, with chain confirmation
// layered on top as best-effort.
package contentstore

import "context"

// Store pins opaque bytes and returns their content identifier. Pinning the
// same bytes twice must be idempotent at the store level and yield the same
// CID.
type Store interface {
	Pin(ctx context.Context, payload []byte) (cid string, err error)
}
