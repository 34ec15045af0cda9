// Package store provides the partition-key naming scheme and the object
// sinks that persist game partitions: an S3-compatible sink for production
// and a filesystem sink for local runs and tests.
package store

import (
	"context"
	"fmt"
	"time"
)

// ObjectSink writes one partition object to a durable key/value store. Put
// overwrites any existing object at key, so re-running a crawl over the same
// range is idempotent. Implementations must be safe for concurrent use and
// must make the write atomic from the caller's perspective: either the full
// object lands at key or the previous state remains.
type ObjectSink interface {
	Put(ctx context.Context, key string, body []byte) error
}

// SinkUnavailableError reports a failed object write: store unreachable,
// permission denied, or a local filesystem failure.
type SinkUnavailableError struct {
	Key string
	Err error
}

func (e *SinkUnavailableError) Error() string {
	return fmt.Sprintf("object sink unavailable: put %s: %v", e.Key, e.Err)
}

func (e *SinkUnavailableError) Unwrap() error { return e.Err }

// PartitionKey renders the object key for a game partition:
// {gameDate as YYYYMMDD}_{gameId}.csv. It is total and deterministic, so
// the same game always maps to the same key.
func PartitionKey(gameID int64, gameDate time.Time) string {
	return fmt.Sprintf("%s_%d.csv", gameDate.Format("20060102"), gameID)
}
