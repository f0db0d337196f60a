// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package asset

import (
	"context"
	"time"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
)

const deleteTimeout = 30 * time.Second

// Cleaner removes files of deleted messages off the request path.
// It implements suture.Service.
type Cleaner struct {
	storage Storage
	queue   chan []string
}

// NewCleaner creates a Cleaner with a queue of size batches.
func NewCleaner(storage Storage, size int) *Cleaner {
	if size <= 0 {
		size = 256
	}
	return &Cleaner{storage: storage, queue: make(chan []string, size)}
}

// Enqueue schedules keys for removal. When the queue is full the batch is
// dropped and logged; the files become orphans.
func (c *Cleaner) Enqueue(keys []string) {
	if len(keys) == 0 {
		return
	}
	batch := append([]string(nil), keys...)
	select {
	case c.queue <- batch:
		metrics.AssetCleanupQueued.Add(float64(len(batch)))
	default:
		metrics.AssetCleanupFailures.Add(float64(len(batch)))
		logging.Warn().Strs("keys", batch).Msg("Asset cleanup queue full, dropping batch")
	}
}

// Serve drains the queue until ctx is cancelled.
func (c *Cleaner) Serve(ctx context.Context) error {
	logger := logging.WithComponent("asset-cleaner")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case keys := <-c.queue:
			delCtx, cancel := context.WithTimeout(ctx, deleteTimeout)
			err := c.storage.DeleteFilesFromStorage(delCtx, keys)
			cancel()
			if err != nil {
				metrics.AssetCleanupFailures.Add(float64(len(keys)))
				logger.Error().Err(err).Strs("keys", keys).Msg("Failed to delete asset files")
				continue
			}
			logger.Debug().Int("count", len(keys)).Msg("Deleted asset files")
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (c *Cleaner) String() string {
	return "asset-cleaner"
}
