// Package stableid claims short, reusable worker IDs from a NATS KV bucket.
//
// Workers walk the pool {prefix}-{min} .. {prefix}-{max} and atomically
// create the first free key. The claim is held by renewing the key before the
// bucket TTL expires; a crashed worker's ID becomes free again after one TTL.
package stableid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/framepipe/internal/logging"
	"github.com/arloliu/framepipe/types"
)

// Common errors returned by the claimer.
var (
	ErrNoAvailableID = errors.New("no available worker ID in pool")
	ErrNotClaimed    = errors.New("worker ID not claimed")
	ErrLeaseLost     = errors.New("worker ID lease lost")
)

// Claimer handles stable worker ID claiming and renewal.
type Claimer struct {
	kv     jetstream.KeyValue
	prefix string
	minID  int
	maxID  int
	ttl    time.Duration
	logger types.Logger

	mu       sync.Mutex
	workerID string
	revision uint64
	stopCh   chan struct{}
	doneCh   chan struct{}
	lost     bool
}

// NewClaimer creates a new stable ID claimer.
//
// Parameters:
//   - kv: KV bucket whose TTL equals ttl
//   - prefix: Worker ID prefix (e.g., "worker")
//   - minID: Minimum ID number (inclusive)
//   - maxID: Maximum ID number (inclusive)
//   - ttl: Lease duration; renewals happen every ttl/3
//   - logger: Logger (nil for no logging)
//
// Example:
//
//	claimer := stableid.NewClaimer(kv, "worker", 0, 63, 30*time.Second, logger)
//	workerID, err := claimer.Claim(ctx)
func NewClaimer(kv jetstream.KeyValue, prefix string, minID, maxID int, ttl time.Duration, logger types.Logger) *Claimer {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Claimer{
		kv:     kv,
		prefix: prefix,
		minID:  minID,
		maxID:  maxID,
		ttl:    ttl,
		logger: logger,
	}
}

// Claim claims the lowest free ID in the pool.
//
// Returns:
//   - string: Claimed worker ID (e.g., "worker-5")
//   - error: ErrNoAvailableID if the pool is exhausted, or a context/NATS error
func (c *Claimer) Claim(ctx context.Context) (string, error) {
	for id := c.minID; id <= c.maxID; id++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		workerID := fmt.Sprintf("%s-%d", c.prefix, id)
		revision, err := c.kv.Create(ctx, workerID, c.leaseValue())
		if err == nil {
			c.mu.Lock()
			c.workerID = workerID
			c.revision = revision
			c.lost = false
			c.mu.Unlock()

			c.logger.Info("stable ID claimed", "worker_id", workerID, "attempts", id-c.minID+1)

			return workerID, nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) {
			return "", fmt.Errorf("failed to claim ID %s: %w", workerID, err)
		}
	}

	c.logger.Error("no available stable IDs in pool", "prefix", c.prefix, "pool_size", c.maxID-c.minID+1)

	return "", ErrNoAvailableID
}

// StartRenewal keeps the claim alive in the background until Release.
//
// Returns:
//   - error: ErrNotClaimed if Claim has not succeeded
func (c *Claimer) StartRenewal() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.workerID == "" {
		return ErrNotClaimed
	}
	if c.stopCh != nil {
		return nil
	}

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.renewalLoop(c.stopCh, c.doneCh)

	return nil
}

func (c *Claimer) renewalLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(max(c.ttl/3, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := c.renew(ctx)
			cancel()

			if errors.Is(err, ErrLeaseLost) {
				c.logger.Error("stable ID lease lost", "worker_id", c.WorkerID())
				return
			}
			if err != nil {
				c.logger.Warn("stable ID renewal failed", "worker_id", c.WorkerID(), "error", err)
			}
		}
	}
}

// renew refreshes the claim with an optimistic update against the last known
// revision; a revision mismatch means another worker owns the ID now.
func (c *Claimer) renew(ctx context.Context) error {
	c.mu.Lock()
	workerID, revision := c.workerID, c.revision
	c.mu.Unlock()

	if workerID == "" {
		return ErrNotClaimed
	}

	next, err := c.kv.Update(ctx, workerID, c.leaseValue(), revision)
	if err != nil {
		if isRevisionMismatch(err) {
			c.mu.Lock()
			c.lost = true
			c.mu.Unlock()

			return fmt.Errorf("%s: %w", workerID, ErrLeaseLost)
		}

		return fmt.Errorf("failed to renew ID %s: %w", workerID, err)
	}

	c.mu.Lock()
	c.revision = next
	c.mu.Unlock()

	return nil
}

// Release stops renewal and frees the ID for reuse.
func (c *Claimer) Release(ctx context.Context) error {
	c.mu.Lock()
	workerID := c.workerID
	stopCh, doneCh := c.stopCh, c.doneCh
	lost := c.lost
	c.workerID = ""
	c.stopCh, c.doneCh = nil, nil
	c.mu.Unlock()

	if workerID == "" {
		return ErrNotClaimed
	}

	if stopCh != nil {
		close(stopCh)
		select {
		case <-doneCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if lost {
		return nil
	}
	if err := c.kv.Delete(ctx, workerID); err != nil {
		return fmt.Errorf("failed to delete ID %s: %w", workerID, err)
	}

	return nil
}

// WorkerID returns the currently claimed worker ID, or "" if none.
func (c *Claimer) WorkerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.workerID
}

// LeaseLost reports whether renewal found the ID owned by someone else.
func (c *Claimer) LeaseLost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lost
}

func (c *Claimer) leaseValue() []byte {
	return []byte(time.Now().UTC().Format(time.RFC3339Nano))
}

func isRevisionMismatch(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) || errors.Is(err, jetstream.ErrKeyNotFound) {
		return true
	}

	var apiErr *jetstream.APIError

	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
