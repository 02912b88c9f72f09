// Package messagetask implements the MessageTaskManager: a retry wrapper
// around every outbound multi-target broadcast, configured by timeout,
// replication factor, and a retry budget. Grounded on
// original_source/message/src/message_task_manager (tokio::spawn +
// JoinHandle) and the teacher's consensus/bft per-phase timer pattern,
// replacing goroutine+context for tokio task+JoinHandle.
package messagetask

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

const (
	DefaultTimeout           = 10 * time.Second
	DefaultReplicationFactor = 0.25
	DefaultNumberOfRetries   = 10
)

var ErrAborted = errors.New("messagetask: task aborted")

// Config mirrors TaskConfig from the source this was distilled from.
type Config struct {
	Timeout           time.Duration
	ReplicationFactor float64
	NumberOfRetries   uint32
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:           DefaultTimeout,
		ReplicationFactor: DefaultReplicationFactor,
		NumberOfRetries:   DefaultNumberOfRetries,
	}
}

// Sender delivers one message to one target. It should return promptly;
// Task treats a non-nil error as "this target did not respond this round".
type Sender[Target any] func(ctx context.Context, target Target) error

// Task drives a single retryable broadcast to completion: it resends to
// every target that has not yet responded, once per round, until either
// the replication factor of targets has responded, retries are exhausted,
// or the task is aborted.
type Task[Target comparable] struct {
	cfg     Config
	targets []Target
	send    Sender[Target]

	mu      sync.Mutex
	pending map[Target]struct{}
}

// New builds a task over targets, using cfg's timeout/replication/retry
// budget (use DefaultConfig() for the documented defaults).
func New[Target comparable](cfg Config, targets []Target, send Sender[Target]) *Task[Target] {
	pending := make(map[Target]struct{}, len(targets))
	for _, t := range targets {
		pending[t] = struct{}{}
	}
	return &Task[Target]{cfg: cfg, targets: targets, send: send, pending: pending}
}

func (t *Task[Target]) required() int {
	return int(math.Ceil(t.cfg.ReplicationFactor * float64(len(t.targets))))
}

func (t *Task[Target]) responded() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.targets) - len(t.pending)
}

// Run executes the retry loop. It returns nil once the replication factor
// is satisfied, ErrAborted if ctx is cancelled first, and a retry-exhausted
// error if every retry round completes without reaching the factor.
func (t *Task[Target]) Run(ctx context.Context) error {
	required := t.required()
	if required <= 0 {
		return nil
	}

	for round := uint32(0); round <= t.cfg.NumberOfRetries; round++ {
		if ctx.Err() != nil {
			return ErrAborted
		}

		t.sendRound(ctx)

		if t.responded() >= required {
			return nil
		}

		if round == t.cfg.NumberOfRetries {
			break
		}

		timer := time.NewTimer(t.cfg.Timeout)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ErrAborted
		}
	}

	return errors.New("messagetask: retries exhausted before reaching replication factor")
}

func (t *Task[Target]) sendRound(ctx context.Context) {
	t.mu.Lock()
	targets := make([]Target, 0, len(t.pending))
	for target := range t.pending {
		targets = append(targets, target)
	}
	t.mu.Unlock()

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target Target) {
			defer wg.Done()
			if err := t.send(ctx, target); err == nil {
				t.mu.Lock()
				delete(t.pending, target)
				t.mu.Unlock()
			}
		}(target)
	}
	wg.Wait()
}
