package durability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ridgedb/ridge/pkg/commitlog"
)

// Config tunes the actor's flush policy. MaxCommitInterval is the
// "max_commit_interval" knob from spec §4.6: the ticker period at which
// buffered records are flushed even if MaxRecordsInCommit hasn't been
// reached. QueueCapacity bounds the inbound channel.
type Config struct {
	MaxCommitInterval time.Duration
	QueueCapacity     int
}

// DefaultConfig is a reasonable default for a single-writer datastore.
func DefaultConfig() Config {
	return Config{MaxCommitInterval: 50 * time.Millisecond, QueueCapacity: 1024}
}

// Actor owns the commit log writer on a dedicated goroutine, the way
// the teacher's events.Broker owns its subscriber fan-out loop: a
// buffered inbound channel, a stop channel, and a select-driven run
// loop. It adds a ticker for time-based flush and a watchable durable
// offset in place of the broker's subscriber broadcast.
type Actor struct {
	writer *commitlog.Writer
	cfg    Config

	jobs    chan commitlog.TxData
	stopCh  chan struct{}
	doneCh  chan struct{}
	durable *DurableOffset

	closeOnce sync.Once

	mu         sync.Mutex
	nextOffset uint64
	crashed    bool
	crashErr   error
}

// Open starts the actor's background goroutine writing through writer,
// with the next transaction offset it should assign set to
// resumeFromOffset (as determined by replay).
func Open(writer *commitlog.Writer, resumeFromOffset uint64, cfg Config) *Actor {
	a := &Actor{
		writer:     writer,
		cfg:        cfg,
		jobs:       make(chan commitlog.TxData, cfg.QueueCapacity),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		durable:    newDurableOffset(),
		nextOffset: resumeFromOffset,
	}
	if off, ok := writer.DurableOffset(); ok {
		a.durable.set(off)
	}
	go a.run()
	return a
}

// AppendTx enqueues tx and returns the transaction offset assigned to
// it. It does not wait for the frame containing tx to be written or
// fsync'd — callers that need that guarantee call WaitFor on the
// DurableOffset handle. It panics if the actor has already crashed or
// closed: per spec, using a dead database is a programming error.
func (a *Actor) AppendTx(tx commitlog.TxData) uint64 {
	a.mu.Lock()
	if a.crashed {
		err := a.crashErr
		a.mu.Unlock()
		panic(fmt.Sprintf("durability: append_tx on a crashed actor: %v", err))
	}
	offset := a.nextOffset
	a.nextOffset++
	a.mu.Unlock()

	select {
	case <-a.doneCh:
		panic("durability: append_tx on a closed actor")
	default:
	}
	select {
	case a.jobs <- tx:
	case <-a.doneCh:
		panic("durability: append_tx on a closed actor")
	}
	return offset
}

// DurableOffsetHandle returns the watchable durable-offset handle.
func (a *Actor) DurableOffsetHandle() *DurableOffset {
	return a.durable
}

// Close signals the actor to drain its queue, flush, and stop, then
// waits for it to finish or for ctx to be cancelled. Cancelling ctx
// aborts the wait (not the underlying shutdown, which keeps running in
// the background) — the durable offset will be whatever was flushed by
// the time the caller gave up waiting. Repeated calls are idempotent.
func (a *Actor) Close(ctx context.Context) (uint64, error) {
	a.closeOnce.Do(func() { close(a.stopCh) })

	select {
	case <-a.doneCh:
		off, _ := a.durable.LastSeen()
		return off, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (a *Actor) run() {
	defer close(a.doneCh)
	// Closing the watch handle here covers both exit paths: a graceful
	// shutdown (Close) and a crash recovered below. Either way the actor
	// is no longer live, so Get should report "exited" from this point;
	// LastSeen keeps reporting the last value published.
	defer a.durable.closeHandle()
	defer func() {
		if r := recover(); r != nil {
			a.markCrashed(fmt.Errorf("durability: actor panicked: %v", r))
		}
	}()

	ticker := time.NewTicker(a.cfg.MaxCommitInterval)
	defer ticker.Stop()

	for {
		select {
		case tx := <-a.jobs:
			a.appendAndPublish(tx)
		case <-ticker.C:
			a.flushAndPublish()
		case <-a.stopCh:
			a.drainAndFlush()
			return
		}
	}
}

// drainAndFlush consumes every job already queued at shutdown time, then
// flushes whatever remains buffered in the writer.
func (a *Actor) drainAndFlush() {
	for {
		select {
		case tx := <-a.jobs:
			a.appendAndPublish(tx)
		default:
			a.flushAndPublish()
			return
		}
	}
}

func (a *Actor) appendAndPublish(tx commitlog.TxData) {
	if _, err := a.writer.Append(tx); err != nil {
		panic(err)
	}
	a.publish()
}

func (a *Actor) flushAndPublish() {
	if err := a.writer.Flush(); err != nil {
		panic(err)
	}
	a.publish()
}

func (a *Actor) publish() {
	if off, ok := a.writer.DurableOffset(); ok {
		a.durable.set(off)
	}
}

func (a *Actor) markCrashed(err error) {
	a.mu.Lock()
	a.crashed = true
	a.crashErr = err
	a.mu.Unlock()
}
