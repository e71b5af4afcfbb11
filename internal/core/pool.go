package core

import (
	"context"
	"sync"

	"github.com/seckatie/linkshelf/internal/core/db"
	"go.uber.org/zap"
)

// SnapshotPool runs a fixed number of workers that capture queued bookmarks.
type SnapshotPool struct {
	snapshotter *Snapshotter
	logger      *zap.Logger
	queue       chan db.Bookmark
	wg          sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewSnapshotPool returns a pool whose queue holds queueSize bookmarks.
func NewSnapshotPool(snapshotter *Snapshotter, logger *zap.Logger, queueSize int) *SnapshotPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &SnapshotPool{
		snapshotter: snapshotter,
		logger:      logger,
		queue:       make(chan db.Bookmark, queueSize),
	}
}

// Start launches workers goroutines. They stop when ctx is done or Close is called.
func (p *SnapshotPool) Start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

func (p *SnapshotPool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))
	log.Debug("snapshot worker started")
	defer log.Debug("snapshot worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-p.queue:
			if !ok {
				return
			}
			if err := p.snapshotter.SnapshotAndPersist(ctx, b); err != nil {
				log.Warn("snapshot failed", zap.Int64("bookmark_id", b.ID), zap.String("url", b.URL), zap.Error(err))
			}
		}
	}
}

// Enqueue schedules b without blocking. It reports false when the pool is
// closed or the queue is full; such bookmarks are picked up again by
// EnqueuePending on next start.
func (p *SnapshotPool) Enqueue(b db.Bookmark) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- b:
		return true
	default:
		p.logger.Warn("snapshot queue full, deferring bookmark", zap.Int64("bookmark_id", b.ID))
		return false
	}
}

// EnqueuePending queues every bookmark without a successful snapshot and
// returns how many were accepted.
func (p *SnapshotPool) EnqueuePending(ctx context.Context, store SnapshotStore) (int, error) {
	pending, err := store.ListBookmarksWithoutSnapshot(ctx, 0)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, b := range pending {
		if !p.Enqueue(b) {
			break
		}
		queued++
	}
	p.logger.Info("queued pending snapshots", zap.Int("pending", len(pending)), zap.Int("queued", queued))
	return queued, nil
}

// Close stops accepting work and waits for the workers to drain the queue.
func (p *SnapshotPool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
