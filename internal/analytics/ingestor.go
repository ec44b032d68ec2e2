package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/internal/core/ports"
	"github.com/nulzo/route-engine/internal/store"
	"go.uber.org/zap"
)

// Ingestor handles the asynchronous persistence of fallback events.
type Ingestor interface {
	ports.EventSink
	Start(ctx context.Context)
	Stop()
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

type ingestor struct {
	logger    *zap.Logger
	repo      store.Repository
	eventChan chan *domain.FallbackEvent
	batchSize int
	flushTime time.Duration

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewIngestor(logger *zap.Logger, repo store.Repository, opts Options) Ingestor {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	return &ingestor{
		logger:    logger,
		repo:      repo,
		eventChan: make(chan *domain.FallbackEvent, opts.BufferSize),
		batchSize: opts.BatchSize,
		flushTime: opts.FlushInterval,
	}
}

// Record queues an event. It never blocks; a full buffer drops the event.
func (i *ingestor) Record(event *domain.FallbackEvent) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return
	}

	select {
	case i.eventChan <- event:
	default:
		i.logger.Warn("Analytics buffer full, dropping fallback event",
			zap.String("request_id", event.RequestID),
			zap.String("chain_id", event.ChainID),
		)
	}
}

func (i *ingestor) Start(ctx context.Context) {
	i.wg.Add(1)
	go i.worker(ctx)
}

// Stop closes the buffer and waits for the pending batch to be written.
func (i *ingestor) Stop() {
	i.mu.Lock()
	i.closed = true
	i.closeOnce.Do(func() { close(i.eventChan) })
	i.mu.Unlock()

	i.wg.Wait()
}

// refuse stops Record from queueing once the worker has gone away.
func (i *ingestor) refuse() {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
}

func (i *ingestor) worker(ctx context.Context) {
	defer i.wg.Done()

	batch := make([]*domain.FallbackEvent, 0, i.batchSize)
	ticker := time.NewTicker(i.flushTime)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		err := i.repo.WithTx(context.Background(), func(repo store.Repository) error {
			for _, e := range batch {
				if err := repo.FallbackEvents().Log(context.Background(), e); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			i.logger.Error("Failed to persist fallback events", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-i.eventChan:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= i.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			i.refuse()
			batch = i.drain(batch)
			flush()
			return
		}
	}
}

// drain appends whatever is still buffered without blocking.
func (i *ingestor) drain(batch []*domain.FallbackEvent) []*domain.FallbackEvent {
	for {
		select {
		case e, ok := <-i.eventChan:
			if !ok {
				return batch
			}
			batch = append(batch, e)
		default:
			return batch
		}
	}
}
