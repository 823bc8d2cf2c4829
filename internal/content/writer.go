package content

import (
	"context"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

type job struct {
	hash string
	data []byte
}

// Writer persists payloads on a single background goroutine so the
// coordinator never blocks on storage.
type Writer struct {
	store  Store
	logger *zap.Logger
	queue  chan job

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewWriter creates a Writer with a bounded queue.
//
// Precondition: store and logger must be non-nil; queueSize < 1 defaults to 256.
func NewWriter(store Store, queueSize int, logger *zap.Logger) *Writer {
	if queueSize < 1 {
		queueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Writer{
		store:  store,
		logger: logger,
		queue:  make(chan job, queueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Enqueue schedules data for persistence.
//
// Postcondition: Returns false and drops the payload if the queue is full.
func (w *Writer) Enqueue(hash string, data []byte) bool {
	select {
	case w.queue <- job{hash: hash, data: data}:
		return true
	default:
		w.logger.Warn("content queue full, dropping payload",
			zap.String("hash", hash),
			zap.String("size", humanize.Bytes(uint64(len(data)))),
		)
		return false
	}
}

// Start drains the queue until Stop is called. Payloads still queued at
// Stop are written before Start returns.
func (w *Writer) Start() error {
	defer close(w.done)
	for {
		select {
		case j := <-w.queue:
			w.write(j)
		case <-w.ctx.Done():
			for {
				select {
				case j := <-w.queue:
					w.write(j)
				default:
					return nil
				}
			}
		}
	}
}

// Stop signals Start to finish and waits for it.
func (w *Writer) Stop() {
	w.once.Do(w.cancel)
	<-w.done
}

func (w *Writer) write(j job) {
	if err := w.store.Put(context.Background(), j.hash, j.data); err != nil {
		w.logger.Error("persisting content",
			zap.String("hash", j.hash),
			zap.Error(err),
		)
		return
	}
	w.logger.Debug("content persisted",
		zap.String("hash", j.hash),
		zap.String("size", humanize.Bytes(uint64(len(j.data)))),
	)
}
