package syncer

import (
	"context"
	"log"
	"sync"
	"time"
)

const flushBatch = 50

// FlushOfflineQueue attempts delivery of queued log payloads in FIFO order.
// Payloads that fail stay queued with their retry count bumped; the queue is
// never dropped on error. No-op while offline or empty.
func (s *Syncer) FlushOfflineQueue(ctx context.Context) {
	if !s.Online() {
		return
	}
	pending, err := s.db.ListOfflineLogs(flushBatch)
	if err != nil {
		log.Printf("list offline logs: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	delivered := 0
	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.api.UploadLogs(ctx, entry.Payload); err != nil {
			log.Printf("offline log %d not delivered (retry %d): %v", entry.ID, entry.Retries+1, err)
			if err := s.db.IncrementOfflineLogRetries(entry.ID); err != nil {
				log.Printf("bump retries for log %d: %v", entry.ID, err)
			}
			continue
		}
		if err := s.db.DeleteOfflineLog(entry.ID); err != nil {
			log.Printf("dequeue log %d: %v", entry.ID, err)
			continue
		}
		delivered++
	}
	if delivered < len(pending) {
		log.Printf("offline log flush: %d delivered, %d still queued", delivered, len(pending)-delivered)
	}
}

// Drainer periodically flushes the offline log queue in the background.
type Drainer struct {
	s        *Syncer
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewDrainer creates a drainer; call Start to begin.
func NewDrainer(s *Syncer, interval time.Duration) *Drainer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Drainer{s: s, interval: interval, stop: make(chan struct{})}
}

// Start launches the drain loop. One immediate flush happens at startup so
// logs queued during a previous offline run go out as soon as possible.
func (d *Drainer) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx := context.Background()
		d.s.FlushOfflineQueue(ctx)
		t := time.NewTicker(d.interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				d.s.FlushOfflineQueue(ctx)
			case <-d.stop:
				return
			}
		}
	}()
}

// Stop halts the drain loop and waits for it to exit.
func (d *Drainer) Stop() {
	close(d.stop)
	d.wg.Wait()
}
