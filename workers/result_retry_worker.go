package workers

import (
	"context"
	"log"
	"sync"
	"time"
)

// PendingResult is a match outcome whose persistence failed. The in-memory
// bracket state already reflects it; this record only exists to get the
// row written eventually. Keyed by MatchID, so re-delivery is idempotent.
type PendingResult struct {
	MatchID  string
	WinnerID string
	Score1   int
	Score2   int
	Forfeit  bool
	Attempts int
}

const alertAfterAttempts = 5

// ResultRetryWorker retries failed result writes out of band. The apply
// function must be idempotent on the match id: a result that was in fact
// written on a previous attempt must come back as success, not as a
// second advancement.
type ResultRetryWorker struct {
	mu    sync.Mutex
	queue []PendingResult
	apply func(PendingResult) error
}

func NewResultRetryWorker(apply func(PendingResult) error) *ResultRetryWorker {
	return &ResultRetryWorker{apply: apply}
}

// Enqueue schedules a failed write for retry. A result already queued for
// the same match is replaced, not duplicated.
func (w *ResultRetryWorker) Enqueue(p PendingResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.queue {
		if w.queue[i].MatchID == p.MatchID {
			w.queue[i] = p
			return
		}
	}
	w.queue = append(w.queue, p)
}

// Pending returns the number of queued results.
func (w *ResultRetryWorker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Run retries the queue on a fixed interval until the context is
// cancelled. Failures are surfaced to operators via logs, never to
// players — the match outcome is already decided.
func (w *ResultRetryWorker) Run(ctx context.Context, interval time.Duration) {
	log.Println("[ResultRetry] worker started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ResultRetry] worker stopped")
			return
		case <-ticker.C:
			w.drain()
		}
	}
}

func (w *ResultRetryWorker) drain() {
	w.mu.Lock()
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()

	for _, p := range batch {
		if err := w.apply(p); err != nil {
			p.Attempts++
			if p.Attempts >= alertAfterAttempts {
				log.Printf("[ResultRetry] ALERT: result for match %s failed %d times: %v",
					p.MatchID, p.Attempts, err)
			} else {
				log.Printf("[ResultRetry] match %s write failed (attempt %d): %v",
					p.MatchID, p.Attempts, err)
			}
			w.Enqueue(p)
			continue
		}
		log.Printf("[ResultRetry] match %s result persisted after retry", p.MatchID)
	}
}
