package worker

import (
	"context"
	"log"
	"time"

	"github.com/albertogalvez-dev/queue/internal/store"
)

// NoShowSweeper marks tickets that stayed in Called past the grace period
// as no-shows, one batch per tick.
type NoShowSweeper struct {
	Store     store.TicketStore
	Grace     time.Duration
	Interval  time.Duration
	BatchSize int
}

func (s *NoShowSweeper) Run(ctx context.Context) {
	if s.Grace <= 0 || s.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *NoShowSweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	count, err := s.Store.AutoNoShow(sweepCtx, s.Grace, s.BatchSize)
	if err != nil {
		log.Printf("auto no-show error: %v", err)
		return
	}
	if count > 0 {
		log.Printf("auto no-show marked %d tickets", count)
	}
}
