package worker

import (
	"context"
	"testing"
	"time"

	"github.com/albertogalvez-dev/queue/internal/models"
	"github.com/albertogalvez-dev/queue/internal/store"
	"github.com/albertogalvez-dev/queue/internal/store/memory"
)

func TestSweeperMarksStaleCalledTickets(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore(memory.Options{EventBufferSize: 64})
	seed(t, st)

	ticket, err := st.CreateTicket(ctx, store.CreateTicketInput{ServiceID: "admision"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CallNext(ctx, store.CallNextInput{
		ServiceID: "admision",
		CounterID: "adm-1",
		CalledAt:  time.Now().UTC().Add(-5 * time.Minute),
	}); err != nil {
		t.Fatalf("call next: %v", err)
	}

	sweeper := &NoShowSweeper{Store: st, Grace: time.Minute, Interval: time.Hour, BatchSize: 10}
	sweeper.sweep(ctx)

	got, err := st.GetTicket(ctx, ticket.TicketID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusNoShow {
		t.Fatalf("expected no_show, got %s", got.Status)
	}
}

func TestSweeperLeavesFreshTickets(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore(memory.Options{EventBufferSize: 64})
	seed(t, st)

	ticket, err := st.CreateTicket(ctx, store.CreateTicketInput{ServiceID: "admision"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CallNext(ctx, store.CallNextInput{ServiceID: "admision", CounterID: "adm-1"}); err != nil {
		t.Fatalf("call next: %v", err)
	}

	sweeper := &NoShowSweeper{Store: st, Grace: time.Minute, Interval: time.Hour, BatchSize: 10}
	sweeper.sweep(ctx)

	got, err := st.GetTicket(ctx, ticket.TicketID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusCalled {
		t.Fatalf("expected ticket to stay called, got %s", got.Status)
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	st := memory.NewStore(memory.Options{EventBufferSize: 64})
	sweeper := &NoShowSweeper{Store: st, Grace: time.Minute, Interval: time.Millisecond, BatchSize: 10}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop after cancel")
	}
}

func seed(t *testing.T, st *memory.Store) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.CreateService(ctx, models.Service{ServiceID: "admision", Name: "Admisión", Prefix: "A", IsActive: true}); err != nil {
		t.Fatalf("seed service: %v", err)
	}
	if _, err := st.CreateCounter(ctx, models.Counter{CounterID: "adm-1", Name: "Ventanilla 1", ServiceID: "admision", IsActive: true}); err != nil {
		t.Fatalf("seed counter: %v", err)
	}
}
