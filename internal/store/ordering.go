package store

import (
	"sort"

	"github.com/albertogalvez-dev/queue/internal/models"
)

// SortQueue orders waiting tickets into dispatch order: triage rank, then
// preferente, then enqueue time. The sort must stay stable so that equal
// keys keep insertion order; queue positions shown to waiting patients
// would otherwise jump between recomputations.
func SortQueue(tickets []models.Ticket) []models.Ticket {
	sorted := make([]models.Ticket, len(tickets))
	copy(sorted, tickets)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		rankA, rankB := models.TriageRank(a.Triage), models.TriageRank(b.Triage)
		if rankA != rankB {
			return rankA < rankB
		}
		if a.Preferente != b.Preferente {
			return a.Preferente
		}
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	})
	return sorted
}
