package store

import "github.com/albertogalvez-dev/queue/internal/models"

var transitionMap = map[string][]string{
	"call_next":     {models.StatusWaiting},
	"call":          {models.StatusWaiting, models.StatusCalled},
	"start_serving": {models.StatusCalled},
	"finish":        {models.StatusServing, models.StatusCalled},
	"no_show":       {models.StatusCalled},
	"recall":        {models.StatusCalled},
	"transfer":      {models.StatusWaiting, models.StatusCalled, models.StatusServing},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
