package revision

import "github.com/router-for-me/CreditEngine/internal/models"

var transitions = map[models.RequestStatus][]models.RequestStatus{
	models.RequestStatusPending:           {models.RequestStatusInProgress, models.RequestStatusCancelled},
	models.RequestStatusInProgress:        {models.RequestStatusDelivered, models.RequestStatusCancelled},
	models.RequestStatusDelivered:         {models.RequestStatusRevisionRequested, models.RequestStatusCompleted, models.RequestStatusCancelled},
	models.RequestStatusRevisionRequested: {models.RequestStatusInProgress, models.RequestStatusCancelled},
}

// CanTransition reports whether a request may move from one status to another.
// COMPLETED and CANCELLED are terminal.
func CanTransition(from, to models.RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
