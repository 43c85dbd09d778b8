package gallery

import "github.com/anime-shed/image-editor-go/pkg/models"

// transitions lists the only allowed status moves. Terminal states have none.
var transitions = map[models.ItemStatus][]models.ItemStatus{
	models.StatusPending:    {models.StatusProcessing},
	models.StatusProcessing: {models.StatusCompleted, models.StatusError},
}

// CanTransition reports whether an item may move from one status to another
func CanTransition(from, to models.ItemStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
