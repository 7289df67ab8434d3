// SPDX-License-Identifier: AGPL-3.0-or-later

// Package accountselector picks the best live account under rate budgets.
// It is a pure, stateless component: the Store supplies the candidate list
// and applies the result, this package only decides.
package accountselector

import (
	"sort"

	"github.com/btouchard/dispatchd/internal/domain/models"
)

// SelectBest returns the live account with the lowest daily utilization,
// excluding excludeID when non-nil. It does not mutate accounts or reserve
// capacity; reservation is the Store's atomic claim.
func SelectBest(accounts []*models.Account, excludeID *int64) *models.Account {
	candidates := make([]*models.Account, 0, len(accounts))
	for _, a := range accounts {
		if !a.Active || !a.UnderBudget() {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ui, uj := candidates[i].Utilization(), candidates[j].Utilization()
		if ui != uj {
			return ui < uj
		}
		return candidates[i].ID < candidates[j].ID
	})

	return candidates[0]
}
