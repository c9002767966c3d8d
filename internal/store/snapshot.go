package store

import (
	"sort"
	"time"

	"tally/internal/core"
)

// Snapshot ordering: created-at descending, newest first. Documents
// whose server timestamp has not been confirmed yet (zero time) sort as
// "now" so they appear at the top during the write round trip instead
// of sinking to the bottom.

func effectiveTime(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}

// SortProjects orders a projects snapshot in place.
func SortProjects(projects []core.Project) {
	now := time.Now()
	sort.SliceStable(projects, func(i, j int) bool {
		ti := effectiveTime(projects[i].CreatedAt, now)
		tj := effectiveTime(projects[j].CreatedAt, now)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return projects[i].ID > projects[j].ID
	})
}

// SortExpenses orders an expenses snapshot in place.
func SortExpenses(expenses []core.Expense) {
	now := time.Now()
	sort.SliceStable(expenses, func(i, j int) bool {
		ti := effectiveTime(expenses[i].CreatedAt, now)
		tj := effectiveTime(expenses[j].CreatedAt, now)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return expenses[i].ID > expenses[j].ID
	})
}
