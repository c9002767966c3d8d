package core

// Rollups are pure functions over a snapshot of the expenses
// collection. They are recomputed fresh on every call; nothing here
// keeps incremental state, so identical snapshots always produce
// identical results.

// ProjectTotal sums the total price of every expense in the project.
func ProjectTotal(expenses []Expense, projectID string) Money {
	var sum Money
	for _, e := range expenses {
		if e.ProjectID == projectID {
			sum = sum.Add(e.TotalPrice)
		}
	}
	return sum
}

// GrandTotal sums the total price of all expenses regardless of project.
func GrandTotal(expenses []Expense) Money {
	var sum Money
	for _, e := range expenses {
		sum = sum.Add(e.TotalPrice)
	}
	return sum
}

// SpendByUser maps each contributor's display name to their share of
// the project total. Expenses without a recorded name count under the
// anonymous placeholder, so the values always partition ProjectTotal.
func SpendByUser(expenses []Expense, projectID string) map[string]Money {
	spend := make(map[string]Money)
	for _, e := range expenses {
		if e.ProjectID != projectID {
			continue
		}
		name := e.CreatorLabel()
		spend[name] = spend[name].Add(e.TotalPrice)
	}
	return spend
}
