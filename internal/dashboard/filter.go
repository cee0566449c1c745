package dashboard

// FilterByBranch keeps rows whose branch ID or branch name equals branch.
// An empty branch returns rows unchanged. Order is preserved.
func FilterByBranch[T any](rows []T, branch string, key func(T) (id, name string)) []T {
	if branch == "" {
		return rows
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		id, name := key(row)
		if (id != "" && id == branch) || (name != "" && name == branch) {
			out = append(out, row)
		}
	}
	return out
}
