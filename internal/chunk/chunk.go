// Package chunk splits sequences into bounded-size groups.
package chunk

// Split partitions items into consecutive groups of at most size elements.
// The last group holds the remainder. A non-positive size yields a single
// group. Groups share the backing array of items.
func Split[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]T{items[:len(items):len(items)]}
	}

	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		groups = append(groups, items[start:end:end])
	}
	return groups
}
