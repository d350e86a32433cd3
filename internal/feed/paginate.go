package feed

// PageItem is one entry of a page-number control: a page or an ellipsis.
type PageItem struct {
	Page     int
	Ellipsis bool
}

// TotalPages returns max(1, ceil(units/pageSize)).
func TotalPages(units, pageSize int) int {
	if pageSize <= 0 || units <= 0 {
		return 1
	}
	return (units + pageSize - 1) / pageSize
}

// PageSlice returns the items on the given 1-indexed page.
func PageSlice[T any](items []T, page, pageSize int) []T {
	if page < 1 || pageSize <= 0 {
		return nil
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// PageNumbers builds the page-number list for the pagination control. Up to
// five pages are listed in full; beyond that the first and last page are
// always present and a window around the current page is shown.
func PageNumbers(page, totalPages int) []PageItem {
	if totalPages < 1 {
		totalPages = 1
	}
	var items []PageItem
	add := func(pages ...int) {
		for _, p := range pages {
			items = append(items, PageItem{Page: p})
		}
	}
	gap := func() { items = append(items, PageItem{Ellipsis: true}) }

	switch {
	case totalPages <= 5:
		for p := 1; p <= totalPages; p++ {
			add(p)
		}
	case page <= 3:
		add(1, 2, 3, 4)
		gap()
		add(totalPages)
	case page >= totalPages-2:
		add(1)
		gap()
		add(totalPages-3, totalPages-2, totalPages-1, totalPages)
	default:
		add(1)
		gap()
		add(page-1, page, page+1)
		gap()
		add(totalPages)
	}
	return items
}

func inRange(page, totalPages int) bool {
	return page >= 1 && page <= max(1, totalPages)
}
