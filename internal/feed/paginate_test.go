package feed

import (
	"reflect"
	"testing"
)

// pageList renders items with 0 standing for an ellipsis.
func pageList(items []PageItem) []int {
	out := make([]int, len(items))
	for i, it := range items {
		if !it.Ellipsis {
			out[i] = it.Page
		}
	}
	return out
}

func TestPageNumbers(t *testing.T) {
	tests := []struct {
		page, total int
		want        []int
	}{
		{1, 10, []int{1, 2, 3, 4, 0, 10}},
		{3, 10, []int{1, 2, 3, 4, 0, 10}},
		{4, 10, []int{1, 0, 3, 4, 5, 0, 10}},
		{5, 10, []int{1, 0, 4, 5, 6, 0, 10}},
		{8, 10, []int{1, 0, 7, 8, 9, 10}},
		{10, 10, []int{1, 0, 7, 8, 9, 10}},
		{1, 5, []int{1, 2, 3, 4, 5}},
		{2, 3, []int{1, 2, 3}},
		{1, 1, []int{1}},
		{1, 0, []int{1}},
		{1, 6, []int{1, 2, 3, 4, 0, 6}},
	}
	for _, tt := range tests {
		if got := pageList(PageNumbers(tt.page, tt.total)); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("PageNumbers(%d, %d) = %v, want %v", tt.page, tt.total, got, tt.want)
		}
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct{ units, size, want int }{
		{0, 20, 1},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{100, 10, 10},
		{5, 0, 1},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.units, tt.size); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.units, tt.size, got, tt.want)
		}
	}
}

func TestPageSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	if got := PageSlice(items, 2, 3); !reflect.DeepEqual(got, []int{4, 5, 6}) {
		t.Errorf("page 2 = %v", got)
	}
	if got := PageSlice(items, 3, 3); !reflect.DeepEqual(got, []int{7}) {
		t.Errorf("page 3 = %v", got)
	}
	if got := PageSlice(items, 4, 3); got != nil {
		t.Errorf("page 4 = %v, want nil", got)
	}
	if got := PageSlice(items, 0, 3); got != nil {
		t.Errorf("page 0 = %v, want nil", got)
	}
}
