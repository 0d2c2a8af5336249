package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func seq(n int) []int {
	items := make([]int, n)
	for i := range n {
		items[i] = i
	}
	return items
}

func TestPaginate(t *testing.T) {
	for _, ca := range []struct {
		name         string
		n            int
		itemsPerPage string
		page         string
		pageCount    int
		items        []int
	}{
		{"single item pages", 5, "1", "1", 5, []int{1}},
		{"page out of range", 5, "3", "2", 2, []int{}},
		{"last page", 6, "4", "1", 2, []int{4, 5}},
		{"empty", 0, "1", "0", 0, []int{}},
		{"defaults", 150, "", "", 2, seq(100)},
	} {
		t.Run(ca.name, func(t *testing.T) {
			items := seq(ca.n)
			pageCount, err := paginate(&items, ca.itemsPerPage, ca.page)
			require.NoError(t, err)
			require.Equal(t, ca.pageCount, pageCount)
			require.Equal(t, ca.items, items)
		})
	}
}

func TestPaginateErrors(t *testing.T) {
	for _, ca := range []struct {
		name         string
		itemsPerPage string
		page         string
		err          string
	}{
		{"zero items per page", "0", "", "invalid items per page"},
		{"too many items per page", "1001", "", "invalid items per page"},
		{"negative page", "10", "-1", "invalid page"},
		{"non numeric page", "10", "abc", "invalid page"},
	} {
		t.Run(ca.name, func(t *testing.T) {
			items := seq(5)
			_, err := paginate(&items, ca.itemsPerPage, ca.page)
			require.EqualError(t, err, ca.err)
		})
	}
}

func FuzzPaginate(f *testing.F) {
	f.Fuzz(func(_ *testing.T, str1 string, str2 string) {
		items := seq(6)
		paginate(&items, str1, str2) //nolint:errcheck
	})
}
