package api

import (
	"errors"
	"strconv"
)

const (
	defaultItemsPerPage = 100
	maxItemsPerPage     = 1000
)

var (
	errInvalidItemsPerPage = errors.New("invalid items per page")
	errInvalidPage         = errors.New("invalid page")
)

func parseQueryInt(str string, def int, maxVal int, errInvalid error) (int, error) {
	if str == "" {
		return def, nil
	}

	v, err := strconv.ParseUint(str, 10, 31)
	if err != nil || int(v) > maxVal {
		return 0, errInvalid
	}

	return int(v), nil
}

// paginate replaces items with the requested page and returns the page count.
func paginate[T any](items *[]T, itemsPerPageStr string, pageStr string) (int, error) {
	itemsPerPage, err := parseQueryInt(itemsPerPageStr, defaultItemsPerPage, maxItemsPerPage, errInvalidItemsPerPage)
	if err != nil {
		return 0, err
	}
	if itemsPerPage == 0 {
		return 0, errInvalidItemsPerPage
	}

	page, err := parseQueryInt(pageStr, 0, 1<<31-1, errInvalidPage)
	if err != nil {
		return 0, err
	}

	n := len(*items)
	if n == 0 {
		return 0, nil
	}

	pageCount := (n + itemsPerPage - 1) / itemsPerPage

	// avoid overflowing on huge pages
	start := n
	if page < pageCount {
		start = page * itemsPerPage
	}
	end := min(start+itemsPerPage, n)

	*items = (*items)[start:end]

	return pageCount, nil
}
