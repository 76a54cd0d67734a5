package mcp

import (
	"fmt"
	"strconv"
	"strings"

	"foldermcp/internal/model"
)

// parseRange expands the selection grammar `N | N-M | item ("," item)*` into
// an ordered, de-duplicated list of 1-based numbers. An empty expression
// selects everything up to max.
func parseRange(expr string, max int) ([]int, error) {
	if strings.TrimSpace(expr) == "" {
		out := make([]int, 0, max)
		for n := 1; n <= max; n++ {
			out = append(out, n)
		}
		return out, nil
	}

	seen := make(map[int]struct{})
	var out []int
	add := func(n int) {
		if _, dup := seen[n]; dup {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}

	for _, item := range strings.Split(expr, ",") {
		item = strings.TrimSpace(item)
		lo, hi, err := parseRangeItem(item)
		if err != nil {
			return nil, err
		}
		if lo < 1 || hi > max {
			return nil, fmt.Errorf("%w: range %q outside 1-%d", model.ErrInvalidInput, item, max)
		}
		for n := lo; n <= hi; n++ {
			add(n)
		}
	}
	return out, nil
}

func parseRangeItem(item string) (lo, hi int, err error) {
	if item == "" {
		return 0, 0, fmt.Errorf("%w: empty range item", model.ErrInvalidInput)
	}
	if dash := strings.Index(item, "-"); dash > 0 {
		lo, err = strconv.Atoi(strings.TrimSpace(item[:dash]))
		if err != nil {
			return 0, 0, fmt.Errorf("%w: bad range %q", model.ErrInvalidInput, item)
		}
		hi, err = strconv.Atoi(strings.TrimSpace(item[dash+1:]))
		if err != nil {
			return 0, 0, fmt.Errorf("%w: bad range %q", model.ErrInvalidInput, item)
		}
		if hi < lo {
			return 0, 0, fmt.Errorf("%w: inverted range %q", model.ErrInvalidInput, item)
		}
		return lo, hi, nil
	}
	n, err := strconv.Atoi(item)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad range item %q", model.ErrInvalidInput, item)
	}
	return n, n, nil
}
