package pagination

import (
	"strings"

	"engage-ledger/pkg/db/option"
	"engage-ledger/pkg/errutil"
)

const (
	DefaultOffset = 0
	DefaultLimit  = 10000
)

// ListParams carries the ordering and paging query parameters shared by list
// endpoints: `_s` is a column name optionally prefixed with "-" for
// descending order, `_o` the offset and `_l` the limit.
type ListParams struct {
	Order  string `form:"_s"`
	Offset int    `form:"_o"`
	Limit  int    `form:"_l"`
}

func (p ListParams) Normalize() ListParams {
	if p.Offset < 0 {
		p.Offset = DefaultOffset
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	return p
}

// ParseOrder resolves `_s` against the allowed columns. An empty order
// yields the zero QuerySortBy.
func ParseOrder(order string, allowed ...string) (option.QuerySortBy, error) {
	if order == "" {
		return option.QuerySortBy{}, nil
	}

	column, direction := order, "asc"
	if strings.HasPrefix(order, "-") {
		column, direction = order[1:], "desc"
	}

	allow := make(map[string]bool, len(allowed))
	for _, c := range allowed {
		allow[c] = true
	}

	if !allow[column] {
		return option.QuerySortBy{}, errutil.InvalidOrder("invalid order param", nil,
			errutil.WithDetails(errutil.Detail{Field: "_s", Message: "unsupported column " + column}))
	}

	return option.QuerySortBy{SortBy: column, OrderBy: direction, Allow: allow}, nil
}

// Options converts the params into query options.
func (p ListParams) Options(allowed ...string) ([]option.QueryOption, error) {
	p = p.Normalize()
	sort, err := ParseOrder(p.Order, allowed...)
	if err != nil {
		return nil, err
	}
	return []option.QueryOption{
		option.WithSortBy(sort),
		option.ApplyPagination(p.Offset, p.Limit),
	}, nil
}
