package ledger

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// SortKey names a computed field a voucher list can be ordered by.
type SortKey string

const (
	SortBySum             SortKey = "SUM"
	SortByTotal           SortKey = "TOTAL"
	SortByAlreadyHappened SortKey = "ALREADY_HAPPENED"
	SortByRemain          SortKey = "REMAIN"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// SortRule is one (sortBy, sortOrder) link of a composite ordering.
type SortRule struct {
	By    SortKey   `json:"sortBy"`
	Order SortOrder `json:"sortOrder"`
}

// ParseSortRules reads "SUM:DESC,REMAIN" style values. A missing order is ASC.
func ParseSortRules(raw string) ([]SortRule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var rules []SortRule
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		by, order, _ := strings.Cut(part, ":")
		rule := SortRule{By: SortKey(strings.ToUpper(strings.TrimSpace(by))), Order: SortOrder(strings.ToUpper(strings.TrimSpace(order)))}
		if rule.Order == "" {
			rule.Order = SortAsc
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Validate rejects unknown keys and orders.
func (r SortRule) Validate() error {
	switch r.By {
	case SortBySum, SortByTotal, SortByAlreadyHappened, SortByRemain:
	default:
		return fmt.Errorf("%w: unknown sort key %q", ErrInvalidInput, r.By)
	}
	switch r.Order {
	case SortAsc, SortDesc:
	default:
		return fmt.Errorf("%w: unknown sort order %q", ErrInvalidInput, r.Order)
	}
	return nil
}

func (r SortRule) value(a VoucherAggregate, tab Tab) float64 {
	info := a.Info(tab)
	switch r.By {
	case SortBySum:
		return a.Sum.Signed()
	case SortByTotal:
		return info.Total
	case SortByAlreadyHappened:
		return info.AlreadyHappened
	default:
		return info.Remain
	}
}

// SortAggregates orders items in place by rules; earlier rules take priority
// and equal elements keep their input order.
func SortAggregates(items []VoucherAggregate, tab Tab, rules []SortRule) {
	if len(rules) == 0 {
		return
	}
	slices.SortStableFunc(items, func(a, b VoucherAggregate) int {
		for _, rule := range rules {
			c := cmp.Compare(rule.value(a, tab), rule.value(b, tab))
			if rule.Order == SortDesc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// FilterByStatus keeps the items whose tab-side status equals status. A nil
// status keeps everything.
func FilterByStatus(items []VoucherAggregate, tab Tab, status *ReverseStatus) []VoucherAggregate {
	if status == nil {
		return items
	}
	out := make([]VoucherAggregate, 0, len(items))
	for _, item := range items {
		if item.Info(tab).Status() == *status {
			out = append(out, item)
		}
	}
	return out
}
