package live

import (
	"sort"
	"strings"

	"agrihill-backend/internal/domain"
)

// Filter is a conjunction of per-field conditions. Blank strings and
// non-positive bounds are unset and match everything.
type Filter struct {
	// Contains matches a case-insensitive substring.
	Contains map[domain.Field]string
	// Equals matches case-insensitively on the whole value.
	Equals map[domain.Field]string
	// Max is an inclusive upper bound; 0 is the "unset" sentinel.
	Max map[domain.Field]float64
}

// Active reports whether any condition constrains the result.
func (f Filter) Active() bool {
	for _, q := range f.Contains {
		if strings.TrimSpace(q) != "" {
			return true
		}
	}
	for _, q := range f.Equals {
		if strings.TrimSpace(q) != "" {
			return true
		}
	}
	for _, m := range f.Max {
		if m > 0 {
			return true
		}
	}
	return false
}

// Match reports whether r satisfies every active condition.
func (f Filter) Match(r *domain.Record) bool {
	for field, q := range f.Contains {
		q = strings.ToLower(strings.TrimSpace(q))
		if q != "" && !strings.Contains(strings.ToLower(r.Text(field)), q) {
			return false
		}
	}
	for field, q := range f.Equals {
		q = strings.TrimSpace(q)
		if q != "" && !strings.EqualFold(strings.TrimSpace(r.Text(field)), q) {
			return false
		}
	}
	for field, m := range f.Max {
		if m > 0 && r.Number(field) > m {
			return false
		}
	}
	return true
}

// Order sorts by a numeric field. The zero Order keeps merge order.
type Order struct {
	Field      domain.Field
	Descending bool
}

var (
	ByPriceAsc     = Order{Field: domain.FieldPrice}
	ByRatingDesc   = Order{Field: domain.FieldRating, Descending: true}
	ByQuantityDesc = Order{Field: domain.FieldQuantity, Descending: true}
	NoOrder        = Order{}
)

// Project returns the records matching f, stably sorted by o when o is set.
// The input slice is left untouched.
func Project(records []domain.Record, f Filter, o Order) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for i := range records {
		if f.Match(&records[i]) {
			out = append(out, records[i])
		}
	}
	if o.Field == "" {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Number(o.Field), out[j].Number(o.Field)
		if o.Descending {
			return a > b
		}
		return a < b
	})
	return out
}
