package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// Filter is the typed payload-filter grammar the core speaks: a conjunction
// of equality, "in", and range predicates over the fixed payload keys in
// types.VectorPayload. Stringly-typed filter composition (building a query
// string by hand) is forbidden; every caller goes through FilterBuilder.
type Filter struct {
	equals map[string]string
	in     map[string][]string
	ranges map[string]rangePredicate
}

type rangePredicate struct {
	gte *int64
	lte *int64
}

// FilterBuilder constructs a Filter one predicate at a time.
type FilterBuilder struct {
	f *Filter
}

// NewFilterBuilder starts an empty filter.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{f: &Filter{
		equals: make(map[string]string),
		in:     make(map[string][]string),
		ranges: make(map[string]rangePredicate),
	}}
}

// Equals adds an equality predicate on a payload key.
func (b *FilterBuilder) Equals(key, value string) *FilterBuilder {
	b.f.equals[key] = value
	return b
}

// In adds a membership predicate on a payload key.
func (b *FilterBuilder) In(key string, values []string) *FilterBuilder {
	b.f.in[key] = values
	return b
}

// Range adds an inclusive numeric range predicate on a payload key. Either
// bound may be nil to leave that side unconstrained.
func (b *FilterBuilder) Range(key string, gte, lte *int64) *FilterBuilder {
	b.f.ranges[key] = rangePredicate{gte: gte, lte: lte}
	return b
}

// Build returns the constructed filter.
func (b *FilterBuilder) Build() *Filter {
	return b.f
}

// Empty returns true if the filter carries no predicates.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.equals) == 0 && len(f.in) == 0 && len(f.ranges) == 0)
}

// Repository returns the equality predicate on the "repository" key, if
// any — the one filter dimension SearchKeyword's SQL scoping understands.
func (f *Filter) Repository() string {
	if f == nil {
		return ""
	}
	return f.equals["repository"]
}

// CanonicalString renders the filter deterministically (sorted keys) so
// equal filters always hash to the same cache key regardless of
// FilterBuilder call order.
func (f *Filter) CanonicalString() string {
	if f.Empty() {
		return ""
	}
	var b strings.Builder

	eqKeys := sortedKeys(f.equals)
	for _, k := range eqKeys {
		fmt.Fprintf(&b, "eq:%s=%s;", k, f.equals[k])
	}

	inKeys := sortedKeys(f.in)
	for _, k := range inKeys {
		values := append([]string(nil), f.in[k]...)
		sort.Strings(values)
		fmt.Fprintf(&b, "in:%s=%s;", k, strings.Join(values, ","))
	}

	rangeKeys := sortedKeys(f.ranges)
	for _, k := range rangeKeys {
		rp := f.ranges[k]
		gte, lte := "", ""
		if rp.gte != nil {
			gte = fmt.Sprintf("%d", *rp.gte)
		}
		if rp.lte != nil {
			lte = fmt.Sprintf("%d", *rp.lte)
		}
		fmt.Fprintf(&b, "range:%s=[%s,%s];", k, gte, lte)
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// toQdrant lowers the typed filter to Qdrant's native Filter wire type.
// This is the only place in the codebase allowed to know Qdrant's filter
// representation; every other caller speaks the typed grammar above.
func (f *Filter) toQdrant() *qdrant.Filter {
	if f.Empty() {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(f.equals)+len(f.in)+len(f.ranges))

	for key, value := range f.equals {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   key,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
				},
			},
		})
	}

	for key, values := range f.in {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keywords{
							Keywords: &qdrant.RepeatedStrings{Strings: values},
						},
					},
				},
			},
		})
	}

	for key, rp := range f.ranges {
		r := &qdrant.Range{}
		if rp.gte != nil {
			v := float64(*rp.gte)
			r.Gte = &v
		}
		if rp.lte != nil {
			v := float64(*rp.lte)
			r.Lte = &v
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{Key: key, Range: r},
			},
		})
	}

	return &qdrant.Filter{Must: conditions}
}
