package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Empty_NilAndZeroValueAreEmpty(t *testing.T) {
	var nilFilter *Filter
	assert.True(t, nilFilter.Empty())
	assert.True(t, NewFilterBuilder().Build().Empty())
}

func TestFilter_Empty_FalseOncePredicateAdded(t *testing.T) {
	f := NewFilterBuilder().Equals("repository", "acme/widgets").Build()
	assert.False(t, f.Empty())
}

func TestFilter_Repository_ReturnsEqualityPredicate(t *testing.T) {
	f := NewFilterBuilder().Equals("repository", "acme/widgets").Build()
	assert.Equal(t, "acme/widgets", f.Repository())
}

func TestFilter_Repository_EmptyWhenUnset(t *testing.T) {
	f := NewFilterBuilder().Equals("language", "go").Build()
	assert.Equal(t, "", f.Repository())
}

func TestFilter_CanonicalString_DeterministicRegardlessOfBuildOrder(t *testing.T) {
	gte := int64(10)
	lte := int64(100)

	a := NewFilterBuilder().
		Equals("repository", "acme/widgets").
		In("language", []string{"go", "rust"}).
		Range("chunk_number", &gte, &lte).
		Build()

	b := NewFilterBuilder().
		Range("chunk_number", &gte, &lte).
		In("language", []string{"rust", "go"}).
		Equals("repository", "acme/widgets").
		Build()

	assert.Equal(t, a.CanonicalString(), b.CanonicalString())
}

func TestFilter_CanonicalString_DifferentPredicatesDifferentStrings(t *testing.T) {
	a := NewFilterBuilder().Equals("repository", "acme/widgets").Build()
	b := NewFilterBuilder().Equals("repository", "other/repo").Build()
	assert.NotEqual(t, a.CanonicalString(), b.CanonicalString())
}

func TestFilter_CanonicalString_EmptyFilterIsEmptyString(t *testing.T) {
	assert.Equal(t, "", NewFilterBuilder().Build().CanonicalString())
}

func TestFilter_ToQdrant_EmptyFilterIsNil(t *testing.T) {
	f := NewFilterBuilder().Build()
	assert.Nil(t, f.toQdrant())
}

func TestFilter_ToQdrant_BuildsOneConditionPerPredicate(t *testing.T) {
	gte := int64(1)
	f := NewFilterBuilder().
		Equals("repository", "acme/widgets").
		In("language", []string{"go"}).
		Range("chunk_number", &gte, nil).
		Build()

	q := f.toQdrant()
	assert.Len(t, q.Must, 3)
}
