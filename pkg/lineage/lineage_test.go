package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	t.Run("should record each parent at its own number", func(t *testing.T) {
		result := Merge([]VersionRef{
			{LanguageCode: "en", VersionNumber: 3},
			{LanguageCode: "fr", VersionNumber: 1},
		}, []Lineage{nil, nil})

		assert.Equal(t, Lineage{"en": 3, "fr": 1}, result)
	})

	t.Run("should fold parent lineages with a max reduction", func(t *testing.T) {
		result := Merge([]VersionRef{
			{LanguageCode: "fr", VersionNumber: 2},
		}, []Lineage{
			{"en": 5, "de": 1},
		})

		assert.Equal(t, Lineage{"fr": 2, "en": 5, "de": 1}, result)
	})

	t.Run("should keep the highest number when sources disagree", func(t *testing.T) {
		result := Merge([]VersionRef{
			{LanguageCode: "en", VersionNumber: 2},
			{LanguageCode: "fr", VersionNumber: 4},
		}, []Lineage{
			{"en": 7},
			{"en": 3, "fr": 1},
		})

		assert.Equal(t, Lineage{"en": 7, "fr": 4}, result)
	})

	t.Run("should be independent of parent order", func(t *testing.T) {
		parents := []VersionRef{
			{LanguageCode: "en", VersionNumber: 2},
			{LanguageCode: "fr", VersionNumber: 4},
		}
		lineages := []Lineage{
			{"de": 9},
			{"en": 3},
		}

		forward := Merge(parents, lineages)
		reversed := Merge(
			[]VersionRef{parents[1], parents[0]},
			[]Lineage{lineages[1], lineages[0]},
		)

		assert.Equal(t, forward, reversed)
	})

	t.Run("should return an empty lineage for no parents", func(t *testing.T) {
		result := Merge(nil, nil)

		assert.NotNil(t, result)
		assert.Empty(t, result)
	})
}

func TestCopy(t *testing.T) {
	t.Run("should detach the copy from the original", func(t *testing.T) {
		original := Lineage{"en": 1}
		copied := original.Copy()
		copied["en"] = 5

		assert.Equal(t, 1, original["en"])
		assert.Equal(t, 5, copied["en"])
	})
}

func TestContains(t *testing.T) {
	t.Run("should report entries regardless of number", func(t *testing.T) {
		l := Lineage{"en": 0}

		assert.True(t, l.Contains("en"))
		assert.False(t, l.Contains("fr"))
	})
}

func TestJSONRoundTrip(t *testing.T) {
	t.Run("should survive serialization", func(t *testing.T) {
		original := Lineage{"en": 3, "pt-br": 12}

		data, err := original.ToJSON()
		assert.NoError(t, err)

		restored, err := FromJSON(data)
		assert.NoError(t, err)
		assert.Equal(t, original, restored)
	})

	t.Run("should decode empty input to an empty lineage", func(t *testing.T) {
		restored, err := FromJSON(nil)

		assert.NoError(t, err)
		assert.NotNil(t, restored)
		assert.Empty(t, restored)
	})

	t.Run("should serialize a nil lineage as an empty object", func(t *testing.T) {
		var l Lineage

		data, err := l.ToJSON()
		assert.NoError(t, err)
		assert.Equal(t, "{}", string(data))
	})
}
