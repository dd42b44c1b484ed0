package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	t.Run("should round trip a populated set", func(t *testing.T) {
		original := FromItems("pt-br", []Item{
			{StartMS: msPtr(0), EndMS: msPtr(1200), Text: "Olá"},
			{StartMS: nil, EndMS: nil, Text: "ainda não sincronizado"},
		})

		payload, err := Encode(original)
		require.NoError(t, err)

		restored, err := Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, original, restored)
	})

	t.Run("should restore an empty set with a non-nil item slice", func(t *testing.T) {
		payload, err := Encode(Empty("en"))
		require.NoError(t, err)

		restored, err := Decode(payload)
		require.NoError(t, err)
		assert.NotNil(t, restored.Items)
		assert.Equal(t, 0, restored.Len())
	})

	t.Run("should refuse a nil set", func(t *testing.T) {
		_, err := Encode(nil)
		assert.Error(t, err)
	})

	t.Run("should refuse empty or corrupt payloads", func(t *testing.T) {
		_, err := Decode(nil)
		assert.Error(t, err)

		_, err = Decode([]byte("definitely not zlib"))
		assert.Error(t, err)
	})
}

func TestChangeFractions(t *testing.T) {
	base := func() *Set {
		return FromItems("en", []Item{
			{StartMS: msPtr(0), EndMS: msPtr(1000), Text: "one"},
			{StartMS: msPtr(1000), EndMS: msPtr(2000), Text: "two"},
		})
	}

	t.Run("should report no change for identical sets", func(t *testing.T) {
		timeChange, textChange := ChangeFractions(base(), base())

		assert.Zero(t, timeChange)
		assert.Zero(t, textChange)
	})

	t.Run("should report a pure retiming as time change only", func(t *testing.T) {
		next := base()
		next.Items[0].StartMS = msPtr(100)

		timeChange, textChange := ChangeFractions(base(), next)

		assert.Equal(t, 0.5, timeChange)
		assert.Zero(t, textChange)
	})

	t.Run("should report a pure rewrite as text change only", func(t *testing.T) {
		next := base()
		next.Items[1].Text = "deux"

		timeChange, textChange := ChangeFractions(base(), next)

		assert.Zero(t, timeChange)
		assert.Equal(t, 0.5, textChange)
	})

	t.Run("should count added cues as changes on both axes", func(t *testing.T) {
		next := base()
		next.Items = append(next.Items, Item{StartMS: msPtr(2000), EndMS: msPtr(3000), Text: "three"})

		timeChange, textChange := ChangeFractions(base(), next)

		assert.InDelta(t, 1.0/3.0, timeChange, 1e-9)
		assert.InDelta(t, 1.0/3.0, textChange, 1e-9)
	})

	t.Run("should treat syncing an unsynced cue as a time change", func(t *testing.T) {
		previous := FromItems("en", []Item{{Text: "one"}})
		next := FromItems("en", []Item{{StartMS: msPtr(0), EndMS: msPtr(1000), Text: "one"}})

		timeChange, textChange := ChangeFractions(previous, next)

		assert.Equal(t, 1.0, timeChange)
		assert.Zero(t, textChange)
	})

	t.Run("should report zero for two empty sets", func(t *testing.T) {
		timeChange, textChange := ChangeFractions(Empty("en"), Empty("en"))

		assert.Zero(t, timeChange)
		assert.Zero(t, textChange)
	})
}
