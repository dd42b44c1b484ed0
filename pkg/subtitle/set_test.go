package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msPtr(v int) *int {
	return &v
}

func TestFromRawMarkup(t *testing.T) {
	t.Run("should parse clock times", func(t *testing.T) {
		markup := `<tt xmlns="http://www.w3.org/ns/ttml" xml:lang="en">
			<body><div>
				<p begin="00:00:01.500" end="00:00:03.000">Hello</p>
				<p begin="00:01:00" end="00:01:02.25">World</p>
			</div></body>
		</tt>`

		set, err := FromRawMarkup("en", markup)
		require.NoError(t, err)
		require.Len(t, set.Items, 2)

		assert.Equal(t, 1500, *set.Items[0].StartMS)
		assert.Equal(t, 3000, *set.Items[0].EndMS)
		assert.Equal(t, "Hello", set.Items[0].Text)
		assert.Equal(t, 60000, *set.Items[1].StartMS)
		assert.Equal(t, 62250, *set.Items[1].EndMS)
	})

	t.Run("should parse offset times", func(t *testing.T) {
		markup := `<tt xmlns="http://www.w3.org/ns/ttml">
			<body><div>
				<p begin="2.5s" end="4500ms">Offsets</p>
			</div></body>
		</tt>`

		set, err := FromRawMarkup("en", markup)
		require.NoError(t, err)
		require.Len(t, set.Items, 1)

		assert.Equal(t, 2500, *set.Items[0].StartMS)
		assert.Equal(t, 4500, *set.Items[0].EndMS)
	})

	t.Run("should treat missing times as unsynced", func(t *testing.T) {
		markup := `<tt xmlns="http://www.w3.org/ns/ttml">
			<body><div><p>Not synced yet</p></div></body>
		</tt>`

		set, err := FromRawMarkup("en", markup)
		require.NoError(t, err)
		require.Len(t, set.Items, 1)

		assert.Nil(t, set.Items[0].StartMS)
		assert.Nil(t, set.Items[0].EndMS)
		assert.False(t, set.IsSynced())
	})

	t.Run("should collect paragraphs from nested divs", func(t *testing.T) {
		markup := `<tt xmlns="http://www.w3.org/ns/ttml">
			<body>
				<div><div><p begin="1s" end="2s">Inner</p></div></div>
				<div><p begin="3s" end="4s">Outer</p></div>
			</body>
		</tt>`

		set, err := FromRawMarkup("en", markup)
		require.NoError(t, err)
		assert.Len(t, set.Items, 2)
	})

	t.Run("should reject invalid markup", func(t *testing.T) {
		_, err := FromRawMarkup("en", "not xml at all <")
		assert.Error(t, err)
	})

	t.Run("should reject unrecognized time expressions", func(t *testing.T) {
		markup := `<tt xmlns="http://www.w3.org/ns/ttml">
			<body><div><p begin="three seconds" end="4s">Bad</p></div></body>
		</tt>`

		_, err := FromRawMarkup("en", markup)
		assert.Error(t, err)
	})
}

func TestToMarkup(t *testing.T) {
	t.Run("should round trip through markup", func(t *testing.T) {
		original := FromItems("en", []Item{
			{StartMS: msPtr(1500), EndMS: msPtr(3000), Text: "Hello <world> & co"},
			{StartMS: nil, EndMS: nil, Text: "Unsynced"},
		})

		parsed, err := FromRawMarkup("en", original.ToMarkup())
		require.NoError(t, err)
		require.Len(t, parsed.Items, 2)

		assert.Equal(t, original.Items[0].Text, parsed.Items[0].Text)
		assert.Equal(t, 1500, *parsed.Items[0].StartMS)
		assert.Equal(t, 3000, *parsed.Items[0].EndMS)
		assert.Nil(t, parsed.Items[1].StartMS)
	})
}

func TestSetHelpers(t *testing.T) {
	t.Run("should report length and sync state", func(t *testing.T) {
		set := FromItems("en", []Item{
			{StartMS: msPtr(0), EndMS: msPtr(1000), Text: "a"},
			{StartMS: msPtr(1000), EndMS: msPtr(2000), Text: "b"},
		})

		assert.Equal(t, 2, set.Len())
		assert.True(t, set.IsSynced())
	})

	t.Run("empty set should have no items but a non-nil slice", func(t *testing.T) {
		set := Empty("fr")

		assert.Equal(t, 0, set.Len())
		assert.NotNil(t, set.Items)
		assert.True(t, set.IsSynced())
	})
}
