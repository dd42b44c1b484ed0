package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int {
	return &v
}

func TestEffectiveVisibility(t *testing.T) {
	t.Run("should use the written visibility when no override is set", func(t *testing.T) {
		v := &SubtitleVersion{Visibility: VisibilityPrivate}

		assert.Equal(t, VisibilityPrivate, v.EffectiveVisibility())
		assert.True(t, v.IsPrivate())
		assert.False(t, v.IsPublic())
	})

	t.Run("should let the override win over the written visibility", func(t *testing.T) {
		v := &SubtitleVersion{Visibility: VisibilityPrivate, VisibilityOverride: VisibilityPublic}

		assert.True(t, v.IsPublic())
	})

	t.Run("should hide a public version overridden to private", func(t *testing.T) {
		v := &SubtitleVersion{Visibility: VisibilityPublic, VisibilityOverride: VisibilityPrivate}

		assert.False(t, v.IsPublic())
		assert.True(t, v.IsPrivate())
	})

	t.Run("should treat only the deleted override as deleted", func(t *testing.T) {
		deleted := &SubtitleVersion{Visibility: VisibilityPublic, VisibilityOverride: VisibilityDeleted}
		private := &SubtitleVersion{Visibility: VisibilityPrivate}

		assert.True(t, deleted.IsDeleted())
		assert.False(t, private.IsDeleted())
	})
}

func TestInView(t *testing.T) {
	public := &SubtitleVersion{Visibility: VisibilityPublic}
	private := &SubtitleVersion{Visibility: VisibilityPrivate}
	deleted := &SubtitleVersion{Visibility: VisibilityPublic, VisibilityOverride: VisibilityDeleted}
	republished := &SubtitleVersion{Visibility: VisibilityPrivate, VisibilityOverride: VisibilityPublic}

	t.Run("full view should include everything", func(t *testing.T) {
		for _, v := range []*SubtitleVersion{public, private, deleted, republished} {
			assert.True(t, v.InView(ViewFull))
		}
	})

	t.Run("extant view should exclude only deleted versions", func(t *testing.T) {
		assert.True(t, public.InView(ViewExtant))
		assert.True(t, private.InView(ViewExtant))
		assert.True(t, republished.InView(ViewExtant))
		assert.False(t, deleted.InView(ViewExtant))
	})

	t.Run("public view should include only effectively public versions", func(t *testing.T) {
		assert.True(t, public.InView(ViewPublic))
		assert.True(t, republished.InView(ViewPublic))
		assert.False(t, private.InView(ViewPublic))
		assert.False(t, deleted.InView(ViewPublic))
	})
}

func TestVersionValidate(t *testing.T) {
	valid := func() *SubtitleVersion {
		return &SubtitleVersion{
			VersionNumber: 3,
			Visibility:    VisibilityPublic,
			Origin:        OriginWebEditor,
		}
	}

	t.Run("should accept a well-formed version", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("should reject the deleted value as a written visibility", func(t *testing.T) {
		v := valid()
		v.Visibility = VisibilityDeleted

		assert.Error(t, v.Validate())
	})

	t.Run("should reject an unknown override", func(t *testing.T) {
		v := valid()
		v.VisibilityOverride = "hidden"

		assert.Error(t, v.Validate())
	})

	t.Run("should reject an unknown origin", func(t *testing.T) {
		v := valid()
		v.Origin = "telepathy"

		assert.Error(t, v.Validate())
	})

	t.Run("should reject a non-positive version number", func(t *testing.T) {
		v := valid()
		v.VersionNumber = 0

		assert.Error(t, v.Validate())
	})

	t.Run("should accept a rollback of an earlier version", func(t *testing.T) {
		v := valid()
		v.RollbackOfVersionNumber = intPtr(2)

		assert.NoError(t, v.Validate())
	})

	t.Run("should accept zero as an unknown rollback source", func(t *testing.T) {
		v := valid()
		v.RollbackOfVersionNumber = intPtr(0)

		assert.NoError(t, v.Validate())
		assert.True(t, v.IsRollback())
	})

	t.Run("should reject a rollback of itself or a later version", func(t *testing.T) {
		v := valid()
		v.RollbackOfVersionNumber = intPtr(3)
		assert.Error(t, v.Validate())

		v.RollbackOfVersionNumber = intPtr(7)
		assert.Error(t, v.Validate())
	})

	t.Run("should reject a negative rollback source", func(t *testing.T) {
		v := valid()
		v.RollbackOfVersionNumber = intPtr(-1)

		assert.Error(t, v.Validate())
	})
}

func TestIsValidOrigin(t *testing.T) {
	t.Run("should accept every known entry path", func(t *testing.T) {
		for _, origin := range []string{OriginAPI, OriginImported, OriginLegacyEditor, OriginRollback, OriginScripted, OriginTern, OriginUpload, OriginWebEditor} {
			assert.True(t, IsValidOrigin(origin), origin)
		}
	})

	t.Run("should reject unknown origins", func(t *testing.T) {
		assert.False(t, IsValidOrigin(""))
		assert.False(t, IsValidOrigin("editor"))
	})
}
