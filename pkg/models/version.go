package models

import (
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/lineage"
)

// Visibility values. A version is written as public or private; the override
// is a post-hoc moderation state that wins whenever it is set.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
	VisibilityDeleted = "deleted" // override only
)

// Origin values record which entry path produced a version.
const (
	OriginAPI          = "api"
	OriginImported     = "imported"
	OriginLegacyEditor = "legacy-editor"
	OriginRollback     = "rollback"
	OriginScripted     = "scripted"
	OriginTern         = "tern"
	OriginUpload       = "upload"
	OriginWebEditor    = "web-editor"
)

var validOrigins = map[string]bool{
	OriginAPI:          true,
	OriginImported:     true,
	OriginLegacyEditor: true,
	OriginRollback:     true,
	OriginScripted:     true,
	OriginTern:         true,
	OriginUpload:       true,
	OriginWebEditor:    true,
}

// IsValidOrigin reports whether the origin is one of the known entry paths.
func IsValidOrigin(origin string) bool {
	return validOrigins[origin]
}

// VersionView selects which slice of a language's history is visible.
type VersionView string

const (
	// ViewFull includes every version, deleted ones too. Version numbering
	// is always computed against this view.
	ViewFull VersionView = "full"
	// ViewExtant excludes versions overridden to deleted. This is the
	// default working view.
	ViewExtant VersionView = "extant"
	// ViewPublic additionally excludes private versions unless overridden
	// to public.
	ViewPublic VersionView = "public"
)

// SubtitleVersion is one immutable changeset in a language's history. Only
// the visibility override may change after the version is written.
type SubtitleVersion struct {
	ID            string `json:"id" db:"id"`
	VideoID       string `json:"video_id" db:"video_id"`
	LanguageID    string `json:"language_id" db:"subtitle_language_id"`
	LanguageCode  string `json:"language_code" db:"language_code"`
	VersionNumber int    `json:"version_number" db:"version_number"`

	Visibility         string `json:"visibility" db:"visibility"`
	VisibilityOverride string `json:"visibility_override" db:"visibility_override"`

	Title       string `json:"title" db:"title"`
	Description string `json:"description" db:"description"`
	Note        string `json:"note" db:"note"`

	// AuthorID is empty for anonymous authors.
	AuthorID string `json:"author_id" db:"author_id"`
	Origin   string `json:"origin" db:"origin"`

	// RollbackOfVersionNumber is nil for normal versions, 0 for legacy
	// rollbacks whose source was lost, and the source number otherwise.
	RollbackOfVersionNumber *int `json:"rollback_of_version_number,omitempty" db:"rollback_of_version_number"`

	SubtitleCount int             `json:"subtitle_count" db:"subtitle_count"`
	Lineage       lineage.Lineage `json:"lineage" db:"-"`

	Metadata map[string]string `json:"metadata,omitempty" db:"-"`

	// TimeChange and TextChange are fractions in [0,1] memoized from the
	// differ when one is configured.
	TimeChange *float64 `json:"time_change,omitempty" db:"time_change"`
	TextChange *float64 `json:"text_change,omitempty" db:"text_change"`

	// ParentIDs are the direct ancestors, at most one per language code.
	ParentIDs []string `json:"parent_ids,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EffectiveVisibility resolves the tri-state: the override wins when set.
func (v *SubtitleVersion) EffectiveVisibility() string {
	if v.VisibilityOverride != "" {
		return v.VisibilityOverride
	}
	return v.Visibility
}

// IsPublic reports whether the version appears in the public view.
func (v *SubtitleVersion) IsPublic() bool {
	return v.EffectiveVisibility() == VisibilityPublic
}

// IsPrivate reports whether the version is hidden from the public view but
// not deleted.
func (v *SubtitleVersion) IsPrivate() bool {
	return v.EffectiveVisibility() == VisibilityPrivate
}

// IsDeleted reports whether the version is excluded from the extant view.
func (v *SubtitleVersion) IsDeleted() bool {
	return v.VisibilityOverride == VisibilityDeleted
}

// IsRollback reports whether this version restored an earlier one.
func (v *SubtitleVersion) IsRollback() bool {
	return v.RollbackOfVersionNumber != nil
}

// InView reports whether the version is included in the given view.
func (v *SubtitleVersion) InView(view VersionView) bool {
	switch view {
	case ViewPublic:
		return v.IsPublic()
	case ViewExtant:
		return !v.IsDeleted()
	default:
		return true
	}
}

// Validate checks the write-time invariants. The version number must already
// be assigned.
func (v *SubtitleVersion) Validate() error {
	if v.Visibility != VisibilityPublic && v.Visibility != VisibilityPrivate {
		return fmt.Errorf("invalid visibility %q", v.Visibility)
	}

	switch v.VisibilityOverride {
	case "", VisibilityPublic, VisibilityPrivate, VisibilityDeleted:
	default:
		return fmt.Errorf("invalid visibility override %q", v.VisibilityOverride)
	}

	if !IsValidOrigin(v.Origin) {
		return fmt.Errorf("invalid origin %q", v.Origin)
	}

	if v.VersionNumber < 1 {
		return fmt.Errorf("version number must be positive, got %d", v.VersionNumber)
	}

	if v.RollbackOfVersionNumber != nil {
		if *v.RollbackOfVersionNumber < 0 {
			return fmt.Errorf("rollback source number cannot be negative")
		}
		if *v.RollbackOfVersionNumber >= v.VersionNumber {
			return fmt.Errorf("version %d cannot be a rollback of version %d", v.VersionNumber, *v.RollbackOfVersionNumber)
		}
	}

	return nil
}

// ParentRef names a parent version by language and number.
type ParentRef struct {
	LanguageCode  string `json:"language_code" validate:"required"`
	VersionNumber int    `json:"version_number" validate:"required,min=1"`
}

// AddVersionRequest is the write-gateway input. Exactly one of RawMarkup and
// Items may be set; when neither is, the version is created empty.
type AddVersionRequest struct {
	VideoID      string `json:"video_id" validate:"required"`
	LanguageCode string `json:"language_code" validate:"required"`

	RawMarkup string          `json:"raw_markup,omitempty"`
	Items     []SubtitleItem  `json:"items,omitempty"`
	Parents   []ParentRef     `json:"parents,omitempty"`
	Lineage   lineage.Lineage `json:"lineage,omitempty"`

	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Note        string            `json:"note,omitempty"`
	AuthorID    string            `json:"author_id,omitempty"`
	Origin      string            `json:"origin" validate:"required"`
	Visibility  string            `json:"visibility,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	RollbackOfVersionNumber *int `json:"rollback_of_version_number,omitempty"`

	// CreateLanguage creates the subtitle language if it does not exist yet.
	CreateLanguage bool `json:"create_language,omitempty"`
	// SubtitlesComplete, when set, updates the language flag alongside the write.
	SubtitlesComplete *bool `json:"subtitles_complete,omitempty"`
}

// RollbackRequest restores an earlier version's content as a new version.
type RollbackRequest struct {
	AuthorID string `json:"author_id,omitempty"`
	Note     string `json:"note,omitempty"`
}

// SubtitleItem mirrors subtitle.Item for transport.
type SubtitleItem struct {
	StartMS *int   `json:"start_ms"`
	EndMS   *int   `json:"end_ms"`
	Text    string `json:"text"`
}

type VersionResponse struct {
	SubtitleVersion
}

type VersionListResponse struct {
	Items      []SubtitleVersion `json:"items"`
	TotalCount int               `json:"total_count"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
}
