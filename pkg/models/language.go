package models

import (
	"regexp"
	"time"
)

// WritelockTimeout is how long a writelock is honored without being refreshed.
const WritelockTimeout = 30 * time.Second

// SubtitleLanguage is the subtitle track for one language of one video. It is
// the branch head of that language's version history.
type SubtitleLanguage struct {
	ID           string    `json:"id" db:"id"`
	VideoID      string    `json:"video_id" db:"video_id"`
	LanguageCode string    `json:"language_code" db:"language_code"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	// SubtitlesComplete means the subtitles cover the full duration of the video.
	SubtitlesComplete bool `json:"subtitles_complete" db:"subtitles_complete"`

	// IsForked means the language stands alone rather than following a
	// translation source.
	IsForked bool `json:"is_forked" db:"is_forked"`

	WritelockOwner      *string    `json:"writelock_owner,omitempty" db:"writelock_owner"`
	WritelockSessionKey *string    `json:"writelock_session_key,omitempty" db:"writelock_session_key"`
	WritelockTime       *time.Time `json:"writelock_time,omitempty" db:"writelock_time"`

	OfficialSignoffCount         int `json:"official_signoff_count" db:"official_signoff_count"`
	UnofficialSignoffCount       int `json:"unofficial_signoff_count" db:"unofficial_signoff_count"`
	PendingSignoffCount          int `json:"pending_signoff_count" db:"pending_signoff_count"`
	PendingSignoffExpiredCount   int `json:"pending_signoff_expired_count" db:"pending_signoff_expired_count"`
	PendingSignoffUnexpiredCount int `json:"pending_signoff_unexpired_count" db:"pending_signoff_unexpired_count"`

	SubtitlesFetchedCount int `json:"subtitles_fetched_count" db:"subtitles_fetched_count"`
}

// IsWritelocked reports whether a writelock is currently held. Locks silently
// expire WritelockTimeout after the holder last refreshed them.
func (l *SubtitleLanguage) IsWritelocked() bool {
	if l.WritelockTime == nil {
		return false
	}
	return time.Now().UTC().Sub(l.WritelockTime.UTC()) < WritelockTimeout
}

// CanWritelock reports whether the given session may take the lock: either it
// already holds it, or nobody does.
func (l *SubtitleLanguage) CanWritelock(sessionKey string) bool {
	if l.WritelockSessionKey != nil && *l.WritelockSessionKey == sessionKey {
		return true
	}
	return !l.IsWritelocked()
}

// Writelock overwrites the lock triple unconditionally. Callers must check
// CanWritelock first.
func (l *SubtitleLanguage) Writelock(userID string, sessionKey string) {
	if userID == "" {
		l.WritelockOwner = nil // anonymous holder
	} else {
		l.WritelockOwner = &userID
	}
	l.WritelockSessionKey = &sessionKey
	now := time.Now().UTC()
	l.WritelockTime = &now
}

// ReleaseWritelock clears the lock triple.
func (l *SubtitleLanguage) ReleaseWritelock() {
	l.WritelockOwner = nil
	l.WritelockSessionKey = nil
	l.WritelockTime = nil
}

var languageCodeRe = regexp.MustCompile(`^[a-z]{2,3}(-[a-zA-Z0-9]{2,8})*$`)

// IsValidLanguageCode checks the code against the recognized format
// (lowercase primary subtag plus optional subtags, e.g. "en", "pt-br").
func IsValidLanguageCode(code string) bool {
	return languageCodeRe.MatchString(code)
}

// CreateLanguageRequest creates a new subtitle language for a video.
type CreateLanguageRequest struct {
	LanguageCode      string `json:"language_code" validate:"required"`
	SubtitlesComplete bool   `json:"subtitles_complete"`
	IsForked          bool   `json:"is_forked"`
}

// UpdateLanguageRequest updates mutable language flags.
type UpdateLanguageRequest struct {
	SubtitlesComplete *bool `json:"subtitles_complete,omitempty"`
	IsForked          *bool `json:"is_forked,omitempty"`
}

// WritelockRequest acquires or refreshes a writelock.
type WritelockRequest struct {
	SessionKey string `json:"session_key" validate:"required"`
}

type LanguageResponse struct {
	SubtitleLanguage
	IsWritelocked bool `json:"is_writelocked"`
}

type LanguageListResponse struct {
	Items      []LanguageResponse `json:"items"`
	TotalCount int                `json:"total_count"`
}
