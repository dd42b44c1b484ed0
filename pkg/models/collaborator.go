package models

import "time"

// Collaborator tracks one user's signoff state for one subtitle language.
// (UserID, LanguageID) is unique.
type Collaborator struct {
	ID         string `json:"id" db:"id"`
	UserID     string `json:"user_id" db:"user_id"`
	LanguageID string `json:"language_id" db:"subtitle_language_id"`

	Signoff           bool `json:"signoff" db:"signoff"`
	SignoffIsOfficial bool `json:"signoff_is_official" db:"signoff_is_official"`
	Expired           bool `json:"expired" db:"expired"`

	ExpirationStart *time.Time `json:"expiration_start,omitempty" db:"expiration_start"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// SignoffCounts is the denormalized counter set stored on the language row.
// It is always recomputed from scratch, never incrementally adjusted.
type SignoffCounts struct {
	Official         int `json:"official"`
	Unofficial       int `json:"unofficial"`
	Pending          int `json:"pending"`
	PendingExpired   int `json:"pending_expired"`
	PendingUnexpired int `json:"pending_unexpired"`
}

// CountSignoffs derives the counter set from a full collaborator list.
func CountSignoffs(collaborators []Collaborator) SignoffCounts {
	var counts SignoffCounts
	for _, c := range collaborators {
		switch {
		case c.Signoff && c.SignoffIsOfficial:
			counts.Official++
		case c.Signoff:
			counts.Unofficial++
		default:
			counts.Pending++
			if c.Expired {
				counts.PendingExpired++
			} else {
				counts.PendingUnexpired++
			}
		}
	}
	return counts
}

// UpsertCollaboratorRequest creates or updates a collaborator record.
type UpsertCollaboratorRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Expired bool   `json:"expired"`
}

// SignoffRequest records a signoff for a collaborator.
type SignoffRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Official bool   `json:"official"`
}

type CollaboratorListResponse struct {
	Items      []Collaborator `json:"items"`
	TotalCount int            `json:"total_count"`
}
