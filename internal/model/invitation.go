// internal/model/invitation.go
package model

import (
	"database/sql"
	"time"
)

type InvitationStatus string

const (
	InvitationStatusPending   InvitationStatus = "pending"
	InvitationStatusSent      InvitationStatus = "sent"
	InvitationStatusViewed    InvitationStatus = "viewed"
	InvitationStatusResponded InvitationStatus = "responded"
	InvitationStatusAccepted  InvitationStatus = "accepted"
	InvitationStatusDeclined  InvitationStatus = "declined"
	InvitationStatusFailed    InvitationStatus = "failed"
)

// lifecycle rank; accepted and declined are both terminal.
var invitationRank = map[InvitationStatus]int{
	InvitationStatusPending:   0,
	InvitationStatusSent:      1,
	InvitationStatusViewed:    2,
	InvitationStatusResponded: 3,
	InvitationStatusAccepted:  4,
	InvitationStatusDeclined:  4,
}

// PrecedingStatuses lists the statuses an invitation may be advanced from to reach target.
// Failed invitations never advance.
func PrecedingStatuses(target InvitationStatus) []InvitationStatus {
	rank, ok := invitationRank[target]
	if !ok {
		return nil
	}
	var out []InvitationStatus
	for _, s := range []InvitationStatus{
		InvitationStatusPending,
		InvitationStatusSent,
		InvitationStatusViewed,
		InvitationStatusResponded,
	} {
		if invitationRank[s] < rank {
			out = append(out, s)
		}
	}
	return out
}

// CanAdvance reports whether from -> to moves forward in the lifecycle.
func CanAdvance(from, to InvitationStatus) bool {
	for _, s := range PrecedingStatuses(to) {
		if s == from {
			return true
		}
	}
	return false
}

type Invitation struct {
	ID          int              `db:"id" json:"id"`
	CampaignID  int              `db:"campaign_id" json:"campaign_id"`
	CreatorID   int              `db:"creator_id" json:"creator_id"`
	MessageID   sql.NullString   `db:"message_id" json:"-"`
	Message     string           `db:"message" json:"message"`
	Status      InvitationStatus `db:"status" json:"status"` // pending, sent, viewed, responded, accepted, declined, failed
	SentAt      *time.Time       `db:"sent_at" json:"sent_at,omitempty"`
	ViewedAt    *time.Time       `db:"viewed_at" json:"viewed_at,omitempty"`
	RespondedAt *time.Time       `db:"responded_at" json:"responded_at,omitempty"`
	DecidedAt   *time.Time       `db:"decided_at" json:"decided_at,omitempty"`
	Response    sql.NullString   `db:"response" json:"-"`
	LastError   sql.NullString   `db:"last_error" json:"-"`
	RetryCount  int              `db:"retry_count" json:"retry_count"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// IsFailed reports whether the invitation was a failed send attempt.
func (i *Invitation) IsFailed() bool {
	return i.Status == InvitationStatusFailed
}

// InvitationUpdate carries the optional columns written alongside a status change.
type InvitationUpdate struct {
	Response  *string
	LastError *string
	At        time.Time
}
