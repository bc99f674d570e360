// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	ErrCreatorNotFound         = errors.New("creator not found")
	ErrInvitationNotFound      = errors.New("invitation not found")
	ErrDuplicateInvitation     = errors.New("creator already has an open invitation for this campaign")
	ErrCampaignNotStartable    = errors.New("campaign is not in a startable status")
	ErrJobAlreadyRunning       = errors.New("automation already running for this campaign")
	ErrJobNotRunning           = errors.New("automation is not running for this campaign")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrEmptyTemplate           = errors.New("template cannot be empty")
	ErrInvalidSignature        = errors.New("invalid webhook signature")
	ErrEngineStopped           = errors.New("automation engine is shutting down")
)

// ErrCampaignNotFound is returned when a campaign id does not exist.
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// IsCampaignNotFound reports whether err wraps an *ErrCampaignNotFound.
func IsCampaignNotFound(err error) bool {
	var nf *ErrCampaignNotFound
	return errors.As(err, &nf)
}

// TransportError is a failed delivery reported by the messaging transport.
type TransportError struct {
	Code    int
	Message string
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("transport rejected message (code %d): %s", e.Code, e.Message)
	}
	return "transport rejected message: " + e.Message
}
