// Package event defines the closed set of events the automation engine and the
// webhook reactor emit. Consumers register handlers against these types through
// a Publisher implementation; the engine never imports its consumers.
package event

import (
	"context"
	"time"
)

const (
	TypeCampaignStarted    = "campaign:started"
	TypeCampaignPaused     = "campaign:paused"
	TypeCampaignCompleted  = "campaign:completed"
	TypeCampaignNoCreators = "campaign:no_creators"
	TypeCampaignError      = "campaign:error"
	TypeInvitationSent     = "invitation:sent"
	TypeInvitationFailed   = "invitation:failed"
	TypeInvitationViewed   = "invitation:viewed"
	TypeInvitationAccepted = "invitation:accepted"
	TypeInvitationDeclined = "invitation:declined"
)

// Event is implemented only by the types in this package.
type Event interface {
	Type() string
	Campaign() int
	sealed()
}

// Publisher receives engine events. Implementations must not block for long.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// JobStats are the counters reported when a job ends.
type JobStats struct {
	Processed  int       `json:"processed"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
}

type CampaignStarted struct {
	CampaignID int
	RunID      string
}

type CampaignPaused struct {
	CampaignID int
	Stats      JobStats
}

type CampaignCompleted struct {
	CampaignID int
	Reason     string
	Stats      JobStats
}

type CampaignNoCreators struct {
	CampaignID int
	Discovered int
}

type CampaignError struct {
	CampaignID int
	Err        string
}

type InvitationSent struct {
	CampaignID   int
	CreatorID    int
	InvitationID int
}

type InvitationFailed struct {
	CampaignID   int
	CreatorID    int
	InvitationID int
	Err          string
}

type InvitationViewed struct {
	CampaignID   int
	CreatorID    int
	InvitationID int
}

type InvitationAccepted struct {
	CampaignID   int
	CreatorID    int
	InvitationID int
}

type InvitationDeclined struct {
	CampaignID   int
	CreatorID    int
	InvitationID int
}

func (CampaignStarted) Type() string    { return TypeCampaignStarted }
func (CampaignPaused) Type() string     { return TypeCampaignPaused }
func (CampaignCompleted) Type() string  { return TypeCampaignCompleted }
func (CampaignNoCreators) Type() string { return TypeCampaignNoCreators }
func (CampaignError) Type() string      { return TypeCampaignError }
func (InvitationSent) Type() string     { return TypeInvitationSent }
func (InvitationFailed) Type() string   { return TypeInvitationFailed }
func (InvitationViewed) Type() string   { return TypeInvitationViewed }
func (InvitationAccepted) Type() string { return TypeInvitationAccepted }
func (InvitationDeclined) Type() string { return TypeInvitationDeclined }

func (e CampaignStarted) Campaign() int    { return e.CampaignID }
func (e CampaignPaused) Campaign() int     { return e.CampaignID }
func (e CampaignCompleted) Campaign() int  { return e.CampaignID }
func (e CampaignNoCreators) Campaign() int { return e.CampaignID }
func (e CampaignError) Campaign() int      { return e.CampaignID }
func (e InvitationSent) Campaign() int     { return e.CampaignID }
func (e InvitationFailed) Campaign() int   { return e.CampaignID }
func (e InvitationViewed) Campaign() int   { return e.CampaignID }
func (e InvitationAccepted) Campaign() int { return e.CampaignID }
func (e InvitationDeclined) Campaign() int { return e.CampaignID }

func (CampaignStarted) sealed()    {}
func (CampaignPaused) sealed()     {}
func (CampaignCompleted) sealed()  {}
func (CampaignNoCreators) sealed() {}
func (CampaignError) sealed()      {}
func (InvitationSent) sealed()     {}
func (InvitationFailed) sealed()   {}
func (InvitationViewed) sealed()   {}
func (InvitationAccepted) sealed() {}
func (InvitationDeclined) sealed() {}
