package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/unclebandit/creator-outreach/internal/model"
)

// CreatorDirectory searches the marketplace for creators matching a campaign.
type CreatorDirectory interface {
	Find(ctx context.Context, criteria model.SearchCriteria) ([]*model.Creator, error)
	// LookupRevenue returns a creator's revenue to date (GMV).
	LookupRevenue(ctx context.Context, externalID string) (decimal.Decimal, error)
}

// MessageTransport delivers an invitation to a creator and returns the transport message id.
// A rejected message is reported as an *appErrors.TransportError.
type MessageTransport interface {
	Deliver(ctx context.Context, externalID, text string) (string, error)
}

// MessageEnhancer rewrites a rendered invitation for a specific creator.
type MessageEnhancer interface {
	Enhance(ctx context.Context, text string, c *model.Creator) (string, error)
}

// SentimentClassifier classifies a creator's free-text reply.
type SentimentClassifier interface {
	Classify(ctx context.Context, text string) (model.Sentiment, error)
}
