package model

// Sentiment is the classified tone of a creator's reply.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Decision maps a sentiment onto the terminal invitation status it implies.
// Neutral replies leave the invitation in responded.
func (s Sentiment) Decision() (InvitationStatus, bool) {
	switch s {
	case SentimentPositive:
		return InvitationStatusAccepted, true
	case SentimentNegative:
		return InvitationStatusDeclined, true
	}
	return "", false
}

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}
