package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/unclebandit/creator-outreach/internal/model"
)

var (
	// positiveIdioms contain a negator but read as agreement.
	positiveIdioms = []string{
		"can't wait", "cant wait", "cannot wait", "no problem", "no worries", "why not", "no doubt",
	}
	refusals = []string{
		"no thanks", "no thank you", "not a fit", "not right now", "not for me", "not at this time",
		"unsubscribe", "stop messaging", "pass on", "i'll pass", "ill pass", "decline",
		"can't do", "cannot do", "can't commit", "cannot commit", "won't be", "unable to",
	}
	positivePhrases = []string{
		"interested", "yes", "sure", "sounds good", "sounds great", "let's do", "lets do",
		"love to", "happy to", "count me in", "i'm in", "im in", "deal", "absolutely", "accept",
	}
	// hedges turn neutral rather than negative when negated ("not sure").
	hedges = map[string]bool{"sure": true}

	negators = map[string]bool{
		"not": true, "no": true, "never": true, "don't": true, "dont": true, "isn't": true,
		"can't": true, "cant": true, "cannot": true, "won't": true, "wont": true,
	}
	wordPattern = regexp.MustCompile(`[a-z']+`)
)

// negationWindow is how many words before a positive phrase a negator still applies to.
const negationWindow = 3

// KeywordClassifier is the offline fallback for reply sentiment.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, text string) (model.Sentiment, error) {
	words := wordPattern.FindAllString(strings.ToLower(strings.ReplaceAll(text, "\u2019", "'")), -1)

	positive := false
	for _, idiom := range positiveIdioms {
		for _, i := range phraseIndexes(words, idiom) {
			positive = true
			for j := range strings.Fields(idiom) {
				words[i+j] = ""
			}
		}
	}

	for _, phrase := range refusals {
		if len(phraseIndexes(words, phrase)) > 0 {
			return model.SentimentNegative, nil
		}
	}

	for _, phrase := range positivePhrases {
		for _, i := range phraseIndexes(words, phrase) {
			if !negated(words, i) {
				positive = true
				continue
			}
			if !hedges[phrase] {
				return model.SentimentNegative, nil
			}
		}
	}

	switch {
	case positive:
		return model.SentimentPositive, nil
	case len(words) > 0 && words[0] == "no":
		return model.SentimentNegative, nil
	}
	return model.SentimentNeutral, nil
}

func negated(words []string, at int) bool {
	for i := max(0, at-negationWindow); i < at; i++ {
		if negators[words[i]] {
			return true
		}
	}
	return false
}

// phraseIndexes returns every word offset where phrase starts.
func phraseIndexes(words []string, phrase string) []int {
	parts := strings.Fields(phrase)
	var out []int
	for i := 0; i+len(parts) <= len(words); i++ {
		match := true
		for j, p := range parts {
			if words[i+j] != p {
				match = false
				break
			}
		}
		if match {
			out = append(out, i)
		}
	}
	return out
}

// FallbackClassifier asks Primary first and falls back to keywords on error.
type FallbackClassifier struct {
	Primary SentimentClassifier
}

func (f FallbackClassifier) Classify(ctx context.Context, text string) (model.Sentiment, error) {
	if f.Primary != nil {
		s, err := f.Primary.Classify(ctx, text)
		if err == nil {
			return s, nil
		}
		log.Warn().Err(err).Msg("sentiment classifier unavailable, using keywords")
	}
	return KeywordClassifier{}.Classify(ctx, text)
}
