// internal/service/template_service.go
package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/unclebandit/creator-outreach/internal/model"
)

// DefaultMessageTemplate is used when a campaign has no template of its own.
const DefaultMessageTemplate = "Hi {creator_name}! Love your {categories} content. " +
	"Would you be interested in collaborating on our latest campaign?"

var placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)

var numberPrinter = message.NewPrinter(language.English)

// Render fills the template's placeholders from the creator profile. Unknown placeholders
// are left as they are and missing profile fields fall back to neutral wording.
func Render(template string, c *model.Creator) string {
	if c == nil {
		c = &model.Creator{}
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		switch token {
		case "{creator_name}":
			return creatorName(c)
		case "{follower_count}":
			return numberPrinter.Sprintf("%d", c.FollowerCount)
		case "{engagement_rate}":
			if c.EngagementRate == nil {
				return "high"
			}
			return fmt.Sprintf("%.1f%%", *c.EngagementRate*100)
		case "{categories}":
			if len(c.Categories) == 0 {
				return "your content"
			}
			return strings.Join(c.Categories, ", ")
		case "{location}":
			return replace(c.Location, "your area")
		}
		return token
	})
}

func creatorName(c *model.Creator) string {
	if name := strings.TrimSpace(c.DisplayName); name != "" {
		return name
	}
	return replace(c.Username, "there")
}

func replace(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// Personalizer renders invitations and optionally hands them to an AI enhancer.
type Personalizer struct {
	Enhancer MessageEnhancer
}

// Personalize never fails: an enhancer error returns the statically rendered text.
func (p *Personalizer) Personalize(ctx context.Context, template string, c *model.Creator) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultMessageTemplate
	}
	text := Render(template, c)
	if p == nil || p.Enhancer == nil || c == nil {
		return text
	}

	enhanced, err := p.Enhancer.Enhance(ctx, text, c)
	if err != nil || strings.TrimSpace(enhanced) == "" {
		log.Debug().Err(err).Str("creator", c.ExternalID).Msg("message enhancement unavailable, using template")
		return text
	}
	return enhanced
}
