package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/unclebandit/creator-outreach/internal/model"
)

const DefaultBatchSize = 5

// Governor decides how many invitations a job may still send and when it ticks next.
type Governor struct {
	batchSize     int
	costPerInvite decimal.Decimal
	delayUnit     time.Duration
	limiter       *rate.Limiter
}

// NewGovernor builds a governor. perMinute > 0 adds a process-wide ceiling shared by every job.
func NewGovernor(batchSize int, costPerInvite decimal.Decimal, perMinute int) *Governor {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	g := &Governor{
		batchSize:     batchSize,
		costPerInvite: costPerInvite,
		delayUnit:     time.Second,
	}
	if perMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return g
}

// RemainingQuota is how many more creators the job may process. Zero or less means done.
func (g *Governor) RemainingQuota(processed int, c *model.Campaign) int {
	quota := c.InviteLimit - processed

	if c.Budget.IsPositive() && g.costPerInvite.IsPositive() {
		left := c.Budget.Sub(c.Spent)
		affordable := int(left.Div(g.costPerInvite).Floor().IntPart())
		if affordable < quota {
			quota = affordable
		}
	}
	return quota
}

// BatchSize caps a batch at both the configured size and the remaining quota.
func (g *Governor) BatchSize(quota int) int {
	return min(g.batchSize, max(quota, 0))
}

// NextDelay is the fixed pause after a tick finishes.
func (g *Governor) NextDelay(c *model.Campaign) time.Duration {
	return time.Duration(c.InviteDelay) * g.delayUnit
}

// Cost is what a number of send attempts adds to a campaign's spent.
func (g *Governor) Cost(attempts int) decimal.Decimal {
	return g.costPerInvite.Mul(decimal.NewFromInt(int64(attempts)))
}

// Wait blocks on the global ceiling, if one is configured.
func (g *Governor) Wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}
