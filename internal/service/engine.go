package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/creator-outreach/internal/errors"
	"github.com/unclebandit/creator-outreach/internal/event"
	"github.com/unclebandit/creator-outreach/internal/model"
	"github.com/unclebandit/creator-outreach/internal/repository"
)

const (
	DefaultDiscoveryLimit = 50
	DefaultLookupTimeout  = 10 * time.Second

	finishTimeout = 10 * time.Second
)

// EngineConfig wires the engine to its collaborators.
type EngineConfig struct {
	Campaigns   repository.CampaignRepositoryInterface
	Creators    repository.CreatorRepositoryInterface
	Invitations repository.InvitationRepositoryInterface

	Directory CreatorDirectory
	Transport MessageTransport
	Enhancer  MessageEnhancer
	Events    event.Publisher
	Governor  *Governor

	DiscoveryLimit        int
	SendTimeout           time.Duration
	LookupTimeout         time.Duration
	MaxAttemptsPerCreator int
}

type EngineOption func(*Engine)

// WithDelayUnit changes the unit a campaign's invite delay is counted in. Seconds by default.
func WithDelayUnit(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.governor.delayUnit = d
	}
}

// Engine runs one send loop per started campaign.
type Engine struct {
	campaigns   repository.CampaignRepositoryInterface
	creators    repository.CreatorRepositoryInterface
	invitations repository.InvitationRepositoryInterface
	directory   CreatorDirectory
	filter      *CreatorFilter
	dispatcher  *Dispatcher
	governor    *Governor
	events      event.Publisher

	discoveryLimit int
	lookupTimeout  time.Duration

	mu      sync.Mutex
	jobs    map[int]*Job
	stopped bool
	wg      sync.WaitGroup
}

func NewEngine(cfg EngineConfig, opts ...EngineOption) *Engine {
	if cfg.Events == nil {
		cfg.Events = event.Discard
	}
	if cfg.Governor == nil {
		cfg.Governor = NewGovernor(DefaultBatchSize, decimal.Zero, 0)
	}
	if cfg.DiscoveryLimit <= 0 {
		cfg.DiscoveryLimit = DefaultDiscoveryLimit
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}

	e := &Engine{
		campaigns:   cfg.Campaigns,
		creators:    cfg.Creators,
		invitations: cfg.Invitations,
		directory:   cfg.Directory,
		governor:    cfg.Governor,
		events:      cfg.Events,
		filter: &CreatorFilter{
			Invitations:   cfg.Invitations,
			Directory:     cfg.Directory,
			LookupTimeout: cfg.LookupTimeout,
			MaxAttempts:   cfg.MaxAttemptsPerCreator,
		},
		dispatcher: &Dispatcher{
			Invitations:  cfg.Invitations,
			Transport:    cfg.Transport,
			Personalizer: &Personalizer{Enhancer: cfg.Enhancer},
			Governor:     cfg.Governor,
			SendTimeout:  cfg.SendTimeout,
		},
		discoveryLimit: cfg.DiscoveryLimit,
		lookupTimeout:  cfg.LookupTimeout,
		jobs:           make(map[int]*Job),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins automation for an active or paused campaign. A paused campaign is
// persisted as active again. Counters resume from the invitations already stored.
func (e *Engine) Start(ctx context.Context, campaignID int) (JobSnapshot, error) {
	loopCtx, cancel := context.WithCancel(context.Background())
	job := &Job{
		CampaignID: campaignID,
		RunID:      uuid.NewString(),
		StartedAt:  time.Now(),
		status:     JobStatusRunning,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	for {
		e.mu.Lock()
		if e.stopped {
			e.mu.Unlock()
			cancel()
			return JobSnapshot{}, appErrors.ErrEngineStopped
		}
		prev, exists := e.jobs[campaignID]
		if !exists {
			e.jobs[campaignID] = job
			e.wg.Add(1)
			e.mu.Unlock()
			break
		}
		draining := prev.stopping
		e.mu.Unlock()
		if !draining {
			cancel()
			return JobSnapshot{}, appErrors.ErrJobAlreadyRunning
		}

		// A paused loop may still be recording its last batch.
		select {
		case <-prev.done:
		case <-ctx.Done():
			cancel()
			return JobSnapshot{}, ctx.Err()
		}
	}

	c, err := e.prepare(ctx, job)
	if err != nil {
		cancel()
		job.setStatus(JobStatusCompleted)
		e.release(job)
		close(job.done)
		e.wg.Done()
		return JobSnapshot{}, err
	}

	log.Info().
		Int("campaign_id", campaignID).
		Str("run_id", job.RunID).
		Int("processed", job.processedCount()).
		Msg("campaign automation started")
	e.publish(ctx, event.CampaignStarted{CampaignID: campaignID, RunID: job.RunID})

	go e.run(loopCtx, job, c)
	return job.Snapshot(), nil
}

func (e *Engine) prepare(ctx context.Context, job *Job) (*model.Campaign, error) {
	c, err := e.campaigns.GetByID(ctx, job.CampaignID)
	if err != nil {
		return nil, err
	}
	if !c.CanStart() {
		return nil, fmt.Errorf("%w: campaign %d is %s", appErrors.ErrCampaignNotStartable, c.ID, c.Status)
	}
	if c.Status == model.CampaignStatusPaused {
		if err := e.campaigns.UpdateStatus(ctx, c.ID, model.CampaignStatusActive); err != nil {
			return nil, fmt.Errorf("resume campaign %d: %w", c.ID, err)
		}
		c.Status = model.CampaignStatusActive
	}

	existing, err := e.invitations.ListByCampaign(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load invitations for campaign %d: %w", c.ID, err)
	}
	successful, failed := countOutcomes(existing)
	job.record(successful, failed)
	return c, nil
}

func countOutcomes(invitations []*model.Invitation) (successful, failed int) {
	for _, inv := range invitations {
		if inv.IsFailed() {
			failed++
		} else {
			successful++
		}
	}
	return successful, failed
}

// Pause cancels the loop and persists the campaign as paused without waiting for the
// current tick. Sends already in flight are still recorded when they finish.
func (e *Engine) Pause(ctx context.Context, campaignID int) (JobSnapshot, error) {
	job, err := e.stop(campaignID)
	if err != nil {
		return JobSnapshot{}, err
	}
	if !job.transition(JobStatusPaused) {
		return job.Snapshot(), appErrors.ErrJobNotRunning
	}

	if err := e.campaigns.UpdateStatus(ctx, campaignID, model.CampaignStatusPaused); err != nil {
		log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to persist paused status")
	}

	log.Info().Int("campaign_id", campaignID).Str("run_id", job.RunID).Msg("campaign automation paused")
	e.publish(ctx, event.CampaignPaused{CampaignID: campaignID, Stats: job.stats()})
	return job.Snapshot(), nil
}

// Complete ends a campaign by hand. Without a running job the campaign is completed
// with counters rebuilt from its stored invitations.
func (e *Engine) Complete(ctx context.Context, campaignID int) (JobSnapshot, error) {
	job, err := e.stop(campaignID)
	if err == nil {
		e.finish(job, ReasonManual)
		return job.Snapshot(), nil
	}
	if !errors.Is(err, appErrors.ErrJobNotRunning) {
		return JobSnapshot{}, err
	}

	c, err := e.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return JobSnapshot{}, err
	}
	if c.Status == model.CampaignStatusCompleted {
		return JobSnapshot{}, fmt.Errorf("%w: campaign %d is already completed", appErrors.ErrInvalidStatusTransition, c.ID)
	}
	existing, err := e.invitations.ListByCampaign(ctx, campaignID)
	if err != nil {
		return JobSnapshot{}, err
	}
	idle := &Job{CampaignID: campaignID, StartedAt: time.Now(), status: JobStatusRunning}
	idle.record(countOutcomes(existing))
	e.finish(idle, ReasonManual)
	return idle.Snapshot(), nil
}

// stop cancels a job's loop. It does not wait for the current tick; the loop releases
// the job when it exits.
func (e *Engine) stop(campaignID int) (*Job, error) {
	e.mu.Lock()
	job, ok := e.jobs[campaignID]
	if ok && job.stopping {
		ok = false
	}
	if ok {
		job.stopping = true
	}
	e.mu.Unlock()
	if !ok {
		return nil, appErrors.ErrJobNotRunning
	}

	job.cancel()
	return job, nil
}

func (e *Engine) release(job *Job) {
	e.mu.Lock()
	if e.jobs[job.CampaignID] == job {
		delete(e.jobs, job.CampaignID)
	}
	e.mu.Unlock()
}

// ResumeActive starts a job for every campaign persisted as active.
func (e *Engine) ResumeActive(ctx context.Context) (int, error) {
	campaigns, err := e.campaigns.ListByStatus(ctx, model.CampaignStatusActive)
	if err != nil {
		return 0, fmt.Errorf("list active campaigns: %w", err)
	}

	started := 0
	var errs []error
	for _, c := range campaigns {
		if _, err := e.Start(ctx, c.ID); err != nil {
			if errors.Is(err, appErrors.ErrJobAlreadyRunning) {
				continue
			}
			errs = append(errs, fmt.Errorf("campaign %d: %w", c.ID, err))
			continue
		}
		started++
	}
	return started, errors.Join(errs...)
}

// Snapshot returns the state of the campaign's running job.
func (e *Engine) Snapshot(campaignID int) (JobSnapshot, bool) {
	e.mu.Lock()
	job, ok := e.jobs[campaignID]
	e.mu.Unlock()
	if !ok {
		return JobSnapshot{}, false
	}
	return job.Snapshot(), true
}

func (e *Engine) Snapshots() []JobSnapshot {
	e.mu.Lock()
	jobs := make([]*Job, 0, len(e.jobs))
	for _, job := range e.jobs {
		jobs = append(jobs, job)
	}
	e.mu.Unlock()

	out := make([]JobSnapshot, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CampaignID < out[j].CampaignID })
	return out
}

// Shutdown stops every loop and waits for them. Campaigns keep their persisted status.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.stopped = true
	for _, job := range e.jobs {
		job.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context, job *Job, c *model.Campaign) {
	defer func() {
		e.release(job)
		close(job.done)
		e.wg.Done()
	}()

	for {
		var finished bool
		c, finished = e.tick(ctx, job, c)
		if finished || ctx.Err() != nil {
			return
		}

		timer := time.NewTimer(e.governor.NextDelay(c))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// tick runs one discovery and send batch. It reports true once the job is over.
func (e *Engine) tick(ctx context.Context, job *Job, last *model.Campaign) (*model.Campaign, bool) {
	if ctx.Err() != nil {
		return last, true
	}

	c, err := e.campaigns.GetByID(ctx, job.CampaignID)
	if err != nil {
		if ctx.Err() != nil {
			return last, true
		}
		e.fail(ctx, job, fmt.Errorf("reload campaign: %w", err))
		return last, false
	}

	now := time.Now()
	switch {
	case !c.IsActive():
		e.finish(job, ReasonInactive)
		return c, true
	case c.WindowClosed(now):
		e.finish(job, ReasonWindowClosed)
		return c, true
	case c.StartDate != nil && now.Before(*c.StartDate):
		return c, false
	}

	quota := e.governor.RemainingQuota(job.processedCount(), c)
	if quota <= 0 {
		e.finish(job, e.exhaustedReason(job, c))
		return c, true
	}

	findCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	found, err := e.directory.Find(findCtx, c.Criteria(e.discoveryLimit))
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return c, true
		}
		e.fail(ctx, job, fmt.Errorf("discover creators: %w", err))
		return c, false
	}

	candidates := e.upsertCreators(ctx, c.ID, found)
	eligible, err := e.filter.FilterNew(ctx, c, candidates)
	if err != nil {
		if ctx.Err() != nil {
			return c, true
		}
		e.fail(ctx, job, err)
		return c, false
	}
	if len(eligible) == 0 {
		log.Info().Int("campaign_id", c.ID).Int("discovered", len(found)).Msg("no eligible creators this tick")
		e.publish(ctx, event.CampaignNoCreators{CampaignID: c.ID, Discovered: len(found)})
		return c, false
	}

	batch := eligible[:e.governor.BatchSize(quota)]
	results := e.dispatchBatch(ctx, c, batch)

	successful, failed := 0, 0
	for _, r := range results {
		if !r.Attempted() {
			continue
		}
		if r.Success {
			successful++
			e.publish(ctx, event.InvitationSent{CampaignID: c.ID, CreatorID: r.CreatorID, InvitationID: r.InvitationID})
			continue
		}
		failed++
		e.publish(ctx, event.InvitationFailed{
			CampaignID:   c.ID,
			CreatorID:    r.CreatorID,
			InvitationID: r.InvitationID,
			Err:          errString(r.Err),
		})
	}
	job.record(successful, failed)

	if cost := e.governor.Cost(successful + failed); cost.IsPositive() {
		if err := e.campaigns.UpdateSpent(context.WithoutCancel(ctx), c.ID, cost); err != nil {
			log.Error().Err(err).Int("campaign_id", c.ID).Str("amount", cost.String()).Msg("failed to record spend")
		} else {
			c.Spent = c.Spent.Add(cost)
		}
	}

	log.Debug().
		Int("campaign_id", c.ID).
		Int("successful", successful).
		Int("failed", failed).
		Int("processed", job.processedCount()).
		Msg("batch dispatched")

	if e.governor.RemainingQuota(job.processedCount(), c) <= 0 {
		e.finish(job, e.exhaustedReason(job, c))
		return c, true
	}
	return c, false
}

func (e *Engine) upsertCreators(ctx context.Context, campaignID int, found []*model.Creator) []*model.Creator {
	out := make([]*model.Creator, 0, len(found))
	for _, cr := range found {
		if err := e.creators.Create(ctx, cr); err != nil {
			log.Warn().Err(err).
				Int("campaign_id", campaignID).
				Str("external_id", cr.ExternalID).
				Msg("failed to store discovered creator")
			continue
		}
		out = append(out, cr)
	}
	return out
}

func (e *Engine) dispatchBatch(ctx context.Context, c *model.Campaign, batch []*model.Creator) []SendResult {
	results := make([]SendResult, len(batch))

	var g errgroup.Group
	g.SetLimit(len(batch))
	for i, cr := range batch {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Int("campaign_id", c.ID).Int("creator_id", cr.ID).Msg("send panicked")
					results[i] = SendResult{CreatorID: cr.ID, Err: fmt.Errorf("send panicked: %v", r)}
				}
			}()
			results[i] = e.dispatcher.Send(ctx, c, cr)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) exhaustedReason(job *Job, c *model.Campaign) string {
	if c.InviteLimit-job.processedCount() <= 0 {
		return ReasonInviteLimit
	}
	return ReasonBudget
}

// finish completes a running job. It is a no-op once the job was paused or completed.
func (e *Engine) finish(job *Job, reason string) {
	if !job.transition(JobStatusCompleted) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()

	if err := e.campaigns.UpdateStatus(ctx, job.CampaignID, model.CampaignStatusCompleted); err != nil {
		log.Error().Err(err).Int("campaign_id", job.CampaignID).Msg("failed to persist completed status")
	}
	e.release(job)

	log.Info().
		Int("campaign_id", job.CampaignID).
		Str("run_id", job.RunID).
		Str("reason", reason).
		Int("processed", job.processedCount()).
		Msg("campaign automation completed")
	e.publish(ctx, event.CampaignCompleted{CampaignID: job.CampaignID, Reason: reason, Stats: job.stats()})
}

func (e *Engine) fail(ctx context.Context, job *Job, err error) {
	log.Error().Err(err).Int("campaign_id", job.CampaignID).Str("run_id", job.RunID).Msg("campaign tick failed")
	e.publish(ctx, event.CampaignError{CampaignID: job.CampaignID, Err: err.Error()})
}

func (e *Engine) publish(ctx context.Context, ev event.Event) {
	if err := e.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn().Err(err).Str("event", ev.Type()).Int("campaign_id", ev.Campaign()).Msg("failed to publish event")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
