package streakd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"handstreak/native/referral"
	"handstreak/native/streak"
	"handstreak/observability"
	"handstreak/services/streakd/export"
	"handstreak/services/streakd/store"
)

// DefaultOperator is used when a request carries no operator identity.
const DefaultOperator = "admin"

// RunOptions tweaks a single batch run.
type RunOptions struct {
	// Force re-applies a day that was already journaled.
	Force  bool
	Source string
}

// RunResult is returned after a batch has been applied and persisted.
type RunResult struct {
	RunID       uuid.UUID             `json:"run_id"`
	Digest      string                `json:"digest"`
	Report      streak.Report         `json:"report"`
	Bonuses     []referral.BonusEvent `json:"bonuses"`
	Files       export.Files          `json:"files"`
	ExportError string                `json:"export_error,omitempty"`
}

// PlayerStatus is the operator view of a single participant.
type PlayerStatus struct {
	Username      string               `json:"username"`
	ActiveStreak  int64                `json:"active_streak"`
	History       *streak.HistoryEntry `json:"history,omitempty"`
	Referral      *referral.Entry      `json:"referral,omitempty"`
	PendingChange *streak.Proposal     `json:"pending_override,omitempty"`
}

// Status summarises the processor for health endpoints.
type Status struct {
	LastRunID     string    `json:"last_run_id,omitempty"`
	LastRunDay    string    `json:"last_run_day,omitempty"`
	LastRunAt     time.Time `json:"last_run_at,omitempty"`
	PendingDesks  int       `json:"pending_overrides"`
	FeedListeners int       `json:"feed_listeners"`
	JournaledDays int       `json:"journaled_days"`
	Threshold     int64     `json:"activity_threshold"`
}

// Processor serialises every read-modify-write of the streak state: batch
// runs, overrides and referral registrations all hold the same lock around
// load, engine call and save.
type Processor struct {
	store       *store.Store
	journal     *Journal
	engine      *streak.Engine
	exporter    *export.Writer
	feed        *Feed
	metrics     *observability.StreakdMetrics
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	proposalTTL time.Duration

	mu      sync.Mutex
	desks   map[string]*streak.OverrideDesk
	lastRun *RunResult
	lastAt  time.Time
}

// ProcessorOption customises the processor instance.
type ProcessorOption func(*Processor)

// WithEngine supplies the streak engine.
func WithEngine(e *streak.Engine) ProcessorOption {
	return func(p *Processor) { p.engine = e }
}

// WithExporter enables report export.
func WithExporter(w *export.Writer) ProcessorOption {
	return func(p *Processor) { p.exporter = w }
}

// WithFeed publishes run and override events to f.
func WithFeed(f *Feed) ProcessorOption {
	return func(p *Processor) { p.feed = f }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.StreakdMetrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = clock }
}

// WithProposalTTL bounds how long override proposals stay confirmable.
func WithProposalTTL(ttl time.Duration) ProcessorOption {
	return func(p *Processor) { p.proposalTTL = ttl }
}

// NewProcessor constructs a processor persisting through st and guarding
// replays with journal.
func NewProcessor(st *store.Store, journal *Journal, opts ...ProcessorOption) *Processor {
	proc := &Processor{
		store:       st,
		journal:     journal,
		now:         time.Now,
		proposalTTL: streak.DefaultProposalTTL,
		desks:       make(map[string]*streak.OverrideDesk),
	}
	for _, opt := range opts {
		opt(proc)
	}
	if proc.logger == nil {
		proc.logger = slog.Default()
	}
	if proc.engine == nil {
		proc.engine = streak.NewEngine(streak.WithClock(proc.now))
	}
	if proc.metrics == nil {
		proc.metrics = observability.Streakd()
	}
	if proc.feed == nil {
		proc.feed = NewFeed(proc.logger)
	}
	proc.tracer = otel.Tracer("handstreak/services/streakd")
	return proc
}

// Feed returns the event feed.
func (p *Processor) Feed() *Feed {
	return p.feed
}

// ProcessBatch applies one day of activity. The same day is rejected unless
// opts.Force is set.
func (p *Processor) ProcessBatch(ctx context.Context, batch streak.DailyBatch, opts RunOptions) (RunResult, error) {
	if batch.Day.IsZero() {
		return RunResult{}, ErrDayRequired
	}
	batch.Day = streak.TruncateDay(batch.Day)
	day := batch.Day.Format(streak.DayFormat)
	ctx, span := p.tracer.Start(ctx, "streakd.ProcessBatch", trace.WithAttributes(
		attribute.String("day", day),
		attribute.Int("records", len(batch.Records)),
		attribute.Bool("force", opts.Force),
	))
	defer span.End()
	start := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.processLocked(ctx, batch, opts)
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, ErrAlreadyProcessed):
			outcome = "duplicate"
		case errors.Is(err, ErrDayConflict):
			outcome = "conflict"
		}
		p.metrics.RecordRun(outcome, p.now().Sub(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("batch rejected", "day", day, "source", opts.Source, "error", err)
		return RunResult{}, err
	}
	p.metrics.RecordRun("ok", p.now().Sub(start))
	span.SetAttributes(attribute.String("run_id", result.RunID.String()))
	return result, nil
}

func (p *Processor) processLocked(ctx context.Context, batch streak.DailyBatch, opts RunOptions) (RunResult, error) {
	digest := Digest(batch)
	if !opts.Force {
		if err := p.journal.Check(batch.Day, digest); err != nil {
			return RunResult{}, err
		}
	}
	state, err := p.store.Load(ctx)
	if err != nil {
		return RunResult{}, err
	}
	out := p.engine.Process(state, batch)
	runID := uuid.New()
	day := batch.Day.Format(streak.DayFormat)

	report, err := json.Marshal(out.Report)
	if err != nil {
		return RunResult{}, fmt.Errorf("streakd: encode report: %w", err)
	}
	run := &store.RunRow{
		ID:               runID,
		Day:              day,
		Digest:           digest,
		Source:           opts.Source,
		Forced:           opts.Force,
		Processed:        out.Report.Counts.Processed,
		Errors:           out.Report.Counts.Errors,
		MilestoneWinners: out.Report.Counts.MilestoneWinners,
		ReferralBonuses:  out.Report.Counts.ReferralBonuses,
		Report:           string(report),
		CreatedAt:        p.now().UTC(),
	}
	if err := p.store.Save(ctx, streak.State{Ledger: out.Ledger, History: out.History, Referrals: out.Referrals}, run); err != nil {
		return RunResult{}, err
	}
	if err := p.journal.Record(JournalEntry{Day: day, RunID: runID.String(), Digest: digest, Forced: opts.Force, AppliedAt: run.CreatedAt}); err != nil {
		// The state is already saved; a missing journal entry only weakens
		// replay protection for this day.
		p.logger.Error("journal write failed", "run_id", runID.String(), "day", day, "error", err)
	}

	result := RunResult{RunID: runID, Digest: digest, Report: out.Report, Bonuses: out.Bonuses}
	files, err := p.exporter.Write(runID.String(), out.Report)
	if err != nil {
		result.ExportError = err.Error()
		p.logger.Error("report export failed", "run_id", runID.String(), "error", err)
	}
	result.Files = files

	p.observe(result, out.Ledger.Len())
	p.lastRun = &result
	p.lastAt = run.CreatedAt
	p.logger.Info("batch processed",
		"run_id", runID.String(),
		"day", day,
		"source", opts.Source,
		"processed", out.Report.Counts.Processed,
		"new", out.Report.Counts.New,
		"lost", out.Report.Counts.LostTotal(),
		"winners", out.Report.Counts.MilestoneWinners,
		"bonuses", out.Report.Counts.ReferralBonuses,
		"errors", out.Report.Counts.Errors,
	)
	for _, warning := range out.Report.Warnings {
		p.logger.Warn("run warning", "run_id", runID.String(), "warning", warning)
	}
	return result, nil
}

func (p *Processor) observe(result RunResult, active int) {
	report := result.Report
	wheels := make([]int64, 0, len(report.Winners))
	placeholders := 0
	for _, w := range report.Winners {
		wheels = append(wheels, w.Wheel)
		if w.Slot == streak.TBDSlot {
			placeholders++
		}
	}
	p.metrics.ObserveRun(observability.RunSummary{
		ActiveStreaks:   active,
		LostSignificant: report.Counts.LostSignificant,
		LostMinor:       report.Counts.LostMinor,
		Wheels:          wheels,
		Bonuses:         report.Counts.ReferralBonuses,
		RecordErrors:    report.Counts.Errors,
		Placeholders:    placeholders,
		CompletedAt:     p.now(),
	})
	at := p.now()
	p.feed.Publish(Event{Type: EventRunCompleted, At: at, Data: map[string]any{
		"run_id": result.RunID.String(),
		"day":    report.Day.Format(streak.DayFormat),
		"counts": report.Counts,
	}})
	for _, w := range report.Winners {
		p.feed.Publish(Event{Type: EventMilestone, At: at, Data: w})
	}
	for _, b := range result.Bonuses {
		p.feed.Publish(Event{Type: EventReferralBonus, At: at, Data: b})
	}
}

// ProposeOverride starts a manual streak correction for operator.
func (p *Processor) ProposeOverride(ctx context.Context, operator, username string, value int64) (streak.OverrideResult, error) {
	return p.override(ctx, operator, func(desk *streak.OverrideDesk, book streak.Book) (streak.OverrideResult, error) {
		return desk.Propose(book, username, value)
	})
}

// ConfirmOverride applies the operator's pending proposal.
func (p *Processor) ConfirmOverride(ctx context.Context, operator, username string, value int64) (streak.OverrideResult, error) {
	return p.override(ctx, operator, func(desk *streak.OverrideDesk, book streak.Book) (streak.OverrideResult, error) {
		return desk.Confirm(book, username, value)
	})
}

// CancelOverride discards the operator's pending proposal.
func (p *Processor) CancelOverride(operator string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if desk, ok := p.desks[normaliseOperator(operator)]; ok {
		desk.Cancel()
	}
	p.metrics.RecordOverride("cancelled")
}

func (p *Processor) override(ctx context.Context, operator string, step func(*streak.OverrideDesk, streak.Book) (streak.OverrideResult, error)) (streak.OverrideResult, error) {
	operator = normaliseOperator(operator)
	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.store.Load(ctx)
	if err != nil {
		return streak.OverrideResult{}, err
	}
	book := streak.Book{Ledger: state.Ledger, History: state.History}
	desk := p.deskLocked(operator)
	result, err := step(desk, book)
	if err != nil {
		p.metrics.RecordOverride("rejected")
		return streak.OverrideResult{}, err
	}
	if !result.Applied {
		p.metrics.RecordOverride("proposed")
		p.logger.Info("override awaiting confirmation", "operator", operator, "username", result.Confirmation.Username)
		return result, nil
	}
	t := result.Transition
	row := store.OverrideRow{
		Operator:    operator,
		Username:    t.Username,
		PriorStreak: t.PriorStreak,
		NewStreak:   t.NewStreak,
		Confirmed:   t.PriorStreak > t.NewStreak,
		CreatedAt:   p.now().UTC(),
	}
	if err := p.store.RecordOverride(ctx, book, row); err != nil {
		return streak.OverrideResult{}, err
	}
	p.metrics.RecordOverride("applied")
	p.metrics.SetActiveStreaks(book.Ledger.Len())
	p.feed.Publish(Event{Type: EventOverrideApplied, At: p.now(), Data: map[string]any{
		"operator": operator,
		"username": t.Username,
		"prior":    t.PriorStreak,
		"streak":   t.NewStreak,
	}})
	p.logger.Info("override applied", "operator", operator, "username", t.Username, "prior", t.PriorStreak, "streak", t.NewStreak)
	return result, nil
}

func (p *Processor) deskLocked(operator string) *streak.OverrideDesk {
	desk, ok := p.desks[operator]
	if !ok {
		desk = streak.NewOverrideDesk(p.proposalTTL, p.now)
		p.desks[operator] = desk
	}
	return desk
}

// AddReferral registers a referral and persists it.
func (p *Processor) AddReferral(ctx context.Context, referred string, hands int64, referrer string) (referral.Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, err := p.store.Load(ctx)
	if err != nil {
		return referral.Entry{}, err
	}
	entry, err := state.Referrals.AddReferral(referred, hands, referrer)
	if err != nil {
		return referral.Entry{}, err
	}
	if err := p.store.Save(ctx, streak.State{Referrals: state.Referrals}, nil); err != nil {
		return referral.Entry{}, err
	}
	p.logger.Info("referral registered", "username", entry.ReferredPlayer, "referrer", entry.ReferrerPlayer, "hands", entry.HandsPlayed)
	return entry, nil
}

// LookupReferrals returns every referral made by referrer.
func (p *Processor) LookupReferrals(ctx context.Context, referrer string) (referral.Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, err := p.store.Load(ctx)
	if err != nil {
		return referral.Summary{}, err
	}
	return state.Referrals.Lookup(referrer), nil
}

// LookupPlayer returns the operator view of username. The boolean is false
// when the participant has never been seen.
func (p *Processor) LookupPlayer(ctx context.Context, operator, username string) (PlayerStatus, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, err := p.store.Load(ctx)
	if err != nil {
		return PlayerStatus{}, false, err
	}
	name := streak.NormaliseUsername(username)
	status := PlayerStatus{Username: name}
	found := false
	if current, ok := state.Ledger.Get(name); ok {
		status.ActiveStreak = current
		found = true
	}
	if entry, ok := streak.LookupPlayer(state.History, name); ok {
		status.History = &entry
		found = true
	}
	if entry, ok := state.Referrals.Get(name); ok {
		status.Referral = &entry
		found = true
	}
	if desk, ok := p.desks[normaliseOperator(operator)]; ok {
		if pending, ok := desk.Pending(); ok && pending.Username == name {
			status.PendingChange = &pending
		}
	}
	return status, found, nil
}

// Run returns a stored run by id.
func (p *Processor) Run(ctx context.Context, id uuid.UUID) (store.RunRow, error) {
	return p.store.Run(ctx, id)
}

// RecentRuns lists the latest stored runs, newest first.
func (p *Processor) RecentRuns(ctx context.Context, limit int) ([]store.RunRow, error) {
	return p.store.RecentRuns(ctx, limit)
}

// Status reports the latest run and desk state.
func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := Status{
		FeedListeners: p.feed.Subscribers(),
		Threshold:     p.engine.Params().ActivityThreshold,
	}
	for _, desk := range p.desks {
		if desk.State() == streak.OverrideProposed {
			status.PendingDesks++
		}
	}
	if days, err := p.journal.Days(); err == nil {
		status.JournaledDays = len(days)
	}
	if p.lastRun != nil {
		status.LastRunID = p.lastRun.RunID.String()
		status.LastRunDay = p.lastRun.Report.Day.Format(streak.DayFormat)
		status.LastRunAt = p.lastAt
	}
	return status
}

func normaliseOperator(operator string) string {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return DefaultOperator
	}
	return strings.ToLower(operator)
}
