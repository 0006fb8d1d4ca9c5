package streak

import (
	"fmt"
	"time"
)

// OverrideState is the state of an OverrideDesk.
type OverrideState int

const (
	// OverrideIdle has no pending proposal.
	OverrideIdle OverrideState = iota
	// OverrideProposed holds a proposal awaiting confirmation.
	OverrideProposed
)

func (s OverrideState) String() string {
	if s == OverrideProposed {
		return "proposed"
	}
	return "idle"
}

// Book is the state an override mutates.
type Book struct {
	Ledger  *Ledger
	History *History
}

// Proposal is an override waiting for confirmation because it would lower
// an existing streak.
type Proposal struct {
	Username      string    `json:"username"`
	NewStreak     int64     `json:"new_streak"`
	CurrentStreak int64     `json:"current_streak"`
	ProposedAt    time.Time `json:"proposed_at"`
}

// Prompt renders the confirmation question shown to the operator.
func (p Proposal) Prompt() string {
	return fmt.Sprintf("Player '%s' currently has a higher streak (%d). Are you sure you want to set it to %d?", p.Username, p.CurrentStreak, p.NewStreak)
}

// OverrideResult reports the outcome of Propose or Confirm. Exactly one of
// Applied or Confirmation is set.
type OverrideResult struct {
	Applied      bool        `json:"applied"`
	Confirmation *Proposal   `json:"confirmation,omitempty"`
	Message      string      `json:"message"`
	Transition   *Transition `json:"transition,omitempty"`
}

// OverrideDesk runs the propose/confirm flow for manual streak corrections.
// A desk belongs to one operator and is not safe for concurrent use.
type OverrideDesk struct {
	ttl     time.Duration
	now     func() time.Time
	pending *Proposal
}

// NewOverrideDesk returns an idle desk. Proposals older than ttl can no
// longer be confirmed; a non-positive ttl uses DefaultProposalTTL.
func NewOverrideDesk(ttl time.Duration, now func() time.Time) *OverrideDesk {
	if ttl <= 0 {
		ttl = DefaultProposalTTL
	}
	if now == nil {
		now = time.Now
	}
	return &OverrideDesk{ttl: ttl, now: now}
}

// State returns the current desk state.
func (d *OverrideDesk) State() OverrideState {
	if d.pending == nil {
		return OverrideIdle
	}
	return OverrideProposed
}

// Pending returns the outstanding proposal, if any.
func (d *OverrideDesk) Pending() (Proposal, bool) {
	if d.pending == nil {
		return Proposal{}, false
	}
	return *d.pending, true
}

// Propose sets username's streak to newStreak. When the participant
// currently holds a higher streak nothing is changed and a confirmation
// request is returned instead. A new proposal replaces any pending one.
func (d *OverrideDesk) Propose(book Book, username string, newStreak int64) (OverrideResult, error) {
	name := NormaliseUsername(username)
	if name == "" {
		return OverrideResult{}, fmt.Errorf("%w: username required", ErrValidation)
	}
	if newStreak < 1 {
		return OverrideResult{}, fmt.Errorf("%w (got %d)", ErrInvalidValue, newStreak)
	}
	d.pending = nil
	if current, ok := book.Ledger.Get(name); ok && current > newStreak {
		proposal := Proposal{
			Username:      name,
			NewStreak:     newStreak,
			CurrentStreak: current,
			ProposedAt:    d.now(),
		}
		d.pending = &proposal
		return OverrideResult{Confirmation: &proposal, Message: proposal.Prompt()}, nil
	}
	return d.apply(book, name, newStreak), nil
}

// Confirm applies the pending proposal. It fails with ErrStaleConfirmation
// when there is no proposal, the arguments do not match it, or it expired.
func (d *OverrideDesk) Confirm(book Book, username string, newStreak int64) (OverrideResult, error) {
	name := NormaliseUsername(username)
	if d.pending == nil {
		return OverrideResult{}, fmt.Errorf("%w: no override awaiting confirmation", ErrStaleConfirmation)
	}
	pending := *d.pending
	if pending.Username != name || pending.NewStreak != newStreak {
		return OverrideResult{}, fmt.Errorf("%w: pending override is %s=%d", ErrStaleConfirmation, pending.Username, pending.NewStreak)
	}
	if d.now().Sub(pending.ProposedAt) > d.ttl {
		d.pending = nil
		return OverrideResult{}, fmt.Errorf("%w: override for %s expired", ErrStaleConfirmation, pending.Username)
	}
	d.pending = nil
	return d.apply(book, name, newStreak), nil
}

// Cancel discards any pending proposal.
func (d *OverrideDesk) Cancel() {
	d.pending = nil
}

func (d *OverrideDesk) apply(book Book, username string, streak int64) OverrideResult {
	prior, _ := book.Ledger.Get(username)
	message := fmt.Sprintf("%d day streak revived!", streak)
	book.Ledger.Set(username, streak)
	book.History.Record(username, message, streak, TruncateDay(d.now()))
	return OverrideResult{
		Applied: true,
		Message: fmt.Sprintf("Successfully set %s's streak to %d days", username, streak),
		Transition: &Transition{
			Username:    username,
			Kind:        TransitionRevived,
			PriorStreak: prior,
			NewStreak:   streak,
			Message:     message,
		},
	}
}

// LookupPlayer returns the latest status recorded for username.
func LookupPlayer(history *History, username string) (HistoryEntry, bool) {
	return history.Lookup(username)
}
