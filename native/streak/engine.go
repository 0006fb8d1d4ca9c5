package streak

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"handstreak/native/referral"
)

// State is the persistent input of a run.
type State struct {
	Ledger    *Ledger
	History   *History
	Referrals *referral.Ledger
}

// Outcome carries the next ledger snapshots together with the run report.
// The input State is never modified.
type Outcome struct {
	Ledger    *Ledger
	History   *History
	Referrals *referral.Ledger
	Report    Report
	Bonuses   []referral.BonusEvent
}

// Engine applies daily activity batches to streak state. It holds no locks;
// callers serialise access to the state they pass in.
type Engine struct {
	params    Params
	allocator SlotAllocator
	now       func() time.Time
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithParams overrides the processing parameters.
func WithParams(p Params) EngineOption {
	return func(e *Engine) { e.params = p }
}

// WithAllocator supplies the wheel slot allocator.
func WithAllocator(a SlotAllocator) EngineOption {
	return func(e *Engine) { e.allocator = a }
}

// WithClock sets the function used to stamp referral bonuses.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.now = clock }
}

// NewEngine constructs an engine with default parameters and a random wheel
// allocator.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		params: DefaultParams(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.params = e.params.Normalize()
	if e.allocator == nil {
		e.allocator = NewWheelAllocator(nil)
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Params returns the normalised parameters in use.
func (e *Engine) Params() Params {
	return e.params
}

type pendingWinner struct {
	username   string
	streak     int64
	wheel      int64
	transition int
}

// Process applies batch to st and returns the resulting state. Every
// participant in the batch is evaluated once, then every ledger participant
// missing from the batch loses their streak. Bad records are reported and
// leave the participant's state untouched.
func (e *Engine) Process(st State, batch DailyBatch) Outcome {
	day := TruncateDay(batch.Day)
	out := Outcome{
		Ledger:    st.Ledger.Clone(),
		History:   st.History.Clone(),
		Referrals: st.Referrals.Clone(),
		Report:    newReport(day),
	}
	report := &out.Report

	if names, rows := st.Ledger.Duplicates(); rows > 0 {
		report.Counts.DuplicateLedgerRows = rows
		report.warnf("streak ledger contained %d duplicate rows (kept first occurrence): %s", rows, strings.Join(names, ", "))
	}

	present := make(map[string]struct{}, len(batch.Records)+len(batch.Rejected))
	for _, rejected := range batch.Rejected {
		name := NormaliseUsername(rejected.Username)
		if name != "" {
			present[name] = struct{}{}
		}
		report.recordError(&RecordError{
			Row:      rejected.Row,
			Username: name,
			Err:      fmt.Errorf("%w: %s", ErrValidation, rejected.Reason),
		})
	}

	valid := make([]ActivityRecord, 0, len(batch.Records))
	seen := make(map[string]struct{}, len(batch.Records))
	recordErrors := 0
	for i, record := range batch.Records {
		name := NormaliseUsername(record.Username)
		var err error
		switch {
		case name == "":
			err = fmt.Errorf("%w: username required", ErrValidation)
		case hasKey(seen, name):
			err = ErrDuplicateKey
		case record.HandsPlayed < 0:
			err = fmt.Errorf("%w: hands played must not be negative (%d)", ErrValidation, record.HandsPlayed)
		}
		if name != "" {
			present[name] = struct{}{}
			seen[name] = struct{}{}
		}
		if err != nil {
			recordErrors++
			report.recordError(&RecordError{Row: i + 1, Username: name, Err: err})
			continue
		}
		valid = append(valid, ActivityRecord{Username: name, HandsPlayed: record.HandsPlayed})
	}
	report.Counts.Processed = len(batch.Records) - recordErrors

	var winners []pendingWinner
	for _, record := range valid {
		if w, ok := e.applyRecord(out.Ledger, out.History, report, record, day); ok {
			winners = append(winners, w)
		}
	}

	for _, name := range out.Ledger.Usernames() {
		if _, ok := present[name]; ok {
			continue
		}
		prior, _ := out.Ledger.Get(name)
		out.Ledger.Remove(name)
		message := fmt.Sprintf("lost %d day streak due to inactivity", prior)
		e.recordLoss(report, prior, fmt.Sprintf("%s lost their %d day streak (not in today's data)", name, prior))
		out.History.RecordLoss(name, message, prior, day)
		report.Counts.HistoryUpdates++
		report.Transitions = append(report.Transitions, Transition{
			Username:    name,
			Kind:        TransitionLostInactive,
			PriorStreak: prior,
			Loss:        e.params.LossClass(prior).String(),
			Message:     message,
		})
	}

	e.assignSlots(out.History, report, winners, day)

	daily := make(map[string]int64, len(valid))
	for _, record := range valid {
		daily[record.Username] = record.HandsPlayed
	}
	out.Bonuses = out.Referrals.Update(daily, e.now())
	for _, bonus := range out.Bonuses {
		report.ReferralBonuses = append(report.ReferralBonuses, bonus.Message())
	}
	report.Counts.ReferralBonuses = len(out.Bonuses)
	return out
}

func (e *Engine) applyRecord(ledger *Ledger, history *History, report *Report, record ActivityRecord, day time.Time) (pendingWinner, bool) {
	name := record.Username
	hands := record.HandsPlayed
	prior, exists := ledger.Get(name)
	qualifies := e.params.Qualifies(hands)

	if !exists {
		if !qualifies {
			return pendingWinner{}, false
		}
		ledger.Set(name, 1)
		message := "started a 1 day streak"
		history.Record(name, message, 1, day)
		report.Counts.New++
		report.Counts.HistoryUpdates++
		report.Transitions = append(report.Transitions, Transition{
			Username:    name,
			Kind:        TransitionStarted,
			NewStreak:   1,
			HandsPlayed: hands,
			Message:     message,
		})
		return pendingWinner{}, false
	}

	if !qualifies {
		ledger.Remove(name)
		message := fmt.Sprintf("lost %d day streak (played %d hands)", prior, hands)
		e.recordLoss(report, prior, fmt.Sprintf("%s lost their %d day streak", name, prior))
		history.RecordLoss(name, message, prior, day)
		report.Counts.HistoryUpdates++
		report.Transitions = append(report.Transitions, Transition{
			Username:    name,
			Kind:        TransitionLostPlayed,
			PriorStreak: prior,
			HandsPlayed: hands,
			Loss:        e.params.LossClass(prior).String(),
			Message:     message,
		})
		return pendingWinner{}, false
	}

	next := prior + 1
	ledger.Set(name, next)
	report.Counts.Updated++
	report.Counts.HistoryUpdates++
	transition := Transition{
		Username:    name,
		Kind:        TransitionExtended,
		PriorStreak: prior,
		NewStreak:   next,
		HandsPlayed: hands,
	}
	wheel, milestone := e.params.MilestoneIndex(next)
	if !milestone {
		transition.Message = fmt.Sprintf("on a %d day streak", next)
		history.Record(name, transition.Message, next, day)
		report.Transitions = append(report.Transitions, transition)
		return pendingWinner{}, false
	}
	// The milestone message is written once the slot is known.
	transition.Kind = TransitionMilestone
	report.Transitions = append(report.Transitions, transition)
	return pendingWinner{
		username:   name,
		streak:     next,
		wheel:      wheel,
		transition: len(report.Transitions) - 1,
	}, true
}

func (e *Engine) recordLoss(report *Report, lost int64, detail string) {
	switch e.params.LossClass(lost) {
	case LossSignificant:
		report.Counts.LostSignificant++
		report.SignificantLosses = append(report.SignificantLosses, detail)
	case LossMinor:
		report.Counts.LostMinor++
	}
}

func (e *Engine) assignSlots(history *History, report *Report, winners []pendingWinner, day time.Time) {
	if len(winners) == 0 {
		return
	}
	slots, err := e.allocate(len(winners))
	switch {
	case err == nil:
	case errors.Is(err, ErrAllocatorExhausted) && validSlots(slots, len(winners)):
		report.warnf("wheel schedule full: %v", err)
	default:
		report.warnf("wheel slot allocation failed, all winners set to %q: %v", TBDSlot, err)
		slots = make([]string, len(winners))
		for i := range slots {
			slots[i] = TBDSlot
		}
	}
	for i, w := range winners {
		winner := Winner{Username: w.username, Streak: w.streak, Wheel: w.wheel, Slot: slots[i]}
		message := fmt.Sprintf("hit %d day milestone and earned Wheel %d spin scheduled for %s", w.streak, w.wheel, winner.Slot)
		history.Record(w.username, message, w.streak, day)
		report.Transitions[w.transition].Message = message
		report.Winners = append(report.Winners, winner)
		report.MilestoneWinners = append(report.MilestoneWinners, winner.Description())
	}
	report.Counts.MilestoneWinners = len(winners)
}

// allocate calls the allocator and turns panics and malformed results into
// errors so a faulty allocator cannot abort the run.
func (e *Engine) allocate(count int) (slots []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slots = nil
			err = fmt.Errorf("streak: allocator panic: %v", r)
		}
	}()
	slots, err = e.allocator.Allocate(count)
	if err != nil {
		return slots, err
	}
	if !validSlots(slots, count) {
		return nil, fmt.Errorf("streak: allocator returned %d slots for %d winners or reused a slot", len(slots), count)
	}
	return slots, nil
}

func validSlots(slots []string, count int) bool {
	if len(slots) != count {
		return false
	}
	seen := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		if strings.TrimSpace(slot) == "" {
			return false
		}
		if slot == TBDSlot {
			continue
		}
		if _, dup := seen[slot]; dup {
			return false
		}
		seen[slot] = struct{}{}
	}
	return true
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
