package streak

import (
	"fmt"
	"time"
)

// TransitionKind labels what happened to a participant during a run.
type TransitionKind string

const (
	TransitionStarted      TransitionKind = "started"
	TransitionExtended     TransitionKind = "extended"
	TransitionMilestone    TransitionKind = "milestone"
	TransitionLostPlayed   TransitionKind = "lost_played"
	TransitionLostInactive TransitionKind = "lost_inactive"
	TransitionRevived      TransitionKind = "revived"
)

// Transition is one participant's state change within a run.
type Transition struct {
	Username    string         `json:"username"`
	Kind        TransitionKind `json:"kind"`
	PriorStreak int64          `json:"prior_streak"`
	NewStreak   int64          `json:"new_streak"`
	HandsPlayed int64          `json:"hands_played"`
	Loss        string         `json:"loss,omitempty"`
	Message     string         `json:"message"`
}

// Winner is a milestone winner with the wheel slot assigned to them.
type Winner struct {
	Username string `json:"username"`
	Streak   int64  `json:"streak"`
	Wheel    int64  `json:"wheel"`
	Slot     string `json:"slot"`
}

// Description renders the winner line shown to operators.
func (w Winner) Description() string {
	return fmt.Sprintf("%s hit %d day streak, their Wheel %d spin will be at %s today", w.Username, w.Streak, w.Wheel, w.Slot)
}

// Counts summarises a run.
type Counts struct {
	Processed           int `json:"processed"`
	Updated             int `json:"updated"`
	New                 int `json:"new"`
	LostSignificant     int `json:"lost_significant"`
	LostMinor           int `json:"lost_minor"`
	MilestoneWinners    int `json:"milestone_winners"`
	Errors              int `json:"errors"`
	HistoryUpdates      int `json:"history_updates"`
	ReferralBonuses     int `json:"referral_bonuses"`
	DuplicateLedgerRows int `json:"duplicate_ledger_rows"`
}

// LostTotal returns the number of streaks lost during the run.
func (c Counts) LostTotal() int {
	return c.LostSignificant + c.LostMinor
}

// Report is the structured result of processing one daily batch. The
// message lists are ready to render as-is.
type Report struct {
	Day               time.Time    `json:"day"`
	Counts            Counts       `json:"counts"`
	SignificantLosses []string     `json:"significant_losses"`
	MilestoneWinners  []string     `json:"milestone_winners"`
	Winners           []Winner     `json:"winners"`
	ReferralBonuses   []string     `json:"referral_bonuses"`
	Errors            []string     `json:"errors"`
	Warnings          []string     `json:"warnings"`
	Transitions       []Transition `json:"transitions"`
}

func newReport(day time.Time) Report {
	return Report{
		Day:               day,
		SignificantLosses: []string{},
		MilestoneWinners:  []string{},
		Winners:           []Winner{},
		ReferralBonuses:   []string{},
		Errors:            []string{},
		Warnings:          []string{},
		Transitions:       []Transition{},
	}
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) recordError(err error) {
	r.Counts.Errors++
	r.Errors = append(r.Errors, err.Error())
}
