package streakd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"handstreak/native/streak"
	"handstreak/services/streakd/ingest"
)

const (
	inboxProcessedDir = "processed"
	inboxFailedDir    = "failed"
)

// BatchProcessor applies one day of activity.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batch streak.DailyBatch, opts RunOptions) (RunResult, error)
}

// InboxConfig configures the daily inbox sweep.
type InboxConfig struct {
	Processor BatchProcessor
	Dir       string
	RunHour   int
	RunMinute int
	Location  *time.Location
	Logger    *slog.Logger
}

// Inbox picks up batch files dropped into a directory once a day. Files
// named with a leading YYYY-MM-DD apply to that day; others apply to the
// day before the sweep.
type Inbox struct {
	processor BatchProcessor
	dir       string
	runHour   int
	runMinute int
	location  *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

// SweepResult lists the files handled by one sweep.
type SweepResult struct {
	Processed []string
	Skipped   []string
	Failed    []string
}

// NewInbox constructs an inbox with defaults applied.
func NewInbox(cfg InboxConfig) *Inbox {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{
		processor: cfg.Processor,
		dir:       cfg.Dir,
		runHour:   clampHour(cfg.RunHour),
		runMinute: clampMinute(cfg.RunMinute),
		location:  loc,
		logger:    logger,
		now:       time.Now,
	}
}

// Start sweeps the inbox every day at the configured time until ctx is
// cancelled.
func (i *Inbox) Start(ctx context.Context) {
	if i == nil || i.processor == nil || i.dir == "" {
		return
	}
	for {
		now := i.now().In(i.location)
		next := i.nextRun(now)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := i.Sweep(ctx); err != nil {
				i.logger.Error("inbox sweep failed", "dir", i.dir, "error", err)
			}
		}
	}
}

// Sweep processes every batch file currently in the inbox, oldest day
// first, and moves each into processed/ or failed/.
func (i *Inbox) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		return result, fmt.Errorf("streakd: read inbox: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := ingest.FormatFromPath(entry.Name()); err != nil {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	fallback := streak.TruncateDay(i.now().In(i.location)).AddDate(0, 0, -1)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		err := i.processFile(ctx, name, fallback)
		switch {
		case err == nil:
			result.Processed = append(result.Processed, name)
			err = i.move(name, inboxProcessedDir)
		case errors.Is(err, ErrAlreadyProcessed):
			i.logger.Info("inbox batch already applied", "file", name)
			result.Skipped = append(result.Skipped, name)
			err = i.move(name, inboxProcessedDir)
		default:
			i.logger.Error("inbox batch failed", "file", name, "error", err)
			result.Failed = append(result.Failed, name)
			err = i.move(name, inboxFailedDir)
		}
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

func (i *Inbox) processFile(ctx context.Context, name string, fallback time.Time) error {
	path := filepath.Join(i.dir, name)
	format, err := ingest.FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	batch, err := ingest.Decode(f, format)
	if err != nil {
		return err
	}
	if day, ok := dayFromName(name); ok {
		batch.Day = day
	} else if batch.Day.IsZero() {
		batch.Day = fallback
	}
	_, err = i.processor.ProcessBatch(ctx, batch, RunOptions{Source: "inbox:" + name})
	return err
}

func (i *Inbox) move(name, sub string) error {
	target := filepath.Join(i.dir, sub)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("streakd: create %s dir: %w", sub, err)
	}
	if err := os.Rename(filepath.Join(i.dir, name), filepath.Join(target, name)); err != nil {
		return fmt.Errorf("streakd: move %s: %w", name, err)
	}
	return nil
}

func (i *Inbox) nextRun(after time.Time) time.Time {
	target := time.Date(after.Year(), after.Month(), after.Day(), i.runHour, i.runMinute, 0, 0, i.location)
	if !target.After(after) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

func dayFromName(name string) (time.Time, bool) {
	if len(name) < len(streak.DayFormat) {
		return time.Time{}, false
	}
	day, err := time.Parse(streak.DayFormat, name[:len(streak.DayFormat)])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// ParseClock parses an HH:MM time of day.
func ParseClock(raw string) (hour, minute int, err error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, 0, fmt.Errorf("streakd: invalid time of day %q", raw)
	}
	return t.Hour(), t.Minute(), nil
}

func clampHour(hour int) int {
	if hour < 0 {
		return 0
	}
	if hour > 23 {
		return 23
	}
	return hour
}

func clampMinute(minute int) int {
	if minute < 0 {
		return 0
	}
	if minute > 59 {
		return 59
	}
	return minute
}
