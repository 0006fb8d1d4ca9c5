package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"handstreak/native/referral"
	"handstreak/native/streak"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("store: not found")

const batchSize = 500

// Open connects to the configured database. Supported drivers are "sqlite"
// and "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		if strings.TrimSpace(dsn) == "" {
			dsn = "file:streakd.db"
		}
		return gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres", "postgresql":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}
}

// Store persists streak state through gorm.
type Store struct {
	db *gorm.DB
}

// New migrates the schema and wraps db.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Load reads the full streak, history and referral tables. Duplicate rows
// are resolved by the ledger constructors.
func (s *Store) Load(ctx context.Context) (streak.State, error) {
	db := s.db.WithContext(ctx)
	var streaks []StreakRow
	if err := db.Order("id").Find(&streaks).Error; err != nil {
		return streak.State{}, fmt.Errorf("store: load streaks: %w", err)
	}
	var history []HistoryRow
	if err := db.Order("id").Find(&history).Error; err != nil {
		return streak.State{}, fmt.Errorf("store: load history: %w", err)
	}
	var referrals []ReferralRow
	if err := db.Order("id").Find(&referrals).Error; err != nil {
		return streak.State{}, fmt.Errorf("store: load referrals: %w", err)
	}

	ledgerRows := make([]streak.StreakEntry, 0, len(streaks))
	for _, row := range streaks {
		ledgerRows = append(ledgerRows, streak.StreakEntry{Username: row.Username, Streak: row.Streak})
	}
	historyRows := make([]streak.HistoryEntry, 0, len(history))
	for _, row := range history {
		historyRows = append(historyRows, streak.HistoryEntry{
			Username:      row.Username,
			LastUpdate:    row.LastUpdate,
			UpdateDate:    row.UpdateDate,
			CurrentStreak: row.CurrentStreak,
			HighestStreak: row.HighestStreak,
		})
	}
	referralRows := make([]referral.Entry, 0, len(referrals))
	for _, row := range referrals {
		entry := referral.Entry{
			ReferredPlayer: row.ReferredPlayer,
			HandsPlayed:    row.HandsPlayed,
			ReferrerPlayer: row.ReferrerPlayer,
			BonusSent:      row.BonusSent,
		}
		if row.BonusSentAt != nil {
			entry.BonusSentAt = *row.BonusSentAt
		}
		referralRows = append(referralRows, entry)
	}
	return streak.State{
		Ledger:    streak.LoadLedger(ledgerRows),
		History:   streak.LoadHistory(historyRows),
		Referrals: referral.LoadLedger(referralRows),
	}, nil
}

// Save replaces the stored state with st and, when run is non-nil, records
// the run in the same transaction. Nil parts of st are left untouched.
func (s *Store) Save(ctx context.Context, st streak.State, run *RunRow) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if st.Ledger != nil {
			if err := replaceStreaks(tx, st.Ledger); err != nil {
				return err
			}
		}
		if st.History != nil {
			if err := replaceHistory(tx, st.History); err != nil {
				return err
			}
		}
		if st.Referrals != nil {
			if err := replaceReferrals(tx, st.Referrals); err != nil {
				return err
			}
		}
		if run != nil {
			if run.ID == uuid.Nil {
				run.ID = uuid.New()
			}
			if err := tx.Create(run).Error; err != nil {
				return fmt.Errorf("store: record run: %w", err)
			}
		}
		return nil
	})
}

// RecordOverride saves the override audit row together with the book.
func (s *Store) RecordOverride(ctx context.Context, book streak.Book, row OverrideRow) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := replaceStreaks(tx, book.Ledger); err != nil {
			return err
		}
		if err := replaceHistory(tx, book.History); err != nil {
			return err
		}
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("store: record override: %w", err)
		}
		return nil
	})
}

// Run returns the run with the given id.
func (s *Store) Run(ctx context.Context, id uuid.UUID) (RunRow, error) {
	var row RunRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RunRow{}, ErrNotFound
	}
	if err != nil {
		return RunRow{}, fmt.Errorf("store: load run: %w", err)
	}
	return row, nil
}

// RecentRuns lists the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []RunRow
	if err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return rows, nil
}

func replaceStreaks(tx *gorm.DB, ledger *streak.Ledger) error {
	if err := tx.Where("1 = 1").Delete(&StreakRow{}).Error; err != nil {
		return fmt.Errorf("store: clear streaks: %w", err)
	}
	entries := ledger.Entries()
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]StreakRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, StreakRow{Username: entry.Username, Streak: entry.Streak, UpdatedAt: now})
	}
	if err := tx.CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("store: write streaks: %w", err)
	}
	return nil
}

func replaceHistory(tx *gorm.DB, history *streak.History) error {
	if err := tx.Where("1 = 1").Delete(&HistoryRow{}).Error; err != nil {
		return fmt.Errorf("store: clear history: %w", err)
	}
	entries := history.Entries()
	if len(entries) == 0 {
		return nil
	}
	rows := make([]HistoryRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, HistoryRow{
			Username:      entry.Username,
			LastUpdate:    entry.LastUpdate,
			UpdateDate:    entry.UpdateDate,
			CurrentStreak: entry.CurrentStreak,
			HighestStreak: entry.HighestStreak,
		})
	}
	if err := tx.CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("store: write history: %w", err)
	}
	return nil
}

func replaceReferrals(tx *gorm.DB, ledger *referral.Ledger) error {
	if err := tx.Where("1 = 1").Delete(&ReferralRow{}).Error; err != nil {
		return fmt.Errorf("store: clear referrals: %w", err)
	}
	entries := ledger.Entries()
	if len(entries) == 0 {
		return nil
	}
	rows := make([]ReferralRow, 0, len(entries))
	for _, entry := range entries {
		row := ReferralRow{
			ReferredPlayer: entry.ReferredPlayer,
			HandsPlayed:    entry.HandsPlayed,
			ReferrerPlayer: entry.ReferrerPlayer,
			BonusSent:      entry.BonusSent,
		}
		if entry.BonusSent && !entry.BonusSentAt.IsZero() {
			sentAt := entry.BonusSentAt
			row.BonusSentAt = &sentAt
		}
		rows = append(rows, row)
	}
	if err := tx.CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("store: write referrals: %w", err)
	}
	return nil
}
