package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StreakRow is one row of the active streak table. Rows keep their sheet
// order through the auto-increment ID; usernames are not unique at the
// storage level so imported sheets with duplicates load as-is.
type StreakRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"size:128;index"`
	Streak    int64  `gorm:"not null"`
	UpdatedAt time.Time
}

// HistoryRow stores the latest status line per participant.
type HistoryRow struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	Username      string    `gorm:"size:128;index"`
	LastUpdate    string    `gorm:"type:text"`
	UpdateDate    time.Time `gorm:"index"`
	CurrentStreak int64
	HighestStreak int64
}

// ReferralRow stores one referred player.
type ReferralRow struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ReferredPlayer string `gorm:"size:128;index"`
	HandsPlayed    int64
	ReferrerPlayer string `gorm:"size:128;index"`
	BonusSent      bool
	BonusSentAt    *time.Time
}

// RunRow records a processed daily batch together with its report.
type RunRow struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Day              string    `gorm:"size:10;index"`
	Digest           string    `gorm:"size:64"`
	Source           string    `gorm:"size:255"`
	Forced           bool
	Processed        int
	Errors           int
	MilestoneWinners int
	ReferralBonuses  int
	Report           string `gorm:"type:text"`
	CreatedAt        time.Time
}

// OverrideRow is the audit trail of applied manual overrides.
type OverrideRow struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Operator    string    `gorm:"size:128;index"`
	Username    string    `gorm:"size:128;index"`
	PriorStreak int64
	NewStreak   int64
	Confirmed   bool
	CreatedAt   time.Time
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&StreakRow{},
		&HistoryRow{},
		&ReferralRow{},
		&RunRow{},
		&OverrideRow{},
	)
}
