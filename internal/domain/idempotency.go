package domain

import "time"

// Submission key states.
const (
	SubmissionPending   = 0
	SubmissionCompleted = 1
)

// SubmissionKey records a client-generated submission identifier
// (Idempotency-Key header). A completed key means the row was already
// appended, so a retry is answered without writing again.
type SubmissionKey struct {
	Key         string     `gorm:"type:TEXT NOT NULL;primaryKey"`
	Identity    string     `gorm:"type:TEXT NOT NULL;index"`
	Status      int        `gorm:"type:INTEGER NOT NULL"`
	CreatedAt   time.Time  `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	CompletedAt *time.Time `gorm:"type:DATETIME"`
	ExpiresAt   time.Time  `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (SubmissionKey) TableName() string { return "submission_keys" }

// Completed reports whether the submission behind the key was persisted.
func (k SubmissionKey) Completed() bool { return k.Status == SubmissionCompleted }
