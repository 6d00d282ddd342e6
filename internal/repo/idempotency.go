package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/club-apply-backend/internal/domain"
)

// ErrDuplicate indicates that a live submission key already exists.
var ErrDuplicate = errors.New("duplicate")

// GetSubmissionKey returns a non-expired key or ErrNotFound.
func GetSubmissionKey(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.SubmissionKey, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.SubmissionKey
	err := db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ReserveSubmissionKey inserts a pending key. An expired row with the same
// key is replaced; a live one yields ErrDuplicate.
func ReserveSubmissionKey(ctx context.Context, db *gorm.DB, key, identity string, now time.Time, ttl time.Duration) (*domain.SubmissionKey, error) {
	rec := &domain.SubmissionKey{
		Key:       key,
		Identity:  identity,
		Status:    domain.SubmissionPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("key = ? AND expires_at <= ?", key, now).
			Delete(&domain.SubmissionKey{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// CompleteSubmissionKey marks a pending key as completed.
func CompleteSubmissionKey(ctx context.Context, db *gorm.DB, key string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.SubmissionKey{}).
		Where("key = ? AND status = ?", key, domain.SubmissionPending).
		Updates(map[string]any{
			"status":       domain.SubmissionCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseSubmissionKey deletes a pending key so the client may retry with it.
// Completed keys are left alone.
func ReleaseSubmissionKey(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).
		Where("key = ? AND status = ?", key, domain.SubmissionPending).
		Delete(&domain.SubmissionKey{}).Error
}

// PurgeExpiredSubmissionKeys deletes every key that expired at or before now
// and returns the number removed.
func PurgeExpiredSubmissionKeys(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.SubmissionKey{})
	return res.RowsAffected, res.Error
}

// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
