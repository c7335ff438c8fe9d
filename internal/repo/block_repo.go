// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for user blocks.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/taalmeet/internal/domain"
)

// CreateBlock records that blockerID blocked blockedID. It returns
// ErrDuplicate when the block already exists.
func CreateBlock(ctx context.Context, db *gorm.DB, blockerID, blockedID string) (*domain.Block, error) {
	b := &domain.Block{
		ID:        uuid.NewString(),
		BlockerID: blockerID,
		BlockedID: blockedID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(b).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return b, nil
}

// DeleteBlock removes a block. It returns ErrNotFound when there was none.
func DeleteBlock(ctx context.Context, db *gorm.DB, blockerID, blockedID string) error {
	res := db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&domain.Block{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsBlocked reports whether either user blocked the other.
func IsBlocked(ctx context.Context, db *gorm.DB, userA, userB string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", userA, userB, userB, userA).
		Count(&n).Error
	return n > 0, err
}

// BlockedEither returns the ids of every user that userID blocked or that
// blocked userID.
func BlockedEither(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var rows []domain.Block
	err := db.WithContext(ctx).
		Where("blocker_id = ? OR blocked_id = ?", userID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, b := range rows {
		if b.BlockerID == userID {
			out = append(out, b.BlockedID)
		} else {
			out = append(out, b.BlockerID)
		}
	}
	return out, nil
}
