// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/taalmeet/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetOrCreateConversation returns the conversation between userA and userB,
// creating it when the pair has never talked before. Argument order does not
// matter; the pair is stored canonically.
func GetOrCreateConversation(ctx context.Context, db *gorm.DB, userA, userB string) (*domain.Conversation, error) {
	a, b := domain.CanonicalPair(userA, userB)

	var c domain.Conversation
	err := db.WithContext(ctx).Where("user_a = ? AND user_b = ?", a, b).First(&c).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	c = domain.Conversation{
		ID:        uuid.NewString(),
		UserA:     a,
		UserB:     b,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(&c).Error; err != nil {
		// Lost a race with a concurrent creator: read the winner.
		if isUniqueViolation(err) {
			var existing domain.Conversation
			if rerr := db.WithContext(ctx).Where("user_a = ? AND user_b = ?", a, b).First(&existing).Error; rerr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}
	return &c, nil
}

// GetConversationForUser fetches a conversation by id, scoped to one of its
// participants. A conversation the user is not part of is reported as
// ErrNotFound.
func GetConversationForUser(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("id = ? AND (user_a = ? OR user_b = ?)", id, userID, userID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns every conversation userID participates in, most
// recently active first.
func ListConversations(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Order("updated_at desc, id asc").
		Find(&out).Error
	return out, err
}

// TouchConversation bumps UpdatedAt so the conversation sorts as recently active.
func TouchConversation(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
