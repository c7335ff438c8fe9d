// Package services – BlockService
//
// This file implements the BlockService, which governs user blocks. A block
// is directional when stored but symmetric in effect: once either user
// blocked the other, messages between them are refused and discovery hides
// both from each other.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/taalmeet/internal/repo"
)

// BlockService implements the block/unblock use cases.
type BlockService struct {
	// DB is the database handle used for all block operations.
	DB *gorm.DB
}

// Block records that userID blocks partnerID.
//
// Semantics and validation:
//   - partnerID must not be blank or equal to userID; otherwise ErrSelfAction
//     or ErrPartnerNotFound.
//   - partnerID must have a profile; otherwise ErrPartnerNotFound.
//   - Blocking twice yields ErrAlreadyBlocked.
func (s *BlockService) Block(ctx context.Context, userID, partnerID string) error {
	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		return ErrPartnerNotFound
	}
	if partnerID == userID {
		return ErrSelfAction
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetPartner(ctx, tx, partnerID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPartnerNotFound
			}
			return err
		}
		if _, err := repo.CreateBlock(ctx, tx, userID, partnerID); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrAlreadyBlocked
			}
			return err
		}
		return nil
	})
}

// Unblock removes the block userID placed on partnerID. A block placed by the
// partner is not affected.
func (s *BlockService) Unblock(ctx context.Context, userID, partnerID string) error {
	err := repo.DeleteBlock(ctx, s.DB, userID, strings.TrimSpace(partnerID))
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotBlocked
	}
	return err
}

// IsBlocked reports whether either user blocked the other.
func (s *BlockService) IsBlocked(ctx context.Context, userID, partnerID string) (bool, error) {
	return repo.IsBlocked(ctx, s.DB, userID, partnerID)
}
