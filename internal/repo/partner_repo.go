// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for partner
// profiles used by discovery.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/taalmeet/internal/domain"
)

// UpsertPartner inserts the profile or overwrites every mutable column of an
// existing one with the same ID.
func UpsertPartner(ctx context.Context, db *gorm.DB, p *domain.Partner) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "avatar_url", "languages", "interests",
			"lat", "lon", "online", "available", "updated_at",
		}),
	}).Create(p).Error
}

// GetPartner fetches a single profile by id.
func GetPartner(ctx context.Context, db *gorm.DB, id string) (*domain.Partner, error) {
	var p domain.Partner
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPartners fetches the profiles for ids in a single query. Missing ids are
// silently skipped.
func GetPartners(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.Partner, error) {
	out := make(map[string]domain.Partner, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.Partner
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// ListCandidates returns available profiles other than the excluded ids,
// online users first. A limit <= 0 returns every candidate.
func ListCandidates(ctx context.Context, db *gorm.DB, exclude []string, limit int) ([]domain.Partner, error) {
	var out []domain.Partner
	q := db.WithContext(ctx).Where("available = ?", true)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	q = q.Order("online desc, id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
