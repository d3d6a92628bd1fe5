package gormstore

import (
	"context"
	"fmt"
	"strings"

	"signalrelay/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --------------------- Event Journal ----------------------

type eventRepo struct {
	db *gorm.DB
}

func (r eventRepo) Append(ctx context.Context, rec model.EventRecordModel) error {
	if strings.TrimSpace(rec.EventID) == "" || strings.TrimSpace(rec.Kind) == "" {
		return fmt.Errorf("append event: id and kind required")
	}
	rec.ID = 0
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r eventRepo) List(ctx context.Context, subjectID string, limit int) ([]model.EventRecordModel, error) {
	query := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Limit(clampLimit(limit, 100, 1000))
	if subjectID = strings.TrimSpace(subjectID); subjectID != "" {
		query = query.Where("subject_id = ?", subjectID)
	}
	var out []model.EventRecordModel
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// --------------------- Connection Status ----------------------

type statusRepo struct {
	db *gorm.DB
}

func (r statusRepo) UpsertConnection(ctx context.Context, rec model.ConnectionStatusModel) error {
	rec.Service = strings.TrimSpace(rec.Service)
	if rec.Service == "" {
		return fmt.Errorf("connection status: service required")
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "service"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "error_message", "updated_at"}),
		}).
		Create(&rec).Error
}

func (r statusRepo) Connections(ctx context.Context) ([]model.ConnectionStatusModel, error) {
	var out []model.ConnectionStatusModel
	if err := r.db.WithContext(ctx).Order("service ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list connection status: %w", err)
	}
	return out, nil
}
