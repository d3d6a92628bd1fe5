package gormstore

import (
	"context"
	"fmt"
	"time"

	"signalrelay/internal/store"
	"signalrelay/internal/store/model"

	"gorm.io/gorm"
)

type rosterRepo struct {
	db *gorm.DB
}

// Replace swaps channels, author lists and trading configs in one transaction.
func (r rosterRepo) Replace(ctx context.Context, data store.RosterData) error {
	now := time.Now().UnixMilli()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range []interface{}{&model.ChannelModel{}, &model.AuthorEntryModel{}, &model.TradingConfigModel{}} {
			if err := tx.Where("1 = 1").Delete(row).Error; err != nil {
				return fmt.Errorf("clear roster: %w", err)
			}
		}
		if len(data.Channels) > 0 {
			channels := make([]model.ChannelModel, len(data.Channels))
			copy(channels, data.Channels)
			for i := range channels {
				channels[i].UpdatedAtUnix = now
			}
			if err := tx.Create(&channels).Error; err != nil {
				return fmt.Errorf("insert channels: %w", err)
			}
		}
		if len(data.Authors) > 0 {
			authors := make([]model.AuthorEntryModel, len(data.Authors))
			copy(authors, data.Authors)
			for i := range authors {
				authors[i].ID = 0
				authors[i].NameKey = model.AuthorKey(authors[i].DisplayName)
				authors[i].CreatedAtUnix = now
			}
			if err := tx.Create(&authors).Error; err != nil {
				return fmt.Errorf("insert authors: %w", err)
			}
		}
		if len(data.TradingConfigs) > 0 {
			configs := make([]model.TradingConfigModel, len(data.TradingConfigs))
			copy(configs, data.TradingConfigs)
			for i := range configs {
				configs[i].ID = 0
				configs[i].UpdatedAtUnix = now
			}
			if err := tx.Create(&configs).Error; err != nil {
				return fmt.Errorf("insert trading configs: %w", err)
			}
		}
		return nil
	})
}

func (r rosterRepo) Channels(ctx context.Context) ([]store.ChannelView, error) {
	var out []store.ChannelView
	err := r.db.WithContext(ctx).Table("channels AS c").
		Select(`c.*, COALESCE(k.last_fingerprint, '') AS last_fingerprint,
			COALESCE(k.last_accepted_at, 0) AS last_accepted_at`).
		Joins("LEFT JOIN channel_cursors k ON k.channel_id = c.id").
		Order("c.id ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return out, nil
}

func (r rosterRepo) Channel(ctx context.Context, id string) (model.ChannelModel, error) {
	var ch model.ChannelModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&ch).Error
	return ch, mapErr(err)
}

func (r rosterRepo) OnList(ctx context.Context, list model.AuthorList, name string) (bool, error) {
	key := model.AuthorKey(name)
	if key == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&model.AuthorEntryModel{}).
		Where("list = ? AND name_key = ?", list, key).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("author lookup: %w", err)
	}
	return count > 0, nil
}

func (r rosterRepo) TradingConfigs(ctx context.Context) ([]model.TradingConfigModel, error) {
	var out []model.TradingConfigModel
	err := r.db.WithContext(ctx).Order("priority DESC, id ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list trading configs: %w", err)
	}
	return out, nil
}
