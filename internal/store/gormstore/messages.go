package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signalrelay/internal/store"
	"signalrelay/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type messageRepo struct {
	db *gorm.DB
}

func (r messageRepo) InsertIfAbsent(ctx context.Context, msg *model.QueuedMessageModel) (bool, error) {
	if msg == nil || strings.TrimSpace(msg.Fingerprint) == "" {
		return false, fmt.Errorf("insert message: fingerprint required")
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoNothing: true,
		}).
		Create(msg)
	if res.Error != nil {
		return false, fmt.Errorf("insert message: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r messageRepo) FindByFingerprint(ctx context.Context, fingerprint string) (model.QueuedMessageModel, error) {
	var msg model.QueuedMessageModel
	err := r.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).Take(&msg).Error
	return msg, mapErr(err)
}

func (r messageRepo) Get(ctx context.Context, id string) (model.QueuedMessageModel, error) {
	var msg model.QueuedMessageModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&msg).Error
	return msg, mapErr(err)
}

func (r messageRepo) FinishRouting(ctx context.Context, id, owner string, routing store.MessageRouting, now time.Time) error {
	fields := map[string]interface{}{
		"status":      routing.Status,
		"lease_owner": "",
		"lease_until": int64(0),
		"updated_at":  now.UnixMilli(),
	}
	if routing.MessageText != "" {
		fields["message_text"] = routing.MessageText
	}
	if routing.SignalType != "" {
		fields["signal_type"] = routing.SignalType
	}
	if routing.TradeID != "" {
		fields["trade_id"] = routing.TradeID
	}
	res := r.db.WithContext(ctx).Model(&model.QueuedMessageModel{}).
		Where("id = ? AND lease_owner = ? AND status = ?", id, owner, model.MessageStatusPending).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("finish routing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(r.db.WithContext(ctx), &model.QueuedMessageModel{}, id)
	}
	return nil
}

func (r messageRepo) Abandon(ctx context.Context, id, owner string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND lease_owner = ? AND status = ?", id, owner, model.MessageStatusPending).
		Delete(&model.QueuedMessageModel{})
	if res.Error != nil {
		return false, fmt.Errorf("abandon message: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AdvanceCursor moves the channel watermark forward. Older timestamps are ignored.
func (r messageRepo) AdvanceCursor(ctx context.Context, channelID, fingerprint string, at time.Time) error {
	rec := model.ChannelCursorModel{
		ChannelID:        channelID,
		LastFingerprint:  fingerprint,
		LastAcceptedUnix: at.UnixMilli(),
		UpdatedAtUnix:    time.Now().UnixMilli(),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_fingerprint", "last_accepted_at", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("excluded.last_accepted_at >= channel_cursors.last_accepted_at"),
			}},
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

func (r messageRepo) Cursor(ctx context.Context, channelID string) (model.ChannelCursorModel, error) {
	var cur model.ChannelCursorModel
	err := r.db.WithContext(ctx).Where("channel_id = ?", channelID).Take(&cur).Error
	return cur, mapErr(err)
}

// ClaimPending leases up to claim.Limit deliverable messages to claim.Owner.
// The claim is a single UPDATE so concurrent workers never share a row.
func (r messageRepo) ClaimPending(ctx context.Context, claim store.Claim) ([]store.QueuedMessageView, error) {
	now := claim.Now.UnixMilli()
	until := claim.Now.Add(claim.Lease).UnixMilli()
	db := r.db.WithContext(ctx)
	candidates := db.Model(&model.QueuedMessageModel{}).
		Select("id").
		Where("status = ? AND retry_count < ? AND lease_until < ?", model.MessageStatusPending, claim.RetryCap, now).
		Order("created_at ASC, id ASC").
		Limit(claim.Limit)
	res := db.Model(&model.QueuedMessageModel{}).
		Where("id IN (?)", candidates).
		Updates(map[string]interface{}{
			"lease_owner": claim.Owner,
			"lease_until": until,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("claim messages: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	var out []store.QueuedMessageView
	err := db.Table("queued_messages AS m").
		Select(`m.*, COALESCE(c.name, '') AS channel_name, COALESCE(c.topic_id, '') AS topic_id,
			COALESCE(c.mirror_attachments, 0) AS mirror_attachments`).
		Joins("LEFT JOIN channels c ON c.id = m.channel_id").
		Where("m.lease_owner = ? AND m.lease_until = ?", claim.Owner, until).
		Order("m.created_at ASC, m.id ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("load claimed messages: %w", err)
	}
	return out, nil
}

func (r messageRepo) MarkSent(ctx context.Context, id string, now time.Time) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&model.QueuedMessageModel{}).
		Where("id = ? AND status = ?", id, model.MessageStatusPending).
		Updates(map[string]interface{}{
			"status":        model.MessageStatusSent,
			"sent_at":       now.UnixMilli(),
			"error_message": "",
			"lease_owner":   "",
			"lease_until":   int64(0),
			"updated_at":    now.UnixMilli(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark sent: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	msg, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if msg.Status == model.MessageStatusSent {
		return nil
	}
	return store.ErrInvalidTransition
}

// MarkFailed records a delivery failure. The retry count is clamped at retryCap
// and the row turns failed once the cap is reached.
func (r messageRepo) MarkFailed(ctx context.Context, id, errMsg string, retryCap int, now time.Time) (store.FailureResult, error) {
	var out store.FailureResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg model.QueuedMessageModel
		if err := tx.Where("id = ?", id).Take(&msg).Error; err != nil {
			return mapErr(err)
		}
		if msg.Status != model.MessageStatusPending && msg.Status != model.MessageStatusFailed {
			return store.ErrInvalidTransition
		}
		retry := msg.RetryCount + 1
		if retry > retryCap {
			retry = retryCap
		}
		status := model.MessageStatusPending
		if retry >= retryCap {
			status = model.MessageStatusFailed
		}
		res := tx.Model(&model.QueuedMessageModel{}).
			Where("id = ? AND status = ? AND retry_count = ?", id, msg.Status, msg.RetryCount).
			Updates(map[string]interface{}{
				"status":        status,
				"retry_count":   gorm.Expr("MIN(retry_count + 1, ?)", retryCap),
				"error_message": errMsg,
				"lease_owner":   "",
				"lease_until":   int64(0),
				"updated_at":    now.UnixMilli(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrInvalidTransition
		}
		out.Exhausted = msg.Status == model.MessageStatusPending && status == model.MessageStatusFailed
		msg.Status = status
		msg.RetryCount = retry
		msg.ErrorMessage = errMsg
		msg.LeaseOwner = ""
		msg.LeaseUntilUnix = 0
		msg.UpdatedAtUnix = now.UnixMilli()
		out.Message = msg
		return nil
	})
	if err != nil {
		return store.FailureResult{}, fmt.Errorf("mark failed: %w", err)
	}
	return out, nil
}

// Approve returns a failed (or capped pending) message to the queue with a fresh budget.
func (r messageRepo) Approve(ctx context.Context, id string, retryCap int, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.QueuedMessageModel{}).
		Where("id = ? AND (status = ? OR (status = ? AND retry_count >= ?))",
			id, model.MessageStatusFailed, model.MessageStatusPending, retryCap).
		Updates(map[string]interface{}{
			"status":        model.MessageStatusPending,
			"retry_count":   0,
			"error_message": "",
			"lease_owner":   "",
			"lease_until":   int64(0),
			"updated_at":    now.UnixMilli(),
		})
	if res.Error != nil {
		return fmt.Errorf("approve message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(r.db.WithContext(ctx), &model.QueuedMessageModel{}, id)
	}
	return nil
}

func (r messageRepo) Reject(ctx context.Context, id string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.QueuedMessageModel{}).
		Where("id = ? AND status IN ?", id, []model.MessageStatus{model.MessageStatusPending, model.MessageStatusFailed}).
		Updates(map[string]interface{}{
			"status":      model.MessageStatusRejected,
			"lease_owner": "",
			"lease_until": int64(0),
			"updated_at":  now.UnixMilli(),
		})
	if res.Error != nil {
		return fmt.Errorf("reject message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(r.db.WithContext(ctx), &model.QueuedMessageModel{}, id)
	}
	return nil
}

func (r messageRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.QueuedMessageModel{})
	if res.Error != nil {
		return fmt.Errorf("delete message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r messageRepo) ReviewQueue(ctx context.Context, retryCap, limit int) ([]model.QueuedMessageModel, error) {
	var out []model.QueuedMessageModel
	err := r.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND retry_count >= ?)",
			model.MessageStatusFailed, model.MessageStatusPending, retryCap).
		Order("created_at ASC, id ASC").
		Limit(clampLimit(limit, 50, 500)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("review queue: %w", err)
	}
	return out, nil
}
