package gormstore

import (
	"context"
	"fmt"
	"time"

	"signalrelay/internal/store"
	"signalrelay/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sellRepo struct {
	db *gorm.DB
}

// InsertPending relies on the partial unique index: a conflicting pending row
// turns the insert into a no-op.
func (r sellRepo) InsertPending(ctx context.Context, req *model.SellRequestModel) (bool, error) {
	if req == nil || req.ID == "" || req.TradeID == "" {
		return false, fmt.Errorf("insert sell: id and trade id required")
	}
	req.Status = model.SellStatusPending
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(req)
	if res.Error != nil {
		return false, fmt.Errorf("insert sell: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r sellRepo) Get(ctx context.Context, id string) (model.SellRequestModel, error) {
	var req model.SellRequestModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&req).Error
	return req, mapErr(err)
}

func (r sellRepo) PendingForTrade(ctx context.Context, tradeID string) (model.SellRequestModel, error) {
	var req model.SellRequestModel
	err := r.db.WithContext(ctx).
		Where("trade_id = ? AND status = ?", tradeID, model.SellStatusPending).
		Take(&req).Error
	return req, mapErr(err)
}

func (r sellRepo) ClaimPending(ctx context.Context, claim store.Claim) ([]model.SellRequestModel, error) {
	now := claim.Now.UnixMilli()
	until := claim.Now.Add(claim.Lease).UnixMilli()
	db := r.db.WithContext(ctx)
	candidates := db.Model(&model.SellRequestModel{}).
		Select("id").
		Where("status = ? AND lease_until < ?", model.SellStatusPending, now).
		Order("created_at ASC, id ASC").
		Limit(claim.Limit)
	res := db.Model(&model.SellRequestModel{}).
		Where("id IN (?)", candidates).
		Updates(map[string]interface{}{"lease_owner": claim.Owner, "lease_until": until})
	if res.Error != nil {
		return nil, fmt.Errorf("claim sells: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	var out []model.SellRequestModel
	err := db.Where("lease_owner = ? AND lease_until = ?", claim.Owner, until).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("load claimed sells: %w", err)
	}
	return out, nil
}

func (r sellRepo) MarkExecuted(ctx context.Context, id, txHash string, realized float64, now time.Time) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":          model.SellStatusExecuted,
		"tx_hash":         txHash,
		"realized_amount": realized,
		"executed_at":     now.UnixMilli(),
	}, now)
}

func (r sellRepo) MarkFailed(ctx context.Context, id, errMsg string, now time.Time) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":        model.SellStatusFailed,
		"error_message": errMsg,
	}, now)
}

func (r sellRepo) finish(ctx context.Context, id string, fields map[string]interface{}, now time.Time) error {
	fields["lease_owner"] = ""
	fields["lease_until"] = int64(0)
	fields["updated_at"] = now.UnixMilli()
	db := r.db.WithContext(ctx)
	res := db.Model(&model.SellRequestModel{}).
		Where("id = ? AND status = ?", id, model.SellStatusPending).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("finish sell: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(db, &model.SellRequestModel{}, id)
	}
	return nil
}

func (r sellRepo) SumExecuted(ctx context.Context, tradeID string) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).Model(&model.SellRequestModel{}).
		Select("COALESCE(SUM(realized_amount), 0)").
		Where("trade_id = ? AND status = ?", tradeID, model.SellStatusExecuted).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum executed sells: %w", err)
	}
	return total, nil
}
