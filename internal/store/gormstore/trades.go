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

var openTradeStatuses = []model.TradeStatus{model.TradeStatusBought, model.TradeStatusPartialTP1}

type tradeRepo struct {
	db *gorm.DB
}

// CreateGuarded claims the per-asset guard row and inserts the trade in one
// transaction. The guard upsert only succeeds when the previous trade for the
// asset is older than window.
func (r tradeRepo) CreateGuarded(ctx context.Context, trade *model.TradeModel, window time.Duration) (bool, error) {
	if trade == nil || trade.ID == "" || trade.ContractAddress == "" {
		return false, fmt.Errorf("create trade: id and contract address required")
	}
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guard := model.TradeGuardModel{
			ContractAddress: trade.ContractAddress,
			LastTradeID:     trade.ID,
			LastCreatedUnix: trade.CreatedAtUnix,
		}
		cutoff := trade.CreatedAtUnix - window.Milliseconds()
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contract_address"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_trade_id", "last_created_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("trade_guards.last_created_at <= ?", cutoff),
			}},
		}).Create(&guard)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Create(trade).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("create trade: %w", err)
	}
	return created, nil
}

func (r tradeRepo) Get(ctx context.Context, id string) (model.TradeModel, error) {
	var trade model.TradeModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&trade).Error
	return trade, mapErr(err)
}

func (r tradeRepo) Transition(ctx context.Context, upd store.TradeUpdate) error {
	if len(upd.From) == 0 {
		return fmt.Errorf("trade transition: source states required")
	}
	fields := make(map[string]interface{}, len(upd.Fields)+1)
	for k, v := range upd.Fields {
		fields[k] = v
	}
	if _, ok := fields["updated_at"]; !ok {
		fields["updated_at"] = time.Now().UnixMilli()
	}
	db := r.db.WithContext(ctx)
	res := db.Model(&model.TradeModel{}).
		Where("id = ? AND status IN ?", upd.ID, upd.From).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("trade transition: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(db, &model.TradeModel{}, upd.ID)
	}
	return nil
}

// RecordPrice is last-write-wins on current_price while highest_price only
// moves up.
func (r tradeRepo) RecordPrice(ctx context.Context, id string, price float64, now time.Time) (model.TradeModel, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&model.TradeModel{}).
		Where("id = ? AND status IN ?", id, openTradeStatuses).
		Updates(map[string]interface{}{
			"current_price": price,
			"highest_price": gorm.Expr("MAX(highest_price, ?)", price),
			"updated_at":    now.UnixMilli(),
		})
	if res.Error != nil {
		return model.TradeModel{}, fmt.Errorf("record price: %w", res.Error)
	}
	trade, err := r.Get(ctx, id)
	if err != nil {
		return model.TradeModel{}, err
	}
	if res.RowsAffected == 0 {
		return trade, store.ErrInvalidTransition
	}
	return trade, nil
}

// ClaimPendingBuys leases pending buys to a polling worker, skipping trades
// already dispatched to the executor webhook.
func (r tradeRepo) ClaimPendingBuys(ctx context.Context, claim store.Claim) ([]model.TradeModel, error) {
	now := claim.Now.UnixMilli()
	until := claim.Now.Add(claim.Lease).UnixMilli()
	db := r.db.WithContext(ctx)
	candidates := db.Model(&model.TradeModel{}).
		Select("id").
		Where("status = ? AND retry_count < ? AND lease_until < ? AND buy_dispatch = ''",
			model.TradeStatusPendingBuy, claim.RetryCap, now).
		Order("created_at ASC, id ASC").
		Limit(claim.Limit)
	res := db.Model(&model.TradeModel{}).
		Where("id IN (?)", candidates).
		Updates(map[string]interface{}{"lease_owner": claim.Owner, "lease_until": until})
	if res.Error != nil {
		return nil, fmt.Errorf("claim trades: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	var out []model.TradeModel
	err := db.Where("lease_owner = ? AND lease_until = ?", claim.Owner, until).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("load claimed trades: %w", err)
	}
	return out, nil
}

func (r tradeRepo) List(ctx context.Context, status model.TradeStatus, limit int) ([]model.TradeModel, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(clampLimit(limit, 50, 500))
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var out []model.TradeModel
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return out, nil
}
