package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"signalrelay/internal/events"
	"signalrelay/internal/logger"
	"signalrelay/internal/pkg/errs"
	"signalrelay/internal/store"
	"signalrelay/internal/store/model"

	"github.com/google/uuid"
)

const (
	ReasonTradingNotEnabled = "trading_not_enabled"
	ReasonNoAssetFound      = "no_asset_found"
	ReasonDuplicateTrade    = "duplicate_trade"
)

// Recorder journals domain events.
type Recorder interface {
	Record(ctx context.Context, evt events.Event)
}

// Counters is the slice of metrics the ledger reports to.
type Counters interface {
	Trade(status string)
	ExitRequest(created bool)
}

// Alerter notifies operators about trades that ended in failure.
type Alerter interface {
	TradeFailed(ctx context.Context, trade model.TradeModel)
}

// BuyExecutor forwards a new trade to the swap executor.
type BuyExecutor interface {
	SubmitBuy(ctx context.Context, trade model.TradeModel) error
}

type Options struct {
	DuplicateWindow    time.Duration
	BuyRetryCap        int
	SellRetryCap       int
	TakeProfit1SellPct float64
	DefaultSlippageBps int
	AutoExit           bool
	Lease              time.Duration
}

func (o Options) withDefaults() Options {
	if o.DuplicateWindow <= 0 {
		o.DuplicateWindow = 5 * time.Minute
	}
	if o.BuyRetryCap <= 0 {
		o.BuyRetryCap = 3
	}
	if o.SellRetryCap <= 0 {
		o.SellRetryCap = 3
	}
	if o.TakeProfit1SellPct <= 0 || o.TakeProfit1SellPct > 100 {
		o.TakeProfit1SellPct = DefaultTakeProfit1SellPct
	}
	if o.DefaultSlippageBps <= 0 {
		o.DefaultSlippageBps = 100
	}
	if o.Lease <= 0 {
		o.Lease = 2 * time.Minute
	}
	return o
}

// Ledger owns the trade lifecycle. Every status change is a conditional
// update so a transition from the wrong state changes nothing.
type Ledger struct {
	store    store.Store
	sells    *SellManager
	journal  Recorder
	counters Counters
	alerter  Alerter
	executor BuyExecutor
	opts     Options
	now      func() time.Time
}

type LedgerDeps struct {
	Store    store.Store
	Journal  Recorder
	Counters Counters
	Alerter  Alerter
	Executor BuyExecutor
}

func NewLedger(deps LedgerDeps, opts Options) *Ledger {
	opts = opts.withDefaults()
	l := &Ledger{
		store:    deps.Store,
		journal:  deps.Journal,
		counters: deps.Counters,
		alerter:  deps.Alerter,
		executor: deps.Executor,
		opts:     opts,
		now:      time.Now,
	}
	if l.journal == nil {
		l.journal = nopRecorder{}
	}
	if l.counters == nil {
		l.counters = nopCounters{}
	}
	l.sells = NewSellManager(deps.Store, l.journal, l.counters, opts.DefaultSlippageBps)
	return l
}

// Sells exposes the singleton manager the ledger routes exits through.
func (l *Ledger) Sells() *SellManager { return l.sells }

type OpenRequest struct {
	MessageText string
	ChannelID   string
	ChannelName string
	Fingerprint string
	AuthorName  string
}

type OpenResult struct {
	Opened  bool
	TradeID string
	Reason  string
}

// Open creates a pending_buy trade when the channel has an enabled trading
// config and the text names an asset not traded within the duplicate window.
func (l *Ledger) Open(ctx context.Context, req OpenRequest) (OpenResult, error) {
	if strings.TrimSpace(req.Fingerprint) == "" {
		return OpenResult{}, errs.InvalidField("fingerprint", "required")
	}
	configs, err := l.store.Roster().TradingConfigs(ctx)
	if err != nil {
		return OpenResult{}, fmt.Errorf("open trade: %w", err)
	}
	cfg, ok := MatchConfig(configs, req.ChannelName, req.ChannelID)
	if !ok {
		return l.reject(ctx, req, "", ReasonTradingNotEnabled), nil
	}
	asset, ok := ExtractAsset(req.MessageText)
	if !ok {
		return l.reject(ctx, req, "", ReasonNoAssetFound), nil
	}
	now := l.now()
	trade := snapshotTrade(cfg, asset, req, now)
	if l.executor != nil {
		trade.BuyDispatch = model.BuyDispatchExecutor
	}
	created, err := l.store.Trades().CreateGuarded(ctx, &trade, l.opts.DuplicateWindow)
	if err != nil {
		return OpenResult{}, fmt.Errorf("open trade: %w", err)
	}
	if !created {
		return l.reject(ctx, req, asset.Address, ReasonDuplicateTrade), nil
	}
	logger.Infof("trade %s opened: %s on %s from %s", trade.ID, trade.ContractAddress, trade.Chain, req.ChannelName)
	l.counters.Trade(string(model.TradeStatusPendingBuy))
	l.journal.Record(ctx, events.TradeOpened{
		TradeID:         trade.ID,
		ContractAddress: trade.ContractAddress,
		Chain:           trade.Chain,
		ChannelID:       trade.ChannelID,
		Fingerprint:     trade.MessageFingerprint,
		Allocation:      trade.Allocation,
	})
	if l.executor != nil {
		if err := l.executor.SubmitBuy(ctx, trade); err != nil {
			logger.Warnf("trade %s: executor hook failed: %v", trade.ID, err)
			if _, ferr := l.FailBuy(ctx, trade.ID, err.Error()); ferr != nil {
				logger.Errorf("trade %s: record hook failure: %v", trade.ID, ferr)
			}
		}
	}
	return OpenResult{Opened: true, TradeID: trade.ID}, nil
}

func (l *Ledger) reject(ctx context.Context, req OpenRequest, address, reason string) OpenResult {
	logger.Debugf("trade rejected for %s: %s", req.Fingerprint, reason)
	l.journal.Record(ctx, events.TradeRejected{
		Fingerprint:     req.Fingerprint,
		ChannelID:       req.ChannelID,
		ContractAddress: address,
		Reason:          reason,
	})
	return OpenResult{Reason: reason}
}

func snapshotTrade(cfg model.TradingConfigModel, asset Asset, req OpenRequest, now time.Time) model.TradeModel {
	chain := strings.TrimSpace(cfg.Chain)
	if chain == "" {
		chain = asset.Chain
	}
	ts := now.UnixMilli()
	return model.TradeModel{
		ID:                   uuid.NewString(),
		ContractAddress:      asset.Address,
		Chain:                chain,
		ChannelID:            req.ChannelID,
		ChannelName:          req.ChannelName,
		AuthorName:           req.AuthorName,
		MessageFingerprint:   req.Fingerprint,
		Allocation:           cfg.Allocation,
		RemainingPct:         100,
		StopLossPct:          cfg.StopLossPct,
		TakeProfit1Pct:       cfg.TakeProfit1Pct,
		TakeProfit2Pct:       cfg.TakeProfit2Pct,
		TrailingStopEnabled:  cfg.TrailingStopEnabled,
		TrailingStopPct:      cfg.TrailingStopPct,
		TimeBasedSellEnabled: cfg.TimeBasedSellEnabled,
		TimeBasedSellMinutes: cfg.TimeBasedSellMinutes,
		SlippageBps:          cfg.SlippageBps,
		Status:               model.TradeStatusPendingBuy,
		CreatedAtUnix:        ts,
		UpdatedAtUnix:        ts,
	}
}

type BuyAck struct {
	TradeID     string
	TxHash      string
	EntryPrice  float64
	TokenAmount float64
}

// ConfirmBuy moves a pending_buy trade to bought. Replaying the same ack is a
// no-op.
func (l *Ledger) ConfirmBuy(ctx context.Context, ack BuyAck) error {
	if ack.EntryPrice <= 0 {
		return errs.InvalidField("entry_price", "must be positive")
	}
	if strings.TrimSpace(ack.TxHash) == "" {
		return errs.InvalidField("tx_hash", "required")
	}
	now := l.now()
	replay := false
	err := l.store.WithinTx(ctx, func(tx store.Store) error {
		trade, err := tx.Trades().Get(ctx, ack.TradeID)
		if err != nil {
			return err
		}
		if trade.Status == model.TradeStatusBought && trade.BuyTxHash == ack.TxHash {
			replay = true
			return nil
		}
		fields := map[string]any{
			"status":        model.TradeStatusBought,
			"entry_price":   ack.EntryPrice,
			"current_price": ack.EntryPrice,
			"highest_price": ack.EntryPrice,
			"token_amount":  ack.TokenAmount,
			"remaining_pct": float64(100),
			"buy_tx_hash":   ack.TxHash,
			"bought_at":     now.UnixMilli(),
			"error_message": "",
			"lease_owner":   "",
			"lease_until":   int64(0),
			"updated_at":    now.UnixMilli(),
		}
		if trade.TimeBasedSellEnabled && trade.TimeBasedSellMinutes > 0 {
			deadline := now.Add(time.Duration(trade.TimeBasedSellMinutes) * time.Minute)
			fields["time_based_sell_at"] = deadline.UnixMilli()
		}
		return tx.Trades().Transition(ctx, store.TradeUpdate{
			ID:     ack.TradeID,
			From:   []model.TradeStatus{model.TradeStatusPendingBuy},
			Fields: fields,
		})
	})
	if err != nil {
		return fmt.Errorf("confirm buy %s: %w", ack.TradeID, err)
	}
	if replay {
		return nil
	}
	l.transitioned(ctx, ack.TradeID, model.TradeStatusPendingBuy, model.TradeStatusBought, "buy_executed", ack.TxHash)
	return nil
}

// FailBuy counts a failed buy attempt. At the retry cap the trade fails;
// below it the trade is released to polling workers, including one the
// executor webhook could not take.
func (l *Ledger) FailBuy(ctx context.Context, tradeID, errMsg string) (model.TradeStatus, error) {
	now := l.now()
	next := model.TradeStatusPendingBuy
	var failed model.TradeModel
	err := l.store.WithinTx(ctx, func(tx store.Store) error {
		trade, err := tx.Trades().Get(ctx, tradeID)
		if err != nil {
			return err
		}
		if trade.Status != model.TradeStatusPendingBuy {
			return store.ErrInvalidTransition
		}
		retries := trade.RetryCount + 1
		fields := map[string]any{
			"retry_count":   retries,
			"error_message": errMsg,
			"buy_dispatch":  "",
			"lease_owner":   "",
			"lease_until":   int64(0),
			"updated_at":    now.UnixMilli(),
		}
		if retries >= l.opts.BuyRetryCap {
			next = model.TradeStatusFailed
			fields["status"] = next
			fields["closed_at"] = now.UnixMilli()
			trade.Status, trade.RetryCount, trade.ErrorMessage = next, retries, errMsg
			failed = trade
		}
		return tx.Trades().Transition(ctx, store.TradeUpdate{
			ID:     tradeID,
			From:   []model.TradeStatus{model.TradeStatusPendingBuy},
			Fields: fields,
		})
	})
	if err != nil {
		return "", fmt.Errorf("fail buy %s: %w", tradeID, err)
	}
	if next == model.TradeStatusFailed {
		l.transitioned(ctx, tradeID, model.TradeStatusPendingBuy, next, "buy_retries_exhausted", "")
		l.alertFailed(ctx, failed)
	} else {
		logger.Warnf("trade %s buy failed, will retry: %s", tradeID, errMsg)
	}
	return next, nil
}

type PriceUpdate struct {
	PnLPct  float64
	Action  Action
	SellID  string
	Created bool
}

// UpdatePrice records a live price and, with auto exit on, turns the
// evaluator's action into a sell request through the singleton manager.
// Prices for trades that are not open are evaluated but not recorded.
func (l *Ledger) UpdatePrice(ctx context.Context, tradeID string, price float64) (PriceUpdate, error) {
	now := l.now()
	var (
		trade model.TradeModel
		err   error
	)
	if price <= 0 {
		trade, err = l.store.Trades().Get(ctx, tradeID)
	} else {
		trade, err = l.store.Trades().RecordPrice(ctx, tradeID, price, now)
		if errors.Is(err, store.ErrInvalidTransition) {
			err = nil
		}
	}
	if err != nil {
		return PriceUpdate{}, fmt.Errorf("update price %s: %w", tradeID, err)
	}
	ev := Evaluate(trade, price, now, l.opts.TakeProfit1SellPct)
	out := PriceUpdate{PnLPct: ev.PnLPct, Action: ev.Action}
	if ev.Action == ActionNone || !l.opts.AutoExit {
		return out, nil
	}
	res, err := l.sells.RequestExit(ctx, ExitRequest{
		TradeID:    tradeID,
		Percentage: ev.SellPercentage,
		Reason:     string(ev.Action),
	})
	switch {
	case errors.Is(err, store.ErrInvalidTransition):
		logger.Debugf("trade %s closed before %s could be requested", tradeID, ev.Action)
		return out, nil
	case err != nil:
		return PriceUpdate{}, fmt.Errorf("update price %s: %w", tradeID, err)
	}
	out.SellID = res.SellID
	out.Created = res.Created
	return out, nil
}

type SellAck struct {
	SellID         string
	TxHash         string
	RealizedAmount float64
}

// ExecuteSell records an executed sell and advances the trade. It returns the
// trade status after the sell.
func (l *Ledger) ExecuteSell(ctx context.Context, ack SellAck) (model.TradeStatus, error) {
	now := l.now()
	var (
		from, next model.TradeStatus
		replay     bool
	)
	err := l.store.WithinTx(ctx, func(tx store.Store) error {
		sell, err := tx.Sells().Get(ctx, ack.SellID)
		if err != nil {
			return err
		}
		if sell.Status == model.SellStatusExecuted && sell.TxHash == ack.TxHash {
			trade, err := tx.Trades().Get(ctx, sell.TradeID)
			from, next, replay = trade.Status, trade.Status, true
			return err
		}
		if err := tx.Sells().MarkExecuted(ctx, ack.SellID, ack.TxHash, ack.RealizedAmount, now); err != nil {
			return err
		}
		trade, err := tx.Trades().Get(ctx, sell.TradeID)
		if err != nil {
			return err
		}
		from = trade.Status
		if !trade.Status.Open() {
			logger.Warnf("sell %s executed for trade %s in status %s", sell.ID, trade.ID, trade.Status)
			next = trade.Status
			return nil
		}
		var remaining float64
		next, remaining = ExitOutcome(trade.Status, trade.RemainingPct, sell.Percentage, sell.Reason)
		fields := map[string]any{
			"remaining_pct": remaining,
			"sell_tx_hash":  ack.TxHash,
			"updated_at":    now.UnixMilli(),
		}
		if next != trade.Status {
			fields["status"] = next
		}
		if next.Terminal() {
			if err := closeFields(ctx, tx, trade, fields, now); err != nil {
				return err
			}
		}
		return tx.Trades().Transition(ctx, store.TradeUpdate{
			ID:     trade.ID,
			From:   []model.TradeStatus{trade.Status},
			Fields: fields,
		})
	})
	if err != nil {
		return "", fmt.Errorf("execute sell %s: %w", ack.SellID, err)
	}
	if !replay && next != from {
		sell, _ := l.store.Sells().Get(ctx, ack.SellID)
		l.transitioned(ctx, sell.TradeID, from, next, sell.Reason, ack.TxHash)
	}
	return next, nil
}

// FailSell marks the sell failed, which frees the singleton slot, and counts
// the failure against the trade. At the sell retry cap the trade fails.
func (l *Ledger) FailSell(ctx context.Context, sellID, errMsg string) (model.TradeStatus, error) {
	now := l.now()
	var (
		from, next model.TradeStatus
		trade      model.TradeModel
	)
	err := l.store.WithinTx(ctx, func(tx store.Store) error {
		sell, err := tx.Sells().Get(ctx, sellID)
		if err != nil {
			return err
		}
		if err := tx.Sells().MarkFailed(ctx, sellID, errMsg, now); err != nil {
			return err
		}
		trade, err = tx.Trades().Get(ctx, sell.TradeID)
		if err != nil {
			return err
		}
		from, next = trade.Status, trade.Status
		if !trade.Status.Open() {
			return nil
		}
		retries := trade.RetryCount + 1
		fields := map[string]any{
			"retry_count":   retries,
			"error_message": errMsg,
			"updated_at":    now.UnixMilli(),
		}
		if retries >= l.opts.SellRetryCap {
			next = model.TradeStatusFailed
			fields["status"] = next
			if err := closeFields(ctx, tx, trade, fields, now); err != nil {
				return err
			}
		}
		trade.RetryCount, trade.ErrorMessage, trade.Status = retries, errMsg, next
		return tx.Trades().Transition(ctx, store.TradeUpdate{
			ID:     trade.ID,
			From:   []model.TradeStatus{from},
			Fields: fields,
		})
	})
	if err != nil {
		return "", fmt.Errorf("fail sell %s: %w", sellID, err)
	}
	if next != from {
		l.transitioned(ctx, trade.ID, from, next, "sell_retries_exhausted", "")
		l.alertFailed(ctx, trade)
	} else {
		logger.Warnf("sell %s failed for trade %s: %s", sellID, trade.ID, errMsg)
	}
	return next, nil
}

// closeFields adds the closing timestamp and realized P&L. Trades that never
// bought realize nothing.
func closeFields(ctx context.Context, tx store.Store, trade model.TradeModel, fields map[string]any, now time.Time) error {
	fields["closed_at"] = now.UnixMilli()
	if trade.BoughtAtUnix <= 0 {
		return nil
	}
	proceeds, err := tx.Sells().SumExecuted(ctx, trade.ID)
	if err != nil {
		return err
	}
	pnl, pct := realizedPnL(proceeds, trade.Allocation)
	fields["realized_pnl"] = pnl
	fields["realized_pnl_pct"] = pct
	return nil
}

// ClaimPendingBuys leases pending_buy trades to an executor worker.
func (l *Ledger) ClaimPendingBuys(ctx context.Context, owner string, limit int) ([]model.TradeModel, error) {
	return l.store.Trades().ClaimPendingBuys(ctx, store.Claim{
		Owner:    claimOwner(owner),
		Limit:    claimLimit(limit),
		RetryCap: l.opts.BuyRetryCap,
		Lease:    l.opts.Lease,
		Now:      l.now(),
	})
}

// ClaimPendingSells leases pending sell requests to an executor worker.
func (l *Ledger) ClaimPendingSells(ctx context.Context, owner string, limit int) ([]model.SellRequestModel, error) {
	return l.store.Sells().ClaimPending(ctx, store.Claim{
		Owner: claimOwner(owner),
		Limit: claimLimit(limit),
		Lease: l.opts.Lease,
		Now:   l.now(),
	})
}

func claimLimit(limit int) int {
	switch {
	case limit <= 0:
		return 10
	case limit > 100:
		return 100
	default:
		return limit
	}
}

func (l *Ledger) List(ctx context.Context, status model.TradeStatus, limit int) ([]model.TradeModel, error) {
	return l.store.Trades().List(ctx, status, limit)
}

func (l *Ledger) Get(ctx context.Context, id string) (model.TradeModel, error) {
	return l.store.Trades().Get(ctx, id)
}

func (l *Ledger) transitioned(ctx context.Context, tradeID string, from, to model.TradeStatus, reason, txHash string) {
	logger.Infof("trade %s: %s -> %s (%s)", tradeID, from, to, reason)
	l.counters.Trade(string(to))
	l.journal.Record(ctx, events.TradeTransition{
		TradeID: tradeID,
		From:    string(from),
		To:      string(to),
		Reason:  reason,
		TxHash:  txHash,
	})
}

func (l *Ledger) alertFailed(ctx context.Context, trade model.TradeModel) {
	if l.alerter == nil {
		return
	}
	l.alerter.TradeFailed(ctx, trade)
}

// claimOwner makes every claim distinguishable even when a worker reuses its id.
func claimOwner(worker string) string {
	worker = strings.TrimSpace(worker)
	if worker == "" {
		worker = "worker"
	}
	return worker + ":" + uuid.NewString()
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, events.Event) {}

type nopCounters struct{}

func (nopCounters) Trade(string)     {}
func (nopCounters) ExitRequest(bool) {}
