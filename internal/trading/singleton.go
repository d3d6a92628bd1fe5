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

// ReasonManual labels exits requested without a reason.
const ReasonManual = "manual"

type ExitRequest struct {
	TradeID     string
	Percentage  float64
	Reason      string
	SlippageBps int
}

type ExitResult struct {
	Created bool
	// SellID is the new request, or the one already pending when Created is false.
	SellID string
}

// SellManager keeps at most one pending sell per trade. The guarantee comes
// from the partial unique index on sell_requests, so concurrent callers race
// on the insert and exactly one wins.
type SellManager struct {
	store           store.Store
	journal         Recorder
	counters        Counters
	defaultSlippage int
	now             func() time.Time
}

func NewSellManager(st store.Store, journal Recorder, counters Counters, defaultSlippageBps int) *SellManager {
	if journal == nil {
		journal = nopRecorder{}
	}
	if counters == nil {
		counters = nopCounters{}
	}
	return &SellManager{
		store:           st,
		journal:         journal,
		counters:        counters,
		defaultSlippage: defaultSlippageBps,
		now:             time.Now,
	}
}

func (m *SellManager) RequestExit(ctx context.Context, req ExitRequest) (ExitResult, error) {
	if req.Percentage <= 0 || req.Percentage > 100 {
		return ExitResult{}, errs.InvalidField("percentage", "must be in (0,100]")
	}
	if req.SlippageBps < 0 || req.SlippageBps > 10000 {
		return ExitResult{}, errs.InvalidField("slippage_bps", "must be in [0,10000]")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = ReasonManual
	}
	now := m.now()
	var res ExitResult
	err := m.store.WithinTx(ctx, func(tx store.Store) error {
		trade, err := tx.Trades().Get(ctx, req.TradeID)
		if err != nil {
			return err
		}
		if !trade.Status.Open() {
			return store.ErrInvalidTransition
		}
		sell := model.SellRequestModel{
			ID:            uuid.NewString(),
			TradeID:       trade.ID,
			Percentage:    req.Percentage,
			SlippageBps:   m.slippageFor(req.SlippageBps, trade),
			Reason:        reason,
			CreatedAtUnix: now.UnixMilli(),
			UpdatedAtUnix: now.UnixMilli(),
		}
		created, err := tx.Sells().InsertPending(ctx, &sell)
		if err != nil {
			return err
		}
		if created {
			res = ExitResult{Created: true, SellID: sell.ID}
			return nil
		}
		pending, err := tx.Sells().PendingForTrade(ctx, trade.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		res = ExitResult{SellID: pending.ID}
		return nil
	})
	if err != nil {
		return ExitResult{}, fmt.Errorf("request exit %s: %w", req.TradeID, err)
	}
	m.counters.ExitRequest(res.Created)
	m.journal.Record(ctx, events.ExitRequested{
		TradeID:    req.TradeID,
		SellID:     res.SellID,
		Percentage: req.Percentage,
		Reason:     reason,
		Created:    res.Created,
	})
	if res.Created {
		logger.Infof("trade %s: sell %s requested %.2f%% (%s)", req.TradeID, res.SellID, req.Percentage, reason)
	} else {
		logger.Debugf("trade %s: sell already pending (%s)", req.TradeID, res.SellID)
	}
	return res, nil
}

func (m *SellManager) slippageFor(requested int, trade model.TradeModel) int {
	switch {
	case requested > 0:
		return requested
	case trade.SlippageBps > 0:
		return trade.SlippageBps
	default:
		return m.defaultSlippage
	}
}
