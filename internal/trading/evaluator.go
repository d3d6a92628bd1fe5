package trading

import (
	"time"

	"signalrelay/internal/store/model"

	"github.com/shopspring/decimal"
)

// Action is the exit the evaluator asks for.
type Action string

const (
	ActionNone         Action = "none"
	ActionStopLoss     Action = "stop_loss"
	ActionTrailingStop Action = "trailing_stop"
	ActionTimeExit     Action = "time_exit"
	ActionTakeProfit1  Action = "take_profit_1"
	ActionTakeProfit2  Action = "take_profit_2"
)

// DefaultTakeProfit1SellPct is the share of the position sold at the first target.
const DefaultTakeProfit1SellPct = 50

type Evaluation struct {
	Action         Action
	SellPercentage float64
	NextStatus     model.TradeStatus
	PnLPct         float64
	HighestPrice   float64
}

// Evaluate checks price against the exit rules snapshotted on trade. It has no
// side effects. Rules are tried in order stop loss, trailing stop, time exit,
// first target, second target; the first that fires wins.
func Evaluate(trade model.TradeModel, price float64, now time.Time, tp1SellPct float64) Evaluation {
	ev := Evaluation{Action: ActionNone, NextStatus: trade.Status, HighestPrice: trade.HighestPrice}
	if price <= 0 || trade.EntryPrice <= 0 {
		return ev
	}
	cur := decFromFloat(price)
	pnl := pctOf(cur, decFromFloat(trade.EntryPrice))
	ev.PnLPct = decToFloat(pnl.Round(4))

	highest := decFromFloat(trade.HighestPrice)
	if cur.GreaterThan(highest) {
		highest = cur
	}
	ev.HighestPrice = decToFloat(highest)

	if !trade.Status.Open() {
		return ev
	}
	switch {
	case stopLossHit(pnl, trade.StopLossPct):
		return ev.exit(ActionStopLoss, 100, model.TradeStatusStopped)
	case trailingStopHit(cur, highest, trade):
		return ev.exit(ActionTrailingStop, 100, model.TradeStatusStopped)
	case timeExitDue(trade, now):
		return ev.exit(ActionTimeExit, 100, model.TradeStatusSold)
	case trade.Status == model.TradeStatusBought && targetHit(pnl, trade.TakeProfit1Pct):
		if tp1SellPct <= 0 || tp1SellPct > 100 {
			tp1SellPct = DefaultTakeProfit1SellPct
		}
		return ev.exit(ActionTakeProfit1, tp1SellPct, model.TradeStatusPartialTP1)
	case trade.Status == model.TradeStatusPartialTP1 && targetHit(pnl, trade.TakeProfit2Pct):
		return ev.exit(ActionTakeProfit2, 100, model.TradeStatusSold)
	}
	return ev
}

func (ev Evaluation) exit(action Action, pct float64, next model.TradeStatus) Evaluation {
	ev.Action = action
	ev.SellPercentage = pct
	ev.NextStatus = next
	return ev
}

// stopLossHit accepts the threshold with either sign; zero disables the rule.
func stopLossHit(pnl decimal.Decimal, stopLossPct float64) bool {
	if stopLossPct == 0 {
		return false
	}
	threshold := decFromFloat(stopLossPct).Abs().Neg()
	return pnl.LessThanOrEqual(threshold)
}

func trailingStopHit(cur, highest decimal.Decimal, trade model.TradeModel) bool {
	if !trade.TrailingStopEnabled || trade.TrailingStopPct <= 0 {
		return false
	}
	stop := trailingStopFor(highest, trade.TrailingStopPct)
	return stop.IsPositive() && cur.LessThanOrEqual(stop)
}

func timeExitDue(trade model.TradeModel, now time.Time) bool {
	if !trade.TimeBasedSellEnabled || trade.TimeBasedSellAtUnix <= 0 {
		return false
	}
	return now.UnixMilli() >= trade.TimeBasedSellAtUnix
}

func targetHit(pnl decimal.Decimal, targetPct float64) bool {
	if targetPct <= 0 {
		return false
	}
	return pnl.GreaterThanOrEqual(decFromFloat(targetPct))
}

// ExitOutcome is the trade state after a sell of the given reason executes.
func ExitOutcome(status model.TradeStatus, remaining float64, sellPct float64, reason string) (model.TradeStatus, float64) {
	switch Action(reason) {
	case ActionStopLoss, ActionTrailingStop:
		return model.TradeStatusStopped, 0
	}
	left := remainingAfter(remaining, sellPct)
	if left <= 0 {
		return model.TradeStatusSold, 0
	}
	if Action(reason) == ActionTakeProfit1 && status == model.TradeStatusBought {
		return model.TradeStatusPartialTP1, left
	}
	return status, left
}
