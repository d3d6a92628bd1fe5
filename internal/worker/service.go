// Package worker serves the worker API commands on top of the relay and
// trading services.
package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"signalrelay/internal/command"
	"signalrelay/internal/config/loader"
	"signalrelay/internal/events"
	"signalrelay/internal/logger"
	"signalrelay/internal/relay"
	"signalrelay/internal/routing"
	"signalrelay/internal/store"
	"signalrelay/internal/store/model"
	"signalrelay/internal/trading"
)

// sellPending is the error text returned when an exit is requested for a
// trade that already has a pending sell.
const sellPending = "Sell already pending"

type Relay interface {
	Push(ctx context.Context, req relay.PushRequest, settings routing.Settings) (relay.PushResult, error)
	Pull(ctx context.Context, worker string, limit int) ([]store.QueuedMessageView, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) (model.QueuedMessageModel, error)
	Approve(ctx context.Context, id string) error
	Reject(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	ReviewQueue(ctx context.Context, limit int) ([]model.QueuedMessageModel, error)
	Channels(ctx context.Context) ([]store.ChannelView, error)
}

type Trades interface {
	Open(ctx context.Context, req trading.OpenRequest) (trading.OpenResult, error)
	ConfirmBuy(ctx context.Context, ack trading.BuyAck) error
	FailBuy(ctx context.Context, tradeID, errMsg string) (model.TradeStatus, error)
	UpdatePrice(ctx context.Context, tradeID string, price float64) (trading.PriceUpdate, error)
	ExecuteSell(ctx context.Context, ack trading.SellAck) (model.TradeStatus, error)
	FailSell(ctx context.Context, sellID, errMsg string) (model.TradeStatus, error)
	ClaimPendingBuys(ctx context.Context, owner string, limit int) ([]model.TradeModel, error)
	ClaimPendingSells(ctx context.Context, owner string, limit int) ([]model.SellRequestModel, error)
	List(ctx context.Context, status model.TradeStatus, limit int) ([]model.TradeModel, error)
	Get(ctx context.Context, id string) (model.TradeModel, error)
}

type Exits interface {
	RequestExit(ctx context.Context, req trading.ExitRequest) (trading.ExitResult, error)
}

// Roster exposes the current settings snapshot.
type Roster interface {
	Snapshot() loader.RosterSnapshot
}

type Recorder interface {
	Record(ctx context.Context, evt events.Event)
}

type Deps struct {
	Relay   Relay
	Trades  Trades
	Exits   Exits
	Roster  Roster
	Journal Recorder
	Status  store.StatusRepository
}

// Service implements command.Handler.
type Service struct {
	relay   Relay
	trades  Trades
	exits   Exits
	roster  Roster
	journal Recorder
	status  store.StatusRepository
	now     func() time.Time
}

var _ command.Handler = (*Service)(nil)

func NewService(deps Deps) *Service {
	return &Service{
		relay:   deps.Relay,
		trades:  deps.Trades,
		exits:   deps.Exits,
		roster:  deps.Roster,
		journal: deps.Journal,
		status:  deps.Status,
		now:     time.Now,
	}
}

func success() command.Reply { return command.Reply{"success": true} }

func (s *Service) PushMessage(ctx context.Context, cmd command.PushMessage) (command.Reply, error) {
	snap := s.roster.Snapshot()
	res, err := s.relay.Push(ctx, relay.PushRequest{
		ChannelID:       cmd.ChannelID,
		Fingerprint:     cmd.Fingerprint,
		MessageText:     cmd.MessageText,
		AuthorName:      cmd.AuthorName,
		AttachmentURLs:  cmd.AttachmentURLs,
		SourceMessageID: cmd.SourceMessageID,
		Timestamp:       cmd.SourceTime(),
	}, routing.Settings{ClassifierEnabled: snap.ClassifierEnabled})
	if err != nil {
		return nil, err
	}
	out := command.Reply{"success": true, "duplicate": res.Duplicate}
	if res.Skipped {
		out["skipped"] = true
	}
	if res.SignalType != "" {
		out["signal_type"] = res.SignalType
	}
	if res.MessageID != "" {
		out["message_id"] = res.MessageID
	}
	if res.TradeID != "" {
		out["trade_id"] = res.TradeID
	}
	return out, nil
}

func (s *Service) MarkSent(ctx context.Context, cmd command.MarkSent) (command.Reply, error) {
	if err := s.relay.MarkSent(ctx, cmd.MessageID); err != nil {
		return nil, err
	}
	return success(), nil
}

func (s *Service) MarkFailed(ctx context.Context, cmd command.MarkFailed) (command.Reply, error) {
	msg, err := s.relay.MarkFailed(ctx, cmd.MessageID, cmd.ErrorMessage)
	if err != nil {
		return nil, err
	}
	return command.Reply{"success": true, "status": string(msg.Status), "retry_count": msg.RetryCount}, nil
}

func (s *Service) GetPendingMessages(ctx context.Context, cmd command.GetPendingMessages) (command.Reply, error) {
	rows, err := s.relay.Pull(ctx, cmd.WorkerID, cmd.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]messageView, 0, len(rows))
	for _, row := range rows {
		out = append(out, newQueuedView(row))
	}
	return command.Reply{"messages": out}, nil
}

func (s *Service) GetChannels(ctx context.Context, _ command.GetChannels) (command.Reply, error) {
	rows, err := s.relay.Channels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]channelView, 0, len(rows))
	for _, row := range rows {
		out = append(out, newChannelView(row))
	}
	return command.Reply{"channels": out}, nil
}

func (s *Service) GetDestination(_ context.Context, _ command.GetDestination) (command.Reply, error) {
	return command.Reply{"config": s.roster.Snapshot().Destination}, nil
}

func (s *Service) ExecuteTrade(ctx context.Context, cmd command.ExecuteTrade) (command.Reply, error) {
	res, err := s.trades.Open(ctx, trading.OpenRequest{
		MessageText: cmd.MessageText,
		ChannelID:   cmd.ChannelID,
		ChannelName: cmd.ChannelName,
		Fingerprint: cmd.Fingerprint,
		AuthorName:  cmd.AuthorName,
	})
	if err != nil {
		return nil, err
	}
	out := command.Reply{"success": res.Opened}
	if res.TradeID != "" {
		out["trade_id"] = res.TradeID
	}
	if res.Reason != "" {
		out["reason"] = res.Reason
	}
	return out, nil
}

func (s *Service) GetPendingTrades(ctx context.Context, cmd command.GetPendingTrades) (command.Reply, error) {
	rows, err := s.trades.ClaimPendingBuys(ctx, cmd.WorkerID, cmd.Limit)
	if err != nil {
		return nil, err
	}
	return command.Reply{"trades": tradeViews(rows)}, nil
}

func (s *Service) UpdateTradeBought(ctx context.Context, cmd command.UpdateTradeBought) (command.Reply, error) {
	err := s.trades.ConfirmBuy(ctx, trading.BuyAck{
		TradeID:     cmd.TradeID,
		TxHash:      cmd.TxHash,
		EntryPrice:  cmd.EntryPrice,
		TokenAmount: cmd.TokenAmount,
	})
	if err != nil {
		return nil, err
	}
	return success(), nil
}

func (s *Service) UpdateTradeFailed(ctx context.Context, cmd command.UpdateTradeFailed) (command.Reply, error) {
	status, err := s.trades.FailBuy(ctx, cmd.TradeID, cmd.ErrorMessage)
	if err != nil {
		return nil, err
	}
	return command.Reply{"success": true, "status": string(status)}, nil
}

func (s *Service) UpdateTradePrice(ctx context.Context, cmd command.UpdateTradePrice) (command.Reply, error) {
	upd, err := s.trades.UpdatePrice(ctx, cmd.TradeID, cmd.CurrentPrice)
	if err != nil {
		return nil, err
	}
	out := command.Reply{
		"success":       true,
		"pnl_pct":       upd.PnLPct,
		"action_needed": string(upd.Action),
	}
	if upd.SellID != "" {
		out["sell_id"] = upd.SellID
		out["sell_created"] = upd.Created
	}
	return out, nil
}

func (s *Service) TriggerAutoSell(ctx context.Context, cmd command.TriggerAutoSell) (command.Reply, error) {
	res, err := s.exits.RequestExit(ctx, trading.ExitRequest{
		TradeID:     cmd.TradeID,
		Percentage:  cmd.Percentage,
		Reason:      cmd.Reason,
		SlippageBps: cmd.SlippageBps,
	})
	if err != nil {
		return nil, err
	}
	if !res.Created {
		out := command.Reply{"success": false, "error": sellPending}
		if res.SellID != "" {
			out["sell_id"] = res.SellID
		}
		return out, nil
	}
	return command.Reply{"success": true, "sell_id": res.SellID}, nil
}

func (s *Service) GetPendingSells(ctx context.Context, cmd command.GetPendingSells) (command.Reply, error) {
	rows, err := s.trades.ClaimPendingSells(ctx, cmd.WorkerID, cmd.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]sellView, 0, len(rows))
	for _, row := range rows {
		trade, err := s.trades.Get(ctx, row.TradeID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		out = append(out, newSellView(row, trade))
	}
	return command.Reply{"sells": out}, nil
}

func (s *Service) UpdateSellExecuted(ctx context.Context, cmd command.UpdateSellExecuted) (command.Reply, error) {
	status, err := s.trades.ExecuteSell(ctx, trading.SellAck{
		SellID:         cmd.SellID,
		TxHash:         cmd.TxHash,
		RealizedAmount: cmd.RealizedAmount,
	})
	if err != nil {
		return nil, err
	}
	return command.Reply{"success": true, "trade_status": string(status)}, nil
}

func (s *Service) UpdateSellFailed(ctx context.Context, cmd command.UpdateSellFailed) (command.Reply, error) {
	status, err := s.trades.FailSell(ctx, cmd.SellID, cmd.ErrorMessage)
	if err != nil {
		return nil, err
	}
	return command.Reply{"success": true, "trade_status": string(status)}, nil
}

func (s *Service) UpdateConnectionStatus(ctx context.Context, cmd command.UpdateConnectionStatus) (command.Reply, error) {
	err := s.status.UpsertConnection(ctx, model.ConnectionStatusModel{
		Service:       strings.TrimSpace(cmd.Service),
		Status:        strings.TrimSpace(cmd.Status),
		ErrorMessage:  cmd.ErrorMessage,
		UpdatedAtUnix: s.now().UnixMilli(),
	})
	if err != nil {
		return nil, err
	}
	return success(), nil
}

func (s *Service) Log(ctx context.Context, cmd command.Log) (command.Reply, error) {
	line := cmd.Message
	if cmd.ChannelName != "" {
		line = "[" + cmd.ChannelName + "] " + line
	}
	switch strings.ToLower(cmd.Level) {
	case "debug":
		logger.Debugf("worker: %s", line)
	case "warn", "warning":
		logger.Warnf("worker: %s", line)
	case "error":
		logger.Errorf("worker: %s", line)
	default:
		logger.Infof("worker: %s", line)
	}
	if s.journal != nil {
		s.journal.Record(ctx, events.WorkerLog{
			Level:       cmd.Level,
			Message:     cmd.Message,
			ChannelName: cmd.ChannelName,
			Details:     cmd.Details,
		})
	}
	return success(), nil
}

func (s *Service) GetReviewQueue(ctx context.Context, cmd command.GetReviewQueue) (command.Reply, error) {
	rows, err := s.relay.ReviewQueue(ctx, cmd.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]messageView, 0, len(rows))
	for _, row := range rows {
		out = append(out, newMessageView(row))
	}
	return command.Reply{"messages": out}, nil
}

func (s *Service) ApproveMessage(ctx context.Context, cmd command.ApproveMessage) (command.Reply, error) {
	if err := s.relay.Approve(ctx, cmd.MessageID); err != nil {
		return nil, err
	}
	return success(), nil
}

func (s *Service) RejectMessage(ctx context.Context, cmd command.RejectMessage) (command.Reply, error) {
	if err := s.relay.Reject(ctx, cmd.MessageID); err != nil {
		return nil, err
	}
	return success(), nil
}

func (s *Service) DeleteMessage(ctx context.Context, cmd command.DeleteMessage) (command.Reply, error) {
	if err := s.relay.Delete(ctx, cmd.MessageID); err != nil {
		return nil, err
	}
	return success(), nil
}

func (s *Service) ListTrades(ctx context.Context, cmd command.ListTrades) (command.Reply, error) {
	rows, err := s.trades.List(ctx, model.TradeStatus(cmd.Status), cmd.Limit)
	if err != nil {
		return nil, err
	}
	return command.Reply{"trades": tradeViews(rows)}, nil
}

func tradeViews(rows []model.TradeModel) []tradeView {
	out := make([]tradeView, 0, len(rows))
	for _, row := range rows {
		out = append(out, newTradeView(row))
	}
	return out
}
