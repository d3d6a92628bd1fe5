package command

import (
	"context"
	"strings"
	"time"

	"signalrelay/internal/pkg/errs"
)

type PushMessage struct {
	ChannelID       string   `json:"channel_id"`
	Fingerprint     string   `json:"fingerprint"`
	MessageText     string   `json:"message_text"`
	AuthorName      string   `json:"author_name"`
	AttachmentURLs  []string `json:"attachment_urls"`
	SourceMessageID string   `json:"discord_message_id"`
	Timestamp       string   `json:"timestamp"`

	sourceTime time.Time
}

// SourceTime is the parsed timestamp, zero when the worker sent none.
func (c PushMessage) SourceTime() time.Time { return c.sourceTime }

func (c *PushMessage) check() error {
	ts := strings.TrimSpace(c.Timestamp)
	if ts == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return errs.InvalidField("timestamp", "expected RFC 3339 time, got %q", ts)
	}
	c.sourceTime = t
	return nil
}

type MarkSent struct {
	MessageID string `json:"message_id"`
}

type MarkFailed struct {
	MessageID    string `json:"message_id"`
	ErrorMessage string `json:"error_message"`
}

// Claim carries the paging fields shared by the polling actions.
type Claim struct {
	Limit    int    `json:"limit"`
	WorkerID string `json:"worker_id"`
}

type GetPendingMessages struct{ Claim }

type GetChannels struct{}

type GetDestination struct{}

type ExecuteTrade struct {
	MessageText string `json:"message_text"`
	ChannelName string `json:"channel_name"`
	ChannelID   string `json:"channel_id"`
	Fingerprint string `json:"fingerprint"`
	AuthorName  string `json:"author_name"`
}

type GetPendingTrades struct{ Claim }

type UpdateTradeBought struct {
	TradeID     string  `json:"trade_id"`
	TxHash      string  `json:"tx_hash"`
	EntryPrice  float64 `json:"entry_price"`
	TokenAmount float64 `json:"token_amount"`
}

type UpdateTradeFailed struct {
	TradeID      string `json:"trade_id"`
	ErrorMessage string `json:"error_message"`
}

type UpdateTradePrice struct {
	TradeID      string  `json:"trade_id"`
	CurrentPrice float64 `json:"current_price"`
}

type TriggerAutoSell struct {
	TradeID     string  `json:"trade_id"`
	Percentage  float64 `json:"percentage"`
	Reason      string  `json:"reason"`
	SlippageBps int     `json:"slippage_bps"`
}

type GetPendingSells struct{ Claim }

type UpdateSellExecuted struct {
	SellID         string  `json:"sell_id"`
	TxHash         string  `json:"tx_hash"`
	RealizedAmount float64 `json:"realized_amount"`
}

type UpdateSellFailed struct {
	SellID       string `json:"sell_id"`
	ErrorMessage string `json:"error_message"`
}

type UpdateConnectionStatus struct {
	Service      string `json:"service"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

type Log struct {
	Level       string         `json:"level"`
	Message     string         `json:"message"`
	ChannelName string         `json:"channel_name"`
	Details     map[string]any `json:"details"`
}

type GetReviewQueue struct {
	Limit int `json:"limit"`
}

type ApproveMessage struct {
	MessageID string `json:"message_id"`
}

type RejectMessage struct {
	MessageID string `json:"message_id"`
}

type DeleteMessage struct {
	MessageID string `json:"message_id"`
}

type ListTrades struct {
	Status string `json:"status"`
	Limit  int    `json:"limit"`
}

func (PushMessage) Action() Action            { return ActionPushMessage }
func (MarkSent) Action() Action               { return ActionMarkSent }
func (MarkFailed) Action() Action             { return ActionMarkFailed }
func (GetPendingMessages) Action() Action     { return ActionGetPendingMessages }
func (GetChannels) Action() Action            { return ActionGetChannels }
func (GetDestination) Action() Action         { return ActionGetDestination }
func (ExecuteTrade) Action() Action           { return ActionExecuteTrade }
func (GetPendingTrades) Action() Action       { return ActionGetPendingTrades }
func (UpdateTradeBought) Action() Action      { return ActionUpdateTradeBought }
func (UpdateTradeFailed) Action() Action      { return ActionUpdateTradeFailed }
func (UpdateTradePrice) Action() Action       { return ActionUpdateTradePrice }
func (TriggerAutoSell) Action() Action        { return ActionTriggerAutoSell }
func (GetPendingSells) Action() Action        { return ActionGetPendingSells }
func (UpdateSellExecuted) Action() Action     { return ActionUpdateSellExecuted }
func (UpdateSellFailed) Action() Action       { return ActionUpdateSellFailed }
func (UpdateConnectionStatus) Action() Action { return ActionUpdateConnectionStatus }
func (Log) Action() Action                    { return ActionLog }
func (GetReviewQueue) Action() Action         { return ActionGetReviewQueue }
func (ApproveMessage) Action() Action         { return ActionApproveMessage }
func (RejectMessage) Action() Action          { return ActionRejectMessage }
func (DeleteMessage) Action() Action          { return ActionDeleteMessage }
func (ListTrades) Action() Action             { return ActionListTrades }

func (c PushMessage) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.PushMessage(ctx, c)
}

func (c MarkSent) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.MarkSent(ctx, c)
}

func (c MarkFailed) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.MarkFailed(ctx, c)
}

func (c GetPendingMessages) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.GetPendingMessages(ctx, c)
}

func (c GetChannels) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.GetChannels(ctx, c)
}

func (c GetDestination) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.GetDestination(ctx, c)
}

func (c ExecuteTrade) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.ExecuteTrade(ctx, c)
}

func (c GetPendingTrades) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.GetPendingTrades(ctx, c)
}

func (c UpdateTradeBought) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.UpdateTradeBought(ctx, c)
}

func (c UpdateTradeFailed) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.UpdateTradeFailed(ctx, c)
}

func (c UpdateTradePrice) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.UpdateTradePrice(ctx, c)
}

func (c TriggerAutoSell) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.TriggerAutoSell(ctx, c)
}

func (c GetPendingSells) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.GetPendingSells(ctx, c)
}

func (c UpdateSellExecuted) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.UpdateSellExecuted(ctx, c)
}

func (c UpdateSellFailed) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.UpdateSellFailed(ctx, c)
}

func (c UpdateConnectionStatus) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.UpdateConnectionStatus(ctx, c)
}

func (c Log) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.Log(ctx, c)
}

func (c GetReviewQueue) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.GetReviewQueue(ctx, c)
}

func (c ApproveMessage) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.ApproveMessage(ctx, c)
}

func (c RejectMessage) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.RejectMessage(ctx, c)
}

func (c DeleteMessage) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.DeleteMessage(ctx, c)
}

func (c ListTrades) dispatch(ctx context.Context, h Handler) (Reply, error) {
	return h.ListTrades(ctx, c)
}
