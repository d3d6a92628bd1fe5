package worker

import (
	"encoding/json"

	"signalrelay/internal/store"
	"signalrelay/internal/store/model"
)

type messageView struct {
	ID                string   `json:"id"`
	ChannelID         string   `json:"channel_id"`
	ChannelName       string   `json:"channel_name,omitempty"`
	TopicID           string   `json:"topic_id,omitempty"`
	MirrorAttachments bool     `json:"mirror_attachments"`
	Fingerprint       string   `json:"fingerprint"`
	SourceMessageID   string   `json:"discord_message_id,omitempty"`
	AuthorName        string   `json:"author_name"`
	MessageText       string   `json:"message_text"`
	OriginalText      string   `json:"original_text,omitempty"`
	AttachmentURLs    []string `json:"attachment_urls"`
	SignalType        string   `json:"signal_type,omitempty"`
	TradeID           string   `json:"trade_id,omitempty"`
	Status            string   `json:"status"`
	RetryCount        int      `json:"retry_count"`
	ErrorMessage      string   `json:"error_message,omitempty"`
	CreatedAt         int64    `json:"created_at"`
}

func newMessageView(m model.QueuedMessageModel) messageView {
	urls := []string{}
	if len(m.AttachmentURLs) > 0 {
		_ = json.Unmarshal(m.AttachmentURLs, &urls)
	}
	return messageView{
		ID:              m.ID,
		ChannelID:       m.ChannelID,
		Fingerprint:     m.Fingerprint,
		SourceMessageID: m.SourceMessageID,
		AuthorName:      m.AuthorName,
		MessageText:     m.MessageText,
		OriginalText:    m.OriginalText,
		AttachmentURLs:  urls,
		SignalType:      m.SignalType,
		TradeID:         m.TradeID,
		Status:          string(m.Status),
		RetryCount:      m.RetryCount,
		ErrorMessage:    m.ErrorMessage,
		CreatedAt:       m.CreatedAtUnix,
	}
}

func newQueuedView(v store.QueuedMessageView) messageView {
	out := newMessageView(v.QueuedMessageModel)
	out.ChannelName = v.ChannelName
	out.TopicID = v.TopicID
	out.MirrorAttachments = v.MirrorAttachments
	return out
}

type channelView struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	URL                    string `json:"url"`
	Enabled                bool   `json:"enabled"`
	BypassParser           bool   `json:"bypass_parser"`
	MirrorAttachments      bool   `json:"mirror_attachments"`
	TopicID                string `json:"topic_id,omitempty"`
	LastMessageFingerprint string `json:"last_message_fingerprint,omitempty"`
	LastAcceptedAt         int64  `json:"last_accepted_at,omitempty"`
}

func newChannelView(c store.ChannelView) channelView {
	return channelView{
		ID:                     c.ID,
		Name:                   c.Name,
		URL:                    c.URL,
		Enabled:                c.Enabled,
		BypassParser:           c.BypassParser,
		MirrorAttachments:      c.MirrorAttachments,
		TopicID:                c.TopicID,
		LastMessageFingerprint: c.LastFingerprint,
		LastAcceptedAt:         c.LastAcceptedUnix,
	}
}

type tradeView struct {
	ID                   string  `json:"id"`
	ContractAddress      string  `json:"contract_address"`
	Chain                string  `json:"chain"`
	ChannelID            string  `json:"channel_id"`
	ChannelName          string  `json:"channel_name"`
	AuthorName           string  `json:"author_name,omitempty"`
	Allocation           float64 `json:"allocation"`
	EntryPrice           float64 `json:"entry_price"`
	CurrentPrice         float64 `json:"current_price"`
	HighestPrice         float64 `json:"highest_price"`
	TokenAmount          float64 `json:"token_amount"`
	RemainingPct         float64 `json:"remaining_pct"`
	StopLossPct          float64 `json:"stop_loss_pct"`
	TakeProfit1Pct       float64 `json:"take_profit_1_pct"`
	TakeProfit2Pct       float64 `json:"take_profit_2_pct"`
	TrailingStopEnabled  bool    `json:"trailing_stop_enabled"`
	TrailingStopPct      float64 `json:"trailing_stop_pct"`
	TimeBasedSellEnabled bool    `json:"time_based_sell_enabled"`
	TimeBasedSellAt      int64   `json:"time_based_sell_at,omitempty"`
	SlippageBps          int     `json:"slippage_bps"`
	Status               string  `json:"status"`
	BuyTxHash            string  `json:"buy_tx_hash,omitempty"`
	SellTxHash           string  `json:"sell_tx_hash,omitempty"`
	RealizedPnL          float64 `json:"realized_pnl"`
	RealizedPnLPct       float64 `json:"realized_pnl_pct"`
	RetryCount           int     `json:"retry_count"`
	ErrorMessage         string  `json:"error_message,omitempty"`
	CreatedAt            int64   `json:"created_at"`
	BoughtAt             int64   `json:"bought_at,omitempty"`
	ClosedAt             int64   `json:"closed_at,omitempty"`
}

func newTradeView(t model.TradeModel) tradeView {
	return tradeView{
		ID:                   t.ID,
		ContractAddress:      t.ContractAddress,
		Chain:                t.Chain,
		ChannelID:            t.ChannelID,
		ChannelName:          t.ChannelName,
		AuthorName:           t.AuthorName,
		Allocation:           t.Allocation,
		EntryPrice:           t.EntryPrice,
		CurrentPrice:         t.CurrentPrice,
		HighestPrice:         t.HighestPrice,
		TokenAmount:          t.TokenAmount,
		RemainingPct:         t.RemainingPct,
		StopLossPct:          t.StopLossPct,
		TakeProfit1Pct:       t.TakeProfit1Pct,
		TakeProfit2Pct:       t.TakeProfit2Pct,
		TrailingStopEnabled:  t.TrailingStopEnabled,
		TrailingStopPct:      t.TrailingStopPct,
		TimeBasedSellEnabled: t.TimeBasedSellEnabled,
		TimeBasedSellAt:      t.TimeBasedSellAtUnix,
		SlippageBps:          t.SlippageBps,
		Status:               string(t.Status),
		BuyTxHash:            t.BuyTxHash,
		SellTxHash:           t.SellTxHash,
		RealizedPnL:          t.RealizedPnL,
		RealizedPnLPct:       t.RealizedPnLPct,
		RetryCount:           t.RetryCount,
		ErrorMessage:         t.ErrorMessage,
		CreatedAt:            t.CreatedAtUnix,
		BoughtAt:             t.BoughtAtUnix,
		ClosedAt:             t.ClosedAtUnix,
	}
}

// sellView carries the asset so executors need no second lookup.
type sellView struct {
	ID              string  `json:"id"`
	TradeID         string  `json:"trade_id"`
	ContractAddress string  `json:"contract_address"`
	Chain           string  `json:"chain"`
	Percentage      float64 `json:"percentage"`
	SlippageBps     int     `json:"slippage_bps"`
	Reason          string  `json:"reason"`
	Status          string  `json:"status"`
	CreatedAt       int64   `json:"created_at"`
}

func newSellView(s model.SellRequestModel, trade model.TradeModel) sellView {
	return sellView{
		ID:              s.ID,
		TradeID:         s.TradeID,
		ContractAddress: trade.ContractAddress,
		Chain:           trade.Chain,
		Percentage:      s.Percentage,
		SlippageBps:     s.SlippageBps,
		Reason:          s.Reason,
		Status:          string(s.Status),
		CreatedAt:       s.CreatedAtUnix,
	}
}
