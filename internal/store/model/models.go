package model

import (
	"strings"

	"gorm.io/datatypes"
)

type MessageStatus string

const (
	MessageStatusPending  MessageStatus = "pending"
	MessageStatusSent     MessageStatus = "sent"
	MessageStatusFailed   MessageStatus = "failed"
	MessageStatusRejected MessageStatus = "rejected"
	MessageStatusSkipped  MessageStatus = "skipped"
)

type TradeStatus string

const (
	TradeStatusPendingBuy TradeStatus = "pending_buy"
	TradeStatusBought     TradeStatus = "bought"
	TradeStatusPartialTP1 TradeStatus = "partial_tp1"
	TradeStatusSold       TradeStatus = "sold"
	TradeStatusStopped    TradeStatus = "stopped"
	TradeStatusFailed     TradeStatus = "failed"
)

// BuyDispatchExecutor marks a pending_buy trade that was handed to the
// executor webhook. Polling workers never claim such trades.
const BuyDispatchExecutor = "executor"

// Open reports whether the position holds tokens that can still be exited.
func (s TradeStatus) Open() bool {
	return s == TradeStatusBought || s == TradeStatusPartialTP1
}

func (s TradeStatus) Terminal() bool {
	switch s {
	case TradeStatusSold, TradeStatusStopped, TradeStatusFailed:
		return true
	default:
		return false
	}
}

type SellStatus string

const (
	SellStatusPending  SellStatus = "pending"
	SellStatusExecuted SellStatus = "executed"
	SellStatusFailed   SellStatus = "failed"
)

type AuthorList string

const (
	AuthorListBanned  AuthorList = "banned"
	AuthorListTracked AuthorList = "tracked"
)

// ChannelModel is a source channel synced from the roster.
type ChannelModel struct {
	ID                string `gorm:"column:id;primaryKey"`
	Name              string `gorm:"column:name"`
	URL               string `gorm:"column:url"`
	Enabled           bool   `gorm:"column:enabled"`
	BypassParser      bool   `gorm:"column:bypass_parser"`
	MirrorAttachments bool   `gorm:"column:mirror_attachments"`
	TopicID           string `gorm:"column:topic_id"`
	UpdatedAtUnix     int64  `gorm:"column:updated_at"`
}

func (ChannelModel) TableName() string { return "channels" }

// ChannelCursorModel is the per-channel watermark of the last inbound event.
type ChannelCursorModel struct {
	ChannelID        string `gorm:"column:channel_id;primaryKey"`
	LastFingerprint  string `gorm:"column:last_fingerprint"`
	LastAcceptedUnix int64  `gorm:"column:last_accepted_at"`
	UpdatedAtUnix    int64  `gorm:"column:updated_at"`
}

func (ChannelCursorModel) TableName() string { return "channel_cursors" }

type QueuedMessageModel struct {
	ID              string         `gorm:"column:id;primaryKey"`
	Fingerprint     string         `gorm:"column:fingerprint;uniqueIndex"`
	ChannelID       string         `gorm:"column:channel_id;index"`
	SourceMessageID string         `gorm:"column:source_message_id"`
	AuthorName      string         `gorm:"column:author_name"`
	MessageText     string         `gorm:"column:message_text"`
	OriginalText    string         `gorm:"column:original_text"`
	AttachmentURLs  datatypes.JSON `gorm:"column:attachment_urls;type:TEXT"`
	SignalType      string         `gorm:"column:signal_type"`
	TradeID         string         `gorm:"column:trade_id"`
	Status          MessageStatus  `gorm:"column:status;index:idx_queue_claim,priority:1"`
	RetryCount      int            `gorm:"column:retry_count"`
	ErrorMessage    string         `gorm:"column:error_message"`
	LeaseOwner      string         `gorm:"column:lease_owner"`
	LeaseUntilUnix  int64          `gorm:"column:lease_until"`
	SourceTimeUnix  int64          `gorm:"column:source_time"`
	CreatedAtUnix   int64          `gorm:"column:created_at;index:idx_queue_claim,priority:2"`
	SentAtUnix      int64          `gorm:"column:sent_at"`
	UpdatedAtUnix   int64          `gorm:"column:updated_at"`
}

func (QueuedMessageModel) TableName() string { return "queued_messages" }

type AuthorEntryModel struct {
	ID            int64      `gorm:"column:id;primaryKey"`
	List          AuthorList `gorm:"column:list;uniqueIndex:idx_author_entry,priority:1"`
	NameKey       string     `gorm:"column:name_key;uniqueIndex:idx_author_entry,priority:2"`
	DisplayName   string     `gorm:"column:display_name"`
	Notes         string     `gorm:"column:notes"`
	CreatedAtUnix int64      `gorm:"column:created_at"`
}

func (AuthorEntryModel) TableName() string { return "author_entries" }

// AuthorKey normalizes an author name for list lookups.
func AuthorKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// TradingConfigModel holds sizing and exit rules for channels matching ChannelPattern.
type TradingConfigModel struct {
	ID                   int64   `gorm:"column:id;primaryKey"`
	ChannelPattern       string  `gorm:"column:channel_pattern;uniqueIndex"`
	Enabled              bool    `gorm:"column:enabled"`
	Chain                string  `gorm:"column:chain"`
	Allocation           float64 `gorm:"column:allocation"`
	StopLossPct          float64 `gorm:"column:stop_loss_pct"`
	TakeProfit1Pct       float64 `gorm:"column:take_profit_1_pct"`
	TakeProfit2Pct       float64 `gorm:"column:take_profit_2_pct"`
	TrailingStopEnabled  bool    `gorm:"column:trailing_stop_enabled"`
	TrailingStopPct      float64 `gorm:"column:trailing_stop_pct"`
	TimeBasedSellEnabled bool    `gorm:"column:time_based_sell_enabled"`
	TimeBasedSellMinutes int     `gorm:"column:time_based_sell_minutes"`
	Priority             int     `gorm:"column:priority"`
	SlippageBps          int     `gorm:"column:slippage_bps"`
	UpdatedAtUnix        int64   `gorm:"column:updated_at"`
}

func (TradingConfigModel) TableName() string { return "trading_configs" }

type TradeModel struct {
	ID                   string      `gorm:"column:id;primaryKey"`
	ContractAddress      string      `gorm:"column:contract_address;index"`
	Chain                string      `gorm:"column:chain"`
	ChannelID            string      `gorm:"column:channel_id;index"`
	ChannelName          string      `gorm:"column:channel_name"`
	AuthorName           string      `gorm:"column:author_name"`
	MessageFingerprint   string      `gorm:"column:message_fingerprint;index"`
	Allocation           float64     `gorm:"column:allocation"`
	EntryPrice           float64     `gorm:"column:entry_price"`
	CurrentPrice         float64     `gorm:"column:current_price"`
	HighestPrice         float64     `gorm:"column:highest_price"`
	TokenAmount          float64     `gorm:"column:token_amount"`
	RemainingPct         float64     `gorm:"column:remaining_pct"`
	StopLossPct          float64     `gorm:"column:stop_loss_pct"`
	TakeProfit1Pct       float64     `gorm:"column:take_profit_1_pct"`
	TakeProfit2Pct       float64     `gorm:"column:take_profit_2_pct"`
	TrailingStopEnabled  bool        `gorm:"column:trailing_stop_enabled"`
	TrailingStopPct      float64     `gorm:"column:trailing_stop_pct"`
	TimeBasedSellEnabled bool        `gorm:"column:time_based_sell_enabled"`
	TimeBasedSellMinutes int         `gorm:"column:time_based_sell_minutes"`
	TimeBasedSellAtUnix  int64       `gorm:"column:time_based_sell_at"`
	SlippageBps          int         `gorm:"column:slippage_bps"`
	Status               TradeStatus `gorm:"column:status;index"`
	BuyTxHash            string      `gorm:"column:buy_tx_hash"`
	SellTxHash           string      `gorm:"column:sell_tx_hash"`
	RealizedPnL          float64     `gorm:"column:realized_pnl"`
	RealizedPnLPct       float64     `gorm:"column:realized_pnl_pct"`
	RetryCount           int         `gorm:"column:retry_count"`
	ErrorMessage         string      `gorm:"column:error_message"`
	BuyDispatch          string      `gorm:"column:buy_dispatch"`
	LeaseOwner           string      `gorm:"column:lease_owner"`
	LeaseUntilUnix       int64       `gorm:"column:lease_until"`
	CreatedAtUnix        int64       `gorm:"column:created_at;index"`
	BoughtAtUnix         int64       `gorm:"column:bought_at"`
	ClosedAtUnix         int64       `gorm:"column:closed_at"`
	UpdatedAtUnix        int64       `gorm:"column:updated_at"`
}

func (TradeModel) TableName() string { return "trades" }

// TradeGuardModel records the latest trade per asset for the duplicate window.
type TradeGuardModel struct {
	ContractAddress string `gorm:"column:contract_address;primaryKey"`
	LastTradeID     string `gorm:"column:last_trade_id"`
	LastCreatedUnix int64  `gorm:"column:last_created_at"`
}

func (TradeGuardModel) TableName() string { return "trade_guards" }

// SellRequestModel is an exit order. A partial unique index keeps at most one
// pending row per trade.
type SellRequestModel struct {
	ID             string     `gorm:"column:id;primaryKey"`
	TradeID        string     `gorm:"column:trade_id;index"`
	Percentage     float64    `gorm:"column:percentage"`
	SlippageBps    int        `gorm:"column:slippage_bps"`
	Reason         string     `gorm:"column:reason"`
	Status         SellStatus `gorm:"column:status;index"`
	TxHash         string     `gorm:"column:tx_hash"`
	RealizedAmount float64    `gorm:"column:realized_amount"`
	ErrorMessage   string     `gorm:"column:error_message"`
	LeaseOwner     string     `gorm:"column:lease_owner"`
	LeaseUntilUnix int64      `gorm:"column:lease_until"`
	CreatedAtUnix  int64      `gorm:"column:created_at"`
	ExecutedAtUnix int64      `gorm:"column:executed_at"`
	UpdatedAtUnix  int64      `gorm:"column:updated_at"`
}

func (SellRequestModel) TableName() string { return "sell_requests" }

type EventRecordModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	EventID       string         `gorm:"column:event_uuid;uniqueIndex"`
	Kind          string         `gorm:"column:kind;index"`
	SubjectID     string         `gorm:"column:subject_id;index"`
	Payload       datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (EventRecordModel) TableName() string { return "event_log" }

type ConnectionStatusModel struct {
	Service       string `gorm:"column:service;primaryKey"`
	Status        string `gorm:"column:status"`
	ErrorMessage  string `gorm:"column:error_message"`
	UpdatedAtUnix int64  `gorm:"column:updated_at"`
}

func (ConnectionStatusModel) TableName() string { return "connection_status" }
