package store

import (
	"context"
	"errors"
	"time"

	"signalrelay/internal/store/model"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition is returned when a conditional status update matched no row
	// because the row is in a state the transition does not start from.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Store is the entry point for database access.
type Store interface {
	Messages() MessageRepository
	Roster() RosterRepository
	Trades() TradeRepository
	Sells() SellRepository
	Events() EventRepository
	Status() StatusRepository

	// WithinTx runs fn against a store bound to a single write transaction.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
	Close() error
}

// Claim describes a lease request from a polling worker.
type Claim struct {
	Owner    string
	Limit    int
	RetryCap int
	Lease    time.Duration
	Now      time.Time
}

// MessageRouting is applied to a freshly accepted message when routing finishes.
type MessageRouting struct {
	Status      model.MessageStatus
	MessageText string
	SignalType  string
	TradeID     string
}

// FailureResult reports the row after a failed delivery ack.
type FailureResult struct {
	Message   model.QueuedMessageModel
	Exhausted bool
}

// QueuedMessageView is a claimed message joined with its channel metadata.
type QueuedMessageView struct {
	model.QueuedMessageModel
	ChannelName       string `gorm:"column:channel_name"`
	TopicID           string `gorm:"column:topic_id"`
	MirrorAttachments bool   `gorm:"column:mirror_attachments"`
}

// MessageRepository backs the dedup gate, the cursor ledger and the delivery queue.
type MessageRepository interface {
	// InsertIfAbsent inserts msg unless its fingerprint already exists.
	InsertIfAbsent(ctx context.Context, msg *model.QueuedMessageModel) (bool, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (model.QueuedMessageModel, error)
	Get(ctx context.Context, id string) (model.QueuedMessageModel, error)
	// FinishRouting applies the routing outcome and releases the ingest lease held by owner.
	FinishRouting(ctx context.Context, id, owner string, routing MessageRouting, now time.Time) error
	// Abandon deletes a row that is still pending under owner's ingest lease,
	// so the fingerprint can be pushed again. It reports whether a row was removed.
	Abandon(ctx context.Context, id, owner string) (bool, error)
	AdvanceCursor(ctx context.Context, channelID, fingerprint string, at time.Time) error
	Cursor(ctx context.Context, channelID string) (model.ChannelCursorModel, error)
	ClaimPending(ctx context.Context, claim Claim) ([]QueuedMessageView, error)
	MarkSent(ctx context.Context, id string, now time.Time) error
	MarkFailed(ctx context.Context, id, errMsg string, retryCap int, now time.Time) (FailureResult, error)
	Approve(ctx context.Context, id string, retryCap int, now time.Time) error
	Reject(ctx context.Context, id string, now time.Time) error
	Delete(ctx context.Context, id string) error
	ReviewQueue(ctx context.Context, retryCap, limit int) ([]model.QueuedMessageModel, error)
}

// RosterData is a full replacement set for the roster-owned tables.
type RosterData struct {
	Channels       []model.ChannelModel
	Authors        []model.AuthorEntryModel
	TradingConfigs []model.TradingConfigModel
}

// ChannelView is a channel joined with its cursor.
type ChannelView struct {
	model.ChannelModel
	LastFingerprint  string `gorm:"column:last_fingerprint"`
	LastAcceptedUnix int64  `gorm:"column:last_accepted_at"`
}

type RosterRepository interface {
	Replace(ctx context.Context, data RosterData) error
	Channels(ctx context.Context) ([]ChannelView, error)
	Channel(ctx context.Context, id string) (model.ChannelModel, error)
	OnList(ctx context.Context, list model.AuthorList, name string) (bool, error)
	TradingConfigs(ctx context.Context) ([]model.TradingConfigModel, error)
}

// TradeUpdate is a conditional status transition. Fields is applied only when
// the trade's current status is one of From.
type TradeUpdate struct {
	ID     string
	From   []model.TradeStatus
	Fields map[string]any
}

type TradeRepository interface {
	// CreateGuarded inserts the trade unless another trade for the same asset was
	// created within window.
	CreateGuarded(ctx context.Context, trade *model.TradeModel, window time.Duration) (bool, error)
	Get(ctx context.Context, id string) (model.TradeModel, error)
	Transition(ctx context.Context, upd TradeUpdate) error
	// RecordPrice sets current_price and ratchets highest_price for an open trade.
	RecordPrice(ctx context.Context, id string, price float64, now time.Time) (model.TradeModel, error)
	ClaimPendingBuys(ctx context.Context, claim Claim) ([]model.TradeModel, error)
	List(ctx context.Context, status model.TradeStatus, limit int) ([]model.TradeModel, error)
}

type SellRepository interface {
	// InsertPending inserts req unless a pending request already exists for its trade.
	InsertPending(ctx context.Context, req *model.SellRequestModel) (bool, error)
	Get(ctx context.Context, id string) (model.SellRequestModel, error)
	PendingForTrade(ctx context.Context, tradeID string) (model.SellRequestModel, error)
	ClaimPending(ctx context.Context, claim Claim) ([]model.SellRequestModel, error)
	MarkExecuted(ctx context.Context, id, txHash string, realized float64, now time.Time) error
	MarkFailed(ctx context.Context, id, errMsg string, now time.Time) error
	SumExecuted(ctx context.Context, tradeID string) (float64, error)
}

type EventRepository interface {
	Append(ctx context.Context, rec model.EventRecordModel) error
	List(ctx context.Context, subjectID string, limit int) ([]model.EventRecordModel, error)
}

type StatusRepository interface {
	UpsertConnection(ctx context.Context, rec model.ConnectionStatusModel) error
	Connections(ctx context.Context) ([]model.ConnectionStatusModel, error)
}
