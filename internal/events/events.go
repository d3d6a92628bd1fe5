package events

import (
	"encoding/json"
	"fmt"
	"time"

	"signalrelay/internal/store/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Kind 定义事件类型
type Kind string

const (
	KindMessageAccepted    Kind = "message_accepted"
	KindMessageDuplicate   Kind = "message_duplicate"
	KindMessageRouted      Kind = "message_routed"
	KindDeliveryFailed     Kind = "delivery_failed"
	KindRetryExhausted     Kind = "retry_exhausted"
	KindClassifierDegraded Kind = "classifier_degraded"
	KindTradeOpened        Kind = "trade_opened"
	KindTradeRejected      Kind = "trade_rejected"
	KindTradeTransition    Kind = "trade_transition"
	KindExitRequested      Kind = "exit_requested"
	KindWorkerLog          Kind = "worker_log"
)

// Event is a typed journal entry. Each kind has exactly one payload type.
type Event interface {
	Kind() Kind
	// Subject is the id of the message or trade the event is about.
	Subject() string
}

type MessageAccepted struct {
	MessageID   string `json:"message_id"`
	Fingerprint string `json:"fingerprint"`
	ChannelID   string `json:"channel_id"`
	AuthorName  string `json:"author_name"`
}

func (MessageAccepted) Kind() Kind        { return KindMessageAccepted }
func (e MessageAccepted) Subject() string { return e.MessageID }

type MessageDuplicate struct {
	Fingerprint string `json:"fingerprint"`
	ChannelID   string `json:"channel_id"`
}

func (MessageDuplicate) Kind() Kind        { return KindMessageDuplicate }
func (e MessageDuplicate) Subject() string { return e.Fingerprint }

type MessageRouted struct {
	MessageID string `json:"message_id"`
	Decision  string `json:"decision"`
	Category  string `json:"category,omitempty"`
	Reason    string `json:"reason,omitempty"`
	TradeID   string `json:"trade_id,omitempty"`
}

func (MessageRouted) Kind() Kind        { return KindMessageRouted }
func (e MessageRouted) Subject() string { return e.MessageID }

type DeliveryFailed struct {
	MessageID  string `json:"message_id"`
	RetryCount int    `json:"retry_count"`
	Error      string `json:"error"`
}

func (DeliveryFailed) Kind() Kind        { return KindDeliveryFailed }
func (e DeliveryFailed) Subject() string { return e.MessageID }

type RetryExhausted struct {
	MessageID  string `json:"message_id"`
	ChannelID  string `json:"channel_id"`
	RetryCount int    `json:"retry_count"`
	Error      string `json:"error"`
}

func (RetryExhausted) Kind() Kind        { return KindRetryExhausted }
func (e RetryExhausted) Subject() string { return e.MessageID }

type ClassifierDegraded struct {
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
}

func (ClassifierDegraded) Kind() Kind        { return KindClassifierDegraded }
func (e ClassifierDegraded) Subject() string { return e.MessageID }

type TradeOpened struct {
	TradeID         string  `json:"trade_id"`
	ContractAddress string  `json:"contract_address"`
	Chain           string  `json:"chain"`
	ChannelID       string  `json:"channel_id"`
	Fingerprint     string  `json:"fingerprint"`
	Allocation      float64 `json:"allocation"`
}

func (TradeOpened) Kind() Kind        { return KindTradeOpened }
func (e TradeOpened) Subject() string { return e.TradeID }

type TradeRejected struct {
	Fingerprint     string `json:"fingerprint"`
	ChannelID       string `json:"channel_id"`
	ContractAddress string `json:"contract_address,omitempty"`
	Reason          string `json:"reason"`
}

func (TradeRejected) Kind() Kind        { return KindTradeRejected }
func (e TradeRejected) Subject() string { return e.Fingerprint }

type TradeTransition struct {
	TradeID string `json:"trade_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Reason  string `json:"reason,omitempty"`
	TxHash  string `json:"tx_hash,omitempty"`
}

func (TradeTransition) Kind() Kind        { return KindTradeTransition }
func (e TradeTransition) Subject() string { return e.TradeID }

type ExitRequested struct {
	TradeID    string  `json:"trade_id"`
	SellID     string  `json:"sell_id,omitempty"`
	Percentage float64 `json:"percentage"`
	Reason     string  `json:"reason"`
	Created    bool    `json:"created"`
}

func (ExitRequested) Kind() Kind        { return KindExitRequested }
func (e ExitRequested) Subject() string { return e.TradeID }

type WorkerLog struct {
	Level       string         `json:"level"`
	Message     string         `json:"message"`
	ChannelName string         `json:"channel_name,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

func (WorkerLog) Kind() Kind        { return KindWorkerLog }
func (e WorkerLog) Subject() string { return e.ChannelName }

// Record is a decoded journal row.
type Record struct {
	ID        string
	CreatedAt time.Time
	Event     Event
}

var decoders = map[Kind]func([]byte) (Event, error){
	KindMessageAccepted:    decodeAs[MessageAccepted],
	KindMessageDuplicate:   decodeAs[MessageDuplicate],
	KindMessageRouted:      decodeAs[MessageRouted],
	KindDeliveryFailed:     decodeAs[DeliveryFailed],
	KindRetryExhausted:     decodeAs[RetryExhausted],
	KindClassifierDegraded: decodeAs[ClassifierDegraded],
	KindTradeOpened:        decodeAs[TradeOpened],
	KindTradeRejected:      decodeAs[TradeRejected],
	KindTradeTransition:    decodeAs[TradeTransition],
	KindExitRequested:      decodeAs[ExitRequested],
	KindWorkerLog:          decodeAs[WorkerLog],
}

func decodeAs[T Event](raw []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Encode converts an event into a store row.
func Encode(evt Event, at time.Time) (model.EventRecordModel, error) {
	if evt == nil {
		return model.EventRecordModel{}, fmt.Errorf("encode event: nil event")
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return model.EventRecordModel{}, fmt.Errorf("encode event %s: %w", evt.Kind(), err)
	}
	return model.EventRecordModel{
		EventID:       uuid.NewString(),
		Kind:          string(evt.Kind()),
		SubjectID:     evt.Subject(),
		Payload:       datatypes.JSON(raw),
		CreatedAtUnix: at.UnixMilli(),
	}, nil
}

// Decode restores the concrete payload type recorded for rec.Kind.
func Decode(rec model.EventRecordModel) (Record, error) {
	dec, ok := decoders[Kind(rec.Kind)]
	if !ok {
		return Record{}, fmt.Errorf("decode event: unknown kind %q", rec.Kind)
	}
	evt, err := dec([]byte(rec.Payload))
	if err != nil {
		return Record{}, fmt.Errorf("decode event %s: %w", rec.Kind, err)
	}
	return Record{
		ID:        rec.EventID,
		CreatedAt: time.UnixMilli(rec.CreatedAtUnix),
		Event:     evt,
	}, nil
}
