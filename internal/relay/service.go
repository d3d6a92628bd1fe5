// Package relay is the inbound half of the worker API: the fingerprint dedup
// gate, the per-channel cursor and the delivery queue.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"signalrelay/internal/events"
	"signalrelay/internal/logger"
	"signalrelay/internal/pkg/errs"
	"signalrelay/internal/routing"
	"signalrelay/internal/store"
	"signalrelay/internal/store/model"
	"signalrelay/internal/trading"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Router is the routing policy as seen by the relay.
type Router interface {
	Route(ctx context.Context, in routing.Input, settings routing.Settings) (routing.Decision, error)
}

// TradeOpener creates trades for eligible messages.
type TradeOpener interface {
	Open(ctx context.Context, req trading.OpenRequest) (trading.OpenResult, error)
}

type Recorder interface {
	Record(ctx context.Context, evt events.Event)
}

type Counters interface {
	Message(outcome string)
	Delivery(result string)
}

// Alerter is told when a message exhausts its delivery retries.
type Alerter interface {
	MessageExhausted(ctx context.Context, msg model.QueuedMessageModel)
}

type Options struct {
	RetryCap       int
	BatchSize      int
	MaxBatchSize   int
	Lease          time.Duration
	IngestLease    time.Duration
	MaxAttachments int
}

func (o Options) withDefaults() Options {
	if o.RetryCap <= 0 {
		o.RetryCap = 3
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.MaxBatchSize < o.BatchSize {
		o.MaxBatchSize = o.BatchSize
	}
	if o.Lease <= 0 {
		o.Lease = 2 * time.Minute
	}
	if o.IngestLease <= 0 {
		o.IngestLease = 30 * time.Second
	}
	if o.MaxAttachments <= 0 {
		o.MaxAttachments = 5
	}
	return o
}

type Deps struct {
	Store    store.Store
	Router   Router
	Trades   TradeOpener
	Journal  Recorder
	Counters Counters
	Alerter  Alerter
}

type Service struct {
	store    store.Store
	router   Router
	trades   TradeOpener
	journal  Recorder
	counters Counters
	alerter  Alerter
	opts     Options
	now      func() time.Time
}

func NewService(deps Deps, opts Options) *Service {
	s := &Service{
		store:    deps.Store,
		router:   deps.Router,
		trades:   deps.Trades,
		journal:  deps.Journal,
		counters: deps.Counters,
		alerter:  deps.Alerter,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
	if s.journal == nil {
		s.journal = nopRecorder{}
	}
	if s.counters == nil {
		s.counters = nopCounters{}
	}
	return s
}

type PushRequest struct {
	ChannelID       string
	Fingerprint     string
	MessageText     string
	AuthorName      string
	AttachmentURLs  []string
	SourceMessageID string
	Timestamp       time.Time
}

type PushResult struct {
	Duplicate  bool
	Skipped    bool
	SignalType string
	MessageID  string
	TradeID    string
}

// Push accepts an inbound message at most once per fingerprint. The channel
// cursor advances for every push, duplicates included. A new row carries an
// ingest lease until routing finishes so no delivery worker can claim it
// half-routed. When routing returns an error the row is removed again and the
// error is returned, so a retry is routed from scratch. Only a handler that
// dies mid-way leaves the lease to lapse, and then the original text is delivered.
func (s *Service) Push(ctx context.Context, req PushRequest, settings routing.Settings) (PushResult, error) {
	req.ChannelID = strings.TrimSpace(req.ChannelID)
	req.Fingerprint = strings.TrimSpace(req.Fingerprint)
	if req.Fingerprint == "" {
		return PushResult{}, errs.InvalidField("fingerprint", "required")
	}
	if req.ChannelID == "" {
		return PushResult{}, errs.InvalidField("channel_id", "required")
	}
	now := s.now()
	at := req.Timestamp
	if at.IsZero() {
		at = now
	}

	channel, err := s.store.Roster().Channel(ctx, req.ChannelID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		channel = model.ChannelModel{ID: req.ChannelID, Name: req.ChannelID}
	case err != nil:
		return PushResult{}, fmt.Errorf("push message: %w", err)
	}

	owner := uuid.NewString()
	msg := &model.QueuedMessageModel{
		ID:              uuid.NewString(),
		Fingerprint:     req.Fingerprint,
		ChannelID:       req.ChannelID,
		SourceMessageID: req.SourceMessageID,
		AuthorName:      strings.TrimSpace(req.AuthorName),
		MessageText:     req.MessageText,
		OriginalText:    req.MessageText,
		AttachmentURLs:  s.attachments(req.AttachmentURLs),
		Status:          model.MessageStatusPending,
		LeaseOwner:      owner,
		LeaseUntilUnix:  now.Add(s.opts.IngestLease).UnixMilli(),
		SourceTimeUnix:  at.UnixMilli(),
		CreatedAtUnix:   now.UnixMilli(),
		UpdatedAtUnix:   now.UnixMilli(),
	}
	inserted, err := s.store.Messages().InsertIfAbsent(ctx, msg)
	if err != nil {
		return PushResult{}, fmt.Errorf("push message: %w", err)
	}
	if err := s.store.Messages().AdvanceCursor(ctx, req.ChannelID, req.Fingerprint, at); err != nil {
		return PushResult{}, fmt.Errorf("push message: %w", err)
	}
	if !inserted {
		s.counters.Message("duplicate")
		s.journal.Record(ctx, events.MessageDuplicate{Fingerprint: req.Fingerprint, ChannelID: req.ChannelID})
		out := PushResult{Duplicate: true}
		if existing, err := s.store.Messages().FindByFingerprint(ctx, req.Fingerprint); err == nil {
			out.MessageID = existing.ID
		}
		return out, nil
	}
	s.journal.Record(ctx, events.MessageAccepted{
		MessageID:   msg.ID,
		Fingerprint: msg.Fingerprint,
		ChannelID:   msg.ChannelID,
		AuthorName:  msg.AuthorName,
	})

	dec, err := s.router.Route(ctx, routing.Input{
		AuthorName:   msg.AuthorName,
		Text:         req.MessageText,
		BypassParser: channel.BypassParser,
	}, settings)
	if err != nil {
		s.abandon(ctx, msg.ID, owner)
		return PushResult{}, fmt.Errorf("push message: %w", err)
	}
	if dec.Degraded {
		s.journal.Record(ctx, events.ClassifierDegraded{MessageID: msg.ID, Reason: dec.DegradedErr})
	}

	out := PushResult{MessageID: msg.ID, SignalType: dec.Category}
	routed := store.MessageRouting{Status: model.MessageStatusPending, SignalType: dec.Category}
	if dec.Kind == routing.KindSkip {
		routed.Status = model.MessageStatusSkipped
		out.Skipped = true
	} else {
		routed.MessageText = dec.Text
		out.TradeID = s.openTrade(ctx, req, channel)
		routed.TradeID = out.TradeID
	}
	if err := s.store.Messages().FinishRouting(ctx, msg.ID, owner, routed, s.now()); err != nil {
		s.abandon(ctx, msg.ID, owner)
		return PushResult{}, fmt.Errorf("push message: %w", err)
	}
	if out.Skipped {
		s.counters.Message("skipped")
	} else {
		s.counters.Message("accepted")
	}
	s.journal.Record(ctx, events.MessageRouted{
		MessageID: msg.ID,
		Decision:  string(dec.Kind),
		Category:  dec.Category,
		Reason:    dec.Reason,
		TradeID:   out.TradeID,
	})
	return out, nil
}

// abandon drops a half-routed row so the pusher's retry is accepted as new
// instead of the row lapsing into delivery unrouted. A row whose ingest lease
// was already taken over is left alone.
func (s *Service) abandon(ctx context.Context, id, owner string) {
	removed, err := s.store.Messages().Abandon(context.WithoutCancel(ctx), id, owner)
	switch {
	case err != nil:
		logger.Errorf("push: abandon %s: %v", id, err)
	case removed:
		s.counters.Message("abandoned")
		logger.Warnf("push: routing for %s failed, row dropped for redelivery", id)
	}
}

// openTrade runs before the message becomes deliverable. Trade errors are
// logged; they never block delivery.
func (s *Service) openTrade(ctx context.Context, req PushRequest, channel model.ChannelModel) string {
	if s.trades == nil {
		return ""
	}
	res, err := s.trades.Open(ctx, trading.OpenRequest{
		MessageText: req.MessageText,
		ChannelID:   channel.ID,
		ChannelName: channel.Name,
		Fingerprint: req.Fingerprint,
		AuthorName:  req.AuthorName,
	})
	if err != nil {
		logger.Errorf("push %s: open trade: %v", req.Fingerprint, err)
		return ""
	}
	return res.TradeID
}

func (s *Service) attachments(urls []string) datatypes.JSON {
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if len(kept) == s.opts.MaxAttachments {
			logger.Debugf("dropping attachments beyond %d", s.opts.MaxAttachments)
			break
		}
		kept = append(kept, u)
	}
	raw, _ := json.Marshal(kept)
	return datatypes.JSON(raw)
}

// Pull leases the oldest deliverable messages to worker.
func (s *Service) Pull(ctx context.Context, worker string, limit int) ([]store.QueuedMessageView, error) {
	if limit <= 0 {
		limit = s.opts.BatchSize
	}
	if limit > s.opts.MaxBatchSize {
		limit = s.opts.MaxBatchSize
	}
	worker = strings.TrimSpace(worker)
	if worker == "" {
		worker = "relay"
	}
	return s.store.Messages().ClaimPending(ctx, store.Claim{
		Owner:    worker + ":" + uuid.NewString(),
		Limit:    limit,
		RetryCap: s.opts.RetryCap,
		Lease:    s.opts.Lease,
		Now:      s.now(),
	})
}

func (s *Service) MarkSent(ctx context.Context, id string) error {
	if err := s.store.Messages().MarkSent(ctx, id, s.now()); err != nil {
		return fmt.Errorf("mark sent %s: %w", id, err)
	}
	s.counters.Delivery("sent")
	return nil
}

// MarkFailed counts a delivery failure. The transition to failed alerts the
// operator once; later failures on a failed row change nothing but the error.
func (s *Service) MarkFailed(ctx context.Context, id, errMsg string) (model.QueuedMessageModel, error) {
	res, err := s.store.Messages().MarkFailed(ctx, id, errMsg, s.opts.RetryCap, s.now())
	if err != nil {
		return model.QueuedMessageModel{}, fmt.Errorf("mark failed %s: %w", id, err)
	}
	msg := res.Message
	if res.Exhausted {
		logger.Warnf("message %s exhausted %d retries: %s", id, msg.RetryCount, errMsg)
		s.counters.Delivery("exhausted")
		s.journal.Record(ctx, events.RetryExhausted{
			MessageID:  id,
			ChannelID:  msg.ChannelID,
			RetryCount: msg.RetryCount,
			Error:      errMsg,
		})
		if s.alerter != nil {
			s.alerter.MessageExhausted(ctx, msg)
		}
		return msg, nil
	}
	s.counters.Delivery("failed")
	s.journal.Record(ctx, events.DeliveryFailed{MessageID: id, RetryCount: msg.RetryCount, Error: errMsg})
	return msg, nil
}

func (s *Service) Approve(ctx context.Context, id string) error {
	if err := s.store.Messages().Approve(ctx, id, s.opts.RetryCap, s.now()); err != nil {
		return fmt.Errorf("approve %s: %w", id, err)
	}
	logger.Infof("message %s approved for redelivery", id)
	return nil
}

func (s *Service) Reject(ctx context.Context, id string) error {
	if err := s.store.Messages().Reject(ctx, id, s.now()); err != nil {
		return fmt.Errorf("reject %s: %w", id, err)
	}
	logger.Infof("message %s rejected", id)
	return nil
}

// Delete removes the row. Its fingerprint becomes acceptable again.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Messages().Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	logger.Infof("message %s deleted", id)
	return nil
}

func (s *Service) ReviewQueue(ctx context.Context, limit int) ([]model.QueuedMessageModel, error) {
	return s.store.Messages().ReviewQueue(ctx, s.opts.RetryCap, limit)
}

// Channels lists roster channels with their cursor watermark.
func (s *Service) Channels(ctx context.Context) ([]store.ChannelView, error) {
	return s.store.Roster().Channels(ctx)
}

func (s *Service) Cursor(ctx context.Context, channelID string) (model.ChannelCursorModel, error) {
	return s.store.Messages().Cursor(ctx, channelID)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, events.Event) {}

type nopCounters struct{}

func (nopCounters) Message(string)  {}
func (nopCounters) Delivery(string) {}
